package routing

import "fmt"

// ErrorKind is the closed set of routing failure modes. Callers switch on
// the kind instead of matching message text.
type ErrorKind int

const (
	// KindNoChunk: no chunk exists for the question's routing key.
	KindNoChunk ErrorKind = iota
	// KindEmptyContent: the matched chunk has empty content.
	KindEmptyContent
	// KindKeyMismatch: the matched chunk's routing keys differ from the question's.
	KindKeyMismatch
	// KindRegistryContract: the signal registry returned a nil slice.
	KindRegistryContract
	// KindSignalInvalid: a returned signal is missing a mandatory field.
	KindSignalInvalid
	// KindMissingSignal: a required signal type was not returned. Hard stop -
	// the question cannot be answered without it.
	KindMissingSignal
	// KindSchemaIncompatible: question and chunk expected-output schemas do
	// not agree.
	KindSchemaIncompatible
)

func (k ErrorKind) String() string {
	switch k {
	case KindNoChunk:
		return "no_chunk"
	case KindEmptyContent:
		return "empty_content"
	case KindKeyMismatch:
		return "key_mismatch"
	case KindRegistryContract:
		return "registry_contract"
	case KindSignalInvalid:
		return "signal_invalid"
	case KindMissingSignal:
		return "missing_signal"
	case KindSchemaIncompatible:
		return "schema_incompatible"
	default:
		return "unknown"
	}
}

// Error is a routing failure. Always fatal for the single question it names.
type Error struct {
	Kind       ErrorKind
	QuestionID string
	Msg        string
}

func (e *Error) Error() string {
	return fmt.Sprintf("routing failure (%s) for question %s: %s", e.Kind, e.QuestionID, e.Msg)
}

func routingErr(kind ErrorKind, questionID, format string, args ...any) *Error {
	return &Error{Kind: kind, QuestionID: questionID, Msg: fmt.Sprintf(format, args...)}
}
