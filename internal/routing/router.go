// Package routing matches each validated question to exactly one chunk,
// filters its patterns to the routed policy area, resolves required
// enrichment signals, and checks expected-output schema compatibility.
// Every failure is an *Error with a closed ErrorKind; one question's routing
// failure never affects its siblings.
package routing

import (
	"sort"

	"scoreflow/internal/logging"
	"scoreflow/internal/signals"
	"scoreflow/internal/types"
)

// Result is the outcome of matching one question to one chunk. Ephemeral:
// consumed immediately by the task builder.
type Result struct {
	Chunk            types.ValidatedChunk
	ChunkID          string
	PolicyAreaID     string
	DimensionID      string
	Content          string
	ProvidedOutput   types.OutputSchema
	DocumentPosition types.Span
}

// Router performs question-to-chunk routing.
type Router struct{}

// NewRouter returns a router.
func NewRouter() *Router {
	return &Router{}
}

// Route looks up the unique chunk for the question's routing key. Absence is
// a hard error naming both keys - there is no chunk-search fallback. The
// matched chunk's content must be non-empty and its keys must equal the
// question's.
func (r *Router) Route(q types.ValidatedQuestion, matrix *Matrix) (Result, error) {
	pa, dim := q.RoutingKey()

	chunk, ok := matrix.Get(pa, dim)
	if !ok {
		return Result{}, routingErr(KindNoChunk, q.QuestionID,
			"no chunk found for policy_area_id='%s', dimension_id='%s'", pa, dim)
	}
	if chunk.Content == "" {
		return Result{}, routingErr(KindEmptyContent, q.QuestionID,
			"chunk %s has empty content", chunk.ChunkID)
	}
	if chunk.PolicyAreaID != pa || chunk.DimensionID != dim {
		return Result{}, routingErr(KindKeyMismatch, q.QuestionID,
			"chunk %s keys (%s, %s) do not match question keys (%s, %s)",
			chunk.ChunkID, chunk.PolicyAreaID, chunk.DimensionID, pa, dim)
	}

	if chunk.Position == 0 {
		// Chunks that carry no position default to offset zero. Deliberate
		// relaxation, surfaced as a warning rather than an error.
		logging.RoutingWarn("chunk %s provides no document position, defaulting to 0", chunk.ChunkID)
	}

	logging.RoutingDebug("routed question %s to chunk %s (pa=%s, dim=%s)",
		q.QuestionID, chunk.ChunkID, pa, dim)

	return Result{
		Chunk:          chunk,
		ChunkID:        chunk.ChunkID,
		PolicyAreaID:   chunk.PolicyAreaID,
		DimensionID:    chunk.DimensionID,
		Content:        chunk.Content,
		ProvidedOutput: chunk.ProvidedOutput,
		DocumentPosition: types.Span{
			Start: chunk.Position,
			End:   chunk.Position + len(chunk.Content),
		},
	}, nil
}

// FilterPatterns applies strict equality on policy_area_id: patterns lacking
// the field, or whose value differs from the routed area, are excluded and
// logged, never errored.
func (r *Router) FilterPatterns(q types.ValidatedQuestion, targetPA string) []types.Pattern {
	filtered := make([]types.Pattern, 0, len(q.Patterns))
	excluded := 0
	for _, p := range q.Patterns {
		if p.PolicyAreaID == "" || p.PolicyAreaID != targetPA {
			excluded++
			continue
		}
		filtered = append(filtered, p)
	}
	if excluded > 0 {
		logging.RoutingDebug("excluded %d/%d patterns for question %s (target policy area %s)",
			excluded, len(q.Patterns), q.QuestionID, targetPA)
	}
	if len(filtered) == 0 && len(q.Patterns) > 0 {
		logging.RoutingWarn("zero patterns matched for question %s with target policy area %s",
			q.QuestionID, targetPA)
	}
	return filtered
}

// ResolveSignals asks the registry for the question's required signal names.
// Every returned signal must carry signal_id, signal_type and content, or the
// whole resolution fails. A required name absent from the returned types is a
// hard stop: the question cannot be answered without it. Duplicate types are
// logged but tolerated.
func (r *Router) ResolveSignals(q types.ValidatedQuestion, chunkID string, registry signals.Registry) ([]types.ResolvedSignal, error) {
	if len(q.SignalRequirements) == 0 {
		return []types.ResolvedSignal{}, nil
	}

	required := make([]string, 0, len(q.SignalRequirements))
	for name := range q.SignalRequirements {
		required = append(required, name)
	}
	sort.Strings(required)

	got := registry.GetSignalsForChunk(chunkID, required)
	if got == nil {
		return nil, routingErr(KindRegistryContract, q.QuestionID,
			"signal registry returned nil for chunk %s, violating contract: expected a sequence of signals", chunkID)
	}

	resolvedTypes := make(map[string]int, len(got))
	for i, sig := range got {
		if sig.SignalID == "" || sig.SignalType == "" || sig.Content == "" {
			return nil, routingErr(KindSignalInvalid, q.QuestionID,
				"signal at index %d for chunk %s is missing signal_id, signal_type or content", i, chunkID)
		}
		resolvedTypes[sig.SignalType]++
	}

	var missing []string
	for _, name := range required {
		if resolvedTypes[name] == 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, routingErr(KindMissingSignal, q.QuestionID,
			"missing required signals %v for chunk %s", missing, chunkID)
	}

	for sigType, count := range resolvedTypes {
		if count > 1 {
			logging.RoutingWarn("duplicate signal type '%s' (%d occurrences) for chunk %s, question %s",
				sigType, count, chunkID, q.QuestionID)
		}
	}

	logging.RoutingDebug("resolved %d signals for question %s, chunk %s", len(got), q.QuestionID, chunkID)
	return got, nil
}

// CheckSchemaCompatibility verifies the question's and the routed chunk's
// expected-output schemas agree: same category, sequences match length,
// mappings match key sets exactly. A question schema present with an absent
// chunk schema is compatible via relaxation, logged rather than errored.
func (r *Router) CheckSchemaCompatibility(q types.ValidatedQuestion, routed Result) error {
	qs := q.ExpectedOutput
	cs := routed.ProvidedOutput

	if qs.Shape != types.ShapeAbsent && cs.Shape == types.ShapeAbsent {
		logging.Routing("question %s schema compatible via relaxation: chunk %s provides no schema",
			q.QuestionID, routed.ChunkID)
		return nil
	}
	if qs.Shape != cs.Shape {
		return routingErr(KindSchemaIncompatible, q.QuestionID,
			"schema category mismatch: question is %s, chunk %s is %s", qs.Shape, routed.ChunkID, cs.Shape)
	}

	switch qs.Shape {
	case types.ShapeSequence:
		if len(qs.Sequence) != len(cs.Sequence) {
			return routingErr(KindSchemaIncompatible, q.QuestionID,
				"sequence schema length mismatch: question has %d elements, chunk %s has %d",
				len(qs.Sequence), routed.ChunkID, len(cs.Sequence))
		}
	case types.ShapeMapping:
		qKeys := qs.Keys()
		cKeys := cs.Keys()
		if len(qKeys) != len(cKeys) {
			return routingErr(KindSchemaIncompatible, q.QuestionID,
				"mapping schema key sets differ: question %v, chunk %s %v", qKeys, routed.ChunkID, cKeys)
		}
		for i := range qKeys {
			if qKeys[i] != cKeys[i] {
				return routingErr(KindSchemaIncompatible, q.QuestionID,
					"mapping schema key sets differ: question %v, chunk %s %v", qKeys, routed.ChunkID, cKeys)
			}
		}
	}
	return nil
}
