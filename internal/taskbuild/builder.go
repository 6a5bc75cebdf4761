// Package taskbuild constructs immutable tasks from validated questions and
// their routing results: deterministic identifier generation, duplicate
// detection, and mandatory-field checks immediately before construction.
package taskbuild

import (
	"fmt"
	"time"

	"scoreflow/internal/logging"
	"scoreflow/internal/routing"
	"scoreflow/internal/types"
)

// Error is a construction failure, fatal for the single task it names.
type Error struct {
	TaskID     string
	QuestionID string
	Field      string // set for missing-mandatory-field failures
	Msg        string
}

func (e *Error) Error() string {
	return fmt.Sprintf("task construction failure for %s (question %s): %s", e.TaskID, e.QuestionID, e.Msg)
}

// DuplicateError reports a task id collision, identifying both the new and
// the prior question that generated it.
type DuplicateError struct {
	TaskID          string
	QuestionID      string
	PriorQuestionID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate task_id %s: question %s collides with prior question %s",
		e.TaskID, e.QuestionID, e.PriorQuestionID)
}

// SeenIDs records which question reserved each task id. Single-writer by
// construction: the planning phases run sequentially. A parallelized builder
// must serialize access to this map.
type SeenIDs map[string]string

// Builder constructs tasks. Construction is pure except for the single side
// effect of reserving the id in SeenIDs, which happens exactly once and
// before returning.
type Builder struct {
	correlationID string
	now           func() time.Time
}

// NewBuilder returns a builder stamping tasks with the given correlation id.
func NewBuilder(correlationID string) *Builder {
	return &Builder{correlationID: correlationID, now: time.Now}
}

// SetClock overrides the creation-time source. Used by tests and by callers
// that need reproducible plan hashes.
func (b *Builder) SetClock(now func() time.Time) {
	b.now = now
}

// Build constructs one task from a question and its routing result.
// question_global must already be a validated integer in range; the task id
// is derived deterministically and checked against seen before anything else.
func (b *Builder) Build(q types.ValidatedQuestion, routed routing.Result, patterns []types.Pattern, resolved []types.ResolvedSignal, seen SeenIDs) (types.Task, error) {
	if q.QuestionGlobal < 0 || q.QuestionGlobal > types.MaxQuestionGlobal {
		return types.Task{}, &Error{
			QuestionID: q.QuestionID,
			Field:      "question_global",
			Msg: fmt.Sprintf("question_global must be in range 0-%d, got %d",
				types.MaxQuestionGlobal, q.QuestionGlobal),
		}
	}

	taskID := types.TaskID(q.QuestionGlobal, routed.PolicyAreaID)

	if prior, ok := seen[taskID]; ok {
		return types.Task{}, &DuplicateError{
			TaskID:          taskID,
			QuestionID:      q.QuestionID,
			PriorQuestionID: prior,
		}
	}
	// Reserve exactly once, before any return path below, so a later
	// collision reports this question as the prior owner even if the
	// remaining field checks fail.
	seen[taskID] = q.QuestionID

	creationTime := b.now().UTC().Format(time.RFC3339Nano)

	mandatory := []struct {
		field string
		value string
	}{
		{"task_id", taskID},
		{"question_id", q.QuestionID},
		{"policy_area_id", routed.PolicyAreaID},
		{"dimension_id", routed.DimensionID},
		{"chunk_id", routed.ChunkID},
		{"creation_time", creationTime},
	}
	for _, m := range mandatory {
		if m.value == "" {
			return types.Task{}, &Error{
				TaskID:     taskID,
				QuestionID: q.QuestionID,
				Field:      m.field,
				Msg:        fmt.Sprintf("mandatory field '%s' is empty", m.field),
			}
		}
	}

	sigMap := make(map[string]types.ResolvedSignal, len(resolved))
	for _, sig := range resolved {
		sigMap[sig.SignalType] = sig
	}

	metadata := map[string]any{
		"base_slot":         q.BaseSlot,
		"cluster_id":        q.ClusterID,
		"document_position": routed.DocumentPosition,
		"correlation_id":    b.correlationID,
		"pattern_count":     len(patterns),
		"signal_count":      len(sigMap),
	}

	task := types.Task{
		TaskID:         taskID,
		QuestionID:     q.QuestionID,
		QuestionGlobal: q.QuestionGlobal,
		PolicyAreaID:   routed.PolicyAreaID,
		DimensionID:    routed.DimensionID,
		ChunkID:        routed.ChunkID,
		Patterns:       patterns,
		Signals:        sigMap,
		CreationTime:   creationTime,
		ExpectedOutput: q.ExpectedOutput,
		Metadata:       metadata,
	}

	logging.TaskBuildDebug("constructed task %s (question=%s, chunk=%s, patterns=%d, signals=%d)",
		taskID, q.QuestionID, routed.ChunkID, len(patterns), len(sigMap))

	return task, nil
}
