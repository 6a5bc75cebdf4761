// Package types provides shared type definitions used across scoreflow packages.
// This package exists to break import cycles between schema, routing, taskbuild,
// plan and batch. Types in this package are foundational value objects with no
// complex dependencies.
package types

import (
	"fmt"
	"sort"
)

// MaxQuestionGlobal is the inclusive upper bound for question_global.
const MaxQuestionGlobal = 999

// RequiredTaskCount is the canonical plan size: 6 dimensions x 50 questions.
const RequiredTaskCount = 300

// TaskIDFormat is the deterministic task identifier format:
// "MQC-" + zero-padded question_global + "_" + policy_area_id.
const TaskIDFormat = "MQC-%03d_%s"

// Pattern is one evidence-matching pattern attached to a question.
// PolicyAreaID scopes the pattern; patterns without it are never routed.
type Pattern struct {
	PatternID    string         `json:"pattern_id" yaml:"pattern_id"`
	PolicyAreaID string         `json:"policy_area_id" yaml:"policy_area_id"`
	Expression   string         `json:"expression" yaml:"expression"`
	Metadata     map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// SchemaShape classifies an expected-output schema: a positional sequence,
// a keyed mapping, or absent entirely.
type SchemaShape int

const (
	ShapeAbsent SchemaShape = iota
	ShapeSequence
	ShapeMapping
)

func (s SchemaShape) String() string {
	switch s {
	case ShapeSequence:
		return "sequence"
	case ShapeMapping:
		return "mapping"
	default:
		return "absent"
	}
}

// ElementSpec is one element of an expected-output schema.
type ElementSpec struct {
	Type     string  `json:"type" yaml:"type"`
	Required bool    `json:"required,omitempty" yaml:"required,omitempty"`
	Minimum  float64 `json:"minimum,omitempty" yaml:"minimum,omitempty"`
}

// OutputSchema is a shape-typed expected-output schema. Exactly one of
// Sequence or Mapping is populated when Shape is not ShapeAbsent.
type OutputSchema struct {
	Shape    SchemaShape            `json:"shape" yaml:"shape"`
	Sequence []ElementSpec          `json:"sequence,omitempty" yaml:"sequence,omitempty"`
	Mapping  map[string]ElementSpec `json:"mapping,omitempty" yaml:"mapping,omitempty"`
}

// Keys returns the sorted key set of a mapping schema.
func (s OutputSchema) Keys() []string {
	keys := make([]string, 0, len(s.Mapping))
	for k := range s.Mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidatedQuestion is a question record that passed the schema gate.
// Immutable thereafter: downstream components read, never write.
type ValidatedQuestion struct {
	QuestionID         string             `json:"question_id"`
	QuestionGlobal     int                `json:"question_global"`
	DimensionID        string             `json:"dimension_id"`
	PolicyAreaID       string             `json:"policy_area_id"`
	BaseSlot           string             `json:"base_slot"`
	ClusterID          string             `json:"cluster_id"`
	Patterns           []Pattern          `json:"patterns"`
	SignalRequirements map[string]float64 `json:"signal_requirements"`
	ExpectedOutput     OutputSchema       `json:"expected_output"`
	Metadata           map[string]any     `json:"metadata"`
}

// RoutingKey returns the (policy_area_id, dimension_id) pair used to match
// the question to its chunk.
func (q ValidatedQuestion) RoutingKey() (string, string) {
	return q.PolicyAreaID, q.DimensionID
}

// ValidatedChunk is a content chunk record that passed the schema gate.
type ValidatedChunk struct {
	ChunkID        string         `json:"chunk_id"`
	PolicyAreaID   string         `json:"policy_area_id"`
	DimensionID    string         `json:"dimension_id"`
	Position       int            `json:"position"`
	Content        string         `json:"content"`
	ProvidedOutput OutputSchema   `json:"provided_output"`
	Metadata       map[string]any `json:"metadata"`
}

// Span is a start/end pair locating a chunk inside the source document.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ResolvedSignal is an enrichment fact attached to a chunk. All three fields
// are mandatory; callers reject signals missing any of them.
type ResolvedSignal struct {
	SignalID   string `json:"signal_id" yaml:"signal_id"`
	SignalType string `json:"signal_type" yaml:"signal_type"`
	Content    string `json:"content" yaml:"content"`
}

// Task pairs one question with its routed chunk. Created once by the task
// builder, never mutated, owned by the plan once assembled.
type Task struct {
	TaskID         string                    `json:"task_id"`
	QuestionID     string                    `json:"question_id"`
	QuestionGlobal int                       `json:"question_global"`
	PolicyAreaID   string                    `json:"policy_area_id"`
	DimensionID    string                    `json:"dimension_id"`
	ChunkID        string                    `json:"chunk_id"`
	Patterns       []Pattern                 `json:"patterns"`
	Signals        map[string]ResolvedSignal `json:"signals"`
	CreationTime   string                    `json:"creation_time"`
	ExpectedOutput OutputSchema              `json:"expected_output"`
	Metadata       map[string]any            `json:"metadata"`
}

// TaskID formats the deterministic task identifier for a question.
func TaskID(questionGlobal int, policyAreaID string) string {
	return fmt.Sprintf(TaskIDFormat, questionGlobal, policyAreaID)
}

// ExecutionPlan is the complete, immutable, integrity-hashed set of tasks for
// one document run.
type ExecutionPlan struct {
	PlanID        string `json:"plan_id"`
	Tasks         []Task `json:"tasks"`
	IntegrityHash string `json:"integrity_hash"`
	CreationTime  string `json:"creation_time"`
	CorrelationID string `json:"correlation_id"`
}

// NewExecutionPlan constructs a plan, enforcing the exact-count and
// distinct-id invariants. Violating either is a construction-time failure.
// requiredCount is canonically RequiredTaskCount.
func NewExecutionPlan(planID string, tasks []Task, requiredCount int, integrityHash, creationTime, correlationID string) (*ExecutionPlan, error) {
	if len(tasks) != requiredCount {
		return nil, fmt.Errorf("execution plan requires exactly %d tasks, got %d", requiredCount, len(tasks))
	}
	seen := make(map[string]struct{}, len(tasks))
	var dups []string
	for _, t := range tasks {
		if _, ok := seen[t.TaskID]; ok {
			dups = append(dups, t.TaskID)
		}
		seen[t.TaskID] = struct{}{}
	}
	if len(dups) > 0 {
		sort.Strings(dups)
		return nil, fmt.Errorf("execution plan contains duplicate task ids: %v", dups)
	}
	owned := make([]Task, len(tasks))
	copy(owned, tasks)
	return &ExecutionPlan{
		PlanID:        planID,
		Tasks:         owned,
		IntegrityHash: integrityHash,
		CreationTime:  creationTime,
		CorrelationID: correlationID,
	}, nil
}
