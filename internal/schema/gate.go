// Package schema implements the schema gate: field-by-field validation of raw
// question and chunk records into typed, immutable records. The gate never
// fails fast and never panics - it accumulates every error and always returns
// a report. Downstream components must refuse to run when Passed is false.
package schema

import (
	"fmt"
	"time"

	"scoreflow/internal/logging"
	"scoreflow/internal/types"
)

// RawRecord is an untyped key-value record from an upstream collaborator.
// No invariants are guaranteed.
type RawRecord = map[string]any

// Report is the complete outcome of one gate run. Records that failed any
// required check are dropped from the validated slices; their errors remain.
type Report struct {
	Questions     []types.ValidatedQuestion
	Chunks        []types.ValidatedChunk
	Passed        bool
	Errors        []string
	Warnings      []string
	QuestionCount int
	ChunkCount    int
	Timestamp     string
}

// Gate validates raw records. The zero value is usable.
type Gate struct{}

// NewGate returns a schema gate.
func NewGate() *Gate {
	return &Gate{}
}

// Validate checks every raw question and chunk record. Field order per
// record is fixed: presence, then type, then value constraint. Optional
// fields missing entirely produce a warning and a default, never an error.
func (g *Gate) Validate(rawQuestions, rawChunks []RawRecord) Report {
	timer := logging.StartTimer(logging.CategorySchema, "Validate")
	defer timer.Stop()

	var errs, warns []string
	questions := make([]types.ValidatedQuestion, 0, len(rawQuestions))
	chunks := make([]types.ValidatedChunk, 0, len(rawChunks))

	seenGlobals := make(map[int]string, len(rawQuestions))

	for i, raw := range rawQuestions {
		source := fmt.Sprintf("question[%d]", i)
		q, ok := g.validateQuestion(raw, source, &errs, &warns)
		if !ok {
			continue
		}
		if prior, dup := seenGlobals[q.QuestionGlobal]; dup {
			errs = append(errs, fmt.Sprintf(
				"field 'question_global' has duplicate value in %s: %d already used by question %s",
				source, q.QuestionGlobal, prior))
			continue
		}
		seenGlobals[q.QuestionGlobal] = q.QuestionID
		questions = append(questions, q)
	}

	for i, raw := range rawChunks {
		source := fmt.Sprintf("chunk[%d]", i)
		c, ok := g.validateChunk(raw, source, &errs, &warns)
		if !ok {
			continue
		}
		chunks = append(chunks, c)
	}

	passed := len(errs) == 0
	logging.Schema("Schema gate: questions=%d/%d chunks=%d/%d passed=%v errors=%d warnings=%d",
		len(questions), len(rawQuestions), len(chunks), len(rawChunks), passed, len(errs), len(warns))

	return Report{
		Questions:     questions,
		Chunks:        chunks,
		Passed:        passed,
		Errors:        errs,
		Warnings:      warns,
		QuestionCount: len(questions),
		ChunkCount:    len(chunks),
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// validateQuestion checks one raw question record in deterministic field order:
// question_id, question_global, dimension_id, policy_area_id, base_slot,
// cluster_id, patterns, signal_requirements, expected_output, metadata.
func (g *Gate) validateQuestion(raw RawRecord, source string, errs, warns *[]string) (types.ValidatedQuestion, bool) {
	before := len(*errs)

	questionID, _ := stringField(raw, "question_id", source, errs)
	questionGlobal, _ := intField(raw, "question_global", source, 0, types.MaxQuestionGlobal, errs)
	dimensionID, _ := stringField(raw, "dimension_id", source, errs)
	policyAreaID, _ := stringField(raw, "policy_area_id", source, errs)
	baseSlot, _ := stringField(raw, "base_slot", source, errs)
	clusterID, _ := stringField(raw, "cluster_id", source, errs)
	patterns, _ := patternsField(raw, source, errs, warns)
	signalReqs, _ := signalRequirementsField(raw, source, errs, warns)
	expected, _ := outputSchemaField(raw, "expected_output", source, errs, warns)
	metadata, _ := metadataField(raw, source, errs, warns)

	if len(*errs) > before {
		return types.ValidatedQuestion{}, false
	}
	return types.ValidatedQuestion{
		QuestionID:         questionID,
		QuestionGlobal:     questionGlobal,
		DimensionID:        dimensionID,
		PolicyAreaID:       policyAreaID,
		BaseSlot:           baseSlot,
		ClusterID:          clusterID,
		Patterns:           patterns,
		SignalRequirements: signalReqs,
		ExpectedOutput:     expected,
		Metadata:           metadata,
	}, true
}

// validateChunk checks one raw chunk record in deterministic field order:
// chunk_id, policy_area_id, dimension_id, position, content,
// provided_output, metadata.
func (g *Gate) validateChunk(raw RawRecord, source string, errs, warns *[]string) (types.ValidatedChunk, bool) {
	before := len(*errs)

	chunkID, _ := stringField(raw, "chunk_id", source, errs)
	policyAreaID, _ := stringField(raw, "policy_area_id", source, errs)
	dimensionID, _ := stringField(raw, "dimension_id", source, errs)
	position, _ := optionalIntField(raw, "position", source, errs, warns)
	content, _ := stringField(raw, "content", source, errs)
	provided, _ := outputSchemaField(raw, "provided_output", source, errs, warns)
	metadata, _ := metadataField(raw, source, errs, warns)

	if len(*errs) > before {
		return types.ValidatedChunk{}, false
	}
	return types.ValidatedChunk{
		ChunkID:        chunkID,
		PolicyAreaID:   policyAreaID,
		DimensionID:    dimensionID,
		Position:       position,
		Content:        content,
		ProvidedOutput: provided,
		Metadata:       metadata,
	}, true
}
