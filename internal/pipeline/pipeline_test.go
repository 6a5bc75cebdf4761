package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoreflow/internal/batch"
	"scoreflow/internal/config"
	"scoreflow/internal/schema"
	"scoreflow/internal/signals"
	"scoreflow/internal/types"
)

// smallConfig is a 2x2 contract: 2 dimensions, 2 policy areas, 2 questions
// per dimension, 4 tasks total.
func smallConfig() config.Config {
	cfg := *config.Default()
	cfg.Plan = config.PlanConfig{
		RequiredTaskCount: 4,
		Dimensions:        []string{"D1", "D2"},
		PolicyAreas:       []string{"PA01", "PA02"},
		QuestionsPerDim:   2,
	}
	cfg.Batch.BackoffBase = "1ms"
	return cfg
}

func rawQuestion(id string, global int, pa, dim string) schema.RawRecord {
	return schema.RawRecord{
		"question_id":     id,
		"question_global": global,
		"dimension_id":    dim,
		"policy_area_id":  pa,
		"base_slot":       "slot-" + id,
		"cluster_id":      "CL01",
	}
}

func rawChunk(pa, dim string) schema.RawRecord {
	return schema.RawRecord{
		"chunk_id":       pa + "-" + dim,
		"policy_area_id": pa,
		"dimension_id":   dim,
		"position":       10,
		"content":        "content for " + pa + "/" + dim,
	}
}

func smallInputs() ([]schema.RawRecord, []schema.RawRecord) {
	questions := []schema.RawRecord{
		rawQuestion("Q1", 1, "PA01", "D1"),
		rawQuestion("Q2", 2, "PA02", "D1"),
		rawQuestion("Q3", 3, "PA01", "D2"),
		rawQuestion("Q4", 4, "PA02", "D2"),
	}
	chunks := []schema.RawRecord{
		rawChunk("PA01", "D1"), rawChunk("PA02", "D1"),
		rawChunk("PA01", "D2"), rawChunk("PA02", "D2"),
	}
	return questions, chunks
}

func TestBuildPlanEndToEnd(t *testing.T) {
	questions, chunks := smallInputs()
	planner := NewPlanner(smallConfig())

	report := planner.BuildPlan(questions, chunks, signals.NewStaticRegistry())
	require.True(t, report.Passed, "gate=%v routing=%v build=%v assembly=%v",
		report.Gate.Errors, report.RoutingErrors, report.BuildErrors, report.Assembly.Errors)
	require.NotNil(t, report.Plan())

	p := report.Plan()
	assert.Len(t, p.Tasks, 4)
	assert.Len(t, p.IntegrityHash, 64)
	assert.NotEmpty(t, report.CorrelationID)
	assert.Equal(t, report.CorrelationID, p.CorrelationID)

	// Canonical ordering: dimension, then policy area, then question id.
	wantOrder := []string{"Q1", "Q2", "Q3", "Q4"}
	for i, task := range p.Tasks {
		assert.Equal(t, wantOrder[i], task.QuestionID)
		assert.Equal(t, types.TaskID(task.QuestionGlobal, task.PolicyAreaID), task.TaskID)
		assert.Equal(t, report.CorrelationID, task.Metadata["correlation_id"])
	}
}

func TestBuildPlanOrderInvariantUnderShuffledInput(t *testing.T) {
	questions, chunks := smallInputs()
	shuffled := []schema.RawRecord{questions[3], questions[1], questions[0], questions[2]}

	a := NewPlanner(smallConfig()).BuildPlan(questions, chunks, signals.NewStaticRegistry())
	b := NewPlanner(smallConfig()).BuildPlan(shuffled, chunks, signals.NewStaticRegistry())
	require.True(t, a.Passed)
	require.True(t, b.Passed)

	for i := range a.Plan().Tasks {
		assert.Equal(t, a.Plan().Tasks[i].TaskID, b.Plan().Tasks[i].TaskID,
			"task order must not depend on input order")
	}
}

func TestBuildPlanRefusesFailedGate(t *testing.T) {
	questions, chunks := smallInputs()
	delete(questions[0], "base_slot")

	report := NewPlanner(smallConfig()).BuildPlan(questions, chunks, signals.NewStaticRegistry())
	assert.False(t, report.Passed)
	assert.False(t, report.Gate.Passed)
	assert.Nil(t, report.Plan())
	// Routing never ran.
	assert.Empty(t, report.RoutingErrors)
}

func TestBuildPlanAccumulatesRoutingErrors(t *testing.T) {
	questions, chunks := smallInputs()
	// Drop one cell: Q4 has nowhere to route.
	chunks = chunks[:3]

	report := NewPlanner(smallConfig()).BuildPlan(questions, chunks, signals.NewStaticRegistry())
	assert.False(t, report.Passed)
	require.Len(t, report.RoutingErrors, 1)
	assert.Contains(t, report.RoutingErrors[0], "Q4")
	assert.Nil(t, report.Plan())
}

func TestBuildPlanMissingSignalIsHardStop(t *testing.T) {
	questions, chunks := smallInputs()
	questions[1]["signal_requirements"] = map[string]any{"entity_density": 0.5}

	// Registry has no signals at all.
	report := NewPlanner(smallConfig()).BuildPlan(questions, chunks, signals.NewStaticRegistry())
	assert.False(t, report.Passed)
	require.Len(t, report.RoutingErrors, 1)
	assert.Contains(t, report.RoutingErrors[0], "Q2")
}

func TestBuildPlanWithSignals(t *testing.T) {
	questions, chunks := smallInputs()
	questions[1]["signal_requirements"] = map[string]any{"entity_density": 0.5}

	reg := signals.NewStaticRegistry()
	reg.Add("PA02-D1", types.ResolvedSignal{SignalID: "S1", SignalType: "entity_density", Content: "0.8"})

	report := NewPlanner(smallConfig()).BuildPlan(questions, chunks, reg)
	require.True(t, report.Passed, "routing=%v", report.RoutingErrors)

	var q2 types.Task
	for _, task := range report.Plan().Tasks {
		if task.QuestionID == "Q2" {
			q2 = task
		}
	}
	assert.Equal(t, "S1", q2.Signals["entity_density"].SignalID)
}

func TestBuildPlanWithExplicitID(t *testing.T) {
	questions, chunks := smallInputs()
	report := NewPlanner(smallConfig()).BuildPlanWithID(questions, chunks, signals.NewStaticRegistry(), "plan-custom")
	require.True(t, report.Passed)
	assert.Equal(t, "plan-custom", report.Plan().PlanID)
}

func buildSmallPlan(t *testing.T) (*types.ExecutionPlan, config.Config) {
	t.Helper()
	questions, chunks := smallInputs()
	cfg := smallConfig()
	report := NewPlanner(cfg).BuildPlan(questions, chunks, signals.NewStaticRegistry())
	require.True(t, report.Passed)
	return report.Plan(), cfg
}

func TestRunnerSequential(t *testing.T) {
	p, cfg := buildSmallPlan(t)
	runner := NewRunner(cfg, func(ctx context.Context, task types.Task) (Score, error) {
		return Score{TaskID: task.TaskID, Value: 1.5}, nil
	})

	report, err := runner.Run(context.Background(), p, ModeSequential, batch.ComplexityVeryComplex)
	require.NoError(t, err)
	assert.Equal(t, p.PlanID, report.PlanID)
	assert.Equal(t, 4, report.Summary.TotalItems)
	assert.Equal(t, 4, report.Summary.Succeeded)
	assert.InDelta(t, 1.0, report.Summary.SuccessRate, 1e-9)
	assert.Equal(t, 1, report.Summary.TotalBatches)
	assert.Equal(t, 1, report.Summary.StatusCounts[batch.StatusCompleted])
}

func TestRunnerParallelAndStreamingAgree(t *testing.T) {
	p, cfg := buildSmallPlan(t)
	scorer := func(ctx context.Context, task types.Task) (Score, error) {
		if task.QuestionGlobal%2 == 0 {
			return Score{}, fmt.Errorf("even questions fail")
		}
		return Score{TaskID: task.TaskID, Value: 2.0}, nil
	}
	runner := NewRunner(cfg, scorer)

	for _, mode := range []Mode{ModeSequential, ModeParallel, ModeStreaming} {
		report, err := runner.Run(context.Background(), p, mode, batch.ComplexityVeryComplex)
		require.NoError(t, err, "mode %s", mode)
		assert.Equal(t, 2, report.Summary.Succeeded, "mode %s", mode)
		assert.Equal(t, 2, report.Summary.Failed, "mode %s", mode)
		assert.InDelta(t, 0.5, report.Summary.SuccessRate, 1e-9, "mode %s", mode)
	}
}

func TestRunnerNilPlan(t *testing.T) {
	runner := NewRunner(smallConfig(), func(ctx context.Context, task types.Task) (Score, error) {
		return Score{}, nil
	})
	_, err := runner.Run(context.Background(), nil, ModeSequential, batch.ComplexityComplex)
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"sequential", "parallel", "streaming"} {
		m, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, Mode(s), m)
	}
	_, err := ParseMode("turbo")
	assert.Error(t, err)
}
