package pipeline

import (
	"context"
	"fmt"

	"scoreflow/internal/batch"
	"scoreflow/internal/config"
	"scoreflow/internal/logging"
	"scoreflow/internal/types"
)

// Score is the per-task output a scorer produces.
type Score struct {
	TaskID string  `json:"task_id"`
	Value  float64 `json:"value"`
	Detail string  `json:"detail,omitempty"`
}

// Scorer evaluates one task. Implementations must honor ctx.
type Scorer func(ctx context.Context, task types.Task) (Score, error)

// Mode selects how batches are driven through the executor.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
	ModeStreaming  Mode = "streaming"
)

// ParseMode validates an execution mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSequential, ModeParallel, ModeStreaming:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown execution mode %q (want sequential, parallel, or streaming)", s)
}

// RunReport is the outcome of executing one plan.
type RunReport struct {
	PlanID        string
	CorrelationID string
	Mode          Mode
	BatchSize     int
	Batches       []batch.Result[Score]
	Summary       batch.Summary[Score]
}

// Runner executes assembled plans through the batch engine.
type Runner struct {
	cfg    config.Config
	scorer Scorer
}

// NewRunner builds a runner around the given scorer.
func NewRunner(cfg config.Config, scorer Scorer) *Runner {
	return &Runner{cfg: cfg, scorer: scorer}
}

// Run executes every task in the plan under the given mode and complexity
// classification and returns the aggregated report. The plan is never
// mutated.
func (r *Runner) Run(ctx context.Context, p *types.ExecutionPlan, mode Mode, complexity batch.Complexity) (RunReport, error) {
	if p == nil {
		return RunReport{}, fmt.Errorf("nil execution plan")
	}
	size := batch.SizeFor(complexity, r.cfg.Batch)
	logging.Pipeline("executing plan %s: %d tasks, mode=%s complexity=%s batch_size=%d",
		p.PlanID, len(p.Tasks), mode, complexity, size)

	exec := batch.NewExecutor(r.cfg.Batch, func(ctx context.Context, task types.Task) (Score, error) {
		return r.scorer(ctx, task)
	})

	var results []batch.Result[Score]
	switch mode {
	case ModeSequential:
		results = exec.RunSequential(ctx, p.Tasks, size)
	case ModeParallel:
		results = exec.RunParallel(ctx, p.Tasks, size)
	case ModeStreaming:
		results = batch.Fold(ctx, exec, p.Tasks, size, nil,
			func(acc []batch.Result[Score], res batch.Result[Score]) []batch.Result[Score] {
				logging.PipelineDebug("plan %s: batch %d done (%s, %d/%d ok)",
					p.PlanID, res.Index, res.Status, res.Succeeded, res.Succeeded+res.Failed)
				return append(acc, res)
			})
	default:
		return RunReport{}, fmt.Errorf("unknown execution mode %q", mode)
	}

	report := RunReport{
		PlanID:        p.PlanID,
		CorrelationID: p.CorrelationID,
		Mode:          mode,
		BatchSize:     size,
		Batches:       results,
		Summary:       batch.Aggregate(results),
	}
	logging.Pipeline("plan %s executed: %d/%d items succeeded (rate %.2f)",
		p.PlanID, report.Summary.Succeeded, report.Summary.TotalItems, report.Summary.SuccessRate)
	return report, nil
}
