// Package pipeline wires the validation, routing, building, and assembly
// stages into a single planning pass, and runs assembled plans through the
// batch engine. Each pass carries one correlation id end to end.
package pipeline

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"scoreflow/internal/config"
	"scoreflow/internal/logging"
	"scoreflow/internal/plan"
	"scoreflow/internal/routing"
	"scoreflow/internal/schema"
	"scoreflow/internal/signals"
	"scoreflow/internal/taskbuild"
	"scoreflow/internal/types"
)

// PlanReport captures the outcome of every phase of one planning pass.
type PlanReport struct {
	CorrelationID string
	Gate          schema.Report
	Assembly      plan.Result
	RoutingErrors []string
	BuildErrors   []string
	Passed        bool
}

// Plan returns the assembled execution plan, or nil when any phase failed.
func (r PlanReport) Plan() *types.ExecutionPlan {
	return r.Assembly.Plan
}

// Planner drives raw records through validation, routing, task building, and
// assembly.
type Planner struct {
	cfg       config.Config
	gate      *schema.Gate
	router    *routing.Router
	assembler *plan.Assembler
}

// NewPlanner builds a planner from the given configuration.
func NewPlanner(cfg config.Config) *Planner {
	return &Planner{
		cfg:       cfg,
		gate:      schema.NewGate(),
		router:    routing.NewRouter(),
		assembler: plan.NewAssembler(cfg.Plan.RequiredTaskCount),
	}
}

// sortCanonical fixes the question processing order so identical inputs
// always produce identically ordered task sets.
func sortCanonical(questions []types.ValidatedQuestion) {
	sort.Slice(questions, func(i, j int) bool {
		a, b := questions[i], questions[j]
		if a.DimensionID != b.DimensionID {
			return a.DimensionID < b.DimensionID
		}
		if a.PolicyAreaID != b.PolicyAreaID {
			return a.PolicyAreaID < b.PolicyAreaID
		}
		return a.QuestionID < b.QuestionID
	})
}

// BuildPlan runs the full planning pass with a hash-derived plan id.
func (p *Planner) BuildPlan(rawQuestions, rawChunks []schema.RawRecord, registry signals.Registry) PlanReport {
	return p.BuildPlanWithID(rawQuestions, rawChunks, registry, "")
}

// BuildPlanWithID runs the full planning pass under an explicit plan id. The
// gate must pass cleanly before routing starts; routing and build errors are
// accumulated per question and fail the pass as a whole, never panic it.
func (p *Planner) BuildPlanWithID(rawQuestions, rawChunks []schema.RawRecord, registry signals.Registry, planID string) PlanReport {
	correlationID := uuid.NewString()
	timer := logging.StartTimer(logging.CategoryPipeline, "BuildPlan")
	defer timer.Stop()
	logging.Pipeline("planning pass %s: %d raw questions, %d raw chunks",
		correlationID, len(rawQuestions), len(rawChunks))

	report := PlanReport{CorrelationID: correlationID}

	report.Gate = p.gate.Validate(rawQuestions, rawChunks)
	if !report.Gate.Passed {
		logging.Pipeline("planning pass %s refused: gate reported %d errors",
			correlationID, len(report.Gate.Errors))
		return report
	}

	matrix, err := routing.NewMatrix(report.Gate.Chunks)
	if err != nil {
		report.RoutingErrors = append(report.RoutingErrors, err.Error())
		return report
	}

	questions := report.Gate.Questions
	sortCanonical(questions)

	builder := taskbuild.NewBuilder(correlationID)
	seen := make(taskbuild.SeenIDs, len(questions))
	tasks := make([]types.Task, 0, len(questions))

	for _, q := range questions {
		routed, err := p.router.Route(q, matrix)
		if err != nil {
			report.RoutingErrors = append(report.RoutingErrors, err.Error())
			continue
		}
		if err := p.router.CheckSchemaCompatibility(q, routed); err != nil {
			report.RoutingErrors = append(report.RoutingErrors, err.Error())
			continue
		}
		patterns := p.router.FilterPatterns(q, routed.PolicyAreaID)
		resolved, err := p.router.ResolveSignals(q, routed.ChunkID, registry)
		if err != nil {
			report.RoutingErrors = append(report.RoutingErrors, err.Error())
			continue
		}
		task, err := builder.Build(q, routed, patterns, resolved, seen)
		if err != nil {
			report.BuildErrors = append(report.BuildErrors, err.Error())
			continue
		}
		tasks = append(tasks, task)
	}

	if len(report.RoutingErrors) > 0 || len(report.BuildErrors) > 0 {
		logging.Pipeline("planning pass %s failed: %d routing errors, %d build errors",
			correlationID, len(report.RoutingErrors), len(report.BuildErrors))
		return report
	}

	report.Assembly = p.assembler.Assemble(tasks, planID, correlationID)
	report.Passed = report.Assembly.Passed
	if report.Passed {
		logging.Pipeline("planning pass %s assembled plan %s (%d tasks)",
			correlationID, report.Assembly.PlanID, report.Assembly.TaskCount)
	}
	return report
}

// Describe renders a short human-readable summary of the pass.
func (r PlanReport) Describe() string {
	if r.Passed {
		return fmt.Sprintf("plan %s: %d tasks, hash %s", r.Assembly.PlanID, r.Assembly.TaskCount, r.Assembly.IntegrityHash)
	}
	return fmt.Sprintf("planning failed: %d gate errors, %d routing errors, %d build errors, %d assembly errors",
		len(r.Gate.Errors), len(r.RoutingErrors), len(r.BuildErrors), len(r.Assembly.Errors))
}
