package main

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"scoreflow/internal/batch"
	"scoreflow/internal/catalog"
	"scoreflow/internal/config"
	"scoreflow/internal/logging"
	"scoreflow/internal/pipeline"
	"scoreflow/internal/plan"
	"scoreflow/internal/signals"
	"scoreflow/internal/store"
	"scoreflow/internal/types"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string

	// Logger
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "scoreflow",
	Short: "scoreflow - execution planning and batch scoring for document evaluation",
	Long: `scoreflow turns a validated questionnaire and a chunked document corpus
into a deterministic, integrity-hashed execution plan, then runs that plan
through a batched scoring engine with retries and bounded parallelism.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if err := logging.Initialize(workspace); err != nil {
			return fmt.Errorf("failed to initialize category logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var (
	questionsPath string
	chunksPath    string
	signalsPath   string
	planID        string
	mode          string
	complexity    string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Validate inputs, build all tasks, and assemble an execution plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		report, err := buildPlan(cfg)
		if err != nil {
			return err
		}
		if !report.Passed {
			return fmt.Errorf("%s", report.Describe())
		}

		st, err := store.NewPlanStore(cfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.SavePlan(report.Plan()); err != nil {
			return err
		}

		logger.Info("plan assembled",
			zap.String("plan_id", report.Assembly.PlanID),
			zap.Int("tasks", report.Assembly.TaskCount),
			zap.String("integrity_hash", report.Assembly.IntegrityHash))
		fmt.Println(report.Describe())
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <plan-id>",
	Short: "Re-verify the integrity hash of a stored plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := store.NewPlanStore(cfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()

		// LoadPlan re-verifies integrity internally; reaching here means
		// the stored hash matches the stored tasks.
		p, err := st.LoadPlan(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("plan %s verified: %d tasks, hash %s\n", p.PlanID, len(p.Tasks), p.IntegrityHash)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run [plan-id]",
	Short: "Execute a plan through the batch scoring engine",
	Long: `Execute a stored plan (by id), or plan-and-run from the input files when
no id is given. Scoring uses the deterministic dry-run scorer.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		execMode, err := pipeline.ParseMode(mode)
		if err != nil {
			return err
		}
		cplx, err := batch.ParseComplexity(complexity)
		if err != nil {
			return err
		}

		st, err := store.NewPlanStore(cfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()

		var execPlan *types.ExecutionPlan
		if len(args) == 1 {
			execPlan, err = st.LoadPlan(args[0])
			if err != nil {
				return err
			}
		} else {
			report, err := buildPlan(cfg)
			if err != nil {
				return err
			}
			if !report.Passed {
				return fmt.Errorf("%s", report.Describe())
			}
			execPlan = report.Plan()
			if err := st.SavePlan(execPlan); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runner := pipeline.NewRunner(cfg, dryRunScorer)
		report, err := runner.Run(ctx, execPlan, execMode, cplx)
		if err != nil {
			return err
		}

		rec := store.RunRecord{
			PlanID:        report.PlanID,
			CorrelationID: report.CorrelationID,
			Mode:          string(report.Mode),
			BatchSize:     report.BatchSize,
			TotalItems:    report.Summary.TotalItems,
			Succeeded:     report.Summary.Succeeded,
			Failed:        report.Summary.Failed,
			SuccessRate:   report.Summary.SuccessRate,
		}
		if err := st.SaveRunReport(rec, report); err != nil {
			logger.Warn("failed to persist run report", zap.Error(err))
		}

		logger.Info("plan executed",
			zap.String("plan_id", report.PlanID),
			zap.Int("batches", report.Summary.TotalBatches),
			zap.Int("succeeded", report.Summary.Succeeded),
			zap.Int("failed", report.Summary.Failed),
			zap.Float64("success_rate", report.Summary.SuccessRate))
		fmt.Printf("plan %s: %d batches, %d/%d items succeeded (rate %.2f)\n",
			report.PlanID, report.Summary.TotalBatches,
			report.Summary.Succeeded, report.Summary.TotalItems, report.Summary.SuccessRate)
		return nil
	},
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return *cfg, nil
}

func buildPlan(cfg config.Config) (pipeline.PlanReport, error) {
	rawQuestions, rawChunks, err := catalog.Load(questionsPath, chunksPath, cfg.Plan)
	if err != nil {
		return pipeline.PlanReport{}, err
	}
	registry := signals.NewStaticRegistry()
	if signalsPath != "" {
		registry, err = signals.LoadPack(signalsPath)
		if err != nil {
			return pipeline.PlanReport{}, err
		}
	}
	planner := pipeline.NewPlanner(cfg)
	return planner.BuildPlanWithID(rawQuestions, rawChunks, registry, planID), nil
}

// dryRunScorer produces a deterministic pseudo-score from the task id, so
// repeated runs of the same plan are reproducible without any model backend.
func dryRunScorer(ctx context.Context, task types.Task) (pipeline.Score, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Score{}, err
	}
	payload, err := json.Marshal(map[string]any{
		"task_id":       task.TaskID,
		"chunk_id":      task.ChunkID,
		"pattern_count": len(task.Patterns),
	})
	if err != nil {
		return pipeline.Score{}, err
	}
	digest := sha256.Sum256(payload)
	// Map the first 8 hash bytes onto [0, 3] to mimic a rubric score.
	value := float64(binary.BigEndian.Uint64(digest[:8])%301) / 100.0
	return pipeline.Score{
		TaskID: task.TaskID,
		Value:  value,
		Detail: fmt.Sprintf("dry-run score for chunk %s", task.ChunkID),
	}, nil
}

// hashCmd recomputes a hash over an exported task list, useful when a plan
// JSON travels outside the store.
var hashCmd = &cobra.Command{
	Use:   "hash <tasks.json>",
	Short: "Compute the integrity hash of a task list exported as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var tasks []types.Task
		if err := json.Unmarshal(data, &tasks); err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}
		h, err := plan.ComputeIntegrityHash(tasks)
		if err != nil {
			return err
		}
		fmt.Println(h)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "Workspace directory")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".scoreflow/config.yaml", "Configuration file path")

	for _, cmd := range []*cobra.Command{planCmd, runCmd} {
		cmd.Flags().StringVar(&questionsPath, "questions", "questions.yaml", "Questionnaire YAML file")
		cmd.Flags().StringVar(&chunksPath, "chunks", "chunks.yaml", "Chunk corpus YAML file")
		cmd.Flags().StringVar(&signalsPath, "signals", "", "Signal pack YAML file (optional)")
	}
	planCmd.Flags().StringVar(&planID, "plan-id", "", "Explicit plan id (default: derived from integrity hash)")
	runCmd.Flags().StringVar(&mode, "mode", "sequential", "Execution mode: sequential, parallel, or streaming")
	runCmd.Flags().StringVar(&complexity, "complexity", "complex", "Workload complexity: simple, moderate, complex, or very_complex")

	rootCmd.AddCommand(planCmd, verifyCmd, runCmd, hashCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
