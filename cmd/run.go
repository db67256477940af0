package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/jobhunter/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once: fetch, dedup, match, rank, digest, gate and apply",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntP("retries", "r", 1, "how many times failed stages are retried before giving up")
	runCmd.Flags().Bool("summary", false, "print the run summary as JSON to stdout")
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := setup(ctx)
	defer env.Close()

	env.logger.Info("starting the jobhunter", zap.String("version", resolvedVersion()))

	retries, _ := cmd.Flags().GetInt("retries")
	summary, err := runOnce(ctx, env, retries)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		env.logger.Info("exiting", zap.String("reason", "another run holds every profile"))
		return
	case err != nil:
		env.logger.Fatal("run failed", zap.Error(err))
	}

	if printSummary, _ := cmd.Flags().GetBool("summary"); printSummary {
		pretty, _ := json.MarshalIndent(summary, "", "  ")
		os.Stdout.Write(append(pretty, '\n'))
	}

	if failed := summary.FailedStages(); len(failed) > 0 {
		env.logger.Warn("run finished with failures", zap.Any("stages", failed))
		env.Close()
		os.Exit(2)
	}
}

// runOnce executes a run and retries the earliest failed stage, which also
// reruns the stages after it, up to retries times.
func runOnce(ctx context.Context, env *environment, retries int) (*pipeline.RunSummary, error) {
	r, err := env.orchestrator().NewRun(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	summary := r.Execute(ctx)
	for attempt := 1; attempt <= retries && ctx.Err() == nil; attempt++ {
		failed := summary.FailedStages()
		if len(failed) == 0 {
			break
		}
		env.logger.Info("retrying failed stage",
			zap.String("run_id", r.ID()),
			zap.String("stage", string(failed[0])),
			zap.Int("attempt", attempt),
		)
		if err := r.Retry(ctx, failed[0]); err != nil {
			env.logger.Warn("retry did not succeed", zap.Error(err))
		}
	}

	return summary, nil
}
