package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/jobhunter/internal/pipeline"
	"github.com/spigell/jobhunter/internal/scheduler"
)

const defaultInterval = 6 * time.Hour

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline now and then on a recurring cadence until interrupted",
	Run: func(cmd *cobra.Command, _ []string) {
		schedule(cmd)
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().Duration("every", 0, "interval between runs (default is the schedule key, or 6h)")
	scheduleCmd.Flags().IntP("retries", "r", 1, "how many times failed stages are retried within a run")
}

func schedule(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := setup(ctx)
	defer env.Close()

	spec := env.config.Schedule
	if every, _ := cmd.Flags().GetDuration("every"); every > 0 {
		spec = scheduler.Every(every)
	}
	if spec == "" {
		spec = scheduler.Every(defaultInterval)
	}

	retries, _ := cmd.Flags().GetInt("retries")
	job := func(ctx context.Context) {
		summary, err := runOnce(ctx, env, retries)
		switch {
		case errors.Is(err, pipeline.ErrRunInProgress):
			env.logger.Info("skipping tick", zap.String("reason", "previous run is still going"))
		case err != nil:
			// A bad config will not fix itself; stop instead of failing every tick.
			env.logger.Error("run failed", zap.Error(err))
			if pipeline.IsConfigurationError(err) {
				stop()
			}
		case len(summary.FailedStages()) > 0:
			env.logger.Warn("run finished with failures", zap.String("run_id", summary.RunID), zap.Any("stages", summary.FailedStages()))
		}
	}

	s, err := scheduler.New(spec, job, env.logger)
	if err != nil {
		env.logger.Fatal("creating the scheduler", zap.Error(err))
	}
	if err := s.Start(ctx); err != nil {
		env.logger.Fatal("starting the scheduler", zap.Error(err))
	}

	<-ctx.Done()
	env.logger.Info("stopping", zap.String("reason", "interrupted"))
	s.Stop()
}
