package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/jobhunter/internal/applications"
	"github.com/spigell/jobhunter/internal/store"
)

const (
	PromptApprove = "Approve"
	PromptReject  = "Reject"
	PromptSkip    = "Skip"
	PromptBack    = "Back"
)

var errExit = errors.New("exit requested")

var decisionPrompt = promptui.Select{
	Label: "Apply to this job on the next run?",
	Items: []string{PromptApprove, PromptReject, PromptSkip, PromptBack},
}

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Review the queue of jobs waiting for a decision before applying",
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List approval requests",
	Run: func(cmd *cobra.Command, _ []string) {
		listApprovals(cmd)
	},
}

var approvalsReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Walk through pending approvals interactively",
	Run: func(cmd *cobra.Command, _ []string) {
		reviewApprovals(cmd)
	},
}

var approvalsApproveCmd = &cobra.Command{
	Use:   "approve <job-id>...",
	Short: "Approve pending requests; the next run applies to them",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		decide(cmd, args, true)
	},
}

var approvalsRejectCmd = &cobra.Command{
	Use:   "reject <job-id>...",
	Short: "Reject pending requests",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		decide(cmd, args, false)
	},
}

func init() {
	rootCmd.AddCommand(approvalsCmd)
	approvalsCmd.AddCommand(approvalsListCmd, approvalsReviewCmd, approvalsApproveCmd, approvalsRejectCmd)

	approvalsCmd.PersistentFlags().StringP("profile", "p", "", "profile id (default is the only configured profile)")
	approvalsCmd.PersistentFlags().String("by", "cli", "who is recorded as the decider")

	approvalsListCmd.Flags().StringP("status", "s", string(applications.ApprovalPending), "pending, approved, rejected, applied or empty for all")
}

func listApprovals(cmd *cobra.Command) {
	ctx := context.Background()
	env := setup(ctx)
	defer env.Close()

	profileFlag, _ := cmd.Flags().GetString("profile")
	statusFlag, _ := cmd.Flags().GetString("status")

	var status applications.ApprovalStatus
	if statusFlag != "" {
		var err error
		if status, err = applications.ParseApprovalStatus(statusFlag); err != nil {
			env.logger.Fatal("parsing --status", zap.Error(err))
		}
	}

	requests, err := env.store.ListApprovals(ctx, env.profileID(profileFlag), status)
	if err != nil {
		env.logger.Fatal("listing approvals", zap.Error(err))
	}

	env.logger.Info("current approval queue", zap.Int("count", len(requests)))
	for _, r := range requests {
		fmt.Println(approvalLine(ctx, env.store, r))
	}
}

func approvalLine(ctx context.Context, s store.Jobs, r *applications.ApprovalRequest) string {
	label := fmt.Sprintf("%s %5.1f / %s", r.JobID, r.Score, r.Status)
	if c, err := s.GetJob(ctx, r.JobID); err == nil {
		label = fmt.Sprintf("%s / %s / %s", label, c.Job.Title, c.Job.Company)
	}
	label += " / queued " + humanize.Time(r.CreatedAt)
	if r.DecidedAt != nil {
		label += fmt.Sprintf(" / decided by %s %s", r.DecidedBy, humanize.Time(*r.DecidedAt))
	}
	return label
}

func reviewApprovals(cmd *cobra.Command) {
	ctx := context.Background()
	env := setup(ctx)
	defer env.Close()

	profileFlag, _ := cmd.Flags().GetString("profile")
	by, _ := cmd.Flags().GetString("by")
	profileID := env.profileID(profileFlag)

	for {
		pending, err := env.store.ListApprovals(ctx, profileID, applications.ApprovalPending)
		if err != nil {
			env.logger.Fatal("listing approvals", zap.Error(err))
		}
		if len(pending) == 0 {
			env.logger.Info("nothing to review", zap.String("profile", profileID))
			return
		}

		items := make([]string, 0, len(pending)+1)
		for _, r := range pending {
			items = append(items, approvalLine(ctx, env.store, r))
		}

		requestPrompt := promptui.Select{
			Label: "Choose a job and press ENTER",
			Items: append(items, PromptBack),
			Size:  10,
		}

		_, selected, err := requestPrompt.Run()
		if err != nil {
			env.logger.Fatal("prompting", zap.Error(err))
		}
		if selected == PromptBack {
			return
		}

		jobID := strings.Split(selected, " ")[0]
		if err := reviewOne(ctx, env, jobID, profileID, by); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			env.logger.Fatal("reviewing approval", zap.String("job_id", jobID), zap.Error(err))
		}
	}
}

func reviewOne(ctx context.Context, env *environment, jobID, profileID, by string) error {
	b, err := env.store.GetMatchResult(ctx, jobID, profileID)
	switch {
	case err == nil:
		for _, e := range b.Explanations {
			fmt.Printf("  - %s\n", e)
		}
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	_, choice, err := decisionPrompt.Run()
	if err != nil {
		return err
	}

	switch choice {
	case PromptApprove, PromptReject:
		r, err := env.store.DecideApproval(ctx, jobID, profileID, choice == PromptApprove, by, time.Now().UTC())
		if err != nil {
			return err
		}
		env.logger.Info("decided", zap.String("job_id", jobID), zap.String("status", string(r.Status)))
	case PromptBack:
		return errExit
	}
	return nil
}

func decide(cmd *cobra.Command, jobIDs []string, approve bool) {
	ctx := context.Background()
	env := setup(ctx)
	defer env.Close()

	profileFlag, _ := cmd.Flags().GetString("profile")
	by, _ := cmd.Flags().GetString("by")
	profileID := env.profileID(profileFlag)

	now := time.Now().UTC()
	for _, id := range jobIDs {
		r, err := env.store.DecideApproval(ctx, id, profileID, approve, by, now)
		if err != nil {
			env.logger.Fatal("deciding approval", zap.String("job_id", id), zap.Error(err))
		}
		env.logger.Info("decided", zap.String("job_id", id), zap.String("status", string(r.Status)))
	}
}
