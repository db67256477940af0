package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/jobhunter/internal/filtering"
	"github.com/spigell/jobhunter/internal/jobs"
	"github.com/spigell/jobhunter/internal/pipeline"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect ranked jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scored jobs for a profile",
	Run: func(cmd *cobra.Command, _ []string) {
		listJobs(cmd)
	},
}

var jobsExplainCmd = &cobra.Command{
	Use:   "explain <job-id>",
	Short: "Show the per-category score breakdown of a job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		explainJob(cmd, args[0])
	},
}

var jobsExcludeCmd = &cobra.Command{
	Use:   "exclude <job-id>...",
	Short: "Append jobs to the exclude file so later runs drop them",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		excludeJobs(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd, jobsExplainCmd, jobsExcludeCmd)

	jobsCmd.PersistentFlags().StringP("profile", "p", "", "profile id (default is the only configured profile)")

	jobsListCmd.Flags().Float64("min-score", 0, "only jobs scoring at least this much")
	jobsListCmd.Flags().String("sort", "score", "sort by score, posted, company or title")
	jobsListCmd.Flags().Bool("asc", false, "ascending order (default is best first)")
	jobsListCmd.Flags().String("remote", "", "only remote, hybrid or onsite jobs")
	jobsListCmd.Flags().String("company", "", "only jobs of companies matching this name")
	jobsListCmd.Flags().IntP("limit", "n", 20, "at most this many jobs, 0 for all")
	jobsListCmd.Flags().Bool("include-stale", false, "include jobs no source reported lately")

	jobsExcludeCmd.Flags().StringP("exclude-file", "e", "", "exclude file (default is pipeline.filters.exclude-file)")
}

func listJobs(cmd *cobra.Command) {
	ctx := context.Background()
	env := setup(ctx)
	defer env.Close()

	flags := cmd.Flags()
	profileFlag, _ := flags.GetString("profile")
	minScore, _ := flags.GetFloat64("min-score")
	sortFlag, _ := flags.GetString("sort")
	asc, _ := flags.GetBool("asc")
	remote, _ := flags.GetString("remote")
	company, _ := flags.GetString("company")
	limit, _ := flags.GetInt("limit")
	includeStale, _ := flags.GetBool("include-stale")

	sortKey, err := filtering.ParseSortKey(sortFlag)
	if err != nil {
		env.logger.Fatal("parsing --sort", zap.Error(err))
	}

	q := filtering.Query{
		ProfileID:    env.profileID(profileFlag),
		MinScore:     minScore,
		Sort:         sortKey,
		Desc:         !asc,
		Remote:       jobs.ParseRemote(remote),
		Company:      company,
		Limit:        limit,
		IncludeStale: includeStale,
	}
	if remote != "" && q.Remote == jobs.RemoteUnknown {
		env.logger.Fatal("unknown --remote value", zap.String("remote", remote))
	}

	candidates, err := pipeline.NewReporter(env.store).ListJobs(ctx, q)
	if err != nil {
		env.logger.Fatal("listing jobs", zap.Error(err))
	}

	env.logger.Info("current list of jobs", zap.String("profile", q.ProfileID), zap.Int("count", len(candidates)))
	for _, c := range candidates {
		fmt.Println(jobLine(c))
	}
}

func jobLine(c *filtering.Candidate) string {
	j := c.Job.Job
	parts := []string{
		fmt.Sprintf("%5.1f", c.Score()),
		c.Job.ID,
		j.Title,
		j.Company,
	}
	if where := location(j); where != "" {
		parts = append(parts, where)
	}
	if pay := salary(j); pay != "" {
		parts = append(parts, pay)
	}
	if j.PostedAt != nil {
		parts = append(parts, "posted "+humanize.Time(*j.PostedAt))
	}
	if c.Job.Stale {
		parts = append(parts, "stale")
	}
	return strings.Join(parts, " / ")
}

func location(j *jobs.Job) string {
	switch {
	case j.Location != "" && j.Remote != jobs.RemoteUnknown:
		return fmt.Sprintf("%s (%s)", j.Location, j.Remote)
	case j.Location != "":
		return j.Location
	default:
		return string(j.Remote)
	}
}

func salary(j *jobs.Job) string {
	switch {
	case j.SalaryMin != nil && j.SalaryMax != nil:
		return fmt.Sprintf("%s-%s", humanize.Commaf(*j.SalaryMin), humanize.Commaf(*j.SalaryMax))
	case j.SalaryMin != nil:
		return "from " + humanize.Commaf(*j.SalaryMin)
	case j.SalaryMax != nil:
		return "up to " + humanize.Commaf(*j.SalaryMax)
	}
	return ""
}

func explainJob(cmd *cobra.Command, jobID string) {
	ctx := context.Background()
	env := setup(ctx)
	defer env.Close()

	profileFlag, _ := cmd.Flags().GetString("profile")
	profileID := env.profileID(profileFlag)

	b, err := pipeline.NewReporter(env.store).GetMatchBreakdown(ctx, jobID, profileID)
	if err != nil {
		env.logger.Fatal("explaining job", zap.Error(err))
	}

	j := b.Job.Job
	cats := b.Result.Categories
	fmt.Printf("%s at %s\n", j.Title, j.Company)
	fmt.Printf("overall: %.1f (scored %s, profile %s)\n", b.Result.Overall, humanize.Time(b.Result.ComputedAt), profileID)
	fmt.Printf("  skill:              %5.1f\n", cats.Skill)
	fmt.Printf("  title:              %5.1f\n", cats.Title)
	fmt.Printf("  experience:         %5.1f\n", cats.Experience)
	fmt.Printf("  location or remote: %5.1f (location %.1f, remote %.1f)\n", cats.LocationOrRemote, cats.Location, cats.Remote)
	fmt.Printf("  salary:             %5.1f\n", cats.Salary)
	for _, e := range b.Result.Explanations {
		fmt.Printf("  - %s\n", e)
	}
	for _, rec := range b.Job.Provenance {
		fmt.Printf("  seen on %s (%s), last %s\n", rec.Identity, rec.SourceType, humanize.Time(rec.LastSeen))
	}
}

func excludeJobs(cmd *cobra.Command, ids []string) {
	ctx := context.Background()
	env := setup(ctx)
	defer env.Close()

	path, _ := cmd.Flags().GetString("exclude-file")
	if path == "" {
		path = env.config.Pipeline.Filters.ExcludeFile
	}
	if path == "" {
		env.logger.Fatal("exclude file is not configured", zap.String("hint", "pass --exclude-file or set pipeline.filters.exclude-file"))
	}

	now := time.Now().UTC()
	entries := &filtering.ExcludedJobs{}
	for _, id := range ids {
		c, err := env.store.GetJob(ctx, id)
		if err != nil {
			env.logger.Fatal("getting job", zap.String("job_id", id), zap.Error(err))
		}
		entries.Items = append(entries.Items, &filtering.ExcludedJob{
			ID:         c.ID,
			Title:      c.Job.Title,
			Company:    c.Job.Company,
			URL:        c.Job.ApplyURL,
			ExcludedAt: now,
		})
	}

	if err := filtering.AppendToFile(path, entries); err != nil {
		env.logger.Fatal("appending to exclude file", zap.Error(err))
	}
	env.logger.Info("appended to exclude file", zap.String("filename", path), zap.Int("count", len(entries.Items)))
}
