package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/jobhunter/internal/applications"
	"github.com/spigell/jobhunter/internal/pipeline"
)

var applicationsCmd = &cobra.Command{
	Use:     "applications",
	Aliases: []string{"apps"},
	Short:   "Track submitted applications through the hiring funnel",
}

var applicationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List applications",
	Run: func(cmd *cobra.Command, _ []string) {
		listApplications(cmd)
	},
}

var applicationsAddCmd = &cobra.Command{
	Use:   "add <job-id>",
	Short: "Record an application submitted outside of the pipeline",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		addApplication(cmd, args[0])
	},
}

var applicationsMoveCmd = &cobra.Command{
	Use:   "move <application-id> <status>",
	Short: "Move an application to another status",
	Args:  cobra.ExactArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		moveApplication(args[0], args[1])
	},
}

var applicationsNoteCmd = &cobra.Command{
	Use:   "note <application-id> <text>...",
	Short: "Append a note to an application",
	Args:  cobra.MinimumNArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		noteApplication(args[0], strings.Join(args[1:], " "))
	},
}

var applicationsInterviewCmd = &cobra.Command{
	Use:   "interview <application-id>",
	Short: "Record an interview of an application",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		recordInterview(cmd, args[0])
	},
}

var applicationsOfferCmd = &cobra.Command{
	Use:   "offer <application-id>",
	Short: "Record the offer of an application",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		recordOffer(cmd, args[0])
	},
}

var applicationsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show response, interview and offer rates",
	Run: func(cmd *cobra.Command, _ []string) {
		applicationStats(cmd)
	},
}

func init() {
	rootCmd.AddCommand(applicationsCmd)
	applicationsCmd.AddCommand(
		applicationsListCmd,
		applicationsAddCmd,
		applicationsMoveCmd,
		applicationsNoteCmd,
		applicationsInterviewCmd,
		applicationsOfferCmd,
		applicationsStatsCmd,
	)

	applicationsListCmd.Flags().StringP("profile", "p", "", "profile id (default is every profile)")
	applicationsStatsCmd.Flags().StringP("profile", "p", "", "profile id (default is every profile)")

	applicationsAddCmd.Flags().StringP("profile", "p", "", "profile id (default is the only configured profile)")
	applicationsAddCmd.Flags().StringP("method", "m", string(applications.MethodManual), "manual, tailored or auto")
	applicationsAddCmd.Flags().String("notes", "", "free-form notes")

	applicationsInterviewCmd.Flags().String("date", "", "interview date, RFC 3339 or YYYY-MM-DD (default is now)")
	applicationsInterviewCmd.Flags().String("type", string(applications.InterviewVideo), "phone, video or in-person")
	applicationsInterviewCmd.Flags().String("interviewer", "", "who interviews")
	applicationsInterviewCmd.Flags().String("result", string(applications.ResultPending), "pending, pass or fail")
	applicationsInterviewCmd.Flags().String("notes", "", "free-form notes")

	applicationsOfferCmd.Flags().Float64("salary", 0, "offered salary")
	applicationsOfferCmd.Flags().String("benefits", "", "offered benefits")
	applicationsOfferCmd.Flags().String("start", "", "start date, RFC 3339 or YYYY-MM-DD")
	applicationsOfferCmd.Flags().String("expires", "", "the date the offer expires, RFC 3339 or YYYY-MM-DD")
	applicationsOfferCmd.Flags().String("notes", "", "free-form notes")
}

func listApplications(cmd *cobra.Command) {
	ctx := context.Background()
	env := setup(ctx)
	defer env.Close()

	profileID, _ := cmd.Flags().GetString("profile")
	apps, err := env.store.ListApplications(ctx, profileID)
	if err != nil {
		env.logger.Fatal("listing applications", zap.Error(err))
	}

	env.logger.Info("current applications", zap.Int("count", len(apps)))
	for _, a := range apps {
		label := fmt.Sprintf("%s / %s / %s / %s / applied %s",
			a.ID, a.Status, a.ProfileID, a.JobID, humanize.Time(a.AppliedAt),
		)
		if c, err := env.store.GetJob(ctx, a.JobID); err == nil {
			label += fmt.Sprintf(" / %s at %s", c.Job.Title, c.Job.Company)
		}
		if next := applications.NextStatuses(a.Status); len(next) > 0 {
			label += fmt.Sprintf(" / next: %v", next)
		}
		fmt.Println(label)
	}
}

func addApplication(cmd *cobra.Command, jobID string) {
	ctx := context.Background()
	env := setup(ctx)
	defer env.Close()

	profileFlag, _ := cmd.Flags().GetString("profile")
	methodFlag, _ := cmd.Flags().GetString("method")
	notes, _ := cmd.Flags().GetString("notes")

	method, err := applications.ParseMethod(methodFlag)
	if err != nil {
		env.logger.Fatal("parsing --method", zap.Error(err))
	}
	if _, err := env.store.GetJob(ctx, jobID); err != nil {
		env.logger.Fatal("getting job", zap.String("job_id", jobID), zap.Error(err))
	}

	app := applications.New(uuid.NewString(), jobID, env.profileID(profileFlag), method, time.Now().UTC())
	app.Notes = notes
	if err := env.store.CreateApplication(ctx, app); err != nil {
		env.logger.Fatal("creating application", zap.Error(err))
	}
	env.logger.Info("application recorded", zap.String("application_id", app.ID), zap.String("job_id", jobID))
}

func moveApplication(id, statusArg string) {
	ctx := context.Background()
	env := setup(ctx)
	defer env.Close()

	to, err := applications.ParseStatus(statusArg)
	if err != nil {
		env.logger.Fatal("parsing status", zap.Error(err))
	}

	app, err := env.store.AppendApplicationTransition(ctx, id, to, time.Now().UTC())
	if err != nil {
		env.logger.Fatal("moving application", zap.String("application_id", id), zap.Error(err))
	}
	env.logger.Info("application moved",
		zap.String("application_id", id),
		zap.String("status", string(app.Status)),
		zap.Int("transitions", len(app.History)),
	)
}

func noteApplication(id, text string) {
	ctx := context.Background()
	env := setup(ctx)
	defer env.Close()

	_, err := env.store.UpdateApplication(ctx, id, func(a *applications.Application) error {
		if a.Notes != "" {
			a.Notes += "\n"
		}
		a.Notes += text
		return nil
	})
	if err != nil {
		env.logger.Fatal("updating application", zap.String("application_id", id), zap.Error(err))
	}
	env.logger.Info("note added", zap.String("application_id", id))
}

func recordInterview(cmd *cobra.Command, id string) {
	ctx := context.Background()
	env := setup(ctx)
	defer env.Close()

	flags := cmd.Flags()
	dateFlag, _ := flags.GetString("date")
	kind, _ := flags.GetString("type")
	interviewer, _ := flags.GetString("interviewer")
	result, _ := flags.GetString("result")
	notes, _ := flags.GetString("notes")

	date := time.Now().UTC()
	if dateFlag != "" {
		var err error
		if date, err = parseDate(dateFlag); err != nil {
			env.logger.Fatal("parsing --date", zap.Error(err))
		}
	}

	interview := applications.Interview{
		Date:        date,
		Type:        applications.InterviewType(kind),
		Interviewer: interviewer,
		Notes:       notes,
		Result:      applications.InterviewResult(result),
	}

	_, err := env.store.UpdateApplication(ctx, id, func(a *applications.Application) error {
		a.Interviews = append(a.Interviews, interview)
		return nil
	})
	if err != nil {
		env.logger.Fatal("updating application", zap.String("application_id", id), zap.Error(err))
	}
	env.logger.Info("interview recorded", zap.String("application_id", id), zap.Time("date", date))
}

func recordOffer(cmd *cobra.Command, id string) {
	ctx := context.Background()
	env := setup(ctx)
	defer env.Close()

	flags := cmd.Flags()
	salary, _ := flags.GetFloat64("salary")
	benefits, _ := flags.GetString("benefits")
	start, _ := flags.GetString("start")
	expires, _ := flags.GetString("expires")
	notes, _ := flags.GetString("notes")

	offer := &applications.Offer{Salary: salary, Benefits: benefits, Notes: notes}
	var err error
	if offer.StartDate, err = optionalDate(start); err != nil {
		env.logger.Fatal("parsing --start", zap.Error(err))
	}
	if offer.ExpirationDate, err = optionalDate(expires); err != nil {
		env.logger.Fatal("parsing --expires", zap.Error(err))
	}

	_, err = env.store.UpdateApplication(ctx, id, func(a *applications.Application) error {
		a.Offer = offer
		return nil
	})
	if err != nil {
		env.logger.Fatal("updating application", zap.String("application_id", id), zap.Error(err))
	}
	env.logger.Info("offer recorded", zap.String("application_id", id))
}

func applicationStats(cmd *cobra.Command) {
	ctx := context.Background()
	env := setup(ctx)
	defer env.Close()

	profileID, _ := cmd.Flags().GetString("profile")
	stats, err := pipeline.NewReporter(env.store).GetApplicationStats(ctx, profileID)
	if err != nil {
		env.logger.Fatal("computing stats", zap.Error(err))
	}

	fmt.Printf("applications: %d\n", stats.Total)
	for _, s := range applications.Statuses {
		if n := stats.ByStatus[s]; n > 0 {
			fmt.Printf("  %-10s %d\n", s, n)
		}
	}
	fmt.Printf("response rate:  %s (%d)\n", percent(stats.ResponseRate), stats.Responded)
	fmt.Printf("interview rate: %s (%d)\n", percent(stats.InterviewRate), stats.Interviewed)
	fmt.Printf("offer rate:     %s (%d)\n", percent(stats.OfferRate), stats.Offered)
	if stats.Responded > 0 {
		fmt.Printf("time to response: mean %s, median %s\n",
			stats.MeanTimeToResponse.Round(time.Hour), stats.MedianTimeToResponse.Round(time.Hour),
		)
	}
	for _, id := range stats.ApplicationsWithOffers {
		fmt.Printf("  offer: %s\n", id)
	}
}

func percent(rate float64) string {
	return humanize.FtoaWithDigits(rate*100, 1) + "%"
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
