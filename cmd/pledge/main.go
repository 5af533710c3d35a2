package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pledge/internal/bootstrap"
	focusdomain "pledge/internal/modules/focus/domain"
	focusdto "pledge/internal/modules/focus/dto"
	weeklydto "pledge/internal/modules/weekly/dto"
	"pledge/internal/platform/config"
	"pledge/internal/platform/timefmt"
)

// watchCallbackWait bounds how long watch lingers for the completion callback
// after the countdown reaches zero.
const watchCallbackWait = 6 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	dataDir    string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "pledge",
		Short:         "Focus sessions and weekly promise reports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default <data>/.pledge/config.yaml)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data", ".", "data directory for the local cache")

	root.AddCommand(newTUICmd(flags))
	root.AddCommand(newFocusCmd(flags))
	root.AddCommand(newReportCmd(flags))
	return root
}

func loadApp(flags *globalFlags) (*bootstrap.App, error) {
	path := flags.configPath
	if path == "" {
		path = filepath.Join(flags.dataDir, ".pledge", "config.yaml")
	}
	cfg, err := config.Load(path, flags.dataDir)
	if err != nil {
		return nil, err
	}
	return bootstrap.New(cfg)
}

// withApp runs fn against a freshly wired app and closes it afterwards.
func withApp(flags *globalFlags, fn func(app *bootstrap.App) error) error {
	app, err := loadApp(flags)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			app.Logger.Warn("shutdown", "error", cerr)
		}
	}()
	return fn(app)
}

func newTUICmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Run the pledge terminal UI",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withApp(flags, bootstrap.RunTUI)
		},
	}
}

func newFocusCmd(flags *globalFlags) *cobra.Command {
	focus := &cobra.Command{Use: "focus", Short: "Focus session lifecycle"}

	simple := func(use, short string, call func(context.Context, *bootstrap.App) (focusdto.StatusOutput, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(flags, func(app *bootstrap.App) error {
					out, err := call(cmd.Context(), app)
					printStatus(cmd.OutOrStdout(), out)
					return err
				})
			},
		}
	}

	focus.AddCommand(simple("status", "Show the current focus session", func(ctx context.Context, app *bootstrap.App) (focusdto.StatusOutput, error) {
		return app.FocusCLI.Status(ctx)
	}))
	focus.AddCommand(simple("pause", "Pause the running session", func(ctx context.Context, app *bootstrap.App) (focusdto.StatusOutput, error) {
		return app.FocusCLI.Pause(ctx)
	}))
	focus.AddCommand(simple("resume", "Resume the paused session", func(ctx context.Context, app *bootstrap.App) (focusdto.StatusOutput, error) {
		return app.FocusCLI.Resume(ctx)
	}))
	focus.AddCommand(simple("stop", "Stop and discard the current session", func(ctx context.Context, app *bootstrap.App) (focusdto.StatusOutput, error) {
		return app.FocusCLI.Stop(ctx)
	}))

	var promiseID string
	var minutes int
	start := &cobra.Command{
		Use:   "start --promise <id> --minutes <n>",
		Short: "Start a focus session for a promise",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(promiseID) == "" {
				return fmt.Errorf("--promise is required")
			}
			return withApp(flags, func(app *bootstrap.App) error {
				out, err := app.FocusCLI.Start(cmd.Context(), promiseID, minutes)
				printStatus(cmd.OutOrStdout(), out)
				return err
			})
		},
	}
	start.Flags().StringVar(&promiseID, "promise", "", "promise id")
	start.Flags().IntVar(&minutes, "minutes", 25, "planned duration in minutes")
	focus.AddCommand(start)

	focus.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Follow the countdown until the session completes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withApp(flags, func(app *bootstrap.App) error {
				w := cmd.OutOrStdout()
				completed := make(chan string, 1)
				app.OnFocusComplete(func(s focusdomain.Session) { completed <- s.ID })
				counting := false
				out, err := app.FocusCLI.Watch(ctx, func(o focusdto.StatusOutput) {
					counting = counting || o.Status == "running"
					_, _ = fmt.Fprintf(w, "\r%s", statusLine(o))
				})
				_, _ = fmt.Fprintln(w)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				if err != nil {
					printStatus(w, out)
					return err
				}
				// the callback runs only for a completion observed by this process
				if out.Status != "finished" || !counting {
					return nil
				}
				select {
				case id := <-completed:
					_, _ = fmt.Fprintf(w, "session %s complete\n", id)
				case <-time.After(watchCallbackWait):
				case <-ctx.Done():
				}
				return nil
			})
		},
	})
	return focus
}

func newReportCmd(flags *globalFlags) *cobra.Command {
	report := &cobra.Command{Use: "report", Short: "Weekly promise reports"}

	var week string
	weekly := &cobra.Command{
		Use:   "weekly [--week YYYY-MM-DD]",
		Short: "Show the weekly report split into promises, tasks and distractions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			weekOf, err := parseWeek(week)
			if err != nil {
				return err
			}
			return withApp(flags, func(app *bootstrap.App) error {
				out, err := app.WeeklyCLI.Weekly(cmd.Context(), weekOf)
				if err != nil {
					return err
				}
				printWeekly(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	weekly.Flags().StringVar(&week, "week", "", "any date in the week (default this week)")

	var limit int
	history := &cobra.Command{
		Use:   "history [--limit n]",
		Short: "List recorded weekly totals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(app *bootstrap.App) error {
				entries, err := app.WeeklyCLI.History(cmd.Context(), limit)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if len(entries) == 0 {
					_, _ = fmt.Fprintln(w, "no weekly history")
					return nil
				}
				for _, e := range entries {
					_, _ = fmt.Fprintf(w, "%s..%s", e.WeekStart, e.WeekEnd)
					for _, b := range e.Buckets {
						_, _ = fmt.Fprintf(w, "\t%s %d %s/%s", b.Kind, b.Count, timefmt.Hours(b.Spent), timefmt.Hours(b.Promised))
					}
					_, _ = fmt.Fprintln(w)
				}
				return nil
			})
		},
	}
	history.Flags().IntVar(&limit, "limit", 8, "number of weeks")

	var exportWeek, format, dir string
	export := &cobra.Command{
		Use:   "export --format md|pdf [--dir <path>]",
		Short: "Export the weekly report as Markdown or PDF",
		RunE: func(cmd *cobra.Command, _ []string) error {
			weekOf, err := parseWeek(exportWeek)
			if err != nil {
				return err
			}
			return withApp(flags, func(app *bootstrap.App) error {
				out, err := app.WeeklyCLI.Export(cmd.Context(), weekOf, format, dir)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "exported %s (%s) to %s\n", out.Label, out.Format, out.Path)
				return nil
			})
		},
	}
	export.Flags().StringVar(&exportWeek, "week", "", "any date in the week (default this week)")
	export.Flags().StringVar(&format, "format", "md", "export format: md|pdf")
	export.Flags().StringVar(&dir, "dir", ".", "output directory")

	report.AddCommand(weekly, history, export)
	return report
}

func parseWeek(v string) (time.Time, error) {
	if strings.TrimSpace(v) == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, v, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("--week must be YYYY-MM-DD: %w", err)
	}
	return t, nil
}

func statusLine(out focusdto.StatusOutput) string {
	switch out.Status {
	case "running", "paused":
		return fmt.Sprintf("%-8s %s  %3.0f%%  promise=%s", out.Status, timefmt.Clock(out.RemainingSeconds), out.Progress*100, out.PromiseID)
	case "finished":
		return fmt.Sprintf("finished %s  100%%  promise=%s", timefmt.Clock(0), out.PromiseID)
	default:
		return "no active focus session"
	}
}

func printStatus(w io.Writer, out focusdto.StatusOutput) {
	_, _ = fmt.Fprintln(w, statusLine(out))
	if out.SessionID != "" {
		_, _ = fmt.Fprintf(w, "session: %s planned: %dm\n", out.SessionID, out.PlannedMinutes)
	}
	if out.Error != "" {
		_, _ = fmt.Fprintln(w, "! "+out.Error)
	}
}

func printWeekly(w io.Writer, out weeklydto.WeeklyOutput) {
	_, _ = fmt.Fprintf(w, "%s  %s..%s\n", out.Label, out.WeekStart, out.WeekEnd)
	sections := []struct {
		title  string
		bucket *weeklydto.BucketView
	}{
		{"Promises", out.Promises},
		{"Tasks", out.Tasks},
		{"Distractions", out.Distractions},
	}
	for _, s := range sections {
		if s.bucket == nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "\n%s  %s / %s\n", s.title, timefmt.Hours(s.bucket.TotalSpent), timefmt.Hours(s.bucket.TotalPromised))
		for _, r := range s.bucket.Records {
			_, _ = fmt.Fprintf(w, "  %-32s %s / %s\n", r.Text, timefmt.Hours(r.HoursSpent), timefmt.Hours(r.HoursPromised))
		}
	}
	if out.Promises == nil && out.Tasks == nil && out.Distractions == nil {
		_, _ = fmt.Fprintln(w, "nothing tracked this week")
		return
	}
	_, _ = fmt.Fprintf(w, "\nTotal  %s / %s\n", timefmt.Hours(out.TotalSpent), timefmt.Hours(out.TotalPromised))
}
