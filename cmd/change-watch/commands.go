package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"change-watch/internal/discover"
	"change-watch/internal/logger"
	"change-watch/internal/meta"
	"change-watch/internal/monitor"
	"change-watch/internal/report"
	"change-watch/internal/schedule"
	"change-watch/internal/validate"
	"change-watch/internal/watch"
)

// errRunFailed is returned by run when at least one source failed.
var errRunFailed = errors.New("run finished with errors")

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func (a *app) newRunCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process every source of the data directory once",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			parts, err := a.newMonitor(true)
			if err != nil {
				return err
			}
			defer parts.Close()

			sum, err := parts.mon.RunOnce(ctx)
			a.writeMetricsTextfile(parts.metrics)
			if err != nil {
				return err
			}
			if err := printSummary(cmd.OutOrStdout(), sum, asJSON); err != nil {
				return err
			}
			if !sum.Success {
				return errRunFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run summary as JSON")
	return cmd
}

func (a *app) newAnalyzeCmd() *cobra.Command {
	var (
		format   string
		doNotify bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <source> <file>",
		Short: "Run one detection cycle for one source and print the report",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, path := args[0], args[1]
			if err := validate.SourceName(source); err != nil {
				return usageError{err}
			}
			if format == "" {
				format = a.settings.Report.Format
			}
			if format != report.FormatJSON && format != report.FormatYAML && format != report.FormatText {
				return usageError{fmt.Errorf("%w: %q", report.ErrUnknownFormat, format)}
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			parts, err := a.newMonitor(doNotify)
			if err != nil {
				return err
			}
			defer parts.Close()

			res := parts.mon.ProcessSource(ctx, discover.Source{Name: source, Path: path})
			a.writeMetricsTextfile(parts.metrics)
			if !res.Success {
				return fmt.Errorf("%s: %s", res.ErrorType, res.Error)
			}
			return report.Write(cmd.OutOrStdout(), res.Report, format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "report format: json, yaml or text (default from config)")
	cmd.Flags().BoolVar(&doNotify, "notify", false, "send notifications as a full run would")
	return cmd
}

func (a *app) newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Process all sources, then re-process a source whenever its file changes",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			parts, err := a.newMonitor(true)
			if err != nil {
				return err
			}
			defer parts.Close()
			a.serveMetrics(ctx, parts.metrics)

			in := a.settings.Input
			w, err := watch.New(watch.Options{
				Dir:      in.DataDirectory,
				Pattern:  in.FilePattern,
				Debounce: a.settings.Watch.Debounce,
				Logger:   a.log,
			}, func(ctx context.Context, src discover.Source) {
				parts.mon.ProcessSource(ctx, src)
			})
			if err != nil {
				return err
			}

			if seen, err := discover.Find(in.DataDirectory, in.FilePattern); err == nil {
				w.Seed(seen)
			}
			if _, err := parts.mon.RunOnce(ctx); err != nil {
				a.log.Error("initial run failed", logger.Error(err))
			}
			return w.Run(ctx)
		},
	}
}

func (a *app) newScheduleCmd() *cobra.Command {
	var (
		spec   string
		runNow bool
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Process all sources on a cron schedule",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if spec == "" {
				spec = a.settings.Schedule.Cron
			}
			if err := schedule.Validate(spec); err != nil {
				return usageError{err}
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			parts, err := a.newMonitor(true)
			if err != nil {
				return err
			}
			defer parts.Close()
			a.serveMetrics(ctx, parts.metrics)

			job := func(ctx context.Context) error {
				sum, err := parts.mon.RunOnce(ctx)
				if err != nil {
					return err
				}
				if !sum.Success {
					return fmt.Errorf("%w: %d error(s)", errRunFailed, len(sum.Errors))
				}
				return nil
			}
			s, err := schedule.New(spec, job, a.log)
			if err != nil {
				return err
			}
			if runNow {
				if err := job(ctx); err != nil {
					a.log.Error("initial run failed", logger.Error(err))
				}
			}
			s.Start()
			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return s.Stop(stopCtx)
		},
	}
	cmd.Flags().StringVar(&spec, "cron", "", "cron expression (default from config)")
	cmd.Flags().BoolVar(&runNow, "run-now", false, "run once immediately before the first tick")
	return cmd
}

func (a *app) newSnapshotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Inspect and prune stored snapshots",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list <source>",
			Short: "List the stored snapshots of a source, newest first",
			Args:  exactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.openStore()
				if err != nil {
					return err
				}
				defer store.Close()

				infos, err := store.List(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCREATED\tSIZE\tLOCATION")
				for _, in := range infos {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
						in.ID, in.CreatedAt.Local().Format(time.DateTime), in.Size, in.Location)
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "prune <source>",
			Short: "Apply the retention policy to a source now",
			Args:  exactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.openStore()
				if err != nil {
					return err
				}
				defer store.Close()

				n, err := store.Cleanup(cmd.Context(), args[0])
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d snapshot(s)\n", n)
				return err
			},
		},
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print build information",
		Args:        noArgs,
		Annotations: map[string]string{skipSetup: "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "change-watch", meta.Detect())
		},
	}
}

func printSummary(w io.Writer, sum *monitor.RunSummary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}
	fmt.Fprintf(w, "Run %s: %d source(s), %d with changes (%d added, %d removed, %d changed) in %s\n",
		sum.RunID, sum.SourcesProcessed, sum.SourcesWithChanges,
		sum.TotalChanges.Added, sum.TotalChanges.Removed, sum.TotalChanges.Changed,
		sum.Duration.Round(time.Millisecond))
	for _, r := range sum.Sources {
		switch {
		case !r.Success:
			fmt.Fprintf(w, "  %-24s FAILED  %s: %s\n", r.Source, r.ErrorType, r.Error)
		case r.HasChanges():
			fmt.Fprintf(w, "  %-24s +%d -%d ~%d\n", r.Source, r.Counts.Added, r.Counts.Removed, r.Counts.Changed)
		default:
			fmt.Fprintf(w, "  %-24s unchanged\n", r.Source)
		}
	}
	if len(sum.Sources) == 0 {
		for _, e := range sum.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	return nil
}
