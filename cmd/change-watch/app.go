package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"change-watch/internal/config"
	"change-watch/internal/detector"
	"change-watch/internal/loader"
	"change-watch/internal/logger"
	"change-watch/internal/metrics"
	"change-watch/internal/monitor"
	"change-watch/internal/notify"
	"change-watch/internal/snapshot"
)

// skipSetup marks commands that run without configuration.
const skipSetup = "skip-setup"

// app carries the state shared by every command of one invocation.
type app struct {
	configFile string
	logLevel   string

	settings *config.Settings
	log      logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "change-watch",
		Short:         "Detect added, removed and changed records between batches",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipSetup] != "" {
				return nil
			}
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})
	root.PersistentFlags().StringVar(&a.configFile, "config", "",
		"YAML configuration file (default "+config.DefaultFile+" when present)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "",
		"log level: debug, info, warn, error")

	root.AddCommand(
		a.newRunCmd(),
		a.newAnalyzeCmd(),
		a.newWatchCmd(),
		a.newScheduleCmd(),
		a.newSnapshotsCmd(),
		newVersionCmd(),
	)
	return root
}

// setup loads the configuration and builds the logger.
func (a *app) setup() error {
	file := a.configFile
	if file == "" {
		if _, err := os.Stat(config.DefaultFile); err == nil {
			file = config.DefaultFile
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	overrides := map[string]any{}
	if a.logLevel != "" {
		overrides["logging.level"] = a.logLevel
	}
	s, err := config.Load(config.Options{File: file, Overrides: overrides})
	if err != nil {
		return err
	}
	log, err := logger.New(s.Logging)
	if err != nil {
		return err
	}
	a.settings = s
	a.log = log
	log.Debug("configuration loaded", logger.String("file", file))
	return nil
}

// openStore opens the configured snapshot store.
func (a *app) openStore() (*snapshot.Manager, error) {
	st := a.settings.Storage
	return snapshot.Open(snapshot.Options{
		Backend:   st.Backend,
		Dir:       st.HistoryDirectory,
		Retention: snapshot.RetentionDays(st.MaxHistoryDays, st.MinSnapshots),
		Logger:    a.log,
	})
}

// notifier returns nil when no sink is enabled, so the monitor skips
// notifications entirely.
func (a *app) notifier() notify.Notifier {
	m := notify.FromConfig(a.settings.Notifications, a.log)
	if !m.Enabled() {
		return nil
	}
	return m
}

// monitorParts is everything a monitor needs that must be closed afterwards.
type monitorParts struct {
	mon     *monitor.Monitor
	store   *snapshot.Manager
	metrics *metrics.Metrics
}

func (p *monitorParts) Close() error { return p.store.Close() }

func (a *app) newMonitor(withNotifier bool) (*monitorParts, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	det := detector.New(loader.New(a.log), store,
		detector.Options{UseContentHash: a.settings.Comparison.UseContentHash}, a.log)

	var n notify.Notifier
	if withNotifier {
		n = a.notifier()
	}
	m := metrics.New()
	in := a.settings.Input
	mon := monitor.New(det, n, m, monitor.Options{
		DataDirectory:   in.DataDirectory,
		FilePattern:     in.FilePattern,
		Concurrency:     in.Concurrency,
		ReportDirectory: a.settings.Report.Directory,
	}, a.log)
	return &monitorParts{mon: mon, store: store, metrics: m}, nil
}

// writeMetricsTextfile writes the textfile when one is configured.
func (a *app) writeMetricsTextfile(m *metrics.Metrics) {
	path := a.settings.Metrics.Textfile
	if path == "" {
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		a.log.Warn("metrics textfile not written", logger.String("path", path), logger.Error(err))
	}
}

// serveMetrics serves /metrics until ctx is done, when an address is set.
func (a *app) serveMetrics(ctx context.Context, m *metrics.Metrics) {
	addr := a.settings.Metrics.ListenAddress
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.log.Info("serving metrics", logger.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server failed", logger.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("metrics server shutdown", logger.Error(err))
		}
	}()
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return usageError{err}
	}
	return nil
}
