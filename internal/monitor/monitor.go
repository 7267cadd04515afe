// Package monitor drives detection over every source of a data directory.
// Sources are isolated from each other: a failing source is reported and
// the pass moves on.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"change-watch/internal/delta"
	"change-watch/internal/detector"
	"change-watch/internal/discover"
	"change-watch/internal/logger"
	"change-watch/internal/metrics"
	"change-watch/internal/notify"
	"change-watch/internal/report"
	"change-watch/internal/validate"
)

// Error types carried by error notifications.
const (
	ErrorTypeAnalysis = "analysis error"
	ErrorTypeSystem   = "system error"
	ErrorTypeMonitor  = "monitor error"
	ErrorTypeNoData   = "no data"
)

// Analyzer runs one detection cycle.
type Analyzer interface {
	Analyze(ctx context.Context, source, inputPath string) (*detector.Report, error)
}

// Options configures a Monitor.
type Options struct {
	DataDirectory string
	FilePattern   string
	// Concurrency bounds the sources analyzed at once. Values below 1 mean 1.
	Concurrency int
	// ReportDirectory, when set, receives a JSON report per successful cycle.
	ReportDirectory string
}

// SourceResult is the outcome of one source within a pass.
type SourceResult struct {
	Source           string           `json:"source"`
	Path             string           `json:"path"`
	Success          bool             `json:"success"`
	Error            string           `json:"error,omitempty"`
	ErrorType        string           `json:"error_type,omitempty"`
	Counts           delta.Counts     `json:"counts"`
	NotificationSent bool             `json:"notification_sent"`
	ReportPath       string           `json:"report_path,omitempty"`
	Duration         time.Duration    `json:"duration_ns"`
	Report           *detector.Report `json:"-"`
}

// HasChanges reports whether the cycle succeeded and found changes.
func (r SourceResult) HasChanges() bool {
	return r.Success && r.Counts.Total() > 0
}

// RunSummary aggregates one pass over all sources.
type RunSummary struct {
	RunID              string         `json:"run_id"`
	Success            bool           `json:"success"`
	SourcesProcessed   int            `json:"sources_processed"`
	SourcesWithChanges int            `json:"sources_with_changes"`
	TotalChanges       delta.Counts   `json:"total_changes"`
	Errors             []string       `json:"errors"`
	Duration           time.Duration  `json:"duration_ns"`
	Sources            []SourceResult `json:"sources"`
}

// Monitor ties discovery, detection, notification, metrics and report
// archiving together.
type Monitor struct {
	analyzer Analyzer
	notifier notify.Notifier
	metrics  *metrics.Metrics
	opts     Options
	log      logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New wires a Monitor. notifier and m may be nil to disable notifications
// and metrics.
func New(a Analyzer, notifier notify.Notifier, m *metrics.Metrics, opts Options, log logger.Logger) *Monitor {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Monitor{
		analyzer: a,
		notifier: notifier,
		metrics:  m,
		opts:     opts,
		log:      log.With(logger.String("component", "monitor")),
		locks:    make(map[string]*sync.Mutex),
	}
}

// RunOnce discovers the sources and processes each of them.
//
// An empty data directory is a failed pass with a "no data" notification
// and a nil error. A discovery failure is notified and returned.
func (m *Monitor) RunOnce(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	sum := &RunSummary{RunID: uuid.NewString(), Errors: []string{}, Sources: []SourceResult{}}
	log := m.log.With(logger.String("run_id", sum.RunID))
	log.Info("run starting", logger.String("data_directory", m.opts.DataDirectory))

	finish := func() {
		sum.Duration = time.Since(start)
		if m.metrics != nil {
			m.metrics.RunFinished(sum.Success)
		}
		log.Info("run finished",
			logger.Bool("success", sum.Success),
			logger.Int("sources_processed", sum.SourcesProcessed),
			logger.Int("sources_with_changes", sum.SourcesWithChanges),
			logger.Int("errors", len(sum.Errors)),
			logger.Duration("duration", sum.Duration))
	}
	defer finish()

	sources, err := discover.Find(m.opts.DataDirectory, m.opts.FilePattern)
	if err != nil {
		err = fmt.Errorf("discover sources: %w", err)
		sum.Errors = append(sum.Errors, err.Error())
		log.Error("source discovery failed", logger.Error(err))
		m.notifyError(ctx, ErrorTypeMonitor, err.Error(), "")
		return sum, err
	}
	if len(sources) == 0 {
		msg := fmt.Sprintf("no files matching %q in %s", pattern(m.opts.FilePattern), m.opts.DataDirectory)
		sum.Errors = append(sum.Errors, msg)
		log.Warn("no source files found")
		m.notifyError(ctx, ErrorTypeNoData, msg, "")
		return sum, nil
	}

	results := make([]SourceResult, len(sources))
	var g errgroup.Group
	g.SetLimit(m.opts.Concurrency)
	for i, src := range sources {
		g.Go(func() error {
			results[i] = m.ProcessSource(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	sum.Success = true
	for _, r := range results {
		sum.SourcesProcessed++
		sum.Sources = append(sum.Sources, r)
		if !r.Success {
			sum.Success = false
			sum.Errors = append(sum.Errors, r.Source+": "+r.Error)
			continue
		}
		if r.HasChanges() {
			sum.SourcesWithChanges++
			sum.TotalChanges.Added += r.Counts.Added
			sum.TotalChanges.Removed += r.Counts.Removed
			sum.TotalChanges.Changed += r.Counts.Changed
		}
	}
	return sum, nil
}

// ProcessSource runs one cycle for src, notifies and records the outcome.
// Cycles of the same source never overlap.
func (m *Monitor) ProcessSource(ctx context.Context, src discover.Source) SourceResult {
	lock := m.lockFor(src.Name)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	res := SourceResult{Source: src.Name, Path: src.Path}
	log := m.log.With(logger.String("source", src.Name))

	rep, err := m.analyze(ctx, src)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		res.ErrorType = classify(err)
		log.Error("source failed",
			logger.String("error_type", res.ErrorType),
			logger.Error(err))
		if m.metrics != nil {
			m.metrics.CycleFailed(src.Name, res.Duration)
		}
		if ctx.Err() == nil {
			m.notifyError(ctx, res.ErrorType, res.Error, src.Name)
		}
		return res
	}

	res.Success = true
	res.Report = rep
	res.Counts = rep.Counts()
	if m.metrics != nil {
		m.metrics.CycleSucceeded(src.Name,
			res.Counts.Added, res.Counts.Removed, res.Counts.Changed,
			len(rep.SkippedLines), rep.Summary.TotalCurrent, rep.Persisted, res.Duration)
	}

	if res.HasChanges() && m.notifier != nil {
		res.NotificationSent = m.notifier.SendChange(ctx, res.Counts, src.Name)
		m.notified(notify.KindChange, res.NotificationSent)
		if !res.NotificationSent {
			log.Warn("change notification not delivered")
		}
	} else if !res.HasChanges() {
		log.Debug("no changes")
	}

	if dir := m.opts.ReportDirectory; dir != "" {
		path, err := report.Save(dir, rep)
		if err != nil {
			log.Warn("report not saved", logger.Error(err))
		} else {
			res.ReportPath = path
		}
	}
	return res
}

// analyze rejects a source whose name cannot address a snapshot before
// handing it to the analyzer.
func (m *Monitor) analyze(ctx context.Context, src discover.Source) (*detector.Report, error) {
	if err := validate.SourceName(src.Name); err != nil {
		return nil, &detector.AnalysisError{Source: src.Name, Err: err}
	}
	return m.analyzer.Analyze(ctx, src.Name, src.Path)
}

func (m *Monitor) notifyError(ctx context.Context, errorType, message, source string) {
	if m.notifier == nil {
		return
	}
	ok := m.notifier.SendError(ctx, errorType, message, source)
	m.notified(notify.KindError, ok)
	if !ok {
		m.log.Warn("error notification not delivered", logger.String("error_type", errorType))
	}
}

func (m *Monitor) notified(kind string, ok bool) {
	if m.metrics != nil {
		m.metrics.Notified(kind, ok)
	}
}

func (m *Monitor) lockFor(source string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[source]
	if !ok {
		l = &sync.Mutex{}
		m.locks[source] = l
	}
	return l
}

// classify maps a cycle error to its notification type.
func classify(err error) string {
	var ae *detector.AnalysisError
	if errors.As(err, &ae) {
		return ErrorTypeAnalysis
	}
	return ErrorTypeSystem
}

func pattern(p string) string {
	if p == "" {
		return discover.DefaultPattern
	}
	return p
}
