// Package schedule runs a job on a cron expression.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"change-watch/internal/logger"
)

// Job is one scheduled run. Its context is cancelled by Stop.
type Job func(ctx context.Context) error

// parser accepts the standard 5-field syntax plus descriptors such as
// "@hourly" and "@every 15m".
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate reports whether spec parses.
func Validate(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return nil
}

// Scheduler triggers a Job on every tick of its schedule. A tick that fires
// while the previous run is still going is skipped.
type Scheduler struct {
	spec string
	cron *cron.Cron
	id   cron.EntryID
	log  logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	runs int
}

// New creates a Scheduler. It does not start ticking until Start.
func New(spec string, job Job, log logger.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, fmt.Errorf("schedule: nil job")
	}
	if log == nil {
		log = logger.NewNop()
	}
	cl := cronLogger{log: log}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{spec: spec, cron: c, log: log, ctx: ctx, cancel: cancel}

	id, err := c.AddFunc(spec, func() { s.run(job) })
	if err != nil {
		cancel()
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	s.id = id
	return s, nil
}

// Start begins ticking in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started",
		logger.String("cron", s.spec),
		logger.Time("next_run", s.Next()),
	)
}

// Next returns the time of the next tick, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.id).Next
}

// Runs returns how many runs have started.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// Stop prevents new ticks, cancels the running job's context and waits for
// it to return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

func (s *Scheduler) run(job Job) {
	s.mu.Lock()
	s.runs++
	n := s.runs
	s.mu.Unlock()

	start := time.Now()
	s.log.Info("scheduled run starting", logger.Int("run", n))
	if err := job(s.ctx); err != nil {
		s.log.Error("scheduled run failed",
			logger.Int("run", n),
			logger.Duration("duration", time.Since(start)),
			logger.Error(err),
		)
		return
	}
	s.log.Info("scheduled run finished",
		logger.Int("run", n),
		logger.Duration("duration", time.Since(start)),
	)
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(fields(keysAndValues), logger.Error(err))...)
}

func fields(kv []any) []logger.Field {
	out := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		out = append(out, logger.Any(key, kv[i+1]))
	}
	return out
}
