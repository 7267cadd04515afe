// Package detector runs one change-detection cycle for one source: load the
// current batch, reject duplicate identities, compare against the latest
// snapshot and persist the batch as the new baseline.
//
// A cycle that fails before the comparison never writes a snapshot, so the
// previous baseline stays authoritative for the next attempt.
package detector

import (
	"context"
	"fmt"
	"time"

	"change-watch/internal/delta"
	"change-watch/internal/loader"
	"change-watch/internal/logger"
	"change-watch/internal/record"
	"change-watch/internal/snapshot"
)

// AnalysisError wraps the load or identity failure that aborted a cycle.
type AnalysisError struct {
	Source string
	Err    error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analyze %s: %v", e.Source, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// Report is the outcome of one cycle.
type Report struct {
	delta.Result

	Source       string           `json:"source"`
	InputPath    string           `json:"input_path"`
	FirstRun     bool             `json:"first_run"`
	SkippedLines []loader.Skipped `json:"skipped_lines"`
	// Persisted is false when the new snapshot could not be written.
	Persisted  bool      `json:"persisted"`
	SnapshotID string    `json:"snapshot_id,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	Duration   string    `json:"duration"`
}

// Loader is the part of loader.Loader the detector uses.
type Loader interface {
	Load(ctx context.Context, path string) (*loader.Batch, error)
}

// Options configures a Detector.
type Options struct {
	UseContentHash bool
}

// Detector orchestrates cycles. It holds no per-cycle state and may be
// shared across sources.
type Detector struct {
	loader Loader
	store  snapshot.Store
	engine *delta.Engine
	log    logger.Logger
	now    func() time.Time
}

// New wires a Detector.
func New(l Loader, store snapshot.Store, opts Options, log logger.Logger) *Detector {
	if log == nil {
		log = logger.NewNop()
	}
	return &Detector{
		loader: l,
		store:  store,
		engine: delta.New(delta.Options{UseContentHash: opts.UseContentHash}),
		log:    log.With(logger.String("component", "detector")),
		now:    time.Now,
	}
}

// Analyze runs one cycle for source against the file at inputPath.
//
// Load and duplicate-identity failures return an *AnalysisError and leave
// the stored snapshots untouched. A previous snapshot that cannot be read
// is logged and the cycle proceeds as a first run. A failure to persist
// the new snapshot is logged; the computed report is still returned with
// Persisted=false.
func (d *Detector) Analyze(ctx context.Context, source, inputPath string) (*Report, error) {
	started := d.now()
	log := d.log.With(logger.String("source", source))

	batch, err := d.loader.Load(ctx, inputPath)
	if err != nil {
		return nil, &AnalysisError{Source: source, Err: err}
	}
	if err := loader.CheckIdentityUniqueness(batch.Records); err != nil {
		return nil, &AnalysisError{Source: source, Err: err}
	}

	prev, err := d.store.Load(ctx, source)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("analyze %s: %w", source, ctxErr)
		}
		log.Warn("previous snapshot unavailable, treating as first run", logger.Error(err))
		prev = nil
	}

	rep := &Report{
		Source:       source,
		InputPath:    inputPath,
		SkippedLines: batch.Skipped,
		StartedAt:    started.UTC(),
	}
	if rep.SkippedLines == nil {
		rep.SkippedLines = []loader.Skipped{}
	}
	if prev == nil {
		rep.FirstRun = true
		rep.Result = delta.FirstRun(batch.Records)
		log.Info("no previous snapshot, treating all records as added",
			logger.Int("records", len(batch.Records)))
	} else {
		rep.Result = d.engine.Compare(prev.Records, batch.Records)
	}

	// A caller deadline that expired during the comparison counts as an
	// aborted cycle: nothing is written.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analyze %s: %w", source, err)
	}
	d.persist(ctx, log, rep, batch.Records)

	rep.Duration = d.now().Sub(started).String()
	log.Info("analysis complete",
		logger.Bool("first_run", rep.FirstRun),
		logger.Int("added", rep.Summary.AddedCount),
		logger.Int("removed", rep.Summary.RemovedCount),
		logger.Int("changed", rep.Summary.ChangedCount),
		logger.Int("skipped_lines", len(rep.SkippedLines)),
		logger.Bool("persisted", rep.Persisted))
	return rep, nil
}

func (d *Detector) persist(ctx context.Context, log logger.Logger, rep *Report, records []record.Record) {
	info, err := d.store.Save(ctx, rep.Source, records)
	if err != nil {
		log.Warn("snapshot not persisted; the next cycle compares against the previous baseline",
			logger.Error(err))
		return
	}
	rep.Persisted = true
	rep.SnapshotID = info.ID
}
