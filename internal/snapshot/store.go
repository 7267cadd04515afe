// Package snapshot persists the record set of each source after every
// successful detection cycle and hands back the most recent one.
//
// Conventions:
//   - Every save creates a new snapshot; an existing snapshot is never
//     overwritten.
//   - "Latest" means the snapshot with the newest modification time, ties
//     broken by the larger (later) ID.
//   - Load returns (nil, nil) when a source has no usable snapshot. A corrupt
//     latest snapshot is logged and reported the same way.
//   - Retention runs after every successful save and never removes the
//     newest snapshot.
//
// Three backends share that behavior: plain files (default), an embedded
// badger database and a single sqlite file.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"change-watch/internal/logger"
	"change-watch/internal/record"
	"change-watch/internal/validate"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Snapshot is a persisted record set of one source.
type Snapshot struct {
	ID        string
	Source    string
	CreatedAt time.Time
	Records   []record.Record
}

// Info describes a stored snapshot without loading its records.
type Info struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	ModTime   time.Time `json:"mod_time"`
	Size      int64     `json:"size"`
	Location  string    `json:"location"`
}

// Store is the contract the detector depends on.
type Store interface {
	// Load returns the latest snapshot of source, or (nil, nil) when there
	// is none.
	Load(ctx context.Context, source string) (*Snapshot, error)
	// Save writes records as a new snapshot and applies retention.
	Save(ctx context.Context, source string, records []record.Record) (*Info, error)
	// Cleanup applies retention and returns how many snapshots it removed.
	Cleanup(ctx context.Context, source string) (int, error)
	// List returns the stored snapshots of source, newest first.
	List(ctx context.Context, source string) ([]Info, error)
	Close() error
}

// PersistenceError reports a failed snapshot operation.
type PersistenceError struct {
	Op     string
	Source string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("snapshot %s %q: %v", e.Op, e.Source, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Options configures Open.
type Options struct {
	Backend   string
	Dir       string
	Retention Retention
	Logger    logger.Logger
	// Now overrides the clock; used for snapshot IDs and retention.
	Now func() time.Time
}

// backend is the storage-specific half of a Manager.
type backend interface {
	put(ctx context.Context, source string, id string, createdAt time.Time, payload []byte) (Info, error)
	list(ctx context.Context, source string) ([]Info, error)
	read(ctx context.Context, info Info) ([]byte, error)
	remove(ctx context.Context, info Info) error
	close() error
}

// Manager implements Store on top of one backend.
type Manager struct {
	b         backend
	kind      string
	retention Retention
	log       logger.Logger
	now       func() time.Time
	ids       *idSource
}

var _ Store = (*Manager)(nil)

// Open builds the Manager for opts.Backend ("" means file).
func Open(opts Options) (*Manager, error) {
	if opts.Dir == "" {
		return nil, errors.New("snapshot: history directory is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	kind := opts.Backend
	if kind == "" {
		kind = BackendFile
	}
	log := opts.Logger.With(logger.String("component", "snapshot"), logger.String("backend", kind))

	var (
		b   backend
		err error
	)
	switch kind {
	case BackendFile:
		b, err = newFileBackend(opts.Dir)
	case BackendBadger:
		b, err = newBadgerBackend(opts.Dir, log)
	case BackendSQLite:
		b, err = newSQLiteBackend(opts.Dir)
	default:
		return nil, fmt.Errorf("snapshot: unknown backend %q", kind)
	}
	if err != nil {
		return nil, err
	}

	return &Manager{
		b:         b,
		kind:      kind,
		retention: opts.Retention,
		log:       log,
		now:       opts.Now,
		ids:       newIDSource(),
	}, nil
}

// Backend returns the backend name.
func (m *Manager) Backend() string { return m.kind }

// Load returns the latest snapshot of source or (nil, nil) when there is no
// usable one.
func (m *Manager) Load(ctx context.Context, source string) (*Snapshot, error) {
	if err := m.precheck(ctx, "load", source); err != nil {
		return nil, err
	}
	infos, err := m.List(ctx, source)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, nil
	}
	latest := infos[0]
	log := m.log.With(logger.String("source", source), logger.String("snapshot_id", latest.ID))

	payload, err := m.b.read(ctx, latest)
	if err != nil {
		log.Warn("snapshot unreadable, treating as first run", logger.Error(err))
		return nil, nil
	}
	recs, err := decodeRecords(payload)
	if err != nil {
		log.Warn("snapshot corrupt, treating as first run", logger.Error(err))
		return nil, nil
	}
	log.Debug("snapshot loaded", logger.Int("records", len(recs)))
	return &Snapshot{
		ID:        latest.ID,
		Source:    source,
		CreatedAt: latest.CreatedAt,
		Records:   recs,
	}, nil
}

// Save writes records as a new snapshot, then applies retention. Retention
// failures are logged and do not fail the save.
func (m *Manager) Save(ctx context.Context, source string, records []record.Record) (*Info, error) {
	if err := m.precheck(ctx, "save", source); err != nil {
		return nil, err
	}
	payload, err := encodeRecords(records)
	if err != nil {
		return nil, &PersistenceError{Op: "save", Source: source, Err: err}
	}
	created := m.now().UTC()
	id := m.ids.next(created)

	info, err := m.b.put(ctx, source, id, created, payload)
	if err != nil {
		return nil, &PersistenceError{Op: "save", Source: source, Err: err}
	}
	m.log.Info("snapshot saved",
		logger.String("source", source),
		logger.String("snapshot_id", info.ID),
		logger.Int("records", len(records)))

	if removed, err := m.Cleanup(ctx, source); err != nil {
		m.log.Warn("snapshot cleanup failed", logger.String("source", source), logger.Error(err))
	} else if removed > 0 {
		m.log.Info("old snapshots removed", logger.String("source", source), logger.Int("removed", removed))
	}
	return &info, nil
}

// Cleanup removes the snapshots of source that fall outside the retention
// window. It keeps going past individual failures and reports them joined.
func (m *Manager) Cleanup(ctx context.Context, source string) (int, error) {
	if err := m.precheck(ctx, "cleanup", source); err != nil {
		return 0, err
	}
	infos, err := m.List(ctx, source)
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, info := range m.retention.Expired(infos, m.now()) {
		if err := m.b.remove(ctx, info); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", info.ID, err))
			continue
		}
		removed++
	}
	if len(errs) > 0 {
		return removed, &PersistenceError{Op: "cleanup", Source: source, Err: errors.Join(errs...)}
	}
	return removed, nil
}

// List returns the snapshots of source, newest first.
func (m *Manager) List(ctx context.Context, source string) ([]Info, error) {
	if err := m.precheck(ctx, "list", source); err != nil {
		return nil, err
	}
	infos, err := m.b.list(ctx, source)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Source: source, Err: err}
	}
	sortNewestFirst(infos)
	return infos, nil
}

// Close releases backend resources.
func (m *Manager) Close() error {
	return m.b.close()
}

func (m *Manager) precheck(ctx context.Context, op, source string) error {
	if err := validate.SourceName(source); err != nil {
		return &PersistenceError{Op: op, Source: source, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return &PersistenceError{Op: op, Source: source, Err: err}
	}
	return nil
}

func sortNewestFirst(infos []Info) {
	sort.SliceStable(infos, func(i, j int) bool {
		if !infos[i].ModTime.Equal(infos[j].ModTime) {
			return infos[i].ModTime.After(infos[j].ModTime)
		}
		return infos[i].ID > infos[j].ID
	})
}
