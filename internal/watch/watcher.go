// Package watch re-runs detection for a source when its input file changes.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"change-watch/internal/discover"
	"change-watch/internal/logger"
)

// DefaultDebounce is used when Options.Debounce is zero.
const DefaultDebounce = 2 * time.Second

// Handler processes one changed source.
type Handler func(ctx context.Context, src discover.Source)

// Options configures a Watcher.
type Options struct {
	Dir      string
	Pattern  string
	Debounce time.Duration
	Logger   logger.Logger
}

// Watcher watches a data directory. Bursts of events for one file collapse
// into a single Handler call once the file has been quiet for the debounce
// interval. A file whose content hash did not change is not handed over.
type Watcher struct {
	dir      string
	pattern  string
	debounce time.Duration
	handle   Handler
	log      logger.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	timers  map[string]*time.Timer
	hashes  map[string]string
	stopped bool

	inflight sync.WaitGroup
}

// New creates a Watcher on opts.Dir. Nothing is delivered until Run.
func New(opts Options, handle Handler) (*Watcher, error) {
	if handle == nil {
		return nil, fmt.Errorf("watch: nil handler")
	}
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	w := &Watcher{
		dir:      dir,
		pattern:  opts.Pattern,
		debounce: opts.Debounce,
		handle:   handle,
		log:      opts.Logger,
		fsw:      fsw,
		timers:   make(map[string]*time.Timer),
		hashes:   make(map[string]string),
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.log == nil {
		w.log = logger.NewNop()
	}
	return w, nil
}

// Seed records the content hashes of the sources seen by an initial pass
// so that the first event for an untouched file does not trigger a cycle.
// Sources without a hash are hashed here; unreadable ones are left out.
func (w *Watcher) Seed(sources []discover.Source) {
	hashes := make(map[string]string, len(sources))
	for _, s := range sources {
		sum := s.SHA256Hex
		if sum == "" {
			var err error
			if sum, err = discover.Hash(s.Path); err != nil {
				w.log.Debug("not seeded", logger.String("path", s.Path), logger.Error(err))
				continue
			}
		}
		hashes[s.Path] = sum
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for p, sum := range hashes {
		w.hashes[p] = sum
	}
}

// Run blocks until ctx is cancelled or the underlying watcher fails. It
// waits for in-flight handlers before returning.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info("watching data directory",
		logger.String("dir", w.dir),
		logger.Duration("debounce", w.debounce),
	)
	defer w.shutdown()

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.schedule(ctx, ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watcher error", logger.Error(err))
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	if filepath.Dir(path) != w.dir {
		return
	}
	if _, ok := discover.Match(path, w.pattern); !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() { w.fire(ctx, path) })
}

func (w *Watcher) fire(ctx context.Context, path string) {
	w.mu.Lock()
	delete(w.timers, path)
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.inflight.Add(1)
	w.mu.Unlock()
	defer w.inflight.Done()

	src, err := discover.Stat(path)
	if err != nil {
		w.log.Debug("changed file vanished", logger.String("path", path), logger.Error(err))
		return
	}

	w.mu.Lock()
	unchanged := w.hashes[path] == src.SHA256Hex
	w.hashes[path] = src.SHA256Hex
	w.mu.Unlock()
	if unchanged {
		w.log.Debug("content unchanged, skipping", logger.String("source", src.Name))
		return
	}

	w.log.Info("input changed", logger.String("source", src.Name), logger.Int64("size", src.Size))
	w.handle(ctx, src)
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	w.stopped = true
	for p, t := range w.timers {
		t.Stop()
		delete(w.timers, p)
	}
	w.mu.Unlock()

	if err := w.fsw.Close(); err != nil {
		w.log.Warn("failed to close watcher", logger.Error(err))
	}
	w.inflight.Wait()
	w.log.Info("watcher stopped")
}
