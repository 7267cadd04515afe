package detector

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"change-watch/internal/loader"
	"change-watch/internal/logger"
	"change-watch/internal/record"
	"change-watch/internal/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const base = `"schema":"v1","source":"feed","type":"release","url":"https://example.test","observed_at":"2024-01-01T00:00:00Z"`

func rec(fields string) string { return "{" + base + "," + fields + "}" }

type fixture struct {
	det     *Detector
	store   *snapshot.Manager
	input   string
	history string
}

func newFixture(t *testing.T, retentionDays int) *fixture {
	t.Helper()
	dir := t.TempDir()
	history := filepath.Join(dir, "history")
	store, err := snapshot.Open(snapshot.Options{
		Dir:       history,
		Retention: snapshot.RetentionDays(retentionDays, 1),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return &fixture{
		det:     New(loader.New(nil), store, Options{UseContentHash: true}, nil),
		store:   store,
		input:   filepath.Join(dir, "feed.jsonl"),
		history: history,
	}
}

func (f *fixture) write(t *testing.T, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.input, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func (f *fixture) snapshots(t *testing.T) []snapshot.Info {
	t.Helper()
	infos, err := f.store.List(context.Background(), "feed")
	require.NoError(t, err)
	return infos
}

func TestAnalyze_FirstRunThenChanges(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()

	f.write(t, rec(`"id":"a","title":"X","version":"1.0"`))
	rep, err := f.det.Analyze(ctx, "feed", f.input)
	require.NoError(t, err)
	assert.True(t, rep.FirstRun)
	assert.True(t, rep.Persisted)
	assert.Equal(t, 1, rep.Summary.AddedCount)
	assert.Equal(t, 0, rep.Summary.TotalPrevious)
	assert.Empty(t, rep.Removed)
	assert.Empty(t, rep.Changed)

	f.write(t,
		rec(`"id":"a","title":"X","version":"1.1"`),
		rec(`"id":"b","title":"Y"`))
	rep, err = f.det.Analyze(ctx, "feed", f.input)
	require.NoError(t, err)
	assert.False(t, rep.FirstRun)
	require.Len(t, rep.Added, 1)
	assert.Equal(t, `"b"`, rep.Added[0].ID().JSON())
	require.Len(t, rep.Changed, 1)
	require.Len(t, rep.Changed[0].Changes, 1)
	ch := rep.Changed[0].Changes[0]
	assert.Equal(t, "version", ch.Field)
	assert.True(t, ch.OldValue.Equal(record.StringValue("1.0")))
	assert.True(t, ch.NewValue.Equal(record.StringValue("1.1")))

	assert.Len(t, f.snapshots(t), 2)
}

func TestAnalyze_Idempotent(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()
	f.write(t, rec(`"id":"a","title":"X"`), rec(`"id":"b","title":"Y"`))

	_, err := f.det.Analyze(ctx, "feed", f.input)
	require.NoError(t, err)
	rep, err := f.det.Analyze(ctx, "feed", f.input)
	require.NoError(t, err)
	assert.False(t, rep.HasChanges())
	assert.Equal(t, 2, rep.Summary.TotalPrevious)
}

func TestAnalyze_DuplicateIDsWriteNothing(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()

	f.write(t, rec(`"id":"a","title":"X"`))
	_, err := f.det.Analyze(ctx, "feed", f.input)
	require.NoError(t, err)
	before := f.snapshots(t)

	f.write(t, rec(`"id":"a","title":"X"`), rec(`"id":"z","title":"1"`), rec(`"id":"a","title":"Y"`))
	rep, err := f.det.Analyze(ctx, "feed", f.input)
	assert.Nil(t, rep)

	var ae *AnalysisError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "feed", ae.Source)
	var dup *loader.DuplicateIDError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, []string{`"a"`}, dup.IDs)

	assert.Equal(t, before, f.snapshots(t), "the previous baseline stays authoritative")
}

func TestAnalyze_MissingInput(t *testing.T) {
	f := newFixture(t, 30)
	_, err := f.det.Analyze(context.Background(), "feed", f.input)

	var le *loader.LoadError
	require.True(t, errors.As(err, &le))
	var ae *AnalysisError
	require.True(t, errors.As(err, &ae))
	assert.Empty(t, f.snapshots(t))
}

func TestAnalyze_SkippedLinesReported(t *testing.T) {
	f := newFixture(t, 30)
	f.write(t, rec(`"id":"a","title":"X"`), `not json`, `{"id":"b"}`)

	rep, err := f.det.Analyze(context.Background(), "feed", f.input)
	require.NoError(t, err)
	assert.Len(t, rep.Added, 1)
	require.Len(t, rep.SkippedLines, 2)
	assert.Equal(t, 2, rep.SkippedLines[0].Line)
}

func TestAnalyze_RetentionZeroDays(t *testing.T) {
	f := newFixture(t, 0)
	for i := 0; i < 4; i++ {
		f.write(t, rec(`"id":"a","title":"X"`))
		_, err := f.det.Analyze(context.Background(), "feed", f.input)
		require.NoError(t, err)
	}
	assert.Len(t, f.snapshots(t), 1)
}

func TestAnalyze_CorruptSnapshotDegradesToFirstRun(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()
	f.write(t, rec(`"id":"a","title":"X"`))
	_, err := f.det.Analyze(ctx, "feed", f.input)
	require.NoError(t, err)

	infos := f.snapshots(t)
	require.Len(t, infos, 1)
	require.NoError(t, os.WriteFile(infos[0].Location, []byte("{garbage"), 0o644))

	rep, err := f.det.Analyze(ctx, "feed", f.input)
	require.NoError(t, err)
	assert.True(t, rep.FirstRun)
	assert.Equal(t, 1, rep.Summary.AddedCount)
}

func TestAnalyze_CancelledBeforeSave(t *testing.T) {
	f := newFixture(t, 30)
	f.write(t, rec(`"id":"a","title":"X"`))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.det.Analyze(ctx, "feed", f.input)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.snapshots(t))
}

// failingStore never persists anything.
type failingStore struct {
	snapshot.Store
}

func (failingStore) Load(context.Context, string) (*snapshot.Snapshot, error) { return nil, nil }

func (failingStore) Save(_ context.Context, source string, _ []record.Record) (*snapshot.Info, error) {
	return nil, &snapshot.PersistenceError{Op: "save", Source: source, Err: errors.New("disk full")}
}

func TestAnalyze_SaveFailureStillReturnsResult(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	det := New(loader.New(nil), failingStore{}, Options{}, logger.NewWithCore(core))

	input := filepath.Join(t.TempDir(), "feed.jsonl")
	require.NoError(t, os.WriteFile(input, []byte(rec(`"id":"a","title":"X"`)), 0o644))

	rep, err := det.Analyze(context.Background(), "feed", input)
	require.NoError(t, err)
	assert.False(t, rep.Persisted)
	assert.Equal(t, 1, rep.Summary.AddedCount)
	assert.Equal(t, 1, logs.FilterMessageSnippet("snapshot not persisted").Len())
}

// unreadableStore cannot list its snapshots but still accepts new ones.
type unreadableStore struct {
	snapshot.Store
	saved int
}

func (*unreadableStore) Load(context.Context, string) (*snapshot.Snapshot, error) {
	return nil, &snapshot.PersistenceError{Op: "load", Source: "feed", Err: errors.New("permission denied")}
}

func (s *unreadableStore) Save(context.Context, string, []record.Record) (*snapshot.Info, error) {
	s.saved++
	return &snapshot.Info{ID: "01J"}, nil
}

func TestAnalyze_StoreLoadFailureDegradesToFirstRun(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := &unreadableStore{}
	det := New(loader.New(nil), store, Options{}, logger.NewWithCore(core))

	input := filepath.Join(t.TempDir(), "feed.jsonl")
	require.NoError(t, os.WriteFile(input, []byte(rec(`"id":"a","title":"X"`)), 0o644))

	rep, err := det.Analyze(context.Background(), "feed", input)
	require.NoError(t, err)
	assert.True(t, rep.FirstRun)
	assert.True(t, rep.Persisted)
	assert.Equal(t, 1, rep.Summary.AddedCount)
	assert.Equal(t, 1, store.saved)
	assert.Equal(t, 1, logs.FilterMessageSnippet("previous snapshot unavailable").Len())
}

func TestReport_JSONShape(t *testing.T) {
	f := newFixture(t, 30)
	f.write(t, rec(`"id":"a","title":"X"`))
	rep, err := f.det.Analyze(context.Background(), "feed", f.input)
	require.NoError(t, err)

	raw, err := json.Marshal(rep)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	for _, k := range []string{"added", "removed", "changed", "summary", "source", "first_run", "persisted"} {
		assert.Contains(t, m, k)
	}
	summary := m["summary"].(map[string]any)
	assert.EqualValues(t, 1, summary["added_count"])
}
