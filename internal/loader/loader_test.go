package loader

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"change-watch/internal/logger"
	"change-watch/internal/record"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func line(id, title string) string {
	return `{"schema":"v1","source":"news","id":"` + id + `","type":"article","title":"` + title +
		`","url":"https://example.test/` + id + `","observed_at":"2024-01-01T00:00:00Z"}`
}

func writeInput(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "news.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644))
	return path
}

func TestLoad_SkipsMalformedLines(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	l := New(logger.NewWithCore(core))

	path := writeInput(t,
		line("a", "A"),
		"",
		"   ",
		`{"id": "broken"`,
		`[1,2,3]`,
		`{"id":"nofields"}`,
		line("b", "B")+"\r",
	)

	batch, err := l.Load(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, batch.Records, 2)
	assert.Equal(t, 5, batch.Lines)
	require.Len(t, batch.Skipped, 3)
	assert.Equal(t, 4, batch.Skipped[0].Line)
	assert.Equal(t, 5, batch.Skipped[1].Line)
	assert.Equal(t, 6, batch.Skipped[2].Line)
	assert.Contains(t, batch.Skipped[2].Reason, "missing required field")

	assert.Equal(t, 3, logs.FilterMessage("skipping malformed line").Len())
	assert.Equal(t, 1, logs.FilterMessage("input lines skipped").Len())
}

func TestLoad_LongLine(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	path := writeInput(t, line("a", long))

	batch, err := New(nil).Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
	title, _ := batch.Records[0].Get("title").Str()
	assert.Len(t, title, len(long))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := New(nil).Load(context.Background(), filepath.Join(t.TempDir(), "nope.jsonl"))
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLoad_Directory(t *testing.T) {
	_, err := New(nil).Load(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrIsDirectory)
}

func TestLoad_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil).Load(ctx, writeInput(t, line("a", "A")))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoad_EmptyFile(t *testing.T) {
	batch, err := New(nil).Load(context.Background(), writeInput(t))
	require.NoError(t, err)
	assert.Empty(t, batch.Records)
	assert.NotNil(t, batch.Records)
}

func TestCheckIdentityUniqueness(t *testing.T) {
	parse := func(s string) record.Record {
		r, err := record.Parse([]byte(s))
		require.NoError(t, err)
		return r
	}
	recs := []record.Record{
		parse(`{"id":"b"}`), parse(`{"id":"a"}`), parse(`{"id":"b"}`),
		parse(`{"id":1}`), parse(`{"id":1.0}`), parse(`{"id":"b"}`), parse(`{"id":"1"}`),
	}

	err := CheckIdentityUniqueness(recs)
	var dup *DuplicateIDError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, []string{`"b"`, `1.0`}, dup.IDs)

	assert.NoError(t, CheckIdentityUniqueness(recs[:2]))
	assert.NoError(t, CheckIdentityUniqueness(nil))
}
