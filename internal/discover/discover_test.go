package discover

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "vendor-docs.jsonl", "{}\n")
	touch(t, dir, "advisories.jsonl", "")
	touch(t, dir, "notes.txt", "x")
	touch(t, dir, ".hidden.jsonl", "x")
	touch(t, dir, "draft.jsonl", "x")
	touch(t, dir, "keep-draft.jsonl", "x")
	touch(t, dir, IgnoreFile, "# comment\n*draft*\n!keep-*\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.jsonl"), 0o755))

	got, err := Find(dir, "")
	require.NoError(t, err)

	names := make([]string, 0, len(got))
	for _, s := range got {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"advisories", "keep-draft", "vendor-docs"}, names)
	assert.True(t, filepath.IsAbs(got[0].Path))
	assert.Empty(t, got[2].SHA256Hex)
	assert.EqualValues(t, 3, got[2].Size)
}

func TestFind_KeepsDottedAndUnreadable(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "release..notes.jsonl", "{}\n")
	touch(t, dir, "locked.jsonl", "{}\n")
	require.NoError(t, os.Chmod(filepath.Join(dir, "locked.jsonl"), 0))
	require.NoError(t, os.Symlink(filepath.Join(dir, "locked.jsonl"), filepath.Join(dir, "link.jsonl")))

	got, err := Find(dir, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "locked", got[0].Name)
	assert.Equal(t, "release..notes", got[1].Name)
}

func TestFind_CustomPattern(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.ndjson", "")
	touch(t, dir, "b.jsonl", "")

	got, err := Find(dir, "*.ndjson")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Name)

	_, err = Find(dir, "[")
	assert.Error(t, err)
}

func TestFind_MissingOrFile(t *testing.T) {
	_, err := Find(filepath.Join(t.TempDir(), "nope"), "")
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	dir := t.TempDir()
	touch(t, dir, "f", "")
	_, err = Find(filepath.Join(dir, "f"), "")
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func TestMatch(t *testing.T) {
	name, ok := Match("/data/feed.v2.jsonl", "")
	assert.True(t, ok)
	assert.Equal(t, "feed.v2", name)

	name, ok = Match("/data/release..notes.jsonl", "")
	assert.True(t, ok)
	assert.Equal(t, "release..notes", name)

	for _, p := range []string{"/data/.x.jsonl", "/data/x.jsonl.tmp", "/data/x.txt", "/data/x.jsonl~"} {
		_, ok := Match(p, "")
		assert.False(t, ok, p)
	}
}

func TestStat(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "feed.jsonl", "abc")
	src, err := Stat(filepath.Join(dir, "feed.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, "feed", src.Name)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", src.SHA256Hex)

	sum, err := Hash(filepath.Join(dir, "feed.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, src.SHA256Hex, sum)

	_, err = Stat(dir)
	assert.Error(t, err)
}
