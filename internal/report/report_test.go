package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"change-watch/internal/delta"
	"change-watch/internal/detector"
	"change-watch/internal/loader"
	"change-watch/internal/record"
)

func recs(t *testing.T, lines ...string) []record.Record {
	t.Helper()
	out := make([]record.Record, 0, len(lines))
	for _, l := range lines {
		r, err := record.Parse([]byte(l))
		require.NoError(t, err)
		out = append(out, r)
	}
	return out
}

func sampleReport(t *testing.T) *detector.Report {
	prev := recs(t,
		`{"id":"a","title":"A","body":"l1\nl2"}`,
		`{"id":"b","x":1}`,
	)
	curr := recs(t,
		`{"id":"a","title":"A2","body":"l1\nl3"}`,
		`{"id":"c","n":"true"}`,
	)
	return &detector.Report{
		Result:       delta.New(delta.Options{}).Compare(prev, curr),
		Source:       "feed",
		InputPath:    "/data/feed.jsonl",
		SkippedLines: []loader.Skipped{{Line: 3, Reason: "invalid JSON"}},
		Persisted:    true,
		SnapshotID:   "01jabc",
		StartedAt:    time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
		Duration:     "12ms",
	}
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(t), FormatJSON))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "feed", doc["source"])
	summary := doc["summary"].(map[string]any)
	assert.EqualValues(t, 1, summary["added_count"])
	assert.EqualValues(t, 1, summary["removed_count"])
	assert.EqualValues(t, 1, summary["changed_count"])

	changed := doc["changed"].([]any)
	require.Len(t, changed, 1)
	changes := changed[0].(map[string]any)["changes"].([]any)
	assert.Len(t, changes, 2)
	assert.Contains(t, buf.String(), `"body": "l1\nl3"`)
}

func TestWrite_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(t), FormatYAML))
	out := buf.String()

	assert.Contains(t, out, "source: feed\n")
	assert.Contains(t, out, `n: "true"`)
	assert.NotContains(t, out, "{")

	var doc struct {
		Source  string        `yaml:"source"`
		Summary delta.Summary `yaml:"summary"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "feed", doc.Source)
	assert.Equal(t, 2, doc.Summary.TotalCurrent)
}

func TestWrite_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(t), FormatText))
	out := buf.String()

	for _, want := range []string{
		"Source:    feed\n",
		"Changes:   1 added, 1 removed, 1 changed\n",
		"  line 3: invalid JSON\n",
		"  + c\n",
		"  - b\n",
		"  ~ a\n",
		`      title: "A" -> "A2"`,
		"--- a/body\n",
		"-l2\n",
		"+l3\n",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "No changes.")
}

func TestWrite_TextNoChanges(t *testing.T) {
	rep := &detector.Report{Source: "feed", Result: delta.New(delta.Options{}).Compare(nil, nil)}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, rep, ""))
	assert.Contains(t, buf.String(), "No changes.")
	assert.Contains(t, buf.String(), "Snapshot:  not persisted")
}

func TestWrite_UnknownFormat(t *testing.T) {
	err := Write(&bytes.Buffer{}, sampleReport(t), "xml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	rep := sampleReport(t)

	first, err := Save(dir, rep)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "feed_20260301_123000.report.json"), first)

	second, err := Save(dir, rep)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "feed_20260301_123000_2.report.json"), second)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp-"))
	}

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}
