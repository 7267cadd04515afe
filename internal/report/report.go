// Package report renders the outcome of a detection cycle for humans and
// machines, and archives it on disk.
//
// Formats:
//   - json: the full report, indented. Records keep their field order.
//   - yaml: the same document in block style.
//   - text: a summary followed by added and removed ids and per-field
//     changes. Multi-line string fields are shown as unified diffs.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"change-watch/internal/detector"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatText = "text"
)

// ErrUnknownFormat is returned for a format other than json, yaml or text.
var ErrUnknownFormat = errors.New("unknown report format")

// Write renders rep to w in the given format.
func Write(w io.Writer, rep *detector.Report, format string) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, rep)
	case FormatYAML:
		return writeYAML(w, rep)
	case FormatText, "":
		return writeText(w, rep)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Save writes rep as JSON to dir/<source>_<YYYYMMDD_HHMMSS>.report.json and
// returns the path. The file appears atomically; an existing report of the
// same second is never overwritten.
func Save(dir string, rep *detector.Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report dir: %w", err)
	}
	var buf bytes.Buffer
	if err := writeJSON(&buf, rep); err != nil {
		return "", err
	}

	base := rep.Source + "_" + rep.StartedAt.UTC().Format("20060102_150405")
	tmp, err := os.CreateTemp(dir, ".tmp-"+base+"-")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	final, err := uniqueName(dir, base)
	if err != nil {
		return "", err
	}
	// Link fails if the target exists, unlike Rename.
	if err := os.Link(tmpName, final); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	return final, nil
}

// uniqueName returns dir/base.report.json, or dir/base_N.report.json for
// the first N that is still free.
func uniqueName(dir, base string) (string, error) {
	name := filepath.Join(dir, base+".report.json")
	for n := 2; ; n++ {
		_, err := os.Lstat(name)
		if errors.Is(err, os.ErrNotExist) {
			return name, nil
		}
		if err != nil {
			return "", err
		}
		name = filepath.Join(dir, base+"_"+strconv.Itoa(n)+".report.json")
	}
}

func writeJSON(w io.Writer, rep *detector.Report) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// writeYAML converts the JSON document rather than the Go value so both
// formats share field names and record field order.
func writeYAML(w io.Writer, rep *detector.Report) error {
	var buf bytes.Buffer
	if err := writeJSON(&buf, rep); err != nil {
		return err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		return fmt.Errorf("yaml: %w", err)
	}
	blockStyle(&doc)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("yaml: %w", err)
	}
	return enc.Close()
}

// blockStyle drops the flow and quoting styles inherited from JSON. The
// encoder still quotes strings that would otherwise read as another type.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
