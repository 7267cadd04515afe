// Package discover finds the input files of a data directory and derives a
// source name for each: the file name without its extension.
package discover

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultPattern matches line-delimited JSON files.
const DefaultPattern = "*.jsonl"

// IgnoreFile lists gitignore-style patterns of files to leave alone.
const IgnoreFile = ".changewatchignore"

// ErrNotDirectory is returned when the data directory is a file.
var ErrNotDirectory = errors.New("data directory is not a directory")

// Source is one discovered input file.
type Source struct {
	Name string // file stem, e.g. "vendor-docs" for vendor-docs.jsonl
	Path string // absolute path
	Size int64
	// SHA256Hex is the lowercase hex sha256 of the file contents. Find
	// leaves it empty; Stat and Hash fill it in.
	SHA256Hex string
}

// Find returns the regular files of dir whose base name matches pattern,
// sorted by path. Hidden files, symlinks and names listed in dir's
// IgnoreFile are skipped. The scan is not recursive.
//
// Find does not open the files: an unreadable input is still returned so
// that loading it fails for that source.
func Find(dir, pattern string) ([]Source, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid file pattern %q: %w", pattern, err)
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("data directory: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s: %w", root, ErrNotDirectory)
	}

	patterns, err := parseIgnore(filepath.Join(root, IgnoreFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", IgnoreFile, err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var out []Source
	for _, e := range entries {
		src, ok := inspect(root, pattern, patterns, e)
		if ok {
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Match reports whether path would be picked up by Find with pattern, and
// the source name it would get. It does not touch the file system.
func Match(path, pattern string) (string, bool) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	base := filepath.Base(path)
	if skipName(base) {
		return "", false
	}
	if ok, _ := filepath.Match(pattern, base); !ok {
		return "", false
	}
	return SourceName(base), true
}

// SourceName strips the last extension of a file name.
func SourceName(base string) string {
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Stat builds the Source for a single file.
func Stat(path string) (Source, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Source{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Source{}, err
	}
	if !info.Mode().IsRegular() {
		return Source{}, fmt.Errorf("%s is not a regular file", abs)
	}
	sum, err := Hash(abs)
	if err != nil {
		return Source{}, err
	}
	return Source{
		Name:      SourceName(filepath.Base(abs)),
		Path:      abs,
		Size:      info.Size(),
		SHA256Hex: sum,
	}, nil
}

func inspect(root, pattern string, patterns []ignorePattern, e fs.DirEntry) (Source, bool) {
	if !e.Type().IsRegular() {
		return Source{}, false
	}
	name, ok := Match(e.Name(), pattern)
	if !ok || matchIgnore(patterns, e.Name()) {
		return Source{}, false
	}
	src := Source{Name: name, Path: filepath.Join(root, e.Name())}
	if info, err := e.Info(); err == nil {
		src.Size = info.Size()
	}
	return src, true
}

// skipName rejects hidden files and editor or partial-write leftovers.
func skipName(base string) bool {
	return strings.HasPrefix(base, ".") ||
		strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".tmp") ||
		strings.HasSuffix(base, ".swp")
}

// Hash computes a hex-encoded sha256 for the file at path.
func Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
