// Package loader reads a line-delimited JSON file into a batch of normalized
// records. A bad line never fails the load: it is skipped, logged and
// counted. Only an unreadable file fails the whole batch.
package loader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"change-watch/internal/logger"
	"change-watch/internal/record"
	"change-watch/internal/validate"
)

// ErrIsDirectory is wrapped by LoadError when the input path is a directory.
var ErrIsDirectory = errors.New("input path is a directory")

// LoadError reports that the input file could not be read at all.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// DuplicateIDError reports identity values that occur more than once in a
// batch. IDs holds the JSON text of each duplicated id, sorted, once each.
type DuplicateIDError struct {
	IDs []string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate record id(s): %s", strings.Join(e.IDs, ", "))
}

// Skipped describes one input line that did not produce a record.
type Skipped struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// Batch is the result of loading one input file.
type Batch struct {
	Path    string
	Records []record.Record
	// Lines counts the non-blank lines read.
	Lines   int
	Skipped []Skipped
}

// Loader turns input files into record batches.
type Loader struct {
	log      logger.Logger
	required []string
}

// New returns a Loader that requires record.RequiredFields on every line.
func New(log logger.Logger) *Loader {
	if log == nil {
		log = logger.NewNop()
	}
	return &Loader{
		log:      log.With(logger.String("component", "loader")),
		required: record.RequiredFields,
	}
}

// Load reads path line by line. Blank lines are ignored; lines that are not
// a valid record are skipped with a warning. Lines have no length limit.
func (l *Loader) Load(ctx context.Context, path string) (*Batch, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	if fi.IsDir() {
		return nil, &LoadError{Path: path, Err: ErrIsDirectory}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer f.Close()

	batch := &Batch{Path: path, Records: make([]record.Record, 0)}
	r := bufio.NewReader(f)
	lineNo := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, &LoadError{Path: path, Err: err}
		}

		line, readErr := r.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			l.consume(batch, lineNo, line)
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return nil, &LoadError{Path: path, Err: readErr}
		}
	}

	if len(batch.Skipped) > 0 {
		l.log.Warn("input lines skipped",
			logger.String("path", path),
			logger.Int("skipped", len(batch.Skipped)),
			logger.Int("loaded", len(batch.Records)))
	}
	l.log.Debug("input loaded",
		logger.String("path", path),
		logger.Int("records", len(batch.Records)),
		logger.Int("lines", batch.Lines))
	return batch, nil
}

func (l *Loader) consume(batch *Batch, lineNo int, line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	batch.Lines++

	rec, err := ParseLine(line, l.required)
	if err != nil {
		batch.Skipped = append(batch.Skipped, Skipped{Line: lineNo, Reason: err.Error()})
		l.log.Warn("skipping malformed line",
			logger.String("path", batch.Path),
			logger.Int("line", lineNo),
			logger.Error(err))
		return
	}
	batch.Records = append(batch.Records, rec)
}

// ParseLine turns one non-blank input line into a record, or explains why
// it cannot be one.
func ParseLine(line []byte, required []string) (record.Record, error) {
	rec, err := record.Parse(line)
	if err != nil {
		return record.Record{}, err
	}
	if err := validate.Record(rec, required); err != nil {
		return record.Record{}, err
	}
	return rec, nil
}

// CheckIdentityUniqueness returns a *DuplicateIDError when two records share
// an identity value.
func CheckIdentityUniqueness(records []record.Record) error {
	seen := make(map[string]int, len(records))
	var dups []string
	for _, rec := range records {
		key := rec.IdentityKey()
		seen[key]++
		if seen[key] == 2 {
			dups = append(dups, rec.ID().JSON())
		}
	}
	if len(dups) == 0 {
		return nil
	}
	sort.Strings(dups)
	return &DuplicateIDError{IDs: dups}
}
