// Package validate performs lightweight validation of normalized records and
// of the names used to address them on disk. Every check aggregates all the
// issues it finds into a single error so that a skipped line or a rejected
// source name reports everything that is wrong with it at once.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"change-watch/internal/record"
)

// MissingFieldsError lists the required fields a record lacks.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing required field(s): " + strings.Join(e.Fields, ", ")
}

// Record checks that rec carries every field in required. A field holding
// JSON null counts as present.
//
// The returned error is a *MissingFieldsError naming every absent field, in
// the order they appear in required.
func Record(rec record.Record, required []string) error {
	var missing []string
	for _, f := range required {
		if !rec.Has(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingFieldsError{Fields: missing}
}

// SourceName checks that name can be embedded in a file name or key prefix:
//
//   - non-empty and not only whitespace
//   - no path separators ('/' or '\')
//   - not "." or ".."
//   - no NUL or other control characters
func SourceName(name string) error {
	var errs errlist

	if strings.TrimSpace(name) == "" {
		errs.add("source name must be non-empty")
		return errs.err()
	}
	if strings.ContainsAny(name, `/\`) {
		errs.add("source name %q must not contain path separators", name)
	}
	if name == "." || name == ".." {
		errs.add("source name %q must not be '.' or '..'", name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			errs.add("source name %q must not contain control characters", name)
			break
		}
	}
	return errs.err()
}

// errlist aggregates multiple validation issues into a single error.
type errlist struct {
	msgs []string
}

func (e *errlist) add(format string, args ...any) {
	if e == nil {
		return
	}
	e.msgs = append(e.msgs, fmt.Sprintf(format, args...))
}

func (e *errlist) err() error {
	if e == nil || len(e.msgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(e.msgs, "; "))
}
