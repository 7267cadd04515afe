// Package delta defines the change set between two record batches and the
// engine that computes it.
package delta

import (
	"bytes"
	"encoding/json"

	"change-watch/internal/record"
)

// Summary carries the headline numbers of a comparison.
type Summary struct {
	TotalPrevious int `json:"total_previous" yaml:"total_previous"`
	TotalCurrent  int `json:"total_current" yaml:"total_current"`
	AddedCount    int `json:"added_count" yaml:"added_count"`
	RemovedCount  int `json:"removed_count" yaml:"removed_count"`
	ChangedCount  int `json:"changed_count" yaml:"changed_count"`
}

// Counts is the subset of a summary that notifications care about.
type Counts struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Changed int `json:"changed"`
}

// Total returns the number of changed identities.
func (c Counts) Total() int { return c.Added + c.Removed + c.Changed }

// FieldChange describes one differing field of a record present on both
// sides. An Absent side means the field appeared or disappeared.
type FieldChange struct {
	Field    string
	OldValue record.Value
	NewValue record.Value
}

// MarshalJSON omits an absent side; a null side is written as null.
func (c FieldChange) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"field":`)
	name, err := json.Marshal(c.Field)
	if err != nil {
		return nil, err
	}
	buf.Write(name)
	for _, side := range []struct {
		key string
		val record.Value
	}{{"old_value", c.OldValue}, {"new_value", c.NewValue}} {
		if side.val.IsAbsent() {
			continue
		}
		raw, err := side.val.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.WriteString(`,"` + side.key + `":`)
		buf.Write(raw)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ChangedRecord is the current version of a record together with the list of
// fields that differ from its previous version.
type ChangedRecord struct {
	Record  record.Record
	Changes []FieldChange
}

// MarshalJSON writes the record's own fields followed by "changes". A
// record field called "changes" is replaced by the list.
func (c ChangedRecord) MarshalJSON() ([]byte, error) {
	changes := c.Changes
	if changes == nil {
		changes = []FieldChange{}
	}
	raw, err := json.Marshal(changes)
	if err != nil {
		return nil, err
	}
	return c.Record.AppendJSON(record.Member{Key: "changes", Raw: raw})
}

// Result is the outcome of comparing a previous and a current batch.
//
// Every identity of the union of both sides lands in exactly one of Added,
// Removed, Changed, or none of them (unchanged).
type Result struct {
	Added   []record.Record `json:"added"`
	Removed []record.Record `json:"removed"`
	Changed []ChangedRecord `json:"changed"`
	Summary Summary         `json:"summary"`
}

// HasChanges reports whether anything was added, removed or changed.
func (r Result) HasChanges() bool {
	return r.Counts().Total() > 0
}

// Counts returns the per-kind counts.
func (r Result) Counts() Counts {
	return Counts{
		Added:   r.Summary.AddedCount,
		Removed: r.Summary.RemovedCount,
		Changed: r.Summary.ChangedCount,
	}
}
