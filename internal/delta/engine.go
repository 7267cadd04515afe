package delta

import (
	"sort"

	"change-watch/internal/record"
)

// Options tunes the engine.
type Options struct {
	// UseContentHash treats two records as unchanged when both carry the
	// same non-empty content_hash, without comparing their fields.
	UseContentHash bool
}

// Engine compares record batches. It is stateless and safe for concurrent use.
type Engine struct {
	opts Options
}

// New returns an Engine configured with opts.
func New(opts Options) *Engine {
	return &Engine{opts: opts}
}

// Compare computes the change set from previous to current in O(n+m).
//
// Added keeps the order of current, Removed the order of previous, Changed
// the order of current. Field changes are sorted by field name.
// Both batches must have unique identities.
func (e *Engine) Compare(previous, current []record.Record) Result {
	prevIdx := indexByID(previous)
	currIdx := indexByID(current)

	res := Result{
		Added:   classifyAdded(prevIdx, current),
		Removed: classifyRemoved(previous, currIdx),
		Changed: e.classifyChanged(prevIdx, current),
	}
	res.Summary = summarize(len(previous), len(current), res)
	return res
}

// FirstRun returns the result for a source without a previous snapshot:
// every current record is added.
func FirstRun(current []record.Record) Result {
	res := Result{
		Added:   append(make([]record.Record, 0, len(current)), current...),
		Removed: []record.Record{},
		Changed: []ChangedRecord{},
	}
	res.Summary = summarize(0, len(current), res)
	return res
}

// FieldChanges compares two versions of a record over the union of their
// fields, excluding volatile ones, sorted by field name.
func FieldChanges(prev, curr record.Record) []FieldChange {
	names := unionFields(prev, curr)
	changes := make([]FieldChange, 0)
	for _, name := range names {
		if record.Volatile(name) {
			continue
		}
		ov, nv := prev.Get(name), curr.Get(name)
		if ov.Equal(nv) {
			continue
		}
		changes = append(changes, FieldChange{Field: name, OldValue: ov, NewValue: nv})
	}
	return changes
}

func (e *Engine) classifyChanged(prev map[string]record.Record, current []record.Record) []ChangedRecord {
	changed := make([]ChangedRecord, 0)
	for _, cr := range current {
		pr, ok := prev[cr.IdentityKey()]
		if !ok {
			continue
		}
		if e.opts.UseContentHash && sameContentHash(pr, cr) {
			continue
		}
		if fc := FieldChanges(pr, cr); len(fc) > 0 {
			changed = append(changed, ChangedRecord{Record: cr, Changes: fc})
		}
	}
	return changed
}

func sameContentHash(a, b record.Record) bool {
	ha, hb := a.ContentHash(), b.ContentHash()
	return ha != "" && ha == hb
}

func classifyAdded(prev map[string]record.Record, current []record.Record) []record.Record {
	added := make([]record.Record, 0)
	for _, cr := range current {
		if _, ok := prev[cr.IdentityKey()]; !ok {
			added = append(added, cr)
		}
	}
	return added
}

func classifyRemoved(previous []record.Record, curr map[string]record.Record) []record.Record {
	removed := make([]record.Record, 0)
	for _, pr := range previous {
		if _, ok := curr[pr.IdentityKey()]; !ok {
			removed = append(removed, pr)
		}
	}
	return removed
}

func indexByID(records []record.Record) map[string]record.Record {
	m := make(map[string]record.Record, len(records))
	for _, r := range records {
		m[r.IdentityKey()] = r
	}
	return m
}

func unionFields(a, b record.Record) []string {
	seen := make(map[string]struct{}, a.Len()+b.Len())
	names := make([]string, 0, a.Len()+b.Len())
	for _, rec := range []record.Record{a, b} {
		for _, k := range rec.Keys() {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

func summarize(prevN, currN int, res Result) Summary {
	return Summary{
		TotalPrevious: prevN,
		TotalCurrent:  currN,
		AddedCount:    len(res.Added),
		RemovedCount:  len(res.Removed),
		ChangedCount:  len(res.Changed),
	}
}
