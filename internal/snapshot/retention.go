package snapshot

import (
	"time"
)

// DefaultMaxHistoryDays is the retention window used when none is configured.
const DefaultMaxHistoryDays = 30

// Retention decides which snapshots of a source are garbage.
type Retention struct {
	// MaxAge removes snapshots whose modification time is at or before
	// now-MaxAge. Zero expires everything but the kept ones.
	MaxAge time.Duration
	// MinKeep is the number of most recent snapshots that are always kept,
	// whatever their age. Values below 1 are treated as 1.
	MinKeep int
}

// RetentionDays builds a Retention from a day count.
func RetentionDays(days, minKeep int) Retention {
	if days < 0 {
		days = 0
	}
	return Retention{MaxAge: time.Duration(days) * 24 * time.Hour, MinKeep: minKeep}
}

// Expired returns the snapshots to delete. infos may be in any order.
func (r Retention) Expired(infos []Info, now time.Time) []Info {
	keep := r.MinKeep
	if keep < 1 {
		keep = 1
	}
	if len(infos) <= keep {
		return nil
	}
	sorted := append([]Info(nil), infos...)
	sortNewestFirst(sorted)

	cutoff := now.Add(-r.MaxAge)
	var out []Info
	for _, info := range sorted[keep:] {
		if !info.ModTime.After(cutoff) {
			out = append(out, info)
		}
	}
	return out
}
