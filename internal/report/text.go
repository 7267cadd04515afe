package report

import (
	"bufio"
	"fmt"
	"io"

	"change-watch/internal/delta"
	"change-watch/internal/detector"
	"change-watch/internal/diff"
	"change-watch/internal/record"
	"change-watch/internal/textutil"
)

func writeText(w io.Writer, rep *detector.Report) error {
	bw := bufio.NewWriter(w)
	s := rep.Summary

	fmt.Fprintf(bw, "Source:    %s\n", rep.Source)
	fmt.Fprintf(bw, "Input:     %s\n", rep.InputPath)
	fmt.Fprintf(bw, "Started:   %s (%s)\n", rep.StartedAt.Format("2006-01-02 15:04:05 MST"), rep.Duration)
	if rep.Persisted {
		fmt.Fprintf(bw, "Snapshot:  %s\n", rep.SnapshotID)
	} else {
		fmt.Fprintf(bw, "Snapshot:  not persisted\n")
	}
	if rep.FirstRun {
		fmt.Fprintf(bw, "First run: no previous snapshot\n")
	}
	fmt.Fprintf(bw, "Records:   %d previous, %d current\n", s.TotalPrevious, s.TotalCurrent)
	fmt.Fprintf(bw, "Changes:   %d added, %d removed, %d changed\n", s.AddedCount, s.RemovedCount, s.ChangedCount)

	if n := len(rep.SkippedLines); n > 0 {
		fmt.Fprintf(bw, "\nSkipped lines (%d):\n", n)
		for _, sk := range rep.SkippedLines {
			fmt.Fprintf(bw, "  line %d: %s\n", sk.Line, sk.Reason)
		}
	}

	writeIDs(bw, "Added", "+", rep.Added)
	writeIDs(bw, "Removed", "-", rep.Removed)

	if len(rep.Changed) > 0 {
		fmt.Fprintf(bw, "\nChanged (%d):\n", len(rep.Changed))
		for _, c := range rep.Changed {
			fmt.Fprintf(bw, "  ~ %s\n", displayID(c.Record))
			for _, fc := range c.Changes {
				writeFieldChange(bw, fc)
			}
		}
	}

	if !rep.HasChanges() {
		fmt.Fprintf(bw, "\nNo changes.\n")
	}
	return bw.Flush()
}

func writeIDs(w io.Writer, title, mark string, recs []record.Record) {
	if len(recs) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s (%d):\n", title, len(recs))
	for _, r := range recs {
		fmt.Fprintf(w, "  %s %s\n", mark, displayID(r))
	}
}

func writeFieldChange(w io.Writer, fc delta.FieldChange) {
	oldS, oldIsStr := fc.OldValue.Str()
	newS, newIsStr := fc.NewValue.Str()
	if oldIsStr && newIsStr && (diff.Multiline(oldS) || diff.Multiline(newS)) {
		body, _ := diff.Field(fc.Field, oldS, newS, diff.DefaultOptions)
		fmt.Fprintf(w, "      %s:\n", fc.Field)
		io.WriteString(w, textutil.EnsureTrailingLF(textutil.Indent(body, "        ")))
		return
	}
	fmt.Fprintf(w, "      %s: %s -> %s\n", fc.Field, displayValue(fc.OldValue), displayValue(fc.NewValue))
}

// displayID prints string ids bare and anything else as JSON.
func displayID(r record.Record) string {
	if s, ok := r.ID().Str(); ok {
		return s
	}
	return r.ID().JSON()
}

func displayValue(v record.Value) string {
	if v.IsAbsent() {
		return "(absent)"
	}
	return v.JSON()
}
