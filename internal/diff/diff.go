// Package diff renders unified diffs of changed text fields. It uses
// github.com/pmezard/go-difflib/difflib to produce classic unified patches
// (---/+++ headers, @@ hunks, lines prefixed with ' ', '-', '+').
package diff

import (
	"fmt"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"

	"change-watch/internal/textutil"
)

// Options controls patch generation behavior.
type Options struct {
	// MaxBytes is a guardrail on input size (old+new). When exceeded,
	// a minimal placeholder patch is returned and oversize=true.
	// 0 means "no limit".
	MaxBytes int

	// Context controls the number of context lines in unified hunks.
	// If 0, default to 3.
	Context int
}

// DefaultOptions suits field values shown in terminal reports.
var DefaultOptions = Options{MaxBytes: 64 << 10, Context: 3}

// Unified produces a unified patch for a↦b.
// Returns the patch body and a flag indicating it was omitted due to size.
func Unified(aName, bName, a, b string, opt Options) (body string, oversize bool) {
	if opt.MaxBytes > 0 && len(a)+len(b) > opt.MaxBytes {
		return omitted(aName, bName), true
	}
	ctx := opt.Context
	if ctx <= 0 {
		ctx = 3
	}

	u := difflib.UnifiedDiff{
		A:        splitLinesKeepNL(a),
		B:        splitLinesKeepNL(b),
		FromFile: aName,
		ToFile:   bName,
		Context:  ctx,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return omitted(aName, bName), false
	}
	return s, false
}

// Field diffs two versions of a record field. The headers name the field
// as "a/<field>" and "b/<field>". Line endings are normalized first.
func Field(field, old, new string, opt Options) (string, bool) {
	return Unified("a/"+field, "b/"+field, prepare(old), prepare(new), opt)
}

// Multiline reports whether s is worth a line diff rather than an inline
// old → new display.
func Multiline(s string) bool {
	return strings.Contains(strings.TrimRight(s, "\n"), "\n")
}

// splitLinesKeepNL splits into lines and keeps newline characters,
// which produces better unified hunks.
func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.SplitAfter(s, "\n")
}

// prepare keeps the last line from showing up as changed only because one
// side lacks a final newline.
func prepare(s string) string {
	return textutil.EnsureTrailingLF(textutil.NormalizeLF(s))
}

// omitted returns a compact placeholder when size limits are exceeded.
func omitted(aName, bName string) string {
	return fmt.Sprintf("--- %s\n+++ %s\n@@\n# diff omitted (oversize)\n", aName, bName)
}
