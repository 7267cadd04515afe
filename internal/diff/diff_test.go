package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestField(t *testing.T) {
	old := "line one\nline two\nline three"
	new := "line one\nline 2\nline three"

	body, oversize := Field("description", old, new, DefaultOptions)
	assert.False(t, oversize)
	assert.True(t, strings.HasPrefix(body, "--- a/description\n+++ b/description\n"))
	assert.Contains(t, body, "-line two\n")
	assert.Contains(t, body, "+line 2\n")
	assert.Contains(t, body, " line one\n")
}

func TestUnified_Oversize(t *testing.T) {
	body, oversize := Unified("a", "b", strings.Repeat("x", 10), strings.Repeat("y", 10), Options{MaxBytes: 5})
	assert.True(t, oversize)
	assert.Contains(t, body, "diff omitted")
}

func TestUnified_Identical(t *testing.T) {
	body, oversize := Unified("a", "b", "same\n", "same\n", Options{})
	assert.False(t, oversize)
	assert.Empty(t, body)
}

func TestMultiline(t *testing.T) {
	assert.False(t, Multiline("single"))
	assert.False(t, Multiline("single\n"))
	assert.True(t, Multiline("a\nb"))
}

func TestField_NormalizesLineEndings(t *testing.T) {
	body, _ := Field("notes", "a\r\nb\r\n", "a\nb", DefaultOptions)
	assert.Empty(t, body)
}
