package notify

import (
	"fmt"
	"strings"
	"time"

	"change-watch/internal/delta"
)

const timeLayout = "2006-01-02 15:04"

// Formatter renders plain, factual notification text.
type Formatter struct {
	now func() time.Time
}

// NewFormatter returns a Formatter using the wall clock.
func NewFormatter() *Formatter {
	return &Formatter{now: time.Now}
}

// ChangeMessage describes the changes of one source. It returns "" when all
// counts are zero: nothing is worth sending.
func (f *Formatter) ChangeMessage(counts delta.Counts, source string) string {
	if counts.Total() == 0 {
		return ""
	}
	lines := []string{"Changes detected", "", "Source: " + source}
	if counts.Added > 0 {
		lines = append(lines, fmt.Sprintf("Added: %d", counts.Added))
	}
	if counts.Changed > 0 {
		lines = append(lines, fmt.Sprintf("Changed: %d", counts.Changed))
	}
	if counts.Removed > 0 {
		lines = append(lines, fmt.Sprintf("Removed: %d", counts.Removed))
	}
	lines = append(lines, "Time: "+f.now().Format(timeLayout))
	return strings.Join(lines, "\n")
}

// ErrorMessage describes a failure. source may be empty.
func (f *Formatter) ErrorMessage(errorType, message, source string) string {
	lines := []string{"Error detected", ""}
	if source != "" {
		lines = append(lines, "Source: "+source)
	}
	lines = append(lines,
		"Type: "+errorType,
		"Detail: "+message,
		"Time: "+f.now().Format(timeLayout))
	return strings.Join(lines, "\n")
}
