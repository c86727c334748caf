// Package ui renders monitor state, either as plain lines for logs and
// pipes or as a live terminal view.
package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"

	"github.com/spboyer/taskwatch/internal/events"
	"github.com/spboyer/taskwatch/internal/monitor"
)

// Printer writes transcript lines as they appear. It is safe to share
// between monitors; lines can be prefixed with the task id.
type Printer struct {
	w      io.Writer
	prefix bool

	mu      sync.Mutex
	printed map[string]int
}

func NewPrinter(w io.Writer, prefixTaskID bool) *Printer {
	return &Printer{
		w:       w,
		prefix:  prefixTaskID,
		printed: make(map[string]int),
	}
}

// Update prints the transcript lines of s not yet printed for its task.
//
//nolint:errcheck // display-only writes
func (p *Printer) Update(s monitor.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.printed[s.TaskID]
	for _, line := range s.Transcript[min(n, len(s.Transcript)):] {
		fmt.Fprintf(p.w, "%s> %s\n", p.tag(s.TaskID), line)
	}
	p.printed[s.TaskID] = max(n, len(s.Transcript))
}

// Summary prints the final status, progress and result of a task.
//
//nolint:errcheck // display-only writes
func (p *Printer) Summary(s monitor.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tag := p.tag(s.TaskID)
	fmt.Fprintf(p.w, "%sStatus: %s  Progress: %s\n", tag, s.Status, FormatPercent(s.Percent))
	if s.Result != nil {
		for _, line := range ResultLines(*s.Result) {
			fmt.Fprintf(p.w, "%s  %s\n", tag, line)
		}
	}
}

func (p *Printer) tag(taskID string) string {
	if !p.prefix {
		return ""
	}
	return "[" + taskID + "] "
}

// ResultLines lays out the present result fields with aligned labels.
func ResultLines(r events.Result) []string {
	fields := r.Fields()
	width := 0
	for _, f := range fields {
		width = max(width, runewidth.StringWidth(f.Label))
	}

	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		lines = append(lines, runewidth.FillRight(f.Label+":", width+1)+" "+f.Value)
	}
	return lines
}

// FormatPercent renders a progress value without trailing zeros.
func FormatPercent(p float64) string {
	s := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.1f", p), "0"), ".")
	return s + "%"
}
