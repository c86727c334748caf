// Package transcript holds the human-readable log rendered for a monitored task.
package transcript

import "slices"

// Log is an append-only sequence of lines. A line equal to the current last
// line is dropped, so a status repeated by consecutive frames shows up once,
// while the same text may still recur after something else was printed.
//
// Log is not safe for concurrent use; it is owned by a single monitor loop.
type Log struct {
	lines []string
}

// New returns an empty Log.
func New() *Log {
	return &Log{}
}

// Append adds line to the end of the log unless it equals the last line.
// It reports whether the line was added.
func (l *Log) Append(line string) bool {
	if n := len(l.lines); n > 0 && l.lines[n-1] == line {
		return false
	}
	l.lines = append(l.lines, line)
	return true
}

// Last returns the most recent line, if any.
func (l *Log) Last() (string, bool) {
	if len(l.lines) == 0 {
		return "", false
	}
	return l.lines[len(l.lines)-1], true
}

// Len returns the number of lines.
func (l *Log) Len() int {
	return len(l.lines)
}

// Lines returns a copy of the log contents in order.
func (l *Log) Lines() []string {
	return slices.Clone(l.lines)
}
