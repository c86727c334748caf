// Package events decodes frames received on a task's status stream.
//
// Every frame carries a "status" discriminant and decodes into exactly one
// [StatusEvent]:
//
//	"completed"    -> TerminalSuccess
//	"error"        -> TerminalError
//	anything else  -> Progress, labelled with the raw status
package events

// Status values with special meaning on the wire.
const (
	StatusCompleted = "completed"
	StatusError     = "error"
)

// StatusEvent is one decoded frame. The concrete type is one of
// [TerminalSuccess], [TerminalError] or [Progress].
type StatusEvent interface {
	statusEvent()
}

// TerminalSuccess reports that the executor finished the task.
type TerminalSuccess struct {
	Result Result
}

// TerminalError reports that the executor gave up on the task.
type TerminalError struct {
	Message string
}

// Progress is any non-terminal status update.
type Progress struct {
	// Label is the raw status string, e.g. "queued" or "processing".
	Label  string
	Detail *Detail
}

// Detail carries the optional fields of a progress update. A nil field was
// absent (or null) in the frame.
type Detail struct {
	Percent *float64
	Message *string
}

func (TerminalSuccess) statusEvent() {}
func (TerminalError) statusEvent()   {}
func (Progress) statusEvent()        {}

// Line returns the transcript line for a progress update: the detail message
// when one was sent, otherwise a synthesized "Status update" line.
func (p Progress) Line() string {
	if p.Detail != nil && p.Detail.Message != nil {
		return *p.Detail.Message
	}
	return "Status update: " + p.Label
}
