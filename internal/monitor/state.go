package monitor

import "github.com/spboyer/taskwatch/internal/events"

// Connection is the lifecycle of a task's status stream. It only moves
// forward: Connecting, then Open, then Closed.
type Connection int

const (
	Connecting Connection = iota
	Open
	Closed
)

func (c Connection) String() string {
	switch c {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Transcript lines written by the monitor itself.
const (
	LineConnected = "Connected to server..."
	LineCompleted = "Processing Completed!"
	LineClosed    = "Connection closed."
)

// Status of a task before its first frame.
const (
	StatusConnecting = "connecting"
	StatusConnected  = "connected"
)

// State is a point-in-time copy of everything a renderer shows for a task.
type State struct {
	TaskID     string
	Connection Connection
	Status     string
	Percent    float64
	Transcript []string
	Result     *events.Result
}

// Terminal reports whether the task reached completed or error.
func (s State) Terminal() bool {
	return s.Status == events.StatusCompleted || s.Status == events.StatusError
}
