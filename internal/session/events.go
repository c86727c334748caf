package session

import "time"

// EventType identifies the kind of trace event.
type EventType string

const (
	EventTaskSubmitted EventType = "task_submitted"
	EventStreamOpen    EventType = "stream_open"
	EventFrame         EventType = "frame"
	EventDecodeError   EventType = "decode_error"
	EventStreamClosed  EventType = "stream_closed"
	EventError         EventType = "error"
)

// Event is a single timestamped entry in a trace.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(t EventType, data map[string]any) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		Type:      t,
		Data:      data,
	}
}

// TaskSubmittedData returns event data for an accepted creation request.
func TaskSubmittedData(taskID, kind string) map[string]any {
	return map[string]any{
		"task_id": taskID,
		"kind":    kind,
	}
}

// StreamOpenData returns event data for a completed stream handshake.
func StreamOpenData(taskID, url string) map[string]any {
	return map[string]any{
		"task_id": taskID,
		"url":     url,
	}
}

// FrameData returns event data for an applied frame. percent is omitted
// when the frame carried none.
func FrameData(taskID, status string, percent *float64, line string) map[string]any {
	d := map[string]any{
		"task_id": taskID,
		"status":  status,
		"line":    line,
	}
	if percent != nil {
		d["percent"] = *percent
	}
	return d
}

// DecodeErrorData returns event data for a dropped frame.
func DecodeErrorData(taskID string, raw []byte, err error) map[string]any {
	return map[string]any{
		"task_id": taskID,
		"raw":     string(raw),
		"message": err.Error(),
	}
}

// StreamClosedData returns event data for the end of a stream.
func StreamClosedData(taskID, reason, status string, percent float64, lines int) map[string]any {
	return map[string]any{
		"task_id": taskID,
		"reason":  reason,
		"status":  status,
		"percent": percent,
		"lines":   lines,
	}
}

// ErrorData returns event data for an error.
func ErrorData(message string, details map[string]any) map[string]any {
	d := map[string]any{
		"message": message,
	}
	for k, v := range details {
		d[k] = v
	}
	return d
}
