package webapi

import "time"

// Task is a job accepted by the simulator.
type Task struct {
	ID      string         `json:"task_id"`
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload"`
	Created time.Time      `json:"created"`
}

// CreateResponse is returned by every task-creating endpoint.
type CreateResponse struct {
	TaskID string `json:"task_id"`
}

// Frame is one message on a task's status stream.
type Frame struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Detail  *FrameDetail   `json:"detail,omitempty"`
	Result  map[string]any `json:"result,omitempty"`
}

// FrameDetail is the progress part of a processing frame.
type FrameDetail struct {
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is returned for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
