package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess    = 0 // Every watched task completed
	ExitTaskFailed = 1 // A task ended in error or its stream dropped
	ExitError      = 2 // Usage, configuration, validation or transport error
)

// TaskFailureError indicates that the task was submitted and watched, but
// did not complete.
type TaskFailureError struct {
	TaskID  string
	Message string
}

func (e *TaskFailureError) Error() string {
	return e.Message
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var taskFailureErr *TaskFailureError
		if errors.As(err, &taskFailureErr) {
			os.Exit(ExitTaskFailed)
		}

		os.Exit(ExitError)
	}
}
