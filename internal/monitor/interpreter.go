package monitor

import (
	"github.com/spboyer/taskwatch/internal/events"
	"github.com/spboyer/taskwatch/internal/progress"
	"github.com/spboyer/taskwatch/internal/transcript"
)

// Outcome tells the connection manager what an applied event means for the
// stream.
type Outcome int

const (
	// Continue keeps reading.
	Continue Outcome = iota
	// Succeeded means the task completed and the stream must close.
	Succeeded
	// Failed means the executor reported an error.
	Failed
)

// Interpreter applies decoded status events to a task's status, progress and
// transcript. It is not safe for concurrent use; Monitor serializes access.
type Interpreter struct {
	status   string
	progress progress.Tracker
	log      *transcript.Log
	result   *events.Result
}

func NewInterpreter() *Interpreter {
	return &Interpreter{
		status: StatusConnecting,
		log:    transcript.New(),
	}
}

// Handle decodes raw and applies it. A frame that fails to decode returns
// the *events.DecodeError and leaves the interpreter untouched.
func (in *Interpreter) Handle(raw []byte) (events.StatusEvent, Outcome, error) {
	ev, err := events.Decode(raw)
	if err != nil {
		return nil, Continue, err
	}
	return ev, in.Apply(ev), nil
}

// Apply performs every mutation for one event.
func (in *Interpreter) Apply(ev events.StatusEvent) Outcome {
	switch e := ev.(type) {
	case events.TerminalSuccess:
		in.status = events.StatusCompleted
		in.progress.MarkComplete()
		res := e.Result
		in.result = &res
		in.log.Append(LineCompleted)
		return Succeeded

	case events.TerminalError:
		in.status = events.StatusError
		in.log.Append("Error: " + e.Message)
		return Failed

	case events.Progress:
		in.status = e.Label
		if e.Detail != nil && e.Detail.Percent != nil {
			in.progress.Set(*e.Detail.Percent)
		}
		in.log.Append(e.Line())
	}
	return Continue
}

// Opened records that the stream is open. The status only moves to
// connected if no frame has arrived yet.
func (in *Interpreter) Opened() {
	if in.status == StatusConnecting {
		in.status = StatusConnected
	}
	in.log.Append(LineConnected)
}

// Note appends a line written by the connection manager rather than the
// executor. It goes through the same duplicate suppression.
func (in *Interpreter) Note(line string) {
	in.log.Append(line)
}

// Fail marks the task as errored without a frame from the executor.
func (in *Interpreter) Fail(message string) {
	in.status = events.StatusError
	in.log.Append("Error: " + message)
}

func (in *Interpreter) Status() string { return in.status }

func (in *Interpreter) Percent() float64 { return in.progress.Percent() }

func (in *Interpreter) Lines() []string { return in.log.Lines() }

func (in *Interpreter) Result() *events.Result {
	if in.result == nil {
		return nil
	}
	r := *in.result
	return &r
}
