// Package monitor follows one task's status stream to its end.
//
// A Monitor owns exactly one stream connection for one task id. Frames are
// read on a background goroutine and handed over a channel to a single
// consumer loop, which is the only writer of the task's state. Readers use
// [Monitor.Snapshot] or the [WithOnChange] callback.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/spboyer/taskwatch/internal/events"
	"github.com/spboyer/taskwatch/internal/session"
	"github.com/spboyer/taskwatch/internal/stream"
)

// CloseReason records why a stream was closed.
type CloseReason string

const (
	ReasonCompleted  CloseReason = "completed"
	ReasonError      CloseReason = "error"
	ReasonTeardown   CloseReason = "teardown"
	ReasonDropped    CloseReason = "dropped"
	ReasonIdle       CloseReason = "idle"
	ReasonDialFailed CloseReason = "dial_failed"
)

var (
	ErrEmptyTaskID    = errors.New("task id is empty")
	ErrAlreadyStarted = errors.New("monitor already started")
	ErrIdleTimeout    = errors.New("no status update received")
)

// TransportError is returned by Run when the stream could not be opened or
// ended before the task completed.
type TransportError struct {
	TaskID string
	Op     string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("task %s: stream %s: %v", e.TaskID, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithOnChange registers fn to receive a snapshot after every state change.
// fn runs on the monitor's consumer loop and must not block for long.
func WithOnChange(fn func(State)) Option {
	return func(m *Monitor) { m.onChange = fn }
}

// WithCloseOnError closes the stream when the executor reports an error.
// By default the stream stays open after an error frame.
func WithCloseOnError(enabled bool) Option {
	return func(m *Monitor) { m.closeOnError = enabled }
}

// WithIdleTimeout fails the task when no frame arrives for d. Zero disables
// the watchdog, which is the default.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Monitor) { m.idleTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithTrace records lifecycle events to l. The monitor closes l after the
// stream closes.
func WithTrace(l session.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.trace = l
		}
	}
}

// WithStreamURL sets the address reported in the trace when the stream opens.
func WithStreamURL(url string) Option {
	return func(m *Monitor) { m.streamURL = url }
}

type Monitor struct {
	taskID string
	dialer stream.Dialer

	onChange     func(State)
	closeOnError bool
	idleTimeout  time.Duration
	logger       *slog.Logger
	trace        session.Logger
	streamURL    string

	mu     sync.RWMutex
	conn   Connection
	interp *Interpreter
	reason CloseReason
	cancel context.CancelFunc

	started  bool
	stopped  bool
	done     chan struct{}
	doneOnce sync.Once
}

// New creates the monitor for taskID. The stream is not opened until Run.
func New(taskID string, dialer stream.Dialer, opts ...Option) (*Monitor, error) {
	if taskID == "" {
		return nil, ErrEmptyTaskID
	}
	if dialer == nil {
		return nil, errors.New("monitor: nil dialer")
	}

	m := &Monitor{
		taskID: taskID,
		dialer: dialer,
		logger: slog.Default(),
		trace:  session.NopLogger{},
		conn:   Connecting,
		interp: NewInterpreter(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("task_id", taskID)
	return m, nil
}

func (m *Monitor) TaskID() string { return m.taskID }

// Done is closed once the connection reaches Closed.
func (m *Monitor) Done() <-chan struct{} { return m.done }

// Reason returns why the stream closed, or "" while it is still live.
func (m *Monitor) Reason() CloseReason {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reason
}

// Snapshot returns a copy of the current state.
func (m *Monitor) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Monitor) snapshotLocked() State {
	return State{
		TaskID:     m.taskID,
		Connection: m.conn,
		Status:     m.interp.Status(),
		Percent:    m.interp.Percent(),
		Transcript: m.interp.Lines(),
		Result:     m.interp.Result(),
	}
}

// Close tears the monitor down. It is safe to call at any time and more than
// once; it does not wait for Run to return (use Done for that).
func (m *Monitor) Close() {
	m.mu.Lock()
	if m.cancel != nil {
		cancel := m.cancel
		m.mu.Unlock()
		cancel()
		return
	}
	m.stopped = true
	started := m.started
	m.mu.Unlock()

	if !started {
		m.finish(ReasonTeardown)
	}
}

// Run opens the stream and processes frames until the task completes, the
// stream ends, or ctx is cancelled. Cancelling ctx or calling Close counts
// as teardown and returns nil. A failed handshake, a dropped stream and an
// idle timeout return a *TransportError. Run may only be called once.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()
	defer cancel()

	conn, err := m.dialer.Dial(ctx, m.taskID)
	if err != nil {
		if ctx.Err() != nil {
			m.finish(ReasonTeardown)
			return nil
		}
		m.logger.Error("opening status stream", "error", err)
		m.traceEvent(session.EventError, session.ErrorData(err.Error(), map[string]any{"task_id": m.taskID}))
		m.finish(ReasonDialFailed)
		return &TransportError{TaskID: m.taskID, Op: "dial", Err: err}
	}
	defer conn.Close() //nolint:errcheck

	m.update(func() {
		m.conn = Open
		m.interp.Opened()
	})
	m.logger.Debug("status stream open")
	m.traceEvent(session.EventStreamOpen, session.StreamOpenData(m.taskID, m.streamURL))

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			raw, err := conn.Read(ctx)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- raw:
			case <-ctx.Done():
				return
			}
		}
	}()

	var idle <-chan time.Time
	var timer *time.Timer
	if m.idleTimeout > 0 {
		timer = time.NewTimer(m.idleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case raw := <-frames:
			if timer != nil {
				timer.Reset(m.idleTimeout)
			}
			switch m.handleFrame(raw) {
			case Succeeded:
				m.finish(ReasonCompleted)
				return nil
			case Failed:
				if m.closeOnError {
					m.finish(ReasonError)
					return nil
				}
			}

		case err := <-readErr:
			if ctx.Err() != nil {
				m.finish(ReasonTeardown)
				return nil
			}
			if !errors.Is(err, io.EOF) {
				m.logger.Warn("status stream dropped", "error", err)
			}
			m.finish(ReasonDropped)
			return &TransportError{TaskID: m.taskID, Op: "read", Err: err}

		case <-idle:
			msg := fmt.Sprintf("no status update received within %s", m.idleTimeout)
			m.logger.Warn("status stream idle", "timeout", m.idleTimeout)
			m.update(func() { m.interp.Fail(msg) })
			m.finish(ReasonIdle)
			return &TransportError{TaskID: m.taskID, Op: "read", Err: ErrIdleTimeout}

		case <-ctx.Done():
			m.finish(ReasonTeardown)
			return nil
		}
	}
}

func (m *Monitor) handleFrame(raw []byte) Outcome {
	var (
		ev      events.StatusEvent
		outcome Outcome
		err     error
		state   State
	)
	m.mu.Lock()
	ev, outcome, err = m.interp.Handle(raw)
	if err == nil {
		state = m.snapshotLocked()
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("dropping status frame", "error", err)
		m.traceEvent(session.EventDecodeError, session.DecodeErrorData(m.taskID, raw, err))
		return Continue
	}

	m.logger.Debug("status frame", "status", state.Status, "percent", state.Percent)
	var percent *float64
	if p, ok := ev.(events.Progress); ok && p.Detail != nil {
		percent = p.Detail.Percent
	}
	var line string
	if n := len(state.Transcript); n > 0 {
		line = state.Transcript[n-1]
	}
	m.traceEvent(session.EventFrame, session.FrameData(m.taskID, state.Status, percent, line))
	m.notify(state)
	return outcome
}

// update applies fn under the lock and notifies listeners.
func (m *Monitor) update(fn func()) {
	m.mu.Lock()
	fn()
	state := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(state)
}

// finish moves the connection to Closed exactly once. Unless the task
// completed, "Connection closed." is appended.
func (m *Monitor) finish(reason CloseReason) {
	m.doneOnce.Do(func() {
		m.mu.Lock()
		m.conn = Closed
		m.reason = reason
		if m.interp.Status() != events.StatusCompleted {
			m.interp.Note(LineClosed)
		}
		state := m.snapshotLocked()
		m.mu.Unlock()

		m.logger.Debug("status stream closed", "reason", reason, "status", state.Status)
		m.traceEvent(session.EventStreamClosed, session.StreamClosedData(
			m.taskID, string(reason), state.Status, state.Percent, len(state.Transcript)))
		if err := m.trace.Close(); err != nil {
			m.logger.Warn("closing trace", "error", err)
		}
		m.notify(state)
		close(m.done)
	})
}

func (m *Monitor) notify(s State) {
	if m.onChange != nil {
		m.onChange(s)
	}
}

func (m *Monitor) traceEvent(t session.EventType, data map[string]any) {
	if err := m.trace.Log(session.NewEvent(t, data)); err != nil {
		m.logger.Debug("writing trace event", "error", err)
	}
}
