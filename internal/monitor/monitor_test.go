package monitor

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/spboyer/taskwatch/internal/events"
	"github.com/spboyer/taskwatch/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const waitFor = 5 * time.Second

func blockUntilDone(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// scriptReads makes conn return frames in order, then behave like then.
func scriptReads(conn *MockConn, frames []string, then func(context.Context) ([]byte, error)) {
	var calls []any
	for _, f := range frames {
		calls = append(calls, conn.EXPECT().Read(gomock.Any()).Return([]byte(f), nil))
	}
	calls = append(calls, conn.EXPECT().Read(gomock.Any()).DoAndReturn(then).AnyTimes())
	gomock.InOrder(calls...)
}

func newMocks(t *testing.T) (*MockDialer, *MockConn) {
	ctrl := gomock.NewController(t)
	return NewMockDialer(ctrl), NewMockConn(ctrl)
}

type recordingTrace struct {
	mu     sync.Mutex
	events []session.Event
}

func (r *recordingTrace) Log(ev session.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingTrace) Close() error { return nil }

func (r *recordingTrace) types() []session.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []session.EventType
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func runAsync(ctx context.Context, m *Monitor) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- m.Run(ctx) }()
	return errc
}

func waitErr(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestNewRejectsEmptyTaskID(t *testing.T) {
	dialer, _ := newMocks(t)
	_, err := New("", dialer)
	assert.ErrorIs(t, err, ErrEmptyTaskID)
}

func TestMonitorCompletes(t *testing.T) {
	dialer, conn := newMocks(t)
	trace := &recordingTrace{}

	dialer.EXPECT().Dial(gomock.Any(), "task-1").Return(conn, nil)
	scriptReads(conn, []string{
		`{"status":"queued"}`,
		`{"status":"processing","detail":{"percent":10,"message":"Downloading"}}`,
		`{"status":"processing","detail":{"percent":10,"message":"Downloading"}}`,
		`{"status":"completed","result":{"csv_filename":"a.csv"}}`,
	}, blockUntilDone)
	conn.EXPECT().Close().Return(nil)

	var mu sync.Mutex
	var seen []Connection
	m, err := New("task-1", dialer, WithTrace(trace), WithOnChange(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s.Connection)
	}))
	require.NoError(t, err)
	assert.Equal(t, Connecting, m.Snapshot().Connection)

	require.NoError(t, m.Run(context.Background()))

	s := m.Snapshot()
	assert.Equal(t, Closed, s.Connection)
	assert.Equal(t, events.StatusCompleted, s.Status)
	assert.Equal(t, 100.0, s.Percent)
	assert.Equal(t, []string{LineConnected, "Status update: queued", "Downloading", LineCompleted}, s.Transcript)
	require.NotNil(t, s.Result)
	assert.Equal(t, "a.csv", s.Result.CSVFilename)
	assert.Equal(t, ReasonCompleted, m.Reason())
	assert.NotContains(t, s.Transcript, LineClosed)

	select {
	case <-m.Done():
	default:
		t.Fatal("Done should be closed")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1], "connection state went backwards")
	}
	assert.Equal(t, Closed, seen[len(seen)-1])

	assert.Equal(t, []session.EventType{
		session.EventStreamOpen,
		session.EventFrame, session.EventFrame, session.EventFrame, session.EventFrame,
		session.EventStreamClosed,
	}, trace.types())
}

func TestMonitorErrorKeepsStreamOpen(t *testing.T) {
	dialer, conn := newMocks(t)

	dialer.EXPECT().Dial(gomock.Any(), "task-2").Return(conn, nil)
	scriptReads(conn, []string{
		`{"status":"processing","detail":{"percent":40}}`,
		`{"status":"error","message":"Audio folder not found"}`,
	}, blockUntilDone)
	conn.EXPECT().Close().Return(nil)

	failed := make(chan State, 1)
	m, err := New("task-2", dialer, WithOnChange(func(s State) {
		if s.Status == events.StatusError && s.Connection == Open {
			select {
			case failed <- s:
			default:
			}
		}
	}))
	require.NoError(t, err)

	errc := runAsync(context.Background(), m)

	var s State
	select {
	case s = <-failed:
	case <-time.After(waitFor):
		t.Fatal("error frame was not applied")
	}
	assert.Equal(t, Open, s.Connection)
	assert.Equal(t, 40.0, s.Percent)
	assert.Equal(t, "Error: Audio folder not found", s.Transcript[len(s.Transcript)-1])

	m.Close()
	require.NoError(t, waitErr(t, errc))

	s = m.Snapshot()
	assert.Equal(t, Closed, s.Connection)
	assert.Equal(t, events.StatusError, s.Status)
	assert.Equal(t, LineClosed, s.Transcript[len(s.Transcript)-1])
	assert.Equal(t, ReasonTeardown, m.Reason())
}

func TestMonitorCloseOnError(t *testing.T) {
	dialer, conn := newMocks(t)

	dialer.EXPECT().Dial(gomock.Any(), "task-3").Return(conn, nil)
	scriptReads(conn, []string{`{"status":"error","message":"boom"}`}, blockUntilDone)
	conn.EXPECT().Close().Return(nil)

	m, err := New("task-3", dialer, WithCloseOnError(true))
	require.NoError(t, err)

	require.NoError(t, m.Run(context.Background()))

	s := m.Snapshot()
	assert.Equal(t, Closed, s.Connection)
	assert.Equal(t, events.StatusError, s.Status)
	assert.Equal(t, []string{LineConnected, "Error: boom", LineClosed}, s.Transcript)
	assert.Equal(t, ReasonError, m.Reason())
}

func TestMonitorStreamDropped(t *testing.T) {
	dialer, conn := newMocks(t)

	dialer.EXPECT().Dial(gomock.Any(), "task-4").Return(conn, nil)
	scriptReads(conn, []string{`{"status":"processing","detail":{"percent":55,"message":"Splitting"}}`},
		func(context.Context) ([]byte, error) { return nil, io.EOF })
	conn.EXPECT().Close().Return(nil)

	m, err := New("task-4", dialer)
	require.NoError(t, err)

	err = m.Run(context.Background())
	var te *TransportError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, "read", te.Op)
	assert.ErrorIs(t, err, io.EOF)

	s := m.Snapshot()
	assert.Equal(t, Closed, s.Connection)
	assert.Equal(t, "processing", s.Status, "status is left as last observed")
	assert.Equal(t, 55.0, s.Percent)
	assert.Equal(t, []string{LineConnected, "Splitting", LineClosed}, s.Transcript)
	assert.Equal(t, ReasonDropped, m.Reason())
}

func TestMonitorDialFailure(t *testing.T) {
	dialer, _ := newMocks(t)
	dialErr := errors.New("connection refused")
	dialer.EXPECT().Dial(gomock.Any(), "task-5").Return(nil, dialErr)

	m, err := New("task-5", dialer)
	require.NoError(t, err)

	err = m.Run(context.Background())
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "dial", te.Op)
	assert.ErrorIs(t, err, dialErr)

	s := m.Snapshot()
	assert.Equal(t, Closed, s.Connection)
	assert.Equal(t, StatusConnecting, s.Status)
	assert.Equal(t, []string{LineClosed}, s.Transcript)
	assert.Equal(t, ReasonDialFailed, m.Reason())
}

func TestMonitorIdleTimeout(t *testing.T) {
	dialer, conn := newMocks(t)

	dialer.EXPECT().Dial(gomock.Any(), "task-6").Return(conn, nil)
	scriptReads(conn, []string{`{"status":"queued"}`}, blockUntilDone)
	conn.EXPECT().Close().Return(nil)

	m, err := New("task-6", dialer, WithIdleTimeout(20*time.Millisecond))
	require.NoError(t, err)

	err = m.Run(context.Background())
	assert.ErrorIs(t, err, ErrIdleTimeout)

	s := m.Snapshot()
	assert.Equal(t, Closed, s.Connection)
	assert.Equal(t, events.StatusError, s.Status)
	require.Len(t, s.Transcript, 4)
	assert.Contains(t, s.Transcript[2], "no status update received within 20ms")
	assert.Equal(t, LineClosed, s.Transcript[3])
	assert.Equal(t, ReasonIdle, m.Reason())
}

func TestMonitorDropsUndecodableFrames(t *testing.T) {
	dialer, conn := newMocks(t)
	trace := &recordingTrace{}

	dialer.EXPECT().Dial(gomock.Any(), "task-7").Return(conn, nil)
	scriptReads(conn, []string{
		`{"status":"processing","detail":{"percent":25,"message":"Working"}}`,
		`{not json`,
		`{"detail":{"percent":99}}`,
		`{"status":"completed"}`,
	}, blockUntilDone)
	conn.EXPECT().Close().Return(nil)

	m, err := New("task-7", dialer, WithTrace(trace))
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background()))

	s := m.Snapshot()
	assert.Equal(t, []string{LineConnected, "Working", LineCompleted}, s.Transcript)

	var decodeErrors int
	for _, typ := range trace.types() {
		if typ == session.EventDecodeError {
			decodeErrors++
		}
	}
	assert.Equal(t, 2, decodeErrors)
}

func TestMonitorTeardownByContext(t *testing.T) {
	dialer, conn := newMocks(t)

	dialer.EXPECT().Dial(gomock.Any(), "task-8").Return(conn, nil)
	scriptReads(conn, []string{`{"status":"processing"}`}, blockUntilDone)
	conn.EXPECT().Close().Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	processing := make(chan struct{})
	var once sync.Once
	m, err := New("task-8", dialer, WithOnChange(func(s State) {
		if s.Status == "processing" {
			once.Do(func() { close(processing) })
		}
	}))
	require.NoError(t, err)

	errc := runAsync(ctx, m)
	select {
	case <-processing:
	case <-time.After(waitFor):
		t.Fatal("frame was not applied")
	}
	cancel()
	require.NoError(t, waitErr(t, errc))

	s := m.Snapshot()
	assert.Equal(t, Closed, s.Connection)
	assert.Equal(t, []string{LineConnected, "Status update: processing", LineClosed}, s.Transcript)
	assert.Equal(t, ReasonTeardown, m.Reason())
}

func TestMonitorCloseBeforeRun(t *testing.T) {
	dialer, _ := newMocks(t)

	m, err := New("task-9", dialer)
	require.NoError(t, err)

	m.Close()
	m.Close()
	require.NoError(t, m.Run(context.Background()))

	s := m.Snapshot()
	assert.Equal(t, Closed, s.Connection)
	assert.Equal(t, []string{LineClosed}, s.Transcript)
}

func TestMonitorRunOnce(t *testing.T) {
	dialer, _ := newMocks(t)
	dialer.EXPECT().Dial(gomock.Any(), "task-10").Return(nil, errors.New("refused"))

	m, err := New("task-10", dialer)
	require.NoError(t, err)

	require.Error(t, m.Run(context.Background()))
	assert.ErrorIs(t, m.Run(context.Background()), ErrAlreadyStarted)
}

func TestConnectionString(t *testing.T) {
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "closed", Closed.String())
}

func TestMonitorStatusConnectedOnOpen(t *testing.T) {
	dialer, conn := newMocks(t)

	dialer.EXPECT().Dial(gomock.Any(), "task-open").Return(conn, nil)
	scriptReads(conn, nil, blockUntilDone)
	conn.EXPECT().Close().Return(nil)

	opened := make(chan State, 1)
	m, err := New("task-open", dialer, WithOnChange(func(s State) {
		if s.Connection == Open {
			select {
			case opened <- s:
			default:
			}
		}
	}))
	require.NoError(t, err)

	errc := runAsync(context.Background(), m)

	select {
	case s := <-opened:
		assert.Equal(t, StatusConnected, s.Status)
		assert.Equal(t, []string{LineConnected}, s.Transcript)
	case <-time.After(waitFor):
		t.Fatal("stream did not open")
	}

	m.Close()
	require.NoError(t, waitErr(t, errc))
}

func TestMonitorCompletesWithUnlabelledResultShapes(t *testing.T) {
	dialer, conn := newMocks(t)

	dialer.EXPECT().Dial(gomock.Any(), "task-shapes").Return(conn, nil)
	scriptReads(conn, []string{
		`{"status":"processing","detail":{"percent":30,"message":"Working"}}`,
		`{"status":"completed","result":{"csv_filename":"a.csv","message":{"text":"ok"},"audio_dir":["a","b"]}}`,
	}, blockUntilDone)
	conn.EXPECT().Close().Return(nil)

	m, err := New("task-shapes", dialer)
	require.NoError(t, err)

	require.NoError(t, m.Run(context.Background()))

	s := m.Snapshot()
	assert.Equal(t, Closed, s.Connection)
	assert.Equal(t, events.StatusCompleted, s.Status)
	assert.Equal(t, 100.0, s.Percent)
	assert.Equal(t, ReasonCompleted, m.Reason())
	assert.Equal(t, []string{LineConnected, "Working", LineCompleted}, s.Transcript)
	require.NotNil(t, s.Result)
	assert.Equal(t, "a.csv", s.Result.CSVFilename)
	assert.Empty(t, s.Result.Message)
	assert.Equal(t, map[string]any{"text": "ok"}, s.Result.Extra["message"])
	assert.Equal(t, []any{"a", "b"}, s.Result.Extra["audio_dir"])
}

func TestMonitorErrorWithNumericMessage(t *testing.T) {
	dialer, conn := newMocks(t)

	dialer.EXPECT().Dial(gomock.Any(), "task-500").Return(conn, nil)
	scriptReads(conn, []string{`{"status":"error","message":500}`}, blockUntilDone)
	conn.EXPECT().Close().Return(nil)

	m, err := New("task-500", dialer, WithCloseOnError(true))
	require.NoError(t, err)

	require.NoError(t, m.Run(context.Background()))

	s := m.Snapshot()
	assert.Equal(t, events.StatusError, s.Status)
	assert.Equal(t, []string{LineConnected, "Error: 500", LineClosed}, s.Transcript)
	assert.Equal(t, ReasonError, m.Reason())
}
