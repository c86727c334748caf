package tasks

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spboyer/taskwatch/internal/monitor"
	"github.com/spboyer/taskwatch/internal/session"
	"github.com/spboyer/taskwatch/internal/stream"
)

// Submitter creates tasks and hands each new id to a fresh Monitor.
type Submitter struct {
	client     *Client
	dialer     stream.Dialer
	monitorOps []monitor.Option
	traceDir   string
	compress   bool
	logger     *slog.Logger
}

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter)

// WithMonitorOptions applies opts to every monitor the submitter creates.
func WithMonitorOptions(opts ...monitor.Option) SubmitterOption {
	return func(s *Submitter) { s.monitorOps = append(s.monitorOps, opts...) }
}

// WithTraceDir writes one trace file per task into dir.
func WithTraceDir(dir string, compress bool) SubmitterOption {
	return func(s *Submitter) {
		s.traceDir = dir
		s.compress = compress
	}
}

// WithSubmitterLogger sets the structured logger.
func WithSubmitterLogger(l *slog.Logger) SubmitterOption {
	return func(s *Submitter) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewSubmitter(client *Client, dialer stream.Dialer, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		client: client,
		dialer: dialer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start submits req and returns the monitor bound to the new task id. The
// monitor has not been run yet.
func (s *Submitter) Start(ctx context.Context, req Request) (*monitor.Monitor, error) {
	id, err := s.client.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.bind(id, req.Kind())
}

// Upload sends a file and returns the monitor for the task it creates.
func (s *Submitter) Upload(ctx context.Context, filename string, r io.Reader, size int64, progress UploadProgress) (*monitor.Monitor, error) {
	id, err := s.client.Upload(ctx, filename, r, size, progress)
	if err != nil {
		return nil, err
	}
	return s.bind(id, KindUpload)
}

// Watch returns a monitor for a task created elsewhere.
func (s *Submitter) Watch(taskID string) (*monitor.Monitor, error) {
	return s.bind(taskID, "")
}

func (s *Submitter) bind(taskID string, kind Kind) (*monitor.Monitor, error) {
	if taskID == "" {
		return nil, monitor.ErrEmptyTaskID
	}
	opts := append([]monitor.Option{}, s.monitorOps...)
	opts = append(opts, monitor.WithLogger(s.logger))

	if u, ok := s.dialer.(interface{ URL(string) string }); ok {
		opts = append(opts, monitor.WithStreamURL(u.URL(taskID)))
	}

	if s.traceDir != "" {
		trace, err := session.NewJSONLogger(session.DefaultLogPath(s.traceDir, taskID, s.compress))
		if err != nil {
			return nil, fmt.Errorf("opening trace for task %s: %w", taskID, err)
		}
		if kind != "" {
			trace.Log(session.NewEvent(session.EventTaskSubmitted, session.TaskSubmittedData(taskID, string(kind)))) //nolint:errcheck
		}
		s.logger.Debug("tracing task", "task_id", taskID, "path", trace.Path())
		opts = append(opts, monitor.WithTrace(trace))
	}

	return monitor.New(taskID, s.dialer, opts...)
}
