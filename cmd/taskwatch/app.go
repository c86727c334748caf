package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/spboyer/taskwatch/internal/events"
	"github.com/spboyer/taskwatch/internal/monitor"
	"github.com/spboyer/taskwatch/internal/projectconfig"
	"github.com/spboyer/taskwatch/internal/spinner"
	"github.com/spboyer/taskwatch/internal/stream"
	"github.com/spboyer/taskwatch/internal/tasks"
	"github.com/spboyer/taskwatch/internal/ui"
)

// app carries what a command needs to submit and follow tasks.
type app struct {
	cfg    *projectconfig.ProjectConfig
	client *tasks.Client
	dialer *stream.WebSocketDialer
	logger *slog.Logger

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	tui bool
	// closeOnError is nil when neither config nor flags set it.
	closeOnError *bool
	idleTimeout  time.Duration
}

func newApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	dialer, err := newDialer(cfg)
	if err != nil {
		return nil, err
	}

	idle := cfg.IdleTimeout()
	if cmd.Flags().Changed("idle-timeout") {
		if opts.idleTimeout < 0 {
			return nil, errors.New("--idle-timeout must not be negative")
		}
		idle = opts.idleTimeout
	}

	return &app{
		cfg:          cfg,
		client:       client,
		dialer:       dialer,
		logger:       slog.Default(),
		in:           cmd.InOrStdin(),
		out:          cmd.OutOrStdout(),
		errOut:       cmd.ErrOrStderr(),
		tui:          !opts.noTUI && isTerminal(cmd.InOrStdin()) && isTerminal(cmd.OutOrStdout()),
		closeOnError: cfg.Monitor.CloseOnError,
		idleTimeout:  idle,
	}, nil
}

// closeOnErrorFor resolves close-on-error for a renderer. An explicit
// setting always wins; otherwise only plain output closes, since nobody is
// there to dismiss a failed task.
func (a *app) closeOnErrorFor(live bool) bool {
	if a.closeOnError != nil {
		return *a.closeOnError
	}
	return !live
}

func (a *app) submitter(live bool, extra ...monitor.Option) *tasks.Submitter {
	opts := []monitor.Option{
		monitor.WithCloseOnError(a.closeOnErrorFor(live)),
		monitor.WithIdleTimeout(a.idleTimeout),
	}
	opts = append(opts, extra...)

	subOpts := []tasks.SubmitterOption{
		tasks.WithMonitorOptions(opts...),
		tasks.WithSubmitterLogger(a.logger),
	}
	if deref(a.cfg.Trace.Enabled) {
		subOpts = append(subOpts, tasks.WithTraceDir(a.cfg.Trace.Dir, deref(a.cfg.Trace.Compress)))
	}
	return tasks.NewSubmitter(a.client, a.dialer, subOpts...)
}

// startFunc creates the monitors to follow using s.
type startFunc func(ctx context.Context, s *tasks.Submitter) ([]*monitor.Monitor, error)

// follow creates monitors with start and renders them until every stream
// closes. A single task in a terminal gets the live view; anything else is
// printed line by line.
func (a *app) follow(ctx context.Context, n int, start startFunc) error {
	if a.tui && n == 1 {
		return a.followLive(ctx, start)
	}
	return a.followPlain(ctx, n, start)
}

func (a *app) followPlain(ctx context.Context, n int, start startFunc) error {
	printer := ui.NewPrinter(a.out, n > 1)
	s := a.submitter(false, monitor.WithOnChange(printer.Update))

	monitors, err := start(ctx, s)
	if err != nil {
		return err
	}

	results := make([]error, len(monitors))
	var g errgroup.Group
	for i, m := range monitors {
		g.Go(func() error {
			runErr := m.Run(ctx)
			printer.Summary(m.Snapshot())
			results[i] = outcome(m, runErr)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(results...)
}

func (a *app) followLive(ctx context.Context, start startFunc) error {
	feed := ui.NewFeed()
	s := a.submitter(true, monitor.WithOnChange(feed.Publish))

	monitors, err := start(ctx, s)
	if err != nil {
		return err
	}
	m := monitors[0]

	runErr := make(chan error, 1)
	go func() { runErr <- m.Run(ctx) }()

	model := ui.NewModel(m.Snapshot(), feed.C(), m.Close)
	_, progErr := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithInput(a.in),
		tea.WithOutput(a.out),
	).Run()

	m.Close()
	err = outcome(m, <-runErr)
	if progErr != nil && !errors.Is(progErr, tea.ErrProgramKilled) {
		return errors.Join(fmt.Errorf("live view: %w", progErr), err)
	}
	return err
}

// outcome maps how a monitor ended to the command's error. Transport
// failures before the stream opened are plain errors; a task that failed
// or lost its stream is a TaskFailureError. Teardown by the user is not
// an error unless the task had already failed.
func outcome(m *monitor.Monitor, runErr error) error {
	s := m.Snapshot()
	switch {
	case m.Reason() == monitor.ReasonDialFailed:
		return runErr
	case s.Status == events.StatusError:
		return &TaskFailureError{TaskID: s.TaskID, Message: fmt.Sprintf("task %s failed: %s", s.TaskID, lastLine(s))}
	case runErr != nil:
		return &TaskFailureError{TaskID: s.TaskID, Message: runErr.Error()}
	}
	return nil
}

func lastLine(s monitor.State) string {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if l := s.Transcript[i]; l != monitor.LineClosed {
			return l
		}
	}
	return s.Status
}

// single adapts a one-monitor constructor to a startFunc.
func single(fn func(ctx context.Context, s *tasks.Submitter) (*monitor.Monitor, error)) startFunc {
	return func(ctx context.Context, s *tasks.Submitter) ([]*monitor.Monitor, error) {
		m, err := fn(ctx, s)
		if err != nil {
			return nil, err
		}
		return []*monitor.Monitor{m}, nil
	}
}

// submit either prints the new task id (detach) or follows the task.
func (a *app) submit(ctx context.Context, req tasks.Request, detach bool) error {
	message := fmt.Sprintf("Submitting %s task...", req.Kind())
	if detach {
		stop := spinner.Start(a.errOut, message)
		id, err := a.client.Submit(ctx, req)
		stop()
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, id) //nolint:errcheck
		return nil
	}
	return a.follow(ctx, 1, single(func(ctx context.Context, s *tasks.Submitter) (*monitor.Monitor, error) {
		stop := spinner.Start(a.errOut, message)
		defer stop()
		return s.Start(ctx, req)
	}))
}
