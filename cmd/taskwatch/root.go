package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/spboyer/taskwatch/internal/projectconfig"
	"github.com/spboyer/taskwatch/internal/stream"
	"github.com/spboyer/taskwatch/internal/tasks"
)

var version = "dev"

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	debug        bool
	server       string
	insecure     bool
	trace        bool
	noTUI        bool
	closeOnError bool
	idleTimeout  time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "taskwatch",
		Short: "Taskwatch - submit executor tasks and follow their progress",
		Long: `Taskwatch submits scrape, split and transcribe jobs to a task executor and
follows each task's status stream until it completes.

Progress is shown as a live view in a terminal and as plain transcript lines
otherwise. Settings are read from .taskwatch.yaml (searched upward from the
working directory), then TASKWATCH_* environment variables, then flags.`,
		Version:      version,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flags.StringVar(&opts.server, "server", "", "Executor base URL (overrides server.url)")
	flags.BoolVar(&opts.insecure, "insecure", false, "Skip TLS certificate verification")
	flags.BoolVar(&opts.trace, "trace", false, "Record a trace file per task (overrides trace.enabled)")
	flags.BoolVar(&opts.noTUI, "no-tui", false, "Print plain transcript lines even in a terminal")
	flags.BoolVar(&opts.closeOnError, "close-on-error", false, "Close the stream when a task reports an error")
	flags.DurationVar(&opts.idleTimeout, "idle-timeout", 0, "Fail a task when no status arrives for this long (0 disables)")

	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if opts.debug {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	cmd.AddCommand(newScrapeCommand(opts))
	cmd.AddCommand(newSplitCommand(opts))
	cmd.AddCommand(newTranscribeCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newCSVsCommand(opts))
	cmd.AddCommand(newUploadCommand(opts))
	cmd.AddCommand(newNewCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newTraceCommand(opts))

	return cmd
}

func execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig resolves the project config, then .env and TASKWATCH_*
// variables, then any flags the user set.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*projectconfig.ProjectConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := projectconfig.Load(".")
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)

	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.Server.URL = opts.server
		cfg.Server.StreamURL = ""
	}
	if flags.Changed("insecure") {
		cfg.Server.InsecureSkipVerify = &opts.insecure
	}
	if flags.Changed("trace") {
		cfg.Trace.Enabled = &opts.trace
	}
	if flags.Changed("close-on-error") {
		cfg.Monitor.CloseOnError = &opts.closeOnError
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	slog.Debug("configuration loaded", "server", cfg.Server.URL, "stream", cfg.StreamBaseURL())
	return cfg, nil
}

func newClient(cfg *projectconfig.ProjectConfig) (*tasks.Client, error) {
	return tasks.NewClient(tasks.ClientConfig{
		BaseURL:            cfg.Server.URL,
		Timeout:            cfg.RequestTimeout(),
		InsecureSkipVerify: deref(cfg.Server.InsecureSkipVerify),
		Logger:             slog.Default(),
	})
}

func newDialer(cfg *projectconfig.ProjectConfig) (*stream.WebSocketDialer, error) {
	var opts []stream.DialerOption
	if deref(cfg.Server.InsecureSkipVerify) {
		opts = append(opts, stream.WithInsecureSkipVerify())
	}
	return stream.NewWebSocketDialer(cfg.StreamBaseURL(), opts...)
}

func deref(b *bool) bool {
	return b != nil && *b
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns the width of w, or 0 when w is not a terminal.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}
