package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spboyer/taskwatch/internal/session"
)

func newTraceCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "View and manage task traces",
		Long: `View and manage task trace files.

Traces are NDJSON files (optionally zstd-compressed) written when --trace or
trace.enabled is set. They record the submission, every frame, decode
errors and how the stream closed.`,
	}

	cmd.AddCommand(newTraceListCommand(opts))
	cmd.AddCommand(newTraceViewCommand())

	return cmd
}

func newTraceListCommand(opts *rootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded traces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				cfg, err := loadConfig(cmd, opts)
				if err != nil {
					return err
				}
				dir = cfg.Trace.Dir
			}
			absDir, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			files, err := session.ListTraces(absDir)
			if err != nil {
				return fmt.Errorf("listing traces: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "No traces found.") //nolint:errcheck
				return nil
			}

			fmt.Fprintf(out, "%-56s %-8s %s\n", "File", "Events", "Modified")                                      //nolint:errcheck
			fmt.Fprintln(out, "─────────────────────────────────────────────────────────────────────────────────") //nolint:errcheck
			for _, f := range files {
				fmt.Fprintf(out, "%-56s %-8d %s\n", f.Name, f.NumEvents, f.ModTime.Format("2006-01-02 15:04:05")) //nolint:errcheck
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory to search for traces (default trace.dir)")

	return cmd
}

func newTraceViewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view <trace-file>",
		Short: "View a task timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := session.ReadEvents(args[0])
			if err != nil {
				return fmt.Errorf("reading trace: %w", err)
			}

			session.RenderTimeline(cmd.OutOrStdout(), events)
			return nil
		},
	}

	return cmd
}
