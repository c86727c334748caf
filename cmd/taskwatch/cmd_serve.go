package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/spboyer/taskwatch/internal/webserver"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		port     int
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local executor simulator",
		Long: `Run a local executor that accepts the same requests as the real one and
streams scripted status frames for every task.

Point the other commands at it with --server http://127.0.0.1:<port>.
Tasks created with "simulate_error": true in their payload end in an error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("port") {
				port = cfg.Serve.Port
			}
			if !cmd.Flags().Changed("interval") {
				interval = cfg.ServeInterval()
			}

			srv := webserver.New(webserver.Config{
				Port:     port,
				Interval: interval,
				Logger:   slog.Default(),
			})
			fmt.Fprintf(cmd.ErrOrStderr(), "Executor simulator listening on http://127.0.0.1:%d\n", port) //nolint:errcheck
			return srv.ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8000, "Port to listen on")
	cmd.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "Delay between status frames")

	return cmd
}
