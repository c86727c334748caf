package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/spboyer/taskwatch/internal/monitor"
	"github.com/spboyer/taskwatch/internal/tasks"
)

func newWatchCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <task-id>...",
		Short: "Follow tasks that were already submitted",
		Long: `Follow the status streams of one or more existing tasks.

Several ids are followed concurrently; their lines are prefixed with the
task id. The command exits once every stream has closed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			return a.follow(cmd.Context(), len(args), func(_ context.Context, s *tasks.Submitter) ([]*monitor.Monitor, error) {
				monitors := make([]*monitor.Monitor, 0, len(args))
				for _, id := range args {
					m, err := s.Watch(id)
					if err != nil {
						for _, started := range monitors {
							started.Close()
						}
						return nil, err
					}
					monitors = append(monitors, m)
				}
				return monitors, nil
			})
		},
	}

	return cmd
}
