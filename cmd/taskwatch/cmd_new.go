package main

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/spboyer/taskwatch/internal/tasks"
	"github.com/spboyer/taskwatch/internal/wizard"
)

func newNewCommand(opts *rootOptions) *cobra.Command {
	var detach bool

	cmd := &cobra.Command{
		Use:   "new [scrape|split|transcribe]",
		Short: "Create a task interactively",
		Long: `Create a task with an interactive form, then follow it.

Without an argument the form starts by asking for the task kind. The split
form offers the executor's csv files as sources. When input is not a
terminal the form falls back to line-by-line prompts.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: kindNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}

			wopts := wizard.Options{
				APIKey:           os.Getenv(apiKeyEnv),
				SplitMethod:      tasks.SplittingMethod(a.cfg.Defaults.SplittingMethod),
				TranscribeMethod: tasks.TranscribeMethod(a.cfg.Defaults.TranscribeMethod),
				OutputCSV:        a.cfg.Defaults.OutputCSVName,
			}
			if len(args) == 1 {
				if !slices.Contains(kindNames(), args[0]) {
					return fmt.Errorf("unknown task kind %q", args[0])
				}
				wopts.Kind = tasks.Kind(args[0])
			}
			if wopts.Kind == "" || wopts.Kind == tasks.KindSplit {
				csvs, err := a.client.ListCSVs(cmd.Context())
				if err != nil {
					a.logger.Debug("csv listing unavailable", "error", err)
				}
				wopts.CSVs = csvs
			}

			req, err := wizard.Run(cmd.InOrStdin(), cmd.OutOrStdout(), wopts)
			if err != nil {
				return err
			}
			return a.submit(cmd.Context(), req, detach)
		},
	}

	addDetachFlag(cmd, &detach)

	return cmd
}

func kindNames() []string {
	names := make([]string, 0, len(tasks.Kinds))
	for _, k := range tasks.Kinds {
		names = append(names, string(k))
	}
	return names
}
