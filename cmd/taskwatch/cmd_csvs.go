package main

import (
	"fmt"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

func newCSVsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "csvs",
		Short: "List the csv files available on the executor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			names, err := a.client.ListCSVs(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(out, "No csv files found.") //nolint:errcheck
				return nil
			}
			for _, line := range csvLines(names, terminalWidth(out)) {
				fmt.Fprintln(out, line) //nolint:errcheck
			}
			return nil
		},
	}

	return cmd
}

// csvLines numbers names, truncating them to width columns when width > 0.
func csvLines(names []string, width int) []string {
	indexWidth := len(fmt.Sprint(len(names)))
	lines := make([]string, 0, len(names))
	for i, name := range names {
		prefix := fmt.Sprintf("%*d  ", indexWidth, i+1)
		if width > 0 {
			name = runewidth.Truncate(name, max(width-len(prefix), 1), "…")
		}
		lines = append(lines, prefix+name)
	}
	return lines
}
