package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spboyer/taskwatch/internal/monitor"
	"github.com/spboyer/taskwatch/internal/tasks"
	"github.com/spboyer/taskwatch/internal/ui"
)

func newUploadCommand(opts *rootOptions) *cobra.Command {
	var detach bool

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file and follow the task it creates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close() //nolint:errcheck
			info, err := f.Stat()
			if err != nil {
				return err
			}
			name := filepath.Base(args[0])
			progress := uploadProgress(cmd.ErrOrStderr(), name)

			if detach {
				id, err := a.client.Upload(cmd.Context(), name, f, info.Size(), progress)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, id) //nolint:errcheck
				return nil
			}
			return a.follow(cmd.Context(), 1, single(func(ctx context.Context, s *tasks.Submitter) (*monitor.Monitor, error) {
				return s.Upload(ctx, name, f, info.Size(), progress)
			}))
		},
	}

	addDetachFlag(cmd, &detach)

	return cmd
}

// uploadProgress reports whole-percent steps on w.
func uploadProgress(w io.Writer, name string) tasks.UploadProgress {
	last := -1
	return func(sent, total int64) {
		if total <= 0 {
			return
		}
		pct := int(sent * 100 / total)
		if pct == last {
			return
		}
		last = pct
		fmt.Fprintf(w, "\rUploading %s: %s", name, ui.FormatPercent(float64(pct))) //nolint:errcheck
		if sent >= total {
			fmt.Fprintln(w) //nolint:errcheck
		}
	}
}
