// Package spinner shows a one-line activity indicator while a blocking call
// such as a task submission is in flight.
package spinner

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	bubblespinner "github.com/charmbracelet/bubbles/spinner"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// style matches the live view's spinner.
var style = bubblespinner.Dot

// Start displays an animated spinner with the given message on w and
// returns a function that stops it and clears the line. Writers that are
// not terminals get nothing, so logs and pipes stay clean.
func Start(w io.Writer, message string) (stop func()) {
	if !isTerminal(w) {
		return func() {}
	}
	return start(w, message, style.FPS)
}

func start(w io.Writer, message string, interval time.Duration) (stop func()) {
	done := make(chan struct{})
	cleared := make(chan struct{})
	var stopOnce sync.Once

	frames := style.Frames
	width := 0
	for _, f := range frames {
		width = max(width, runewidth.StringWidth(f))
	}
	blank := runewidth.FillRight("", width+1+runewidth.StringWidth(message))

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		i := 0
		for {
			select {
			case <-done:
				fmt.Fprintf(w, "\r%s\r", blank) //nolint:errcheck
				close(cleared)
				return
			case <-ticker.C:
				fmt.Fprintf(w, "\r%s %s", runewidth.FillRight(frames[i%len(frames)], width), message) //nolint:errcheck
				i++
			}
		}
	}()
	return func() {
		stopOnce.Do(func() {
			close(done)
		})
		<-cleared
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
