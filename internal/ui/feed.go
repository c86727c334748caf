package ui

import "github.com/spboyer/taskwatch/internal/monitor"

// Feed hands monitor snapshots to a reader without ever blocking the
// monitor. Each snapshot is complete, so a slow reader only skips
// intermediate states; the latest one is always kept.
type Feed struct {
	ch chan monitor.State
}

func NewFeed() *Feed {
	return &Feed{ch: make(chan monitor.State, 1)}
}

// Publish replaces any unread snapshot with s. It must be called from a
// single goroutine, which monitor.WithOnChange guarantees.
func (f *Feed) Publish(s monitor.State) {
	for {
		select {
		case f.ch <- s:
			return
		default:
		}
		select {
		case <-f.ch:
		default:
		}
	}
}

// C returns the channel snapshots are delivered on.
func (f *Feed) C() <-chan monitor.State {
	return f.ch
}
