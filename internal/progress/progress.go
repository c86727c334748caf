// Package progress holds the percentage shown for a monitored task.
package progress

// Complete is the value a tracker reports once the task has succeeded.
const Complete = 100

// Tracker is a single display percentage. Values are taken as reported by
// the executor: nothing is clamped and a lower value may follow a higher one.
type Tracker struct {
	percent float64
}

// Percent returns the current value. A new Tracker reports 0.
func (t *Tracker) Percent() float64 {
	return t.percent
}

// Set records the most recent reported percentage.
func (t *Tracker) Set(percent float64) {
	t.percent = percent
}

// MarkComplete forces the value to [Complete].
func (t *Tracker) MarkComplete() {
	t.percent = Complete
}
