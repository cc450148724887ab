package domain

import "time"

// Window is the target time window for a pull, in local time.
// Start and End fall on the same calendar day; End is after Start.
// Both bounds are inclusive when matching packet times.
type Window struct {
	Start time.Time
	End   time.Time
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// TimeRange is the span between the first and last packet of a capture
// file, as reported by the toolkit. Both timestamps are UTC.
type TimeRange struct {
	First time.Time
	Last  time.Time
}

// Overlaps reports whether any part of r falls inside w. Boundaries are
// inclusive on both sides: a packet exactly at w.Start or w.End counts.
func (w Window) Overlaps(r TimeRange) bool {
	return !r.First.After(w.End) && !r.Last.Before(w.Start)
}
