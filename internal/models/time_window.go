package models

import "time"

// TimeWindow is a half-open interval [Start, End)
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Valid reports whether the window is non-empty
func (w TimeWindow) Valid() bool {
	return w.Start.Before(w.End)
}

// Overlaps reports whether w and other share any instant.
// Touching endpoints do not overlap.
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return Overlaps(w.Start, w.End, other.Start, other.End)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
