package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOverlaps(t *testing.T) {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	hm := func(h, m int) time.Time {
		return base.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
	}
	ref := TimeWindow{Start: hm(9, 0), End: hm(10, 0)}

	tests := []struct {
		name  string
		other TimeWindow
		want  bool
	}{
		{"Touching Before", TimeWindow{Start: hm(8, 0), End: hm(9, 0)}, false},
		{"Touching After", TimeWindow{Start: hm(10, 0), End: hm(11, 0)}, false},
		{"Disjoint Before", TimeWindow{Start: hm(7, 0), End: hm(8, 0)}, false},
		{"Disjoint After", TimeWindow{Start: hm(11, 0), End: hm(12, 0)}, false},
		{"Identical", ref, true},
		{"Contained", TimeWindow{Start: hm(9, 15), End: hm(9, 45)}, true},
		{"Containing", TimeWindow{Start: hm(8, 0), End: hm(11, 0)}, true},
		{"Partial Start", TimeWindow{Start: hm(8, 30), End: hm(9, 30)}, true},
		{"Partial End", TimeWindow{Start: hm(9, 59), End: hm(10, 30)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ref.Overlaps(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlaps(ref), "overlap is symmetric")
			assert.Equal(t, tt.want, Overlaps(ref.Start, ref.End, tt.other.Start, tt.other.End))
		})
	}
}

func TestTimeWindow_Valid(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	assert.True(t, TimeWindow{Start: start, End: start.Add(time.Minute)}.Valid())
	assert.False(t, TimeWindow{Start: start, End: start}.Valid(), "empty window")
	assert.False(t, TimeWindow{Start: start, End: start.Add(-time.Hour)}.Valid(), "reversed window")
}
