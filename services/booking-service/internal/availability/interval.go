package availability

import (
	"sort"

	"github.com/clinicbook/clinicbook/services/booking-service/internal/civil"
)

// Interval is a half-open [Start,End) range of minutes within one day.
type Interval struct {
	Start civil.TimeOfDay
	End   civil.TimeOfDay
}

func (iv Interval) Valid() bool { return iv.End > iv.Start }

// Overlaps reports whether two half-open intervals intersect. Touching
// endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd civil.TimeOfDay) bool {
	return aStart < bEnd && aEnd > bStart
}

// Merge coalesces overlapping and adjacent intervals into a sorted minimal set.
func Merge(ivs []Interval) []Interval {
	var in []Interval
	for _, iv := range ivs {
		if iv.Valid() {
			in = append(in, iv)
		}
	}
	if len(in) == 0 {
		return nil
	}
	sort.Slice(in, func(i, j int) bool { return in[i].Start < in[j].Start })

	out := []Interval{in[0]}
	for _, iv := range in[1:] {
		last := &out[len(out)-1]
		if iv.Start <= last.End {
			if iv.End > last.End {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Subtract returns the ordered parts of window not covered by any blocked
// interval. Blocked intervals are merged first, so overlapping bookings and
// breaks cannot double-count.
func Subtract(window Interval, blocked []Interval) []Interval {
	if !window.Valid() {
		return nil
	}

	var free []Interval
	cursor := window.Start
	for _, b := range Merge(blocked) {
		if b.End <= cursor || b.Start >= window.End {
			continue
		}
		if b.Start > cursor {
			free = append(free, Interval{Start: cursor, End: b.Start})
		}
		if b.End > cursor {
			cursor = b.End
		}
	}
	if cursor < window.End {
		free = append(free, Interval{Start: cursor, End: window.End})
	}
	return free
}
