package availability

import (
	"time"

	"github.com/clinicbook/clinicbook/services/booking-service/internal/civil"
)

// Slot is one bookable start/end pair on a calendar day.
type Slot struct {
	Date  civil.Date
	Start civil.TimeOfDay
	End   civil.TimeOfDay
}

// DayInput is everything needed to compute one day's slots.
type DayInput struct {
	Date civil.Date
	// Window is the professional's schedule window for the weekday. A zero
	// (invalid) window means the day is closed.
	Window Interval
	Breaks []Interval
	// Booked holds the occupied intervals of non-cancelled appointments.
	Booked []Interval
}

// Params control slot shape and filtering across the whole range.
type Params struct {
	Duration time.Duration // slot length; must be > 0
	Buffer   time.Duration // blocks the gap immediately after each booking
	// MinAdvance drops slots starting sooner than this lead time from Now.
	MinAdvance     time.Duration
	SkipMinAdvance bool
	Now            time.Time
	Clock          *civil.Clock
}

// DaySlots computes the bookable slots for a single day.
//
// The window minus breaks and buffer-expanded bookings yields free intervals;
// each is chunked into consecutive duration-sized slots from its start. Pure:
// same inputs, same output. Callers must recompute immediately before commit;
// a displayed slot can go stale at any moment.
func DaySlots(day DayInput, p Params) []Slot {
	durMins := civil.TimeOfDay(p.Duration / time.Minute)
	if durMins <= 0 || !day.Window.Valid() {
		return nil
	}
	bufMins := civil.TimeOfDay(p.Buffer / time.Minute)

	blocked := make([]Interval, 0, len(day.Breaks)+len(day.Booked))
	blocked = append(blocked, day.Breaks...)
	for _, b := range day.Booked {
		// Buffer blocks the slot immediately following a booking, not before.
		blocked = append(blocked, Interval{Start: b.Start, End: b.End + bufMins})
	}

	var slots []Slot
	for _, free := range Subtract(day.Window, blocked) {
		for start := free.Start; start+durMins <= free.End; start += durMins {
			slots = append(slots, Slot{Date: day.Date, Start: start, End: start + durMins})
		}
	}

	if p.SkipMinAdvance || p.Clock == nil {
		return slots
	}
	cutoff := p.Now.Add(p.MinAdvance)
	kept := slots[:0]
	for _, s := range slots {
		if !p.Clock.ToInstant(s.Date, s.Start).Before(cutoff) {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// Contains reports whether candidate is one of the generated slots. The
// booking facade uses this to reject slots that went stale between display
// and submission.
func Contains(slots []Slot, candidate Slot) bool {
	for _, s := range slots {
		if s == candidate {
			return true
		}
	}
	return false
}
