package availability

import (
	"testing"
	"time"

	"github.com/clinicbook/clinicbook/services/booking-service/internal/civil"
)

func TestDaySlots_WindowWithBreak(t *testing.T) {
	// Monday 09:00-12:00, break 10:00-10:30, 30 min service, no buffer.
	day := DayInput{
		Date:   "2026-02-02",
		Window: Interval{mins(9, 0), mins(12, 0)},
		Breaks: []Interval{{mins(10, 0), mins(10, 30)}},
	}
	slots := DaySlots(day, Params{Duration: 30 * time.Minute, SkipMinAdvance: true})

	want := []Slot{
		{"2026-02-02", mins(9, 0), mins(9, 30)},
		{"2026-02-02", mins(9, 30), mins(10, 0)},
		{"2026-02-02", mins(10, 30), mins(11, 0)},
		{"2026-02-02", mins(11, 0), mins(11, 30)},
		{"2026-02-02", mins(11, 30), mins(12, 0)},
	}
	if len(slots) != len(want) {
		t.Fatalf("got %d slots, want %d: %v", len(slots), len(want), slots)
	}
	for i := range want {
		if slots[i] != want[i] {
			t.Errorf("slot[%d] = %v, want %v", i, slots[i], want[i])
		}
	}
}

func TestDaySlots_BufferBlocksAfterBooking(t *testing.T) {
	day := DayInput{
		Date:   "2026-02-02",
		Window: Interval{mins(9, 0), mins(11, 0)},
		Booked: []Interval{{mins(9, 0), mins(9, 30)}},
	}
	slots := DaySlots(day, Params{Duration: 30 * time.Minute, Buffer: 15 * time.Minute, SkipMinAdvance: true})

	// Free time resumes at 09:45; chunking runs from there.
	if len(slots) == 0 {
		t.Fatal("expected slots after buffered booking")
	}
	if slots[0].Start != mins(9, 45) {
		t.Fatalf("first slot starts %s, want 09:45", slots[0].Start)
	}
	for _, s := range slots {
		if Overlaps(s.Start, s.End, mins(9, 0), mins(9, 45)) {
			t.Fatalf("slot %v overlaps booking+buffer", s)
		}
	}
}

func TestDaySlots_ClosedDay(t *testing.T) {
	slots := DaySlots(DayInput{Date: "2026-02-01"}, Params{Duration: 30 * time.Minute, SkipMinAdvance: true})
	if slots != nil {
		t.Fatalf("closed day produced slots: %v", slots)
	}
}

func TestDaySlots_RemainderShorterThanDuration(t *testing.T) {
	day := DayInput{
		Date:   "2026-02-02",
		Window: Interval{mins(9, 0), mins(9, 50)},
	}
	slots := DaySlots(day, Params{Duration: 30 * time.Minute, SkipMinAdvance: true})
	if len(slots) != 1 {
		t.Fatalf("got %d slots, want 1 (09:20-09:50 remainder dropped)", len(slots))
	}
}

func TestDaySlots_MinAdvanceFilter(t *testing.T) {
	clock := civil.NewClock(time.UTC)
	now := clock.ToInstant("2026-02-02", mins(9, 40))
	day := DayInput{
		Date:   "2026-02-02",
		Window: Interval{mins(9, 0), mins(11, 0)},
	}
	p := Params{
		Duration:   30 * time.Minute,
		MinAdvance: 30 * time.Minute,
		Now:        now,
		Clock:      clock,
	}
	slots := DaySlots(day, p)
	// Cutoff is 10:10, so 09:00, 09:30 and 10:00 are gone.
	if len(slots) != 1 || slots[0].Start != mins(10, 30) {
		t.Fatalf("got %v, want single 10:30 slot", slots)
	}

	p.SkipMinAdvance = true
	if got := DaySlots(day, p); len(got) != 4 {
		t.Fatalf("skipMinAdvance: got %d slots, want 4", len(got))
	}
}

func TestDaySlots_Ascending(t *testing.T) {
	day := DayInput{
		Date:   "2026-02-02",
		Window: Interval{mins(8, 0), mins(18, 0)},
		Breaks: []Interval{{mins(12, 0), mins(13, 0)}},
		Booked: []Interval{{mins(9, 0), mins(9, 45)}, {mins(15, 0), mins(15, 30)}},
	}
	slots := DaySlots(day, Params{Duration: 45 * time.Minute, Buffer: 15 * time.Minute, SkipMinAdvance: true})
	for i := 1; i < len(slots); i++ {
		if slots[i].Start < slots[i-1].End {
			t.Fatalf("slots out of order or overlapping at %d: %v then %v", i, slots[i-1], slots[i])
		}
	}
}

func TestContains(t *testing.T) {
	slots := []Slot{{"2026-02-02", mins(9, 0), mins(9, 30)}}
	if !Contains(slots, Slot{"2026-02-02", mins(9, 0), mins(9, 30)}) {
		t.Fatal("expected membership")
	}
	if Contains(slots, Slot{"2026-02-02", mins(9, 15), mins(9, 45)}) {
		t.Fatal("unexpected membership for shifted slot")
	}
}
