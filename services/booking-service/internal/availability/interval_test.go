package availability

import (
	"testing"

	"github.com/clinicbook/clinicbook/services/booking-service/internal/civil"
)

func mins(h, m int) civil.TimeOfDay { return civil.TimeOfDay(h*60 + m) }

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name                       string
		aStart, aEnd, bStart, bEnd civil.TimeOfDay
		want                       bool
	}{
		{"disjoint", mins(9, 0), mins(10, 0), mins(11, 0), mins(12, 0), false},
		{"touching endpoints", mins(9, 0), mins(10, 0), mins(10, 0), mins(11, 0), false},
		{"partial", mins(9, 0), mins(10, 0), mins(9, 30), mins(10, 30), true},
		{"contained", mins(9, 0), mins(12, 0), mins(10, 0), mins(11, 0), true},
		{"identical", mins(9, 0), mins(10, 0), mins(9, 0), mins(10, 0), true},
	}
	for _, tc := range cases {
		if got := Overlaps(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd); got != tc.want {
			t.Errorf("%s: Overlaps = %v, want %v", tc.name, got, tc.want)
		}
		// Overlap is symmetric.
		if got := Overlaps(tc.bStart, tc.bEnd, tc.aStart, tc.aEnd); got != tc.want {
			t.Errorf("%s (swapped): Overlaps = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMerge(t *testing.T) {
	got := Merge([]Interval{
		{mins(13, 0), mins(14, 0)},
		{mins(9, 0), mins(10, 0)},
		{mins(9, 30), mins(11, 0)},
		{mins(11, 0), mins(11, 30)}, // adjacent, must coalesce
		{mins(15, 0), mins(15, 0)},  // invalid, dropped
	})
	want := []Interval{
		{mins(9, 0), mins(11, 30)},
		{mins(13, 0), mins(14, 0)},
	}
	if len(got) != len(want) {
		t.Fatalf("merged %d intervals, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("merge[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSubtract(t *testing.T) {
	window := Interval{mins(9, 0), mins(12, 0)}

	t.Run("no blocks", func(t *testing.T) {
		got := Subtract(window, nil)
		if len(got) != 1 || got[0] != window {
			t.Fatalf("got %v, want [%v]", got, window)
		}
	})

	t.Run("middle block", func(t *testing.T) {
		got := Subtract(window, []Interval{{mins(10, 0), mins(10, 30)}})
		want := []Interval{{mins(9, 0), mins(10, 0)}, {mins(10, 30), mins(12, 0)}}
		if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("block overhanging both edges", func(t *testing.T) {
		got := Subtract(window, []Interval{{mins(8, 0), mins(13, 0)}})
		if len(got) != 0 {
			t.Fatalf("got %v, want empty", got)
		}
	})

	t.Run("overlapping blocks merged first", func(t *testing.T) {
		got := Subtract(window, []Interval{
			{mins(9, 30), mins(10, 30)},
			{mins(10, 0), mins(11, 0)},
		})
		want := []Interval{{mins(9, 0), mins(9, 30)}, {mins(11, 0), mins(12, 0)}}
		if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("block outside window ignored", func(t *testing.T) {
		got := Subtract(window, []Interval{{mins(13, 0), mins(14, 0)}})
		if len(got) != 1 || got[0] != window {
			t.Fatalf("got %v, want [%v]", got, window)
		}
	})
}
