package civil

import (
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	cases := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{"09:00", 540, false},
		{"00:00", 0, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"9:00", 0, true},
		{"09:60", 0, true},
		{"0900", 0, true},
		{"10:3a", 0, true},
		{"1a:30", 0, true},
		{"+1:30", 0, true},
		{"10: 3", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseTimeOfDay(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseTimeOfDay(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimeOfDay(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseTimeOfDay(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestTimeOfDayString(t *testing.T) {
	if got := TimeOfDay(540).String(); got != "09:00" {
		t.Fatalf("got %q, want 09:00", got)
	}
	if got := TimeOfDay(1439).String(); got != "23:59" {
		t.Fatalf("got %q, want 23:59", got)
	}
}

func TestClockRoundTrip(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	c := NewClock(loc)

	d, tod := c.ToCivil(time.Date(2026, 3, 9, 2, 30, 0, 0, time.UTC))
	// 02:30 UTC is 23:30 the previous day in Sao Paulo (UTC-3).
	if d != "2026-03-08" {
		t.Fatalf("date = %s, want 2026-03-08", d)
	}
	if tod.String() != "23:30" {
		t.Fatalf("time = %s, want 23:30", tod)
	}

	back := c.ToInstant(d, tod)
	if !back.Equal(time.Date(2026, 3, 9, 2, 30, 0, 0, time.UTC)) {
		t.Fatalf("round trip mismatch: %s", back)
	}
}

func TestAnchorStaysOnDate(t *testing.T) {
	c := NewClock(time.UTC)
	anchor := c.Anchor("2026-06-15")
	if anchor.Hour() != 12 {
		t.Fatalf("anchor hour = %d, want 12", anchor.Hour())
	}
	d, _ := c.ToCivil(anchor)
	if d != "2026-06-15" {
		t.Fatalf("anchor moved to %s", d)
	}
}

func TestDateHelpers(t *testing.T) {
	d := Date("2026-01-31")
	if d.AddDays(1) != "2026-02-01" {
		t.Fatalf("AddDays rolled to %s", d.AddDays(1))
	}
	if d.Weekday() != time.Saturday {
		t.Fatalf("weekday = %s, want Saturday", d.Weekday())
	}
	if !Date("2026-01-01").Before("2026-01-02") {
		t.Fatal("Before failed for adjacent days")
	}
	if Date("2026-01-02").Before("2026-01-02") {
		t.Fatal("Before should be strict")
	}
}
