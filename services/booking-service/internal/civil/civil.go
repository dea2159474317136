// Package civil converts between absolute instants and the clinic's civil
// calendar. All bookings live in one configured timezone; dates and
// times-of-day are compared as calendar values, never as raw instants, so DST
// shifts and UTC offsets cannot move an appointment across a day boundary.
package civil

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// Date is a calendar day in the clinic zone, formatted YYYY-MM-DD.
type Date string

// TimeOfDay is minutes since midnight. The wire format is zero-padded HH:MM;
// ordering is plain integer comparison.
type TimeOfDay int

func ParseDate(s string) (Date, error) {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return Date(s), nil
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	for _, i := range [...]int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
		}
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if h > 23 || m > 59 {
		return 0, fmt.Errorf("invalid time %q: out of range", s)
	}
	return TimeOfDay(h*60 + m), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (d Date) String() string { return string(d) }

// Weekday returns the day of week (Sunday=0) of d.
func (d Date) Weekday() time.Weekday {
	t, _ := time.Parse(DateLayout, string(d))
	return t.Weekday()
}

// AddDays steps the calendar date, ignoring zone offsets entirely.
func (d Date) AddDays(n int) Date {
	t, _ := time.Parse(DateLayout, string(d))
	return Date(t.AddDate(0, 0, n).Format(DateLayout))
}

// Before reports whether d is an earlier calendar day than other.
// Lexicographic comparison is correct for the fixed-width layout.
func (d Date) Before(other Date) bool { return string(d) < string(other) }

// Clock converts instants to and from the clinic's civil calendar.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

func NewClock(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc, now: time.Now}
}

// NewClockAt pins "now" for tests.
func NewClockAt(loc *time.Location, now func() time.Time) *Clock {
	c := NewClock(loc)
	c.now = now
	return c
}

func (c *Clock) Location() *time.Location { return c.loc }

// ToCivil splits an instant into the clinic-zone calendar date and time of day.
func (c *Clock) ToCivil(instant time.Time) (Date, TimeOfDay) {
	local := instant.In(c.loc)
	return Date(local.Format(DateLayout)), TimeOfDay(local.Hour()*60 + local.Minute())
}

// ToInstant pins a civil date + time of day to an absolute instant in the
// clinic zone.
func (c *Clock) ToInstant(d Date, t TimeOfDay) time.Time {
	day, _ := time.ParseInLocation(DateLayout, string(d), c.loc)
	return time.Date(day.Year(), day.Month(), day.Day(), int(t)/60, int(t)%60, 0, 0, c.loc)
}

// Anchor returns local noon of d. Calendar-date arithmetic is anchored to noon
// so a DST transition can never push the result onto a neighbouring day.
func (c *Clock) Anchor(d Date) time.Time {
	day, _ := time.ParseInLocation(DateLayout, string(d), c.loc)
	return time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, c.loc)
}

// Today returns the current calendar date in the clinic zone.
func (c *Clock) Today() Date {
	d, _ := c.ToCivil(c.now())
	return d
}

// Now returns the current instant.
func (c *Clock) Now() time.Time { return c.now() }
