package waitlist

import (
	"testing"
	"time"

	"github.com/clinicbook/clinicbook/services/booking-service/internal/apperr"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/civil"
)

func TestMatches(t *testing.T) {
	slot := FreedSlot{
		ProfessionalID: "prof-1",
		ServiceRef:     "svc-1",
		Date:           "2026-09-10",
		Start:          600, // 10:00
		End:            630, // 10:30
	}

	base := Entry{
		Status:         StatusPending,
		ProfessionalID: "prof-1",
		PreferredDate:  "2026-09-10",
	}

	cases := []struct {
		name            string
		mutate          func(*Entry)
		matchTimeWindow bool
		want            bool
	}{
		{"date and professional match, no window", nil, true, true},
		{"wrong professional", func(e *Entry) { e.ProfessionalID = "prof-2" }, true, false},
		{"wrong date", func(e *Entry) { e.PreferredDate = "2026-09-11" }, true, false},
		{"not pending", func(e *Entry) { e.Status = StatusNotified }, true, false},
		{"service agnostic entry", func(e *Entry) { e.ServiceRef = "" }, true, true},
		{"matching service", func(e *Entry) { e.ServiceRef = "svc-1" }, true, true},
		{"different service", func(e *Entry) { e.ServiceRef = "svc-2" }, true, false},
		{"window overlapping slot", func(e *Entry) { e.PreferredStart = 570; e.PreferredEnd = 615 }, true, true},
		{"window touching slot start", func(e *Entry) { e.PreferredStart = 540; e.PreferredEnd = 600 }, true, false},
		{"window touching slot end", func(e *Entry) { e.PreferredStart = 630; e.PreferredEnd = 660 }, true, false},
		{"window ignored when matching disabled", func(e *Entry) { e.PreferredStart = 540; e.PreferredEnd = 600 }, false, true},
	}

	for _, tc := range cases {
		e := base
		if tc.mutate != nil {
			tc.mutate(&e)
		}
		if got := e.Matches(slot, tc.matchTimeWindow); got != tc.want {
			t.Errorf("%s: Matches = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestOfferGuard(t *testing.T) {
	now := time.Date(2026, 9, 10, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	pending := Entry{Status: StatusPending}
	if err := pending.OfferGuard(now); !apperr.Is(err, apperr.Validation) {
		t.Errorf("pending entry: got %v, want validation error", err)
	}

	fulfilled := Entry{Status: StatusFulfilled}
	if err := fulfilled.OfferGuard(now); !apperr.Is(err, apperr.Validation) {
		t.Errorf("fulfilled entry: got %v, want validation error", err)
	}

	live := Entry{Status: StatusNotified, ExpiresAt: &future}
	if err := live.OfferGuard(now); err != nil {
		t.Errorf("live offer: unexpected error %v", err)
	}

	stale := Entry{Status: StatusNotified, ExpiresAt: &past}
	if err := stale.OfferGuard(now); !apperr.Is(err, apperr.Expired) {
		t.Errorf("stale offer: got %v, want expired error", err)
	}

	exact := Entry{Status: StatusNotified, ExpiresAt: &now}
	if err := exact.OfferGuard(now); !apperr.Is(err, apperr.Expired) {
		t.Errorf("expiry boundary: got %v, want expired error", err)
	}
}

func TestOffered(t *testing.T) {
	now := time.Date(2026, 9, 10, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Minute)

	if (Entry{Status: StatusNotified, ExpiresAt: &future}).Offered(now) != true {
		t.Error("unexpired notified entry should be offered")
	}
	if (Entry{Status: StatusPending, ExpiresAt: &future}).Offered(now) {
		t.Error("pending entry cannot hold an offer")
	}
	if (Entry{Status: StatusNotified, ExpiresAt: &now}).Offered(now) {
		t.Error("offer ending now is no longer live")
	}
	if (Entry{Status: StatusNotified}).Offered(now) {
		t.Error("notified entry without expiry is not a live offer")
	}
}

func TestHasTimeWindow(t *testing.T) {
	if (Entry{}).HasTimeWindow() {
		t.Error("zero entry has no window")
	}
	if !(Entry{PreferredStart: civil.TimeOfDay(540), PreferredEnd: civil.TimeOfDay(600)}).HasTimeWindow() {
		t.Error("expected window")
	}
}
