package notify

import (
	"strings"
	"testing"
)

func TestOfferBodyWithBaseURL(t *testing.T) {
	e := OfferEvent{
		Name:      "Ana",
		Token:     "tok-123",
		SlotDate:  "2026-09-10",
		StartTime: "10:00",
		EndTime:   "10:30",
		ExpiresAt: "2026-09-11T10:00:00Z",
	}
	body := OfferBody(e, "https://clinic.example/")
	for _, want := range []string{
		"Hello Ana,",
		"2026-09-10 from 10:00 to 10:30",
		"https://clinic.example/waitlist/priority/tok-123/confirm",
		"https://clinic.example/waitlist/priority/tok-123/release",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("offer body missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "priority code") {
		t.Error("token fallback should not appear when a base URL is set")
	}
}

func TestOfferBodyWithoutBaseURL(t *testing.T) {
	body := OfferBody(OfferEvent{Token: "tok-9"}, "")
	if !strings.Contains(body, "tok-9") {
		t.Errorf("offer body should quote the token: %s", body)
	}
	if strings.Contains(body, "Confirm: /") {
		t.Error("no links expected without a base URL")
	}
}

func TestBookedBodyCarriesCancellationToken(t *testing.T) {
	body := BookedBody(BookedEvent{
		PatientName:       "Bruno",
		AppointmentDate:   "2026-09-12",
		StartTime:         "14:00",
		EndTime:           "14:30",
		CancellationToken: "cancel-abc",
	})
	if !strings.Contains(body, "cancel-abc") {
		t.Errorf("booked body missing cancellation token:\n%s", body)
	}
	if !strings.Contains(body, "Hello Bruno,") {
		t.Errorf("booked body missing greeting:\n%s", body)
	}
}

func TestGreetingFallback(t *testing.T) {
	if got := greeting("  "); got != "Hello," {
		t.Fatalf("greeting(blank) = %q", got)
	}
}
