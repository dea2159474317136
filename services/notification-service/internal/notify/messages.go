package notify

import (
	"fmt"
	"strings"
	"time"
)

// BookedEvent mirrors booking.appointment.booked.v1.
type BookedEvent struct {
	AppointmentID     string `json:"appointment_id"`
	ProfessionalID    string `json:"professional_id"`
	PatientName       string `json:"patient_name"`
	PatientEmail      string `json:"patient_email"`
	PatientPhone      string `json:"patient_phone"`
	AppointmentDate   string `json:"appointment_date"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	CancellationToken string `json:"cancellation_token"`
}

// CancelledEvent mirrors booking.appointment.cancelled.v1.
type CancelledEvent struct {
	AppointmentID   string `json:"appointment_id"`
	ProfessionalID  string `json:"professional_id"`
	PatientName     string `json:"patient_name"`
	PatientEmail    string `json:"patient_email"`
	PatientPhone    string `json:"patient_phone"`
	AppointmentDate string `json:"appointment_date"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
}

// OfferEvent mirrors booking.waitlist.offer.v1.
type OfferEvent struct {
	EntryID        string `json:"entry_id"`
	Token          string `json:"token"`
	ProfessionalID string `json:"professional_id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	SlotDate       string `json:"slot_date"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	ExpiresAt      string `json:"expires_at"`
}

func greeting(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Hello,"
	}
	return fmt.Sprintf("Hello %s,", name)
}

func BookedSubject() string { return "Appointment confirmed" }

func BookedBody(e BookedEvent) string {
	return fmt.Sprintf(
		"%s\n\nYour appointment on %s from %s to %s is confirmed.\n\nIf you need to cancel, use your cancellation code: %s\n",
		greeting(e.PatientName), e.AppointmentDate, e.StartTime, e.EndTime, e.CancellationToken,
	)
}

func BookedSMS(e BookedEvent) string {
	return fmt.Sprintf("Appointment confirmed: %s %s-%s.", e.AppointmentDate, e.StartTime, e.EndTime)
}

func CancelledSubject() string { return "Appointment cancelled" }

func CancelledBody(e CancelledEvent) string {
	return fmt.Sprintf(
		"%s\n\nYour appointment on %s from %s to %s has been cancelled.\n",
		greeting(e.PatientName), e.AppointmentDate, e.StartTime, e.EndTime,
	)
}

func CancelledSMS(e CancelledEvent) string {
	return fmt.Sprintf("Appointment cancelled: %s %s-%s.", e.AppointmentDate, e.StartTime, e.EndTime)
}

func OfferSubject() string { return "A time slot just opened up" }

// OfferBody renders the priority-window offer with confirm and release links.
// baseURL is the public site root; an empty baseURL falls back to quoting the
// token so the message is still actionable.
func OfferBody(e OfferEvent, baseURL string) string {
	deadline := e.ExpiresAt
	if t, err := time.Parse(time.RFC3339, e.ExpiresAt); err == nil {
		deadline = t.Format("Jan 2 15:04 MST")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nA slot matching your waitlist request is now available:\n\n", greeting(e.Name))
	fmt.Fprintf(&b, "  %s from %s to %s\n\n", e.SlotDate, e.StartTime, e.EndTime)
	fmt.Fprintf(&b, "You have priority on this slot until %s.\n\n", deadline)
	if baseURL != "" {
		base := strings.TrimRight(baseURL, "/")
		fmt.Fprintf(&b, "Confirm: %s/waitlist/priority/%s/confirm\n", base, e.Token)
		fmt.Fprintf(&b, "Release: %s/waitlist/priority/%s/release\n", base, e.Token)
	} else {
		fmt.Fprintf(&b, "Your priority code: %s\n", e.Token)
	}
	return b.String()
}

func OfferSMS(e OfferEvent) string {
	return fmt.Sprintf("Slot open %s %s-%s. Priority code %s.", e.SlotDate, e.StartTime, e.EndTime, e.Token)
}
