package model

import (
	"time"

	"github.com/clinicbook/clinicbook/services/booking-service/internal/civil"
)

// Appointment statuses. Cancelled and rescheduled rows are immutable except
// for audit fields; a reschedule always creates a new row.
const (
	StatusConfirmed   = "confirmed"
	StatusCancelled   = "cancelled"
	StatusRescheduled = "rescheduled"
)

type Appointment struct {
	ID                string
	ProfessionalID    string
	PatientID         string
	ServiceID         string
	Date              civil.Date
	StartTime         civil.TimeOfDay
	EndTime           civil.TimeOfDay
	Status            string
	CancellationToken string
	RescheduledFromID string
	RescheduledBy     string
	RescheduledAt     *time.Time
	CancelledAt       *time.Time
	CreatedAt         time.Time
}

// Active reports whether the appointment still occupies its slot.
func (a Appointment) Active() bool {
	return a.Status != StatusCancelled && a.Status != StatusRescheduled
}

type Patient struct {
	ID             string
	ProfessionalID string
	Name           string
	Email          string
	Phone          string
	CreatedAt      time.Time
}

// Professional carries the scheduling defaults consulted by the slot
// generator when a service does not override them.
type Professional struct {
	ID                  string
	Name                string
	DefaultDurationMins int
	DefaultBufferMins   int
	MinAdvanceMins      int
}

type Service struct {
	ID             string
	ProfessionalID string
	Name           string
	DurationMins   int
	BufferMins     int
}
