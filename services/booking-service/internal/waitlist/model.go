package waitlist

import (
	"time"

	"github.com/clinicbook/clinicbook/services/booking-service/internal/apperr"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/civil"
)

// Entry statuses. pending -> notified -> fulfilled is the happy path;
// notified decays to expired, and cancelled is reachable from pending and
// notified. No transition ever returns an entry to pending.
const (
	StatusPending   = "pending"
	StatusNotified  = "notified"
	StatusFulfilled = "fulfilled"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

type Entry struct {
	ID             string
	ProfessionalID string
	ServiceRef     string // empty = any service
	Name           string
	Email          string
	Phone          string
	PreferredDate  civil.Date
	// Optional preferred time window. Zero End means no window constraint.
	PreferredStart civil.TimeOfDay
	PreferredEnd   civil.TimeOfDay
	Status         string
	Token          string
	NotifiedAt     *time.Time
	ExpiresAt      *time.Time
	AvailableDate  civil.Date
	AvailableStart civil.TimeOfDay
	AvailableEnd   civil.TimeOfDay
	CreatedAt      time.Time
}

// FreedSlot is the interval released by a cancellation, deletion, reschedule,
// or a released offer.
type FreedSlot struct {
	ProfessionalID string
	ServiceRef     string
	Date           civil.Date
	Start          civil.TimeOfDay
	End            civil.TimeOfDay
}

// HasTimeWindow reports whether the entry constrains matching to a
// time-of-day window in addition to the date.
func (e Entry) HasTimeWindow() bool { return e.PreferredEnd > e.PreferredStart }

// Offered reports whether e currently holds an unexpired offer at now.
func (e Entry) Offered(now time.Time) bool {
	return e.Status == StatusNotified && e.ExpiresAt != nil && now.Before(*e.ExpiresAt)
}

// OfferGuard validates the confirm/release preconditions. It returns an
// Expired error past the offer window (callers must persist the expired
// transition) and a Validation error for any state other than notified.
func (e Entry) OfferGuard(now time.Time) error {
	if e.Status != StatusNotified {
		return apperr.New(apperr.Validation, "waitlist entry is not awaiting confirmation")
	}
	if e.ExpiresAt == nil || !now.Before(*e.ExpiresAt) {
		return apperr.New(apperr.Expired, "priority window has expired")
	}
	return nil
}

// Matches reports whether a pending entry matches the freed slot.
// Date equality is always required; the service must match unless the entry
// is service-agnostic; the time window applies only when matchTimeWindow is
// enabled and the entry carries one, using the half-open overlap rule.
func (e Entry) Matches(slot FreedSlot, matchTimeWindow bool) bool {
	if e.Status != StatusPending {
		return false
	}
	if e.ProfessionalID != slot.ProfessionalID {
		return false
	}
	if e.PreferredDate != slot.Date {
		return false
	}
	if e.ServiceRef != "" && slot.ServiceRef != "" && e.ServiceRef != slot.ServiceRef {
		return false
	}
	if matchTimeWindow && e.HasTimeWindow() {
		return e.PreferredStart < slot.End && e.PreferredEnd > slot.Start
	}
	return true
}
