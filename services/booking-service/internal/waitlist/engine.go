package waitlist

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clinicbook/clinicbook/services/booking-service/internal/apperr"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/availability"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/civil"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/model"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/outbox"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/schedule"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/storage"
)

// EntryStore is the persistence surface the engine drives. *Repository is the
// production implementation.
type EntryStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, e *Entry) error
	GetByToken(ctx context.Context, token string) (Entry, error)
	GetByTokenForUpdate(ctx context.Context, tx pgx.Tx, token string) (Entry, error)
	NextPendingMatch(ctx context.Context, tx pgx.Tx, slot FreedSlot, matchTimeWindow bool) (Entry, bool, error)
	MarkNotified(ctx context.Context, tx pgx.Tx, entryID string, slot FreedSlot, notifiedAt, expiresAt time.Time) error
	Transition(ctx context.Context, tx pgx.Tx, entryID, from, to string) (bool, error)
}

// BreakSource answers whether a freed interval is blocked on its day.
type BreakSource interface {
	BreaksOn(ctx context.Context, professionalID string, date civil.Date) ([]schedule.Break, error)
}

// AppointmentStore books the stamped slot when a holder confirms.
type AppointmentStore interface {
	FindOrCreatePatient(ctx context.Context, tx pgx.Tx, p model.Patient) (string, error)
	Create(ctx context.Context, tx pgx.Tx, a *model.Appointment) (string, error)
}

// EventSink records outbound events in the triggering transaction.
type EventSink interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

// Engine runs the waitlist state machine: the cancellation-triggered
// reconciliation, the token-holder confirm/release protocols, and expiry.
//
// Every state transition commits in the same transaction that triggered it;
// notification delivery rides the outbox, so a failed send can never undo a
// claim.
type Engine struct {
	repo   EntryStore
	sched  BreakSource
	appts  AppointmentStore
	outbox EventSink
	clock  *civil.Clock
	logger *slog.Logger
	cfg    Config
}

type Config struct {
	// OfferTTL is the priority window granted to a notified entry.
	OfferTTL time.Duration
	// MatchTimeWindow controls whether an entry's preferred time window
	// constrains matching, or only the preferred date.
	MatchTimeWindow bool
}

func NewEngine(repo EntryStore, sched BreakSource, appts AppointmentStore, outboxRepo EventSink, clock *civil.Clock, logger *slog.Logger, cfg Config) *Engine {
	if cfg.OfferTTL <= 0 {
		cfg.OfferTTL = 24 * time.Hour
	}
	return &Engine{
		repo:   repo,
		sched:  sched,
		appts:  appts,
		outbox: outboxRepo,
		clock:  clock,
		logger: logger,
		cfg:    cfg,
	}
}

// CreateEntry registers a public waitlist request as pending.
func (e *Engine) CreateEntry(ctx context.Context, entry *Entry) error {
	if entry.PreferredDate.Before(e.clock.Today()) {
		return apperr.New(apperr.Validation, "preferred date is in the past")
	}
	return e.repo.Create(ctx, entry)
}

// Reconcile runs the cancellation-triggered protocol for a freed slot inside
// the caller's transaction: skip slots that fall inside a break, claim the
// oldest matching pending entry, stamp the offer, and enqueue the
// notification event.
func (e *Engine) Reconcile(ctx context.Context, tx pgx.Tx, slot FreedSlot) error {
	breaks, err := e.sched.BreaksOn(ctx, slot.ProfessionalID, slot.Date)
	if err != nil {
		return err
	}
	for _, b := range breaks {
		if availability.Overlaps(slot.Start, slot.End, b.StartTime, b.EndTime) {
			// The freed interval is blocked; nothing to offer.
			return nil
		}
	}

	entry, ok, err := e.repo.NextPendingMatch(ctx, tx, slot, e.cfg.MatchTimeWindow)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	now := e.clock.Now()
	expiresAt := now.Add(e.cfg.OfferTTL)
	if err := e.repo.MarkNotified(ctx, tx, entry.ID, slot, now, expiresAt); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"entry_id":        entry.ID,
		"token":           entry.Token,
		"professional_id": slot.ProfessionalID,
		"name":            entry.Name,
		"email":           entry.Email,
		"phone":           entry.Phone,
		"slot_date":       slot.Date.String(),
		"start_time":      slot.Start.String(),
		"end_time":        slot.End.String(),
		"expires_at":      expiresAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := e.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "waitlist_entry",
		AggregateID:   entry.ID,
		EventType:     outbox.TopicWaitlistOffer,
		Payload:       payload,
	}); err != nil {
		return err
	}

	e.logger.Info("waitlist entry notified",
		"entry_id", entry.ID,
		"professional_id", slot.ProfessionalID,
		"slot_date", slot.Date.String(),
		"start_time", slot.Start.String(),
	)
	return nil
}

// Get returns the entry for a token, lazily expiring a stale offer first.
func (e *Engine) Get(ctx context.Context, token string) (Entry, error) {
	entry, err := e.repo.GetByToken(ctx, token)
	if err != nil {
		if storage.IsNotFound(err) {
			return Entry{}, apperr.New(apperr.NotFound, "waitlist entry not found")
		}
		return Entry{}, err
	}

	if entry.Status == StatusNotified && !entry.Offered(e.clock.Now()) {
		tx, err := e.repo.Begin(ctx)
		if err != nil {
			return Entry{}, err
		}
		defer func() { _ = tx.Rollback(ctx) }()
		// Compare-and-set: a concurrent confirm or sweep may already have
		// moved the entry on, in which case this is a no-op.
		if _, err := e.repo.Transition(ctx, tx, entry.ID, StatusNotified, StatusExpired); err != nil {
			return Entry{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return Entry{}, err
		}
		return e.repo.GetByToken(ctx, token)
	}
	return entry, nil
}

// Confirm books the stamped slot for the token holder and fulfils the entry.
// No cascade follows: the slot is consumed.
func (e *Engine) Confirm(ctx context.Context, token string) (model.Appointment, error) {
	tx, err := e.repo.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	entry, err := e.repo.GetByTokenForUpdate(ctx, tx, token)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, apperr.New(apperr.NotFound, "waitlist entry not found")
		}
		return model.Appointment{}, err
	}

	now := e.clock.Now()
	if err := entry.OfferGuard(now); err != nil {
		if apperr.Is(err, apperr.Expired) {
			if _, terr := e.repo.Transition(ctx, tx, entry.ID, StatusNotified, StatusExpired); terr != nil {
				return model.Appointment{}, terr
			}
			if cerr := tx.Commit(ctx); cerr != nil {
				return model.Appointment{}, cerr
			}
		}
		return model.Appointment{}, err
	}

	patientID, err := e.appts.FindOrCreatePatient(ctx, tx, model.Patient{
		ProfessionalID: entry.ProfessionalID,
		Name:           entry.Name,
		Email:          entry.Email,
		Phone:          entry.Phone,
	})
	if err != nil {
		return model.Appointment{}, err
	}

	appt := model.Appointment{
		ProfessionalID: entry.ProfessionalID,
		PatientID:      patientID,
		ServiceID:      entry.ServiceRef,
		Date:           entry.AvailableDate,
		StartTime:      entry.AvailableStart,
		EndTime:        entry.AvailableEnd,
		Status:         model.StatusConfirmed,
	}
	if _, err := e.appts.Create(ctx, tx, &appt); err != nil {
		if storage.IsConflict(err) {
			return model.Appointment{}, apperr.New(apperr.Conflict, "Time slot is already booked")
		}
		return model.Appointment{}, err
	}

	if _, err := e.repo.Transition(ctx, tx, entry.ID, StatusNotified, StatusFulfilled); err != nil {
		return model.Appointment{}, err
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id":     appt.ID,
		"professional_id":    appt.ProfessionalID,
		"patient_name":       entry.Name,
		"patient_email":      entry.Email,
		"patient_phone":      entry.Phone,
		"appointment_date":   appt.Date.String(),
		"start_time":         appt.StartTime.String(),
		"end_time":           appt.EndTime.String(),
		"cancellation_token": appt.CancellationToken,
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if err := e.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.TopicAppointmentBooked,
		Payload:       payload,
	}); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// Release cancels the holder's offer and cascades it: the stamped slot is
// treated as freshly freed and offered to the next FIFO match. The recursion
// terminates because every step consumes one pending entry or finds none.
func (e *Engine) Release(ctx context.Context, token string) (Entry, error) {
	tx, err := e.repo.Begin(ctx)
	if err != nil {
		return Entry{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	entry, err := e.repo.GetByTokenForUpdate(ctx, tx, token)
	if err != nil {
		if storage.IsNotFound(err) {
			return Entry{}, apperr.New(apperr.NotFound, "waitlist entry not found")
		}
		return Entry{}, err
	}

	now := e.clock.Now()
	if err := entry.OfferGuard(now); err != nil {
		if apperr.Is(err, apperr.Expired) {
			if _, terr := e.repo.Transition(ctx, tx, entry.ID, StatusNotified, StatusExpired); terr != nil {
				return Entry{}, terr
			}
			if cerr := tx.Commit(ctx); cerr != nil {
				return Entry{}, cerr
			}
		}
		return Entry{}, err
	}

	if _, err := e.repo.Transition(ctx, tx, entry.ID, StatusNotified, StatusCancelled); err != nil {
		return Entry{}, err
	}

	if err := e.Reconcile(ctx, tx, FreedSlot{
		ProfessionalID: entry.ProfessionalID,
		ServiceRef:     entry.ServiceRef,
		Date:           entry.AvailableDate,
		Start:          entry.AvailableStart,
		End:            entry.AvailableEnd,
	}); err != nil {
		return Entry{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, err
	}
	entry.Status = StatusCancelled
	return entry, nil
}

// Cancel voids a pending or notified entry without cascading (admin/holder
// withdrawal before any offer is in play, or giving up a held offer slot is
// intentionally not re-offered here; Release is the cascading path).
func (e *Engine) Cancel(ctx context.Context, token string) error {
	tx, err := e.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	entry, err := e.repo.GetByTokenForUpdate(ctx, tx, token)
	if err != nil {
		if storage.IsNotFound(err) {
			return apperr.New(apperr.NotFound, "waitlist entry not found")
		}
		return err
	}
	if entry.Status != StatusPending && entry.Status != StatusNotified {
		return apperr.New(apperr.Validation, "waitlist entry is already closed")
	}
	if _, err := e.repo.Transition(ctx, tx, entry.ID, entry.Status, StatusCancelled); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
