// Package booking is the facade behind the public appointment endpoints. It
// owns the book/cancel/reschedule protocols and keeps every state change, its
// outbox event, and the waitlist cascade inside one transaction.
package booking

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
	"github.com/clinicbook/clinicbook/services/booking-service/internal/plans"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/schedule"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/storage"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/waitlist"
)

// maxRangeDays caps a timeslot query range so one request cannot scan months.
const maxRangeDays = 62

type Service struct {
	appts    *storage.AppointmentRepository
	sched    *schedule.Repository
	waitlist *waitlist.Engine
	outbox   *outbox.Repository
	policy   plans.Policy
	clock    *civil.Clock
	logger   *slog.Logger
}

func NewService(appts *storage.AppointmentRepository, sched *schedule.Repository, wl *waitlist.Engine, outboxRepo *outbox.Repository, policy plans.Policy, clock *civil.Clock, logger *slog.Logger) *Service {
	if policy == nil {
		policy = plans.Unlimited{}
	}
	return &Service{
		appts:    appts,
		sched:    sched,
		waitlist: wl,
		outbox:   outboxRepo,
		policy:   policy,
		clock:    clock,
		logger:   logger,
	}
}

// TimeslotQuery identifies one slot-generation request.
type TimeslotQuery struct {
	ProfessionalID string
	From, To       civil.Date
	ServiceID      string
	// ExcludeAppointmentID frees one appointment's interval, so a reschedule
	// can offer the currently held slot.
	ExcludeAppointmentID string
	SkipMinAdvance       bool
}

// Timeslots generates the bookable slots for each day in [From, To].
func (s *Service) Timeslots(ctx context.Context, q TimeslotQuery) ([]availability.Slot, error) {
	if q.To.Before(q.From) {
		return nil, apperr.New(apperr.Validation, "toDate must not be before fromDate")
	}
	if q.From.AddDays(maxRangeDays).Before(q.To) {
		return nil, apperr.New(apperr.Validation, "date range too large")
	}

	prof, params, err := s.resolveParams(ctx, q.ProfessionalID, q.ServiceID)
	if err != nil {
		return nil, err
	}
	params.SkipMinAdvance = q.SkipMinAdvance

	breaks, err := s.sched.BreaksInRange(ctx, prof.ID, q.From, q.To)
	if err != nil {
		return nil, err
	}
	booked, err := s.appts.ListActiveInRange(ctx, prof.ID, q.From, q.To, q.ExcludeAppointmentID)
	if err != nil {
		return nil, err
	}

	breaksByDay := map[civil.Date][]availability.Interval{}
	for _, b := range breaks {
		breaksByDay[b.Date] = append(breaksByDay[b.Date], availability.Interval{Start: b.StartTime, End: b.EndTime})
	}
	bookedByDay := map[civil.Date][]availability.Interval{}
	for _, a := range booked {
		bookedByDay[a.Date] = append(bookedByDay[a.Date], availability.Interval{Start: a.StartTime, End: a.EndTime})
	}

	var slots []availability.Slot
	for d := q.From; !q.To.Before(d); d = d.AddDays(1) {
		win, open, err := s.sched.WindowFor(ctx, prof.ID, int(d.Weekday()))
		if err != nil {
			return nil, err
		}
		if !open {
			continue
		}
		slots = append(slots, availability.DaySlots(availability.DayInput{
			Date:   d,
			Window: availability.Interval{Start: win.StartTime, End: win.EndTime},
			Breaks: breaksByDay[d],
			Booked: bookedByDay[d],
		}, params)...)
	}
	return slots, nil
}

// resolveParams loads the professional and derives slot parameters, with the
// service overriding the professional's defaults when present.
func (s *Service) resolveParams(ctx context.Context, professionalID, serviceID string) (model.Professional, availability.Params, error) {
	prof, err := s.appts.GetProfessional(ctx, professionalID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Professional{}, availability.Params{}, apperr.New(apperr.NotFound, "professional not found")
		}
		return model.Professional{}, availability.Params{}, err
	}

	duration := prof.DefaultDurationMins
	buffer := prof.DefaultBufferMins
	if serviceID != "" {
		svc, err := s.appts.GetService(ctx, professionalID, serviceID)
		if err != nil {
			if storage.IsNotFound(err) {
				return model.Professional{}, availability.Params{}, apperr.New(apperr.NotFound, "service not found")
			}
			return model.Professional{}, availability.Params{}, err
		}
		if svc.DurationMins > 0 {
			duration = svc.DurationMins
		}
		if svc.BufferMins > 0 {
			buffer = svc.BufferMins
		}
	}
	if duration <= 0 {
		duration = 30
	}

	return prof, availability.Params{
		Duration:   time.Duration(duration) * time.Minute,
		Buffer:     time.Duration(buffer) * time.Minute,
		MinAdvance: time.Duration(prof.MinAdvanceMins) * time.Minute,
		Now:        s.clock.Now(),
		Clock:      s.clock,
	}, nil
}

// BookRequest carries one public booking submission. End is optional; when
// set it must equal Start plus the resolved service duration.
type BookRequest struct {
	ProfessionalID string
	ServiceID      string
	Date           civil.Date
	Start          civil.TimeOfDay
	End            civil.TimeOfDay
	PatientName    string
	PatientEmail   string
	PatientPhone   string
}

// Book validates the candidate against a freshly generated slot set, enforces
// the plan cap, and persists the appointment. The exclusion constraint is the
// last word on conflicts; the fresh-set check only produces friendlier errors.
func (s *Service) Book(ctx context.Context, req BookRequest) (model.Appointment, error) {
	_, params, err := s.resolveParams(ctx, req.ProfessionalID, req.ServiceID)
	if err != nil {
		return model.Appointment{}, err
	}
	end := req.Start + civil.TimeOfDay(params.Duration/time.Minute)
	if req.End != 0 && req.End != end {
		return model.Appointment{}, apperr.New(apperr.Validation, "endTime does not match the service duration")
	}

	fresh, err := s.Timeslots(ctx, TimeslotQuery{
		ProfessionalID: req.ProfessionalID,
		From:           req.Date,
		To:             req.Date,
		ServiceID:      req.ServiceID,
	})
	if err != nil {
		return model.Appointment{}, err
	}
	candidate := availability.Slot{Date: req.Date, Start: req.Start, End: end}
	if !availability.Contains(fresh, candidate) {
		return model.Appointment{}, apperr.New(apperr.Validation, "requested slot is not available")
	}
	// Advisory; the exclusion constraint re-checks atomically at insert.
	overlapping, err := s.appts.Overlapping(ctx, req.ProfessionalID, req.Date, req.Start, end, "")
	if err != nil {
		return model.Appointment{}, err
	}
	if len(overlapping) > 0 {
		return model.Appointment{}, apperr.New(apperr.Conflict, "Time slot is already booked")
	}

	tx, err := s.appts.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.policy.CheckBookingAllowed(ctx, tx, req.ProfessionalID, req.Date); err != nil {
		return model.Appointment{}, err
	}

	patientID, err := s.appts.FindOrCreatePatient(ctx, tx, model.Patient{
		ProfessionalID: req.ProfessionalID,
		Name:           req.PatientName,
		Email:          req.PatientEmail,
		Phone:          req.PatientPhone,
	})
	if err != nil {
		return model.Appointment{}, err
	}

	appt := model.Appointment{
		ProfessionalID: req.ProfessionalID,
		PatientID:      patientID,
		ServiceID:      req.ServiceID,
		Date:           req.Date,
		StartTime:      req.Start,
		EndTime:        end,
		Status:         model.StatusConfirmed,
	}
	if _, err := s.appts.Create(ctx, tx, &appt); err != nil {
		if storage.IsConflict(err) {
			return model.Appointment{}, apperr.New(apperr.Conflict, "Time slot is already booked")
		}
		return model.Appointment{}, err
	}

	if err := s.insertBookedEvent(ctx, tx, appt, req.PatientName, req.PatientEmail, req.PatientPhone); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"professional_id", appt.ProfessionalID,
		"date", appt.Date.String(),
		"start", appt.StartTime.String(),
	)
	return appt, nil
}

// Cancel marks the appointment cancelled and runs the waitlist cascade on the
// freed slot, all in one transaction. Cancelling twice is a no-op success.
func (s *Service) Cancel(ctx context.Context, appointmentID string) (model.Appointment, error) {
	tx, err := s.appts.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := s.appts.GetForUpdate(ctx, tx, appointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, apperr.New(apperr.NotFound, "appointment not found")
		}
		return model.Appointment{}, err
	}
	if appt.Status == model.StatusCancelled {
		return appt, nil
	}
	if appt.Status == model.StatusRescheduled {
		return model.Appointment{}, apperr.New(apperr.Validation, "appointment was rescheduled and cannot be cancelled")
	}

	cancelledAt, err := s.appts.Cancel(ctx, tx, appt.ID)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.StatusCancelled
	appt.CancelledAt = &cancelledAt

	if err := s.insertCancelledEvent(ctx, tx, appt); err != nil {
		return model.Appointment{}, err
	}
	if err := s.cascade(ctx, tx, appt); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment cancelled", "appointment_id", appt.ID, "professional_id", appt.ProfessionalID)
	return appt, nil
}

// Delete removes the row entirely. An active appointment's slot still goes
// through the waitlist cascade before the row disappears.
func (s *Service) Delete(ctx context.Context, appointmentID string) error {
	tx, err := s.appts.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := s.appts.GetForUpdate(ctx, tx, appointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			return apperr.New(apperr.NotFound, "appointment not found")
		}
		return err
	}

	wasActive := appt.Active()
	if err := s.appts.Delete(ctx, tx, appt.ID); err != nil {
		return err
	}
	if wasActive {
		if err := s.insertCancelledEvent(ctx, tx, appt); err != nil {
			return err
		}
		if err := s.cascade(ctx, tx, appt); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.logger.Info("appointment deleted", "appointment_id", appt.ID, "professional_id", appt.ProfessionalID)
	return nil
}

// RescheduleRequest moves an appointment to a new slot. RescheduledBy records
// who initiated the move for the audit trail.
type RescheduleRequest struct {
	AppointmentID string
	Date          civil.Date
	Start         civil.TimeOfDay
	// End is optional; when set it must equal Start plus the service duration.
	End           civil.TimeOfDay
	RescheduledBy string
}

// Reschedule creates a replacement row and flips the original to rescheduled;
// the original's interval is never mutated. The freed slot goes through the
// waitlist cascade like a cancellation.
func (s *Service) Reschedule(ctx context.Context, req RescheduleRequest) (model.Appointment, error) {
	tx, err := s.appts.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	old, err := s.appts.GetForUpdate(ctx, tx, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, apperr.New(apperr.NotFound, "appointment not found")
		}
		return model.Appointment{}, err
	}
	if !old.Active() {
		return model.Appointment{}, apperr.New(apperr.Validation, "appointment is no longer active")
	}

	_, params, err := s.resolveParams(ctx, old.ProfessionalID, old.ServiceID)
	if err != nil {
		return model.Appointment{}, err
	}
	end := req.Start + civil.TimeOfDay(params.Duration/time.Minute)
	if req.End != 0 && req.End != end {
		return model.Appointment{}, apperr.New(apperr.Validation, "endTime does not match the service duration")
	}

	// Professional-initiated moves skip the min-advance filter; the original
	// slot is excluded so moving within the same window works.
	fresh, err := s.Timeslots(ctx, TimeslotQuery{
		ProfessionalID:       old.ProfessionalID,
		From:                 req.Date,
		To:                   req.Date,
		ServiceID:            old.ServiceID,
		ExcludeAppointmentID: old.ID,
		SkipMinAdvance:       req.RescheduledBy != "",
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if !availability.Contains(fresh, availability.Slot{Date: req.Date, Start: req.Start, End: end}) {
		return model.Appointment{}, apperr.New(apperr.Validation, "requested slot is not available")
	}
	overlapping, err := s.appts.Overlapping(ctx, old.ProfessionalID, req.Date, req.Start, end, old.ID)
	if err != nil {
		return model.Appointment{}, err
	}
	if len(overlapping) > 0 {
		return model.Appointment{}, apperr.New(apperr.Conflict, "Time slot is already booked")
	}

	replacement := model.Appointment{
		ProfessionalID:    old.ProfessionalID,
		PatientID:         old.PatientID,
		ServiceID:         old.ServiceID,
		Date:              req.Date,
		StartTime:         req.Start,
		EndTime:           end,
		Status:            model.StatusConfirmed,
		RescheduledFromID: old.ID,
	}
	if _, err := s.appts.Create(ctx, tx, &replacement); err != nil {
		if storage.IsConflict(err) {
			return model.Appointment{}, apperr.New(apperr.Conflict, "Time slot is already booked")
		}
		return model.Appointment{}, err
	}
	if err := s.appts.MarkRescheduled(ctx, tx, old.ID, req.RescheduledBy); err != nil {
		return model.Appointment{}, err
	}

	patient, err := s.appts.GetPatient(ctx, old.PatientID)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.insertBookedEvent(ctx, tx, replacement, patient.Name, patient.Email, patient.Phone); err != nil {
		return model.Appointment{}, err
	}

	old.Status = model.StatusRescheduled
	if err := s.cascade(ctx, tx, old); err != nil {
		return model.Appointment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment rescheduled",
		"appointment_id", old.ID,
		"replacement_id", replacement.ID,
		"rescheduled_by", req.RescheduledBy,
	)
	return replacement, nil
}

func (s *Service) List(ctx context.Context, professionalID string, from, to civil.Date, status string, limit int) ([]model.Appointment, error) {
	if to.Before(from) {
		return nil, apperr.New(apperr.Validation, "toDate must not be before fromDate")
	}
	return s.appts.ListForProfessional(ctx, professionalID, from, to, status, limit)
}

// cascade hands the appointment's freed interval to the waitlist engine.
func (s *Service) cascade(ctx context.Context, tx pgx.Tx, appt model.Appointment) error {
	return s.waitlist.Reconcile(ctx, tx, waitlist.FreedSlot{
		ProfessionalID: appt.ProfessionalID,
		ServiceRef:     appt.ServiceID,
		Date:           appt.Date,
		Start:          appt.StartTime,
		End:            appt.EndTime,
	})
}

func (s *Service) insertBookedEvent(ctx context.Context, tx pgx.Tx, appt model.Appointment, name, email, phone string) error {
	payload, err := json.Marshal(map[string]any{
		"appointment_id":     appt.ID,
		"professional_id":    appt.ProfessionalID,
		"patient_name":       name,
		"patient_email":      email,
		"patient_phone":      phone,
		"appointment_date":   appt.Date.String(),
		"start_time":         appt.StartTime.String(),
		"end_time":           appt.EndTime.String(),
		"cancellation_token": appt.CancellationToken,
	})
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.TopicAppointmentBooked,
		Payload:       payload,
	})
}

func (s *Service) insertCancelledEvent(ctx context.Context, tx pgx.Tx, appt model.Appointment) error {
	patient, err := s.appts.GetPatient(ctx, appt.PatientID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]any{
		"appointment_id":   appt.ID,
		"professional_id":  appt.ProfessionalID,
		"patient_name":     patient.Name,
		"patient_email":    patient.Email,
		"patient_phone":    patient.Phone,
		"appointment_date": appt.Date.String(),
		"start_time":       appt.StartTime.String(),
		"end_time":         appt.EndTime.String(),
	})
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.TopicAppointmentCancelled,
		Payload:       payload,
	})
}
