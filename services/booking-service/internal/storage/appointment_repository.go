package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicbook/clinicbook/libs/db"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/civil"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/model"
)

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

func (r *AppointmentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const appointmentColumns = `
	id::text, professional_id::text, patient_id::text, COALESCE(service_id::text, ''),
	appointment_date::text, start_minute, end_minute, status, cancellation_token,
	COALESCE(rescheduled_from_id::text, ''), COALESCE(rescheduled_by, ''),
	rescheduled_at, cancelled_at, created_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var date string
	var start, end int
	err := row.Scan(
		&a.ID, &a.ProfessionalID, &a.PatientID, &a.ServiceID,
		&date, &start, &end, &a.Status, &a.CancellationToken,
		&a.RescheduledFromID, &a.RescheduledBy,
		&a.RescheduledAt, &a.CancelledAt, &a.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Date = civil.Date(date)
	a.StartTime = civil.TimeOfDay(start)
	a.EndTime = civil.TimeOfDay(end)
	return a, nil
}

// Create inserts a confirmed appointment. The appointments_no_overlap
// exclusion constraint is the authoritative double-booking guard; a 23P01
// from here surfaces through IsConflict.
func (r *AppointmentRepository) Create(ctx context.Context, tx pgx.Tx, a *model.Appointment) (string, error) {
	if a.CancellationToken == "" {
		a.CancellationToken = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = model.StatusConfirmed
	}
	var serviceID any
	if a.ServiceID != "" {
		serviceID = a.ServiceID
	}
	var rescheduledFrom any
	if a.RescheduledFromID != "" {
		rescheduledFrom = a.RescheduledFromID
	}
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(professional_id, patient_id, service_id, appointment_date, start_minute, end_minute,
			 status, cancellation_token, rescheduled_from_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id::text
	`, a.ProfessionalID, a.PatientID, serviceID, string(a.Date), int(a.StartTime), int(a.EndTime),
		a.Status, a.CancellationToken, rescheduledFrom).Scan(&id)
	if err != nil {
		return "", err
	}
	a.ID = id
	return id, nil
}

// Overlapping is the advisory conflict check: every active appointment of the
// professional on that date whose half-open interval intersects the candidate.
// The exclusion constraint re-checks atomically at insert time.
func (r *AppointmentRepository) Overlapping(ctx context.Context, professionalID string, date civil.Date, start, end civil.TimeOfDay, excludeID string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE professional_id = $1
			AND appointment_date = $2
			AND status NOT IN ('cancelled', 'rescheduled')
			AND start_minute < $4
			AND end_minute > $3
			AND ($5 = '' OR id::text <> $5)
		ORDER BY start_minute ASC
	`, professionalID, string(date), int(start), int(end), excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// ListActiveInRange returns the active appointments blocking slots between two
// calendar dates inclusive.
func (r *AppointmentRepository) ListActiveInRange(ctx context.Context, professionalID string, from, to civil.Date, excludeID string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE professional_id = $1
			AND appointment_date >= $2
			AND appointment_date <= $3
			AND status NOT IN ('cancelled', 'rescheduled')
			AND ($4 = '' OR id::text <> $4)
		ORDER BY appointment_date ASC, start_minute ASC
	`, professionalID, string(from), string(to), excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *AppointmentRepository) ListForProfessional(ctx context.Context, professionalID string, from, to civil.Date, status string, limit int) ([]model.Appointment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE professional_id = $1
			AND appointment_date >= $2
			AND appointment_date <= $3
			AND ($4 = '' OR status = $4)
		ORDER BY appointment_date ASC, start_minute ASC
		LIMIT $5
	`, professionalID, string(from), string(to), status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *AppointmentRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, appointmentID string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, appointmentID))
}

func (r *AppointmentRepository) Cancel(ctx context.Context, tx pgx.Tx, appointmentID string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled', cancelled_at = now()
		WHERE id = $1
		RETURNING cancelled_at
	`, appointmentID).Scan(&cancelledAt)
	return cancelledAt, err
}

func (r *AppointmentRepository) Delete(ctx context.Context, tx pgx.Tx, appointmentID string) error {
	tag, err := tx.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, appointmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// MarkRescheduled flips the old row out of its slot. The row's time fields are
// never touched; the replacement lives in a new row.
func (r *AppointmentRepository) MarkRescheduled(ctx context.Context, tx pgx.Tx, appointmentID, rescheduledBy string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'rescheduled', rescheduled_by = $2, rescheduled_at = now()
		WHERE id = $1
	`, appointmentID, rescheduledBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *AppointmentRepository) GetProfessional(ctx context.Context, professionalID string) (model.Professional, error) {
	var p model.Professional
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, default_duration_minutes, default_buffer_minutes, min_advance_minutes
		FROM professionals
		WHERE id = $1
	`, professionalID).Scan(&p.ID, &p.Name, &p.DefaultDurationMins, &p.DefaultBufferMins, &p.MinAdvanceMins)
	return p, err
}

func (r *AppointmentRepository) GetService(ctx context.Context, professionalID, serviceID string) (model.Service, error) {
	var s model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, professional_id::text, name, duration_minutes, buffer_minutes
		FROM services
		WHERE professional_id = $1 AND id = $2
	`, professionalID, serviceID).Scan(&s.ID, &s.ProfessionalID, &s.Name, &s.DurationMins, &s.BufferMins)
	return s, err
}

func (r *AppointmentRepository) GetPatient(ctx context.Context, patientID string) (model.Patient, error) {
	var p model.Patient
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, professional_id::text, name, COALESCE(email, ''), COALESCE(phone, ''), created_at
		FROM patients
		WHERE id = $1
	`, patientID).Scan(&p.ID, &p.ProfessionalID, &p.Name, &p.Email, &p.Phone, &p.CreatedAt)
	return p, err
}

// FindOrCreatePatient dedups by email first, then phone, within the
// professional's tenant scope.
func (r *AppointmentRepository) FindOrCreatePatient(ctx context.Context, tx pgx.Tx, p model.Patient) (string, error) {
	var id string
	if p.Email != "" {
		err := tx.QueryRow(ctx, `
			SELECT id::text FROM patients
			WHERE professional_id = $1 AND lower(email) = lower($2)
		`, p.ProfessionalID, p.Email).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", err
		}
	}
	if p.Phone != "" {
		err := tx.QueryRow(ctx, `
			SELECT id::text FROM patients
			WHERE professional_id = $1 AND phone = $2
		`, p.ProfessionalID, p.Phone).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", err
		}
	}

	err := tx.QueryRow(ctx, `
		INSERT INTO patients (professional_id, name, email, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING id::text
	`, p.ProfessionalID, p.Name, p.Email, p.Phone).Scan(&id)
	return id, err
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// IsConflict reports an exclusion-constraint violation (23P01): the slot was
// taken by a concurrent write between the advisory check and this insert.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
