package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicbook/clinicbook/libs/db"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/civil"
)

// Window is a professional's recurring weekly opening for one weekday.
// Absence of a row means the professional is closed that day.
type Window struct {
	ProfessionalID string
	Weekday        int // Sunday=0
	StartTime      civil.TimeOfDay
	EndTime        civil.TimeOfDay
	IsAvailable    bool
}

// Break is a one-off blocked interval on a specific calendar day,
// independent of the recurring schedule.
type Break struct {
	ID             string
	ProfessionalID string
	Date           civil.Date
	StartTime      civil.TimeOfDay
	EndTime        civil.TimeOfDay
	CreatedAt      time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// WindowFor returns the enabled window for a weekday, or ok=false when the
// day is closed.
func (r *Repository) WindowFor(ctx context.Context, professionalID string, weekday int) (Window, bool, error) {
	var w Window
	var start, end int
	err := r.pool.QueryRow(ctx, `
		SELECT professional_id::text, weekday, start_minute, end_minute, is_available
		FROM schedule_windows
		WHERE professional_id = $1 AND weekday = $2 AND is_available
	`, professionalID, weekday).Scan(&w.ProfessionalID, &w.Weekday, &start, &end, &w.IsAvailable)
	if err == pgx.ErrNoRows {
		return Window{}, false, nil
	}
	if err != nil {
		return Window{}, false, err
	}
	w.StartTime = civil.TimeOfDay(start)
	w.EndTime = civil.TimeOfDay(end)
	return w, true, nil
}

func (r *Repository) ListWindows(ctx context.Context, professionalID string) ([]Window, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT professional_id::text, weekday, start_minute, end_minute, is_available
		FROM schedule_windows
		WHERE professional_id = $1
		ORDER BY weekday ASC
	`, professionalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Window
	for rows.Next() {
		var w Window
		var start, end int
		if err := rows.Scan(&w.ProfessionalID, &w.Weekday, &start, &end, &w.IsAvailable); err != nil {
			return nil, err
		}
		w.StartTime = civil.TimeOfDay(start)
		w.EndTime = civil.TimeOfDay(end)
		out = append(out, w)
	}
	return out, rows.Err()
}

// UpsertWindow writes a weekday window. Disabling a day deletes its row, so
// "no row" stays the single representation of "closed".
func (r *Repository) UpsertWindow(ctx context.Context, w Window) error {
	if !w.IsAvailable {
		_, err := r.pool.Exec(ctx, `
			DELETE FROM schedule_windows
			WHERE professional_id = $1 AND weekday = $2
		`, w.ProfessionalID, w.Weekday)
		return err
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO schedule_windows (professional_id, weekday, start_minute, end_minute, is_available)
		VALUES ($1, $2, $3, $4, true)
		ON CONFLICT (professional_id, weekday) DO UPDATE
		SET start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute,
			is_available = true,
			updated_at = now()
	`, w.ProfessionalID, w.Weekday, int(w.StartTime), int(w.EndTime))
	return err
}

func (r *Repository) CreateBreak(ctx context.Context, b Break) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO break_intervals (id, professional_id, break_date, start_minute, end_minute)
		VALUES ($1, $2, $3, $4, $5)
	`, id, b.ProfessionalID, string(b.Date), int(b.StartTime), int(b.EndTime))
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) DeleteBreak(ctx context.Context, professionalID, breakID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM break_intervals
		WHERE professional_id = $1 AND id = $2
	`, professionalID, breakID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// BreaksInRange returns all breaks for the professional between two calendar
// dates inclusive.
func (r *Repository) BreaksInRange(ctx context.Context, professionalID string, from, to civil.Date) ([]Break, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, professional_id::text, break_date::text, start_minute, end_minute, created_at
		FROM break_intervals
		WHERE professional_id = $1
			AND break_date >= $2
			AND break_date <= $3
		ORDER BY break_date ASC, start_minute ASC
	`, professionalID, string(from), string(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBreaks(rows)
}

// BreaksOn is BreaksInRange for a single day; the waitlist engine uses it to
// verify a freed slot is genuinely offerable.
func (r *Repository) BreaksOn(ctx context.Context, professionalID string, date civil.Date) ([]Break, error) {
	return r.BreaksInRange(ctx, professionalID, date, date)
}

func scanBreaks(rows pgx.Rows) ([]Break, error) {
	var out []Break
	for rows.Next() {
		var b Break
		var date string
		var start, end int
		if err := rows.Scan(&b.ID, &b.ProfessionalID, &date, &start, &end, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Date = civil.Date(date)
		b.StartTime = civil.TimeOfDay(start)
		b.EndTime = civil.TimeOfDay(end)
		out = append(out, b)
	}
	return out, rows.Err()
}
