package waitlist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicbook/clinicbook/libs/db"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/civil"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const entryColumns = `
	id::text, professional_id::text, COALESCE(service_ref::text, ''), name, email, phone,
	preferred_date::text, COALESCE(preferred_start_minute, 0), COALESCE(preferred_end_minute, 0),
	status, token, notified_at, expires_at,
	COALESCE(available_date::text, ''), COALESCE(available_start_minute, 0), COALESCE(available_end_minute, 0),
	created_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var prefDate, availDate string
	var prefStart, prefEnd, availStart, availEnd int
	err := row.Scan(
		&e.ID, &e.ProfessionalID, &e.ServiceRef, &e.Name, &e.Email, &e.Phone,
		&prefDate, &prefStart, &prefEnd,
		&e.Status, &e.Token, &e.NotifiedAt, &e.ExpiresAt,
		&availDate, &availStart, &availEnd,
		&e.CreatedAt,
	)
	if err != nil {
		return Entry{}, err
	}
	e.PreferredDate = civil.Date(prefDate)
	e.PreferredStart = civil.TimeOfDay(prefStart)
	e.PreferredEnd = civil.TimeOfDay(prefEnd)
	e.AvailableDate = civil.Date(availDate)
	e.AvailableStart = civil.TimeOfDay(availStart)
	e.AvailableEnd = civil.TimeOfDay(availEnd)
	return e, nil
}

func (r *Repository) Create(ctx context.Context, e *Entry) error {
	if e.Token == "" {
		e.Token = uuid.NewString()
	}
	var serviceRef any
	if e.ServiceRef != "" {
		serviceRef = e.ServiceRef
	}
	var prefStart, prefEnd any
	if e.HasTimeWindow() {
		prefStart = int(e.PreferredStart)
		prefEnd = int(e.PreferredEnd)
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO waitlist_entries
			(professional_id, service_ref, name, email, phone, preferred_date,
			 preferred_start_minute, preferred_end_minute, status, token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', $9)
		RETURNING id::text
	`, e.ProfessionalID, serviceRef, e.Name, e.Email, e.Phone, string(e.PreferredDate),
		prefStart, prefEnd, e.Token).Scan(&e.ID)
}

func (r *Repository) GetByToken(ctx context.Context, token string) (Entry, error) {
	return scanEntry(r.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE token = $1
	`, token))
}

func (r *Repository) GetByTokenForUpdate(ctx context.Context, tx pgx.Tx, token string) (Entry, error) {
	return scanEntry(tx.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE token = $1
		FOR UPDATE
	`, token))
}

// NextPendingMatch claims the oldest pending entry matching the freed slot.
// FIFO on (created_at, id); SKIP LOCKED keeps concurrent cancellations from
// blocking on each other's candidates. Returns ok=false when nobody matches.
func (r *Repository) NextPendingMatch(ctx context.Context, tx pgx.Tx, slot FreedSlot, matchTimeWindow bool) (Entry, bool, error) {
	var serviceRef any
	if slot.ServiceRef != "" {
		serviceRef = slot.ServiceRef
	}
	e, err := scanEntry(tx.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE professional_id = $1
			AND status = 'pending'
			AND preferred_date = $2
			AND (service_ref IS NULL OR $3::uuid IS NULL OR service_ref = $3)
			AND (
				NOT $6::bool
				OR preferred_start_minute IS NULL
				OR (preferred_start_minute < $5 AND preferred_end_minute > $4)
			)
		ORDER BY created_at ASC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, slot.ProfessionalID, string(slot.Date), serviceRef, int(slot.Start), int(slot.End), matchTimeWindow))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// MarkNotified claims the entry for the freed slot and stamps the offer
// window. This runs inside the cancellation transaction, before any I/O that
// could race, so a slot is owned by at most one notified entry.
func (r *Repository) MarkNotified(ctx context.Context, tx pgx.Tx, entryID string, slot FreedSlot, notifiedAt, expiresAt time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE waitlist_entries
		SET status = 'notified',
			notified_at = $2,
			expires_at = $3,
			available_date = $4,
			available_start_minute = $5,
			available_end_minute = $6,
			updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, entryID, notifiedAt, expiresAt, string(slot.Date), int(slot.Start), int(slot.End))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Transition moves an entry between states with a compare-and-set on the
// current status, so repeated or racing transitions are no-ops.
func (r *Repository) Transition(ctx context.Context, tx pgx.Tx, entryID, from, to string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE waitlist_entries
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, entryID, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ExpireStale flips timed-out notified entries to expired and returns them.
// Used by the periodic sweep; the same transition also happens lazily on
// read, and both paths are idempotent.
func (r *Repository) ExpireStale(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := tx.Query(ctx, `
		UPDATE waitlist_entries
		SET status = 'expired', updated_at = now()
		WHERE id IN (
			SELECT id FROM waitlist_entries
			WHERE status = 'notified' AND expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+entryColumns+`
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
