package plans

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/clinicbook/clinicbook/libs/db"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/civil"
)

// Entitlement is the locally cached plan row for one professional, kept in
// sync by the billing events consumer.
type Entitlement struct {
	ProfessionalID         string
	Tier                   string
	MaxMonthlyAppointments int
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context, tx pgx.Tx, professionalID string) (Entitlement, bool, error) {
	var e Entitlement
	err := tx.QueryRow(ctx, `
		SELECT professional_id::text, tier, max_monthly_appointments
		FROM professional_entitlements
		WHERE professional_id = $1
	`, professionalID).Scan(&e.ProfessionalID, &e.Tier, &e.MaxMonthlyAppointments)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entitlement{}, false, nil
	}
	if err != nil {
		return Entitlement{}, false, err
	}
	return e, true, nil
}

func (r *Repository) Upsert(ctx context.Context, tx pgx.Tx, e Entitlement) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO professional_entitlements (professional_id, tier, max_monthly_appointments)
		VALUES ($1, $2, $3)
		ON CONFLICT (professional_id) DO UPDATE
		SET tier = EXCLUDED.tier,
			max_monthly_appointments = EXCLUDED.max_monthly_appointments,
			updated_at = now()
	`, e.ProfessionalID, e.Tier, e.MaxMonthlyAppointments)
	return err
}

// CountActiveInMonth counts non-cancelled, non-rescheduled appointments in the
// calendar month containing date.
func (r *Repository) CountActiveInMonth(ctx context.Context, tx pgx.Tx, professionalID string, date civil.Date) (int, error) {
	var count int
	err := tx.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE professional_id = $1
			AND status NOT IN ('cancelled', 'rescheduled')
			AND date_trunc('month', appointment_date) = date_trunc('month', $2::date)
	`, professionalID, string(date)).Scan(&count)
	return count, err
}
