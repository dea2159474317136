// Package plans enforces plan-level booking caps. The engine never reaches
// into billing directly: it consults this policy, which is fed by
// billing.entitlements.updated.v1 events and falls back to free-tier limits
// when no entitlement row exists yet.
package plans

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/clinicbook/clinicbook/services/booking-service/internal/apperr"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/civil"
)

// Policy is the external plan-limit predicate consulted by the booking facade.
type Policy interface {
	// CheckBookingAllowed returns a LimitReached error when creating one more
	// appointment in the month of date would exceed the professional's cap.
	CheckBookingAllowed(ctx context.Context, tx pgx.Tx, professionalID string, date civil.Date) error
}

type Limits struct {
	Tier                   string `json:"tier"`
	MaxMonthlyAppointments int    `json:"max_monthly_appointments"`
}

func LimitsForTier(tier string) Limits {
	switch tier {
	case "pro":
		return Limits{Tier: "pro", MaxMonthlyAppointments: 2000}
	case "clinic":
		return Limits{Tier: "clinic", MaxMonthlyAppointments: 10000}
	default:
		return Limits{Tier: "free", MaxMonthlyAppointments: 100}
	}
}

// Allowed is the cap decision. max <= 0 means unlimited.
func Allowed(activeThisMonth, max int) bool {
	if max <= 0 {
		return true
	}
	return activeThisMonth < max
}

type EntitlementPolicy struct {
	repo *Repository
}

func NewEntitlementPolicy(repo *Repository) *EntitlementPolicy {
	return &EntitlementPolicy{repo: repo}
}

func (p *EntitlementPolicy) CheckBookingAllowed(ctx context.Context, tx pgx.Tx, professionalID string, date civil.Date) error {
	ent, ok, err := p.repo.Get(ctx, tx, professionalID)
	if err != nil {
		return err
	}
	max := LimitsForTier("free").MaxMonthlyAppointments
	if ok && ent.MaxMonthlyAppointments > 0 {
		max = ent.MaxMonthlyAppointments
	}

	count, err := p.repo.CountActiveInMonth(ctx, tx, professionalID, date)
	if err != nil {
		return err
	}
	if !Allowed(count, max) {
		return apperr.New(apperr.LimitReached, "monthly appointment limit reached")
	}
	return nil
}

// Unlimited is a no-op policy for deployments without billing.
type Unlimited struct{}

func (Unlimited) CheckBookingAllowed(context.Context, pgx.Tx, string, civil.Date) error {
	return nil
}

var _ Policy = (*EntitlementPolicy)(nil)
var _ Policy = Unlimited{}
