package waitlist

import (
	"context"
	"log/slog"
	"time"

	"github.com/clinicbook/clinicbook/services/booking-service/internal/civil"
)

// Sweeper periodically expires notified entries whose priority window has
// lapsed. Lazy expiry on read already keeps single entries honest; the sweep
// bounds how long a dead offer can sit unobserved.
type Sweeper struct {
	repo     *Repository
	clock    *civil.Clock
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

func NewSweeper(repo *Repository, clock *civil.Clock, logger *slog.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{repo: repo, clock: clock, logger: logger, interval: interval, batch: 50}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("waitlist sweeper started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("waitlist sweeper stopped")
			return
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				s.logger.Error("waitlist sweep failed", "error", err)
			}
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) error {
	for {
		tx, err := s.repo.Begin(ctx)
		if err != nil {
			return err
		}
		expired, err := s.repo.ExpireStale(ctx, tx, s.clock.Now(), s.batch)
		if err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		for _, e := range expired {
			s.logger.Info("waitlist offer expired", "entry_id", e.ID, "professional_id", e.ProfessionalID)
		}
		if len(expired) < s.batch {
			return nil
		}
	}
}
