package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"event-registration/internal/lib/logger/sl"
	"event-registration/monitoring"
)

type StaleSweeper interface {
	DeleteStaleByAge(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Reaper removes payers that never left pending, together with their
// registrations. Settled payers and payers flagged for review are kept.
type Reaper struct {
	store  StaleSweeper
	maxAge time.Duration
	log    *slog.Logger
}

func NewReaper(store StaleSweeper, maxAge time.Duration, log *slog.Logger) *Reaper {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Reaper{store: store, maxAge: maxAge, log: log}
}

func (r *Reaper) Sweep(ctx context.Context) (int64, error) {
	return r.SweepOlderThan(ctx, r.maxAge)
}

func (r *Reaper) SweepOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	const op = "services.Reaper.Sweep"

	n, err := r.store.DeleteStaleByAge(ctx, maxAge)
	if err != nil {
		r.log.Error("stale payer sweep failed", slog.Duration("max_age", maxAge), sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	monitoring.TrackReaped(n)
	r.log.Info("stale payers removed", slog.Int64("deleted", n), slog.Duration("max_age", maxAge))
	return n, nil
}
