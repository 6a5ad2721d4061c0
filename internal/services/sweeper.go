package service

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically makes lapsed reservations physically expired. It is
// an optimization only: every availability read already treats a lapsed
// hold as expired, so the service stays correct if the sweeper never runs.
type Sweeper struct {
	reservations ReservationService
	interval     time.Duration
}

func NewSweeper(reservations ReservationService, interval time.Duration) *Sweeper {
	return &Sweeper{reservations: reservations, interval: interval}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:

			ids, err := s.reservations.SweepExpired(ctx)
			if err != nil {
				slog.Error("Reservation sweep failed", slog.String("error", err.Error()))

				continue
			}

			if len(ids) > 0 {
				slog.Info("Swept expired reservations", slog.Int("count", len(ids)))
			}

		case <-ctx.Done():
			return
		}
	}
}
