package sweeper

import (
	"context"
	"fmt"
	"time"

	"ms-boost/internal/logger"
)

type Ledger interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Sweeper periodically expires lapsed boosts. Reads never depend on it having
// run; it only keeps stored statuses tidy.
type Sweeper struct {
	Ledger   Ledger
	Interval time.Duration
	Logger   *logger.Logger
}

func New(ledger Ledger, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{Ledger: ledger, Interval: interval, Logger: log}
}

// Run sweeps once, then on every tick until ctx is done. A zero interval
// disables the loop after the first sweep.
func (s *Sweeper) Run(ctx context.Context) {
	s.RunOnce(ctx)
	if s.Interval <= 0 {
		s.Logger.Info("SWEEPER", "Periodic sweep disabled")
		return
	}

	s.Logger.Info("SWEEPER", fmt.Sprintf("Sweeping expired boosts every %s", s.Interval))
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("SWEEPER", "Sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *Sweeper) RunOnce(ctx context.Context) int {
	n, err := s.Ledger.SweepExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.Logger.Error("SWEEPER", fmt.Sprintf("Sweep failed: %v", err))
		}
		return 0
	}
	if n == 0 {
		s.Logger.Debug("SWEEPER", "No lapsed boosts")
	}
	return n
}
