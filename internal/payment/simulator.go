package payment

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"ms-boost/internal/models"
	"ms-boost/internal/utils"
)

// Simulator approves a configurable share of charges after a fixed delay.
type Simulator struct {
	Delay       time.Duration
	SuccessRate float64

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSimulator(delay time.Duration, successRate float64) *Simulator {
	return NewSeededSimulator(delay, successRate, time.Now().UnixNano())
}

func NewSeededSimulator(delay time.Duration, successRate float64, seed int64) *Simulator {
	return &Simulator{
		Delay:       delay,
		SuccessRate: successRate,
		rnd:         rand.New(rand.NewSource(seed)),
	}
}

func (s *Simulator) Name() string {
	return models.PaymentMethodSimulator
}

func (s *Simulator) Charge(ctx context.Context, order *models.BoostOrder) (*Result, error) {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	roll := s.rnd.Float64()
	s.mu.Unlock()

	if roll >= s.SuccessRate {
		return &Result{Success: false, Message: "simulated payment declined"}, nil
	}
	return &Result{
		Success:   true,
		Reference: utils.GenerateReference("sim"),
		Message:   "simulated payment approved",
	}, nil
}
