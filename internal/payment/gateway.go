package payment

import (
	"context"
	"fmt"

	"ms-boost/internal/config"
	"ms-boost/internal/logger"
	"ms-boost/internal/models"
)

// Result is the outcome of a charge that reached the provider.
type Result struct {
	Success   bool
	Reference string
	Message   string
}

// Gateway charges a boost order. An error means the outcome is unknown
// (transport failure, timeout); a declined charge is a Result with Success false.
// Implementations must not touch the order itself.
type Gateway interface {
	Name() string
	Charge(ctx context.Context, order *models.BoostOrder) (*Result, error)
}

func NewGateway(cfg config.PaymentConfig, log *logger.Logger) (Gateway, error) {
	switch cfg.Provider {
	case "", models.PaymentMethodSimulator:
		log.Info("PAYMENT", fmt.Sprintf("Using payment simulator (delay=%s, success rate=%.2f)", cfg.SimulatedDelay, cfg.SuccessRate))
		return NewSimulator(cfg.SimulatedDelay, cfg.SuccessRate), nil
	case models.PaymentMethodStripe:
		return NewStripeGateway(cfg, log)
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
	}
}
