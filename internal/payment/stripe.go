package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"ms-boost/internal/config"
	"ms-boost/internal/logger"
	"ms-boost/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// intentCreator is the slice of the Stripe client the gateway uses.
type intentCreator interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeGateway charges boost orders with a confirmed PaymentIntent.
type StripeGateway struct {
	intents       intentCreator
	currency      string
	paymentMethod string
	multiplier    int64
	log           *logger.Logger
}

func NewStripeGateway(cfg config.PaymentConfig, log *logger.Logger) (*StripeGateway, error) {
	if cfg.StripeSecretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(cfg.StripeSecretKey, nil)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrStripeClientInitFailed
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return newStripeGateway(sc.PaymentIntents, cfg, log), nil
}

func newStripeGateway(intents intentCreator, cfg config.PaymentConfig, log *logger.Logger) *StripeGateway {
	multiplier := cfg.AmountMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	return &StripeGateway{
		intents:       intents,
		currency:      cfg.StripeCurrency,
		paymentMethod: cfg.StripePaymentMethod,
		multiplier:    multiplier,
		log:           log,
	}
}

func (g *StripeGateway) Name() string {
	return models.PaymentMethodStripe
}

// IdempotencyKey is shared by concurrent activations of one attempt and
// changes once a failed attempt is recorded on the order.
func IdempotencyKey(order *models.BoostOrder) string {
	return fmt.Sprintf("boost-%s-%d", order.OrderID, order.PaymentAttempts)
}

func (g *StripeGateway) Charge(ctx context.Context, order *models.BoostOrder) (*Result, error) {
	if order.Amount <= 0 {
		return nil, fmt.Errorf("invalid payment amount: %d", order.Amount)
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(order.Amount * g.multiplier),
		Currency:      stripe.String(g.currency),
		PaymentMethod: stripe.String(g.paymentMethod),
		Description:   stripe.String(fmt.Sprintf("Listing boost %s", order.OrderID)),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
		Metadata: map[string]string{
			"order_id":   order.OrderID,
			"listing_id": strconv.FormatInt(order.ListingID, 10),
			"user_id":    order.UserID,
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(IdempotencyKey(order))

	g.log.LogPayment("stripe", order.OrderID, "Creating payment intent")
	pi, err := g.intents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			g.log.Warn("STRIPE", fmt.Sprintf("Card declined for order %s: %s", order.OrderID, stripeErr.Msg))
			return &Result{Success: false, Message: stripeErr.Msg}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("stripe payment intent: %w", err)
	}

	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		g.log.Warn("STRIPE", fmt.Sprintf("Payment intent %s for order %s ended in status %s", pi.ID, order.OrderID, pi.Status))
		return &Result{Success: false, Reference: pi.ID, Message: fmt.Sprintf("payment %s", pi.Status)}, nil
	}

	g.log.LogPayment("stripe", order.OrderID, fmt.Sprintf("Payment intent %s succeeded", pi.ID))
	return &Result{Success: true, Reference: pi.ID, Message: "payment succeeded"}, nil
}
