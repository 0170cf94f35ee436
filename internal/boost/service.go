package boost

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-boost/internal/apperror"
	boostdb "ms-boost/internal/boost/db"
	"ms-boost/internal/config"
	listingdb "ms-boost/internal/listing/db"
	"ms-boost/internal/logger"
	"ms-boost/internal/metrics"
	"ms-boost/internal/models"
	"ms-boost/internal/payment"
	"ms-boost/internal/utils"
)

type DBLayer interface {
	InsertOrder(ctx context.Context, order *models.BoostOrder) error
	GetOrderByID(ctx context.Context, orderID string) (*models.BoostOrder, error)
	FindOpenOrder(ctx context.Context, listingID int64) (*models.BoostOrder, error)
	ActivateOrder(ctx context.Context, orderID string, start, end time.Time, reference string) (*models.BoostOrder, error)
	BumpPaymentAttempt(ctx context.Context, orderID string, attempt int, now time.Time) error
	CancelOrder(ctx context.Context, orderID string, now time.Time) (*models.BoostOrder, error)
	ExpireOrders(ctx context.Context, now time.Time) ([]models.BoostOrder, error)
	ExpireListingOrders(ctx context.Context, listingID int64, now time.Time) ([]models.BoostOrder, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]models.BoostOrder, error)
	ListActiveOrders(ctx context.Context, now time.Time) ([]models.BoostOrder, error)
	IsBoosted(ctx context.Context, listingID int64, now time.Time) (bool, error)
}

type ListingReader interface {
	GetListingByID(ctx context.Context, listingID int64) (*models.Listing, error)
}

type RedisLock interface {
	LockListing(ctx context.Context, listingID int64) (string, bool, error)
	UnlockListing(ctx context.Context, listingID int64, token string) error
}

type EventPublisher interface {
	PublishBoostEvent(ctx context.Context, event models.BoostEvent) error
}

type BoostService struct {
	DB       DBLayer
	Listings ListingReader
	Lock     RedisLock
	Payments payment.Gateway
	Events   EventPublisher
	Metrics  *metrics.MetricsManager
	Logger   *logger.Logger
	Config   config.BoostConfig
	// Clock defaults to time.Now.
	Clock func() time.Time
}

func NewBoostService(db DBLayer, listings ListingReader, lock RedisLock, payments payment.Gateway, events EventPublisher, m *metrics.MetricsManager, log *logger.Logger, cfg config.BoostConfig) *BoostService {
	return &BoostService{
		DB:       db,
		Listings: listings,
		Lock:     lock,
		Payments: payments,
		Events:   events,
		Metrics:  m,
		Logger:   log,
		Config:   cfg,
	}
}

func (s *BoostService) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

// CreateOrder opens a pending boost for a listing owned by requesterID.
func (s *BoostService) CreateOrder(ctx context.Context, requesterID string, listingID int64) (*models.BoostOrder, error) {
	if strings.TrimSpace(requesterID) == "" {
		return nil, apperror.Validation("requester is required")
	}
	if listingID <= 0 {
		return nil, apperror.Validation("listingId is required")
	}

	// Lapsed boosts must not block a new one.
	s.expireListing(ctx, listingID)

	listing, err := s.getListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != requesterID {
		s.Logger.LogSecurity("BOOST_FORBIDDEN", fmt.Sprintf("user %s tried to boost listing %d owned by %s", requesterID, listingID, listing.SellerID))
		return nil, apperror.Forbidden("you can only boost your own listings")
	}

	return s.withListingLock(ctx, listingID, func() (*models.BoostOrder, error) {
		open, err := s.DB.FindOpenOrder(ctx, listingID)
		if err != nil {
			return nil, apperror.Internal("check open boost orders", err)
		}
		if open != nil {
			return nil, conflictFor(open)
		}

		now := s.now()
		order := &models.BoostOrder{
			OrderID:       utils.GenerateOrderID(),
			UserID:        requesterID,
			ListingID:     listingID,
			Amount:        s.Config.Amount,
			Status:        models.BoostStatusPending,
			PaymentMethod: s.paymentMethod(),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.DB.InsertOrder(ctx, order); err != nil {
			if errors.Is(err, boostdb.ErrDuplicateOpenOrder) {
				return nil, apperror.Conflict("boost already requested for this listing")
			}
			return nil, apperror.Internal("create boost order", err)
		}
		order.Listing = listing

		s.Logger.LogBoost("create", order.OrderID, fmt.Sprintf("pending boost for listing %d (amount %d)", listingID, order.Amount))
		s.Metrics.OrderCreated()
		s.publish(ctx, models.BoostEventCreated, order, "")
		return order, nil
	})
}

func conflictFor(open *models.BoostOrder) error {
	if open.Status == models.BoostStatusActive {
		return apperror.Conflict("listing is already actively boosted")
	}
	return apperror.Conflict("boost already requested, awaiting payment")
}

// ActivateOrder charges a pending order and, on success, starts its boost window.
func (s *BoostService) ActivateOrder(ctx context.Context, orderID string) (*models.BoostOrder, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.BoostStatusPending {
		return nil, apperror.InvalidState("order is not pending")
	}
	if s.Payments == nil {
		return nil, apperror.Internal("activate boost order", errors.New("no payment gateway configured"))
	}

	chargeCtx := ctx
	if s.Config.PaymentTimeout > 0 {
		var cancel context.CancelFunc
		chargeCtx, cancel = context.WithTimeout(ctx, s.Config.PaymentTimeout)
		defer cancel()
	}

	started := time.Now()
	result, err := s.Payments.Charge(chargeCtx, order)
	s.Metrics.ObservePayment(time.Since(started))

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(chargeCtx.Err(), context.DeadlineExceeded) {
			s.paymentFailed(ctx, order, "timeout")
			return nil, apperror.PaymentTimeout("payment timed out, order remains pending", err)
		}
		s.paymentFailed(ctx, order, "error")
		return nil, apperror.PaymentFailed("payment failed, order remains pending", err)
	}
	if result == nil || !result.Success {
		s.paymentFailed(ctx, order, "declined")
		return nil, apperror.PaymentFailed("payment failed, order remains pending", nil)
	}

	start := s.now()
	end := start.Add(s.Config.Duration)
	activated, err := s.DB.ActivateOrder(ctx, order.OrderID, start, end, result.Reference)
	if errors.Is(err, boostdb.ErrStatusChanged) {
		s.Logger.Error("BOOST", fmt.Sprintf("Order %s was charged (%s) but left pending state concurrently", order.OrderID, result.Reference))
		return nil, apperror.InvalidState("order is not pending")
	}
	if err != nil {
		return nil, apperror.Internal("activate boost order", err)
	}

	s.Logger.LogBoost("activate", activated.OrderID, fmt.Sprintf("boost runs until %s", end.Format(time.RFC3339)))
	s.Metrics.OrderActivated()
	s.publish(ctx, models.BoostEventActivated, activated, "")
	return activated, nil
}

func (s *BoostService) paymentFailed(ctx context.Context, order *models.BoostOrder, reason string) {
	s.Logger.Warn("PAYMENT", fmt.Sprintf("Payment for order %s failed (%s), order stays pending", order.OrderID, reason))
	err := s.DB.BumpPaymentAttempt(ctx, order.OrderID, order.PaymentAttempts, s.now())
	if err != nil && !errors.Is(err, boostdb.ErrStatusChanged) {
		s.Logger.Error("BOOST", fmt.Sprintf("Failed to record payment attempt %d of order %s: %v", order.PaymentAttempts, order.OrderID, err))
	}
	s.Metrics.PaymentFailed(reason)
	s.publish(ctx, models.BoostEventPaymentFailed, order, reason)
}

// CancelOrder cancels a pending or active order. Terminal orders are rejected.
func (s *BoostService) CancelOrder(ctx context.Context, orderID string) (*models.BoostOrder, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsOpen() {
		return nil, apperror.InvalidState(fmt.Sprintf("order cannot be cancelled from status %s", order.Status))
	}

	cancelled, err := s.DB.CancelOrder(ctx, orderID, s.now())
	if errors.Is(err, boostdb.ErrStatusChanged) {
		return nil, apperror.InvalidState("order is no longer pending or active")
	}
	if err != nil {
		return nil, apperror.Internal("cancel boost order", err)
	}

	s.Logger.LogBoost("cancel", cancelled.OrderID, fmt.Sprintf("cancelled from %s", order.Status))
	s.Metrics.OrderCancelled()
	s.publish(ctx, models.BoostEventCancelled, cancelled, "")
	return cancelled, nil
}

// SweepExpired expires every lapsed active order and returns how many changed.
func (s *BoostService) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.DB.ExpireOrders(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired boosts: %w", err)
	}
	s.afterExpiry(ctx, expired, "sweep")
	return len(expired), nil
}

// expireListing is the best-effort per-listing sweep run before a new boost.
func (s *BoostService) expireListing(ctx context.Context, listingID int64) {
	expired, err := s.DB.ExpireListingOrders(ctx, listingID, s.now())
	if err != nil {
		s.Logger.Error("SWEEPER", fmt.Sprintf("Failed to expire boosts of listing %d: %v", listingID, err))
		return
	}
	s.afterExpiry(ctx, expired, fmt.Sprintf("listing %d", listingID))
}

func (s *BoostService) afterExpiry(ctx context.Context, expired []models.BoostOrder, scope string) {
	if len(expired) == 0 {
		return
	}
	s.Logger.LogSweep(scope, len(expired))
	s.Metrics.OrdersExpired(len(expired))
	for i := range expired {
		s.publish(ctx, models.BoostEventExpired, &expired[i], "")
	}
}

func (s *BoostService) GetOrder(ctx context.Context, orderID string) (*models.BoostOrder, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, apperror.Validation("orderId is required")
	}
	order, err := s.DB.GetOrderByID(ctx, orderID)
	if errors.Is(err, boostdb.ErrOrderNotFound) {
		return nil, apperror.NotFound("boost order not found")
	}
	if err != nil {
		return nil, apperror.Internal("get boost order", err)
	}
	return order, nil
}

func (s *BoostService) ListUserOrders(ctx context.Context, userID string) ([]models.BoostOrder, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperror.Validation("userId is required")
	}
	orders, err := s.DB.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, apperror.Internal("list user boost orders", err)
	}
	if orders == nil {
		orders = []models.BoostOrder{}
	}
	return orders, nil
}

func (s *BoostService) ListAllActive(ctx context.Context) ([]models.BoostOrder, error) {
	orders, err := s.DB.ListActiveOrders(ctx, s.now())
	if err != nil {
		return nil, apperror.Internal("list active boosts", err)
	}
	if orders == nil {
		orders = []models.BoostOrder{}
	}
	return orders, nil
}

func (s *BoostService) IsBoosted(ctx context.Context, listingID int64) (bool, error) {
	if listingID <= 0 {
		return false, apperror.Validation("listingId is required")
	}
	boosted, err := s.DB.IsBoosted(ctx, listingID, s.now())
	if err != nil {
		return false, apperror.Internal("check boost status", err)
	}
	return boosted, nil
}

// SetFeatured grants or revokes a complimentary boost. Revoking a listing
// with no open order returns nil, nil.
func (s *BoostService) SetFeatured(ctx context.Context, listingID int64, featured bool) (*models.BoostOrder, error) {
	if listingID <= 0 {
		return nil, apperror.Validation("listingId is required")
	}

	s.expireListing(ctx, listingID)

	listing, err := s.getListing(ctx, listingID)
	if err != nil {
		return nil, err
	}

	return s.withListingLock(ctx, listingID, func() (*models.BoostOrder, error) {
		open, err := s.DB.FindOpenOrder(ctx, listingID)
		if err != nil {
			return nil, apperror.Internal("check open boost orders", err)
		}

		if !featured {
			if open == nil {
				return nil, nil
			}
			return s.CancelOrder(ctx, open.OrderID)
		}

		if open != nil && open.IsLive(s.now()) {
			return open, nil
		}
		if open != nil {
			if _, err := s.CancelOrder(ctx, open.OrderID); err != nil {
				return nil, err
			}
		}

		now := s.now()
		end := now.Add(s.Config.Duration)
		order := &models.BoostOrder{
			OrderID:       utils.GenerateOrderID(),
			UserID:        listing.SellerID,
			ListingID:     listingID,
			Amount:        0,
			Status:        models.BoostStatusActive,
			PaymentMethod: models.PaymentMethodComplimentary,
			BoostStart:    &now,
			BoostEnd:      &end,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.DB.InsertOrder(ctx, order); err != nil {
			if errors.Is(err, boostdb.ErrDuplicateOpenOrder) {
				return nil, apperror.Conflict("listing already has an open boost order")
			}
			return nil, apperror.Internal("feature listing", err)
		}
		order.Listing = listing

		s.Logger.LogBoost("feature", order.OrderID, fmt.Sprintf("complimentary boost for listing %d", listingID))
		s.Metrics.OrderActivated()
		s.publish(ctx, models.BoostEventActivated, order, "featured")
		return order, nil
	})
}

func (s *BoostService) getListing(ctx context.Context, listingID int64) (*models.Listing, error) {
	listing, err := s.Listings.GetListingByID(ctx, listingID)
	if errors.Is(err, listingdb.ErrListingNotFound) {
		return nil, apperror.NotFound("listing not found")
	}
	if err != nil {
		return nil, apperror.Internal("get listing", err)
	}
	return listing, nil
}

// withListingLock serialises check-then-insert per listing. If Redis is
// unavailable the partial unique index still rejects a second open order.
func (s *BoostService) withListingLock(ctx context.Context, listingID int64, fn func() (*models.BoostOrder, error)) (*models.BoostOrder, error) {
	if s.Lock == nil {
		return fn()
	}

	token, ok, err := s.Lock.LockListing(ctx, listingID)
	if err != nil {
		s.Logger.Warn("REDIS", fmt.Sprintf("Listing lock unavailable for %d, relying on unique index: %v", listingID, err))
		return fn()
	}
	if !ok {
		return nil, apperror.Conflict("boost request already in progress")
	}
	defer func() {
		if err := s.Lock.UnlockListing(context.WithoutCancel(ctx), listingID, token); err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("Failed to release listing lock %d: %v", listingID, err))
		}
	}()

	return fn()
}

func (s *BoostService) paymentMethod() string {
	if s.Payments == nil {
		return models.PaymentMethodSimulator
	}
	return s.Payments.Name()
}

// publish never fails the caller; the order state is already durable.
func (s *BoostService) publish(ctx context.Context, eventType string, order *models.BoostOrder, reason string) {
	if s.Events == nil {
		return
	}
	// Orders returned by conditional updates carry no listing; the title is best effort.
	if order.Listing == nil && s.Listings != nil {
		if listing, err := s.Listings.GetListingByID(ctx, order.ListingID); err == nil {
			order.Listing = listing
		}
	}
	event := models.NewBoostEvent(eventType, order, s.now())
	event.Reason = reason
	if err := s.Events.PublishBoostEvent(ctx, event); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish boost %s event for order %s: %v", eventType, order.OrderID, err))
	}
}
