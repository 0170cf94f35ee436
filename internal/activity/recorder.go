package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-boost/internal/apperror"
	"ms-boost/internal/kafka"
	"ms-boost/internal/logger"
	"ms-boost/internal/metrics"
	"ms-boost/internal/models"
	"ms-boost/internal/utils"
)

const (
	DefaultRecentLimit = 5
	MaxRecentLimit     = 50
)

type Store interface {
	InsertActivity(ctx context.Context, a *models.Activity) error
	RecentActivities(ctx context.Context, limit int) ([]models.Activity, error)
}

// Recorder turns boost events into the admin activity feed.
type Recorder struct {
	Store   Store
	Metrics *metrics.MetricsManager
	Logger  *logger.Logger
	Clock   func() time.Time
}

func NewRecorder(store Store, m *metrics.MetricsManager, log *logger.Logger) *Recorder {
	return &Recorder{Store: store, Metrics: m, Logger: log}
}

func (r *Recorder) now() time.Time {
	if r.Clock != nil {
		return r.Clock().UTC()
	}
	return time.Now().UTC()
}

func (r *Recorder) Record(ctx context.Context, a *models.Activity) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now()
	}
	if err := r.Store.InsertActivity(ctx, a); err != nil {
		return err
	}
	r.Metrics.ActivityRecorded()
	return nil
}

// HandleMessage is the kafka.MessageHandler for the boost topics. Undecodable
// payloads are dropped so one bad record cannot stall the feed.
func (r *Recorder) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var ev models.BoostEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		r.Logger.Warn("ACTIVITY", fmt.Sprintf("Dropping undecodable message on %s: %v", msg.Topic, err))
		return nil
	}
	if ev.OrderID == "" || ev.Type == "" {
		r.Logger.Warn("ACTIVITY", fmt.Sprintf("Dropping incomplete boost event on %s", msg.Topic))
		return nil
	}

	a := FromBoostEvent(ev)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = msg.Time.UTC()
	}
	if err := r.Record(ctx, a); err != nil {
		return fmt.Errorf("record %s activity for order %s: %w", ev.Type, ev.OrderID, err)
	}
	r.Logger.Debug("ACTIVITY", a.Description)
	return nil
}

// FromBoostEvent builds the feed entry of a boost lifecycle event.
func FromBoostEvent(ev models.BoostEvent) *models.Activity {
	title := ev.ListingTitle
	if title == "" {
		title = fmt.Sprintf("listing #%d", ev.ListingID)
	}

	var desc string
	switch ev.Type {
	case models.BoostEventCreated:
		desc = "Boost requested for " + title
	case models.BoostEventActivated:
		desc = "Boost activated for " + title
		if ev.PaymentMethod == models.PaymentMethodComplimentary {
			desc = "Listing featured: " + title
		}
	case models.BoostEventCancelled:
		desc = "Boost cancelled for " + title
	case models.BoostEventExpired:
		desc = "Boost expired for " + title
	case models.BoostEventPaymentFailed:
		desc = "Boost payment failed for " + title
	default:
		desc = fmt.Sprintf("Boost %s for %s", ev.Type, title)
	}

	meta := map[string]interface{}{
		"orderId":       ev.OrderID,
		"listingId":     ev.ListingID,
		"amount":        ev.Amount,
		"status":        ev.Status,
		"paymentMethod": ev.PaymentMethod,
	}
	if ev.Reason != "" {
		meta["reason"] = ev.Reason
	}

	return &models.Activity{
		Type:        models.ActivityTypeBoost,
		Action:      ev.Type,
		Description: desc,
		UserID:      ev.UserID,
		ReferenceID: ev.OrderID,
		Metadata:    meta,
		CreatedAt:   ev.OccurredAt.UTC(),
	}
}

// Recent returns the newest activities, limit defaulting to 5 and capped at 50.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]models.ActivityView, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	activities, err := r.Store.RecentActivities(ctx, limit)
	if err != nil {
		return nil, apperror.Internal("list recent activities", err)
	}

	now := r.now()
	views := make([]models.ActivityView, 0, len(activities))
	for _, a := range activities {
		views = append(views, models.ActivityView{Activity: a, TimeAgo: utils.TimeAgo(now, a.CreatedAt)})
	}
	return views, nil
}
