package models

import "time"

const (
	BoostEventCreated       = "created"
	BoostEventActivated     = "activated"
	BoostEventCancelled     = "cancelled"
	BoostEventExpired       = "expired"
	BoostEventPaymentFailed = "payment_failed"
)

// BoostEvent is the payload published on the boost topics.
type BoostEvent struct {
	Type          string     `json:"type"`
	OrderID       string     `json:"orderId"`
	UserID        string     `json:"userId"`
	ListingID     int64      `json:"listingId"`
	ListingTitle  string     `json:"listingTitle,omitempty"`
	Amount        int64      `json:"amount"`
	Status        string     `json:"status"`
	PaymentMethod string     `json:"paymentMethod"`
	BoostStart    *time.Time `json:"boostStart,omitempty"`
	BoostEnd      *time.Time `json:"boostEnd,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	OccurredAt    time.Time  `json:"occurredAt"`
}

func NewBoostEvent(eventType string, order *BoostOrder, at time.Time) BoostEvent {
	ev := BoostEvent{
		Type:          eventType,
		OrderID:       order.OrderID,
		UserID:        order.UserID,
		ListingID:     order.ListingID,
		Amount:        order.Amount,
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
		BoostStart:    order.BoostStart,
		BoostEnd:      order.BoostEnd,
		OccurredAt:    at,
	}
	if order.Listing != nil {
		ev.ListingTitle = order.Listing.Title()
	}
	return ev
}
