package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Boost order statuses. expired and cancelled are terminal.
const (
	BoostStatusPending   = "pending"
	BoostStatusActive    = "active"
	BoostStatusExpired   = "expired"
	BoostStatusCancelled = "cancelled"
)

const (
	PaymentMethodSimulator     = "simulator"
	PaymentMethodStripe        = "stripe"
	PaymentMethodComplimentary = "complimentary"
)

type BoostOrder struct {
	bun.BaseModel `bun:"table:boost_orders,alias:bo"`

	ID               int64      `bun:"id,pk,autoincrement" json:"-"`
	OrderID          string     `bun:"order_id,unique,notnull" json:"orderId"`
	UserID           string     `bun:"user_id,notnull" json:"userId"`
	ListingID        int64      `bun:"listing_id,notnull" json:"listingId"`
	Amount           int64      `bun:"amount,notnull" json:"amount"`
	Status           string     `bun:"status,notnull" json:"status"`
	PaymentMethod    string     `bun:"payment_method,notnull" json:"paymentMethod"`
	PaymentReference string     `bun:"payment_reference,nullzero" json:"paymentReference,omitempty"`
	BoostStart       *time.Time `bun:"boost_start_date" json:"boostStart"`
	BoostEnd         *time.Time `bun:"boost_end_date" json:"boostEnd"`
	PaymentAttempts  int        `bun:"payment_attempts,notnull,default:0" json:"-"`
	CreatedAt        time.Time  `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt        time.Time  `bun:"updated_at,notnull" json:"updatedAt"`

	Listing *Listing `bun:"rel:belongs-to,join:listing_id=id" json:"listing,omitempty"`
}

// IsOpen reports whether the order still blocks new boosts for its listing.
func (o *BoostOrder) IsOpen() bool {
	return o.Status == BoostStatusPending || o.Status == BoostStatusActive
}

// IsLive reports whether the order currently boosts its listing.
func (o *BoostOrder) IsLive(now time.Time) bool {
	return o.Status == BoostStatusActive && o.BoostEnd != nil && o.BoostEnd.After(now)
}

type CreateBoostRequest struct {
	ListingID int64 `json:"listingId"`
}

type FeatureRequest struct {
	IsFeatured *bool `json:"isFeatured"`
}
