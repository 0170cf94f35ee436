package models

import (
	"strconv"
	"time"

	"github.com/uptrace/bun"
)

type ListingImage struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type Listing struct {
	bun.BaseModel `bun:"table:listings,alias:l"`

	ID             int64          `bun:"id,pk,autoincrement" json:"id"`
	Make           string         `bun:"make,notnull" json:"make"`
	Model          string         `bun:"model,notnull" json:"model"`
	Year           int            `bun:"year,notnull" json:"year"`
	Price          int64          `bun:"price,notnull" json:"price"`
	FuelType       string         `bun:"fuel_type" json:"fuelType"`
	Transmission   string         `bun:"transmission" json:"transmission"`
	Color          string         `bun:"color" json:"color"`
	Mileage        int            `bun:"mileage" json:"mileage"`
	Location       string         `bun:"location" json:"location"`
	Description    string         `bun:"description" json:"description"`
	Images         []ListingImage `bun:"images,type:jsonb" json:"images"`
	SellerID       string         `bun:"seller_id,notnull" json:"sellerId"`
	SellerName     string         `bun:"seller_name" json:"sellerName"`
	CreatedAt      time.Time      `bun:"created_at,notnull" json:"createdAt"`
	ExpirationDate time.Time      `bun:"expiration_date,notnull" json:"expirationDate"`
}

// Title is the short human label used in activity descriptions.
func (l *Listing) Title() string {
	if l == nil {
		return ""
	}
	return strconv.Itoa(l.Year) + " " + l.Make + " " + l.Model
}

// ListingView is a listing read together with its boost projection.
type ListingView struct {
	Listing `bun:",extend"`

	IsBoosted    bool       `bun:"is_boosted,scanonly" json:"isBoosted"`
	BoostEndDate *time.Time `bun:"boost_end_date,scanonly" json:"boostEndDate,omitempty"`
}

type ListingInput struct {
	Make         string `json:"make"`
	Model        string `json:"model"`
	Year         int    `json:"year"`
	Price        int64  `json:"price"`
	FuelType     string `json:"fuelType"`
	Transmission string `json:"transmission"`
	Color        string `json:"color"`
	Mileage      int    `json:"mileage"`
	Location     string `json:"location"`
	Description  string `json:"description"`
}

// ExpirationRequest carries an RFC 3339 timestamp.
type ExpirationRequest struct {
	ExpirationDate string `json:"expirationDate"`
}

type ListingFilter struct {
	Query        string
	Make         string
	Model        string
	FuelType     string
	Transmission string
	Location     string
	MinPrice     int64
	MaxPrice     int64
	MinYear      int
	MaxYear      int
	Page         int
	Limit        int
}

type ListingPage struct {
	Listings   []ListingView `json:"listings"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	TotalPages int           `json:"totalPages"`
}
