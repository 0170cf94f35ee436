package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	boostdb "ms-boost/internal/boost/db"
	"ms-boost/internal/models"

	"github.com/uptrace/bun"
)

var ErrListingNotFound = errors.New("listing not found")

type DB struct {
	Bun *bun.DB
}

func (d *DB) InsertListing(ctx context.Context, listing *models.Listing) error {
	if listing.Images == nil {
		listing.Images = []models.ListingImage{}
	}
	if _, err := d.Bun.NewInsert().Model(listing).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

func (d *DB) GetListingByID(ctx context.Context, listingID int64) (*models.Listing, error) {
	listing := new(models.Listing)
	err := d.Bun.NewSelect().
		Model(listing).
		Where("l.id = ?", listingID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get listing %d: %w", listingID, err)
	}
	return listing, nil
}

// GetListingView reads one listing with its boost projection.
func (d *DB) GetListingView(ctx context.Context, listingID int64, now time.Time) (*models.ListingView, error) {
	view := new(models.ListingView)
	q := d.Bun.NewSelect().
		Model(view).
		ColumnExpr("l.*")
	err := boostdb.BoostedColumns(q, now).
		Where("l.id = ?", listingID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get listing view %d: %w", listingID, err)
	}
	return view, nil
}

// ListListings returns one page of unexpired listings matching filter, boosted first,
// together with the total match count.
func (d *DB) ListListings(ctx context.Context, filter models.ListingFilter, now time.Time) ([]models.ListingView, int, error) {
	total, err := applyFilter(d.Bun.NewSelect().Model((*models.Listing)(nil)), filter, now).Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("count listings: %w", err)
	}

	views := make([]models.ListingView, 0, filter.Limit)
	if total == 0 {
		return views, 0, nil
	}

	q := d.Bun.NewSelect().
		Model(&views).
		ColumnExpr("l.*")
	q = boostdb.BoostedColumns(q, now)
	q = applyFilter(q, filter, now)
	q = boostdb.BoostedFirst(q).
		Limit(filter.Limit).
		Offset((filter.Page - 1) * filter.Limit)

	if err := q.Scan(ctx); err != nil {
		return nil, 0, fmt.Errorf("list listings: %w", err)
	}
	return views, total, nil
}

func applyFilter(q *bun.SelectQuery, f models.ListingFilter, now time.Time) *bun.SelectQuery {
	q = q.Where("l.expiration_date > ?", now)

	if s := strings.TrimSpace(f.Query); s != "" {
		like := "%" + s + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("LOWER(l.make) LIKE LOWER(?)", like).
				WhereOr("LOWER(l.model) LIKE LOWER(?)", like).
				WhereOr("LOWER(l.description) LIKE LOWER(?)", like)
		})
	}
	q = whereLike(q, "l.make", f.Make)
	q = whereLike(q, "l.model", f.Model)
	q = whereLike(q, "l.fuel_type", f.FuelType)
	q = whereLike(q, "l.transmission", f.Transmission)
	q = whereLike(q, "l.location", f.Location)

	if f.MinPrice > 0 {
		q = q.Where("l.price >= ?", f.MinPrice)
	}
	if f.MaxPrice > 0 {
		q = q.Where("l.price <= ?", f.MaxPrice)
	}
	if f.MinYear > 0 {
		q = q.Where("l.year >= ?", f.MinYear)
	}
	if f.MaxYear > 0 {
		q = q.Where("l.year <= ?", f.MaxYear)
	}
	return q
}

func whereLike(q *bun.SelectQuery, column, value string) *bun.SelectQuery {
	value = strings.TrimSpace(value)
	if value == "" {
		return q
	}
	return q.Where("LOWER(?) LIKE LOWER(?)", bun.Ident(column), "%"+value+"%")
}

// ListBySeller includes expired listings; sellers still manage them.
func (d *DB) ListBySeller(ctx context.Context, sellerID string, now time.Time) ([]models.ListingView, error) {
	views := []models.ListingView{}
	q := d.Bun.NewSelect().
		Model(&views).
		ColumnExpr("l.*")
	q = boostdb.BoostedColumns(q, now).
		Where("l.seller_id = ?", sellerID)
	if err := boostdb.BoostedFirst(q).Scan(ctx); err != nil {
		return nil, fmt.Errorf("list listings of seller %s: %w", sellerID, err)
	}
	return views, nil
}

func (d *DB) UpdateImages(ctx context.Context, listingID int64, images []models.ListingImage) error {
	res, err := d.Bun.NewUpdate().
		Model(&models.Listing{ID: listingID, Images: images}).
		Column("images").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update images of listing %d: %w", listingID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrListingNotFound
	}
	return nil
}

// UpdateListing writes the seller-editable columns of listing.
func (d *DB) UpdateListing(ctx context.Context, listing *models.Listing) error {
	res, err := d.Bun.NewUpdate().
		Model(listing).
		Column("make", "model", "year", "price", "fuel_type", "transmission", "color", "mileage", "location", "description").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update listing %d: %w", listing.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrListingNotFound
	}
	return nil
}

func (d *DB) UpdateExpiration(ctx context.Context, listingID int64, expiresAt time.Time) error {
	res, err := d.Bun.NewUpdate().
		Model(&models.Listing{ID: listingID, ExpirationDate: expiresAt}).
		Column("expiration_date").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update expiration of listing %d: %w", listingID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrListingNotFound
	}
	return nil
}

// DeleteListing removes the listing and its boost orders in one transaction.
func (d *DB) DeleteListing(ctx context.Context, listingID int64) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.BoostOrder)(nil)).
			Where("listing_id = ?", listingID).
			Exec(ctx); err != nil {
			return fmt.Errorf("delete boost orders of listing %d: %w", listingID, err)
		}

		res, err := tx.NewDelete().
			Model((*models.Listing)(nil)).
			Where("id = ?", listingID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete listing %d: %w", listingID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrListingNotFound
		}
		return nil
	})
}
