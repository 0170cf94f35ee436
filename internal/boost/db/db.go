package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-boost/internal/models"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

var (
	ErrOrderNotFound      = errors.New("boost order not found")
	ErrDuplicateOpenOrder = errors.New("listing already has an open boost order")
	// ErrStatusChanged means a conditional transition matched no row.
	ErrStatusChanged = errors.New("boost order status changed concurrently")
)

var openStatuses = []string{models.BoostStatusPending, models.BoostStatusActive}

type DB struct {
	Bun *bun.DB
}

func (d *DB) InsertOrder(ctx context.Context, order *models.BoostOrder) error {
	if _, err := d.Bun.NewInsert().Model(order).Exec(ctx); err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicateOpenOrder
		}
		return fmt.Errorf("insert boost order: %w", err)
	}
	return nil
}

func (d *DB) GetOrderByID(ctx context.Context, orderID string) (*models.BoostOrder, error) {
	order := new(models.BoostOrder)
	err := d.Bun.NewSelect().
		Model(order).
		Where("bo.order_id = ?", orderID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get boost order %s: %w", orderID, err)
	}
	return order, nil
}

// FindOpenOrder returns the pending or active order of a listing, or nil.
func (d *DB) FindOpenOrder(ctx context.Context, listingID int64) (*models.BoostOrder, error) {
	order := new(models.BoostOrder)
	err := d.Bun.NewSelect().
		Model(order).
		Where("bo.listing_id = ?", listingID).
		Where("bo.status IN (?)", bun.In(openStatuses)).
		OrderExpr("bo.created_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open boost order for listing %d: %w", listingID, err)
	}
	return order, nil
}

// ActivateOrder moves a pending order to active. Anything but pending yields ErrStatusChanged.
func (d *DB) ActivateOrder(ctx context.Context, orderID string, start, end time.Time, reference string) (*models.BoostOrder, error) {
	order := new(models.BoostOrder)
	err := d.Bun.NewUpdate().
		Model(order).
		Set("status = ?", models.BoostStatusActive).
		Set("boost_start_date = ?", start).
		Set("boost_end_date = ?", end).
		Set("payment_reference = ?", reference).
		Set("updated_at = ?", start).
		Where("order_id = ?", orderID).
		Where("status = ?", models.BoostStatusPending).
		Returning("*").
		Scan(ctx)
	return conditionalResult(order, err, "activate", orderID)
}

// CancelOrder cancels a pending or active order.
func (d *DB) CancelOrder(ctx context.Context, orderID string, now time.Time) (*models.BoostOrder, error) {
	order := new(models.BoostOrder)
	err := d.Bun.NewUpdate().
		Model(order).
		Set("status = ?", models.BoostStatusCancelled).
		Set("updated_at = ?", now).
		Where("order_id = ?", orderID).
		Where("status IN (?)", bun.In(openStatuses)).
		Returning("*").
		Scan(ctx)
	return conditionalResult(order, err, "cancel", orderID)
}

// BumpPaymentAttempt records a failed charge of attempt on a pending order so the
// next charge presents a fresh idempotency key. Only the first failure of an
// attempt counts; later ones yield ErrStatusChanged.
func (d *DB) BumpPaymentAttempt(ctx context.Context, orderID string, attempt int, now time.Time) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.BoostOrder)(nil)).
		Set("payment_attempts = payment_attempts + 1").
		Set("updated_at = ?", now).
		Where("order_id = ?", orderID).
		Where("status = ?", models.BoostStatusPending).
		Where("payment_attempts = ?", attempt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bump payment attempt of boost order %s: %w", orderID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrStatusChanged
	}
	return nil
}

func conditionalResult(order *models.BoostOrder, err error, op, orderID string) (*models.BoostOrder, error) {
	if errors.Is(err, sql.ErrNoRows) || (err == nil && order.OrderID == "") {
		return nil, ErrStatusChanged
	}
	if err != nil {
		return nil, fmt.Errorf("%s boost order %s: %w", op, orderID, err)
	}
	return order, nil
}

// ExpireOrders flips every lapsed active order to expired and returns them.
func (d *DB) ExpireOrders(ctx context.Context, now time.Time) ([]models.BoostOrder, error) {
	return d.expire(ctx, now, 0)
}

// ExpireListingOrders is ExpireOrders restricted to one listing.
func (d *DB) ExpireListingOrders(ctx context.Context, listingID int64, now time.Time) ([]models.BoostOrder, error) {
	return d.expire(ctx, now, listingID)
}

func (d *DB) expire(ctx context.Context, now time.Time, listingID int64) ([]models.BoostOrder, error) {
	var expired []models.BoostOrder
	q := d.Bun.NewUpdate().
		Model((*models.BoostOrder)(nil)).
		Set("status = ?", models.BoostStatusExpired).
		Set("updated_at = ?", now).
		Where("status = ?", models.BoostStatusActive).
		Where("boost_end_date <= ?", now)
	if listingID > 0 {
		q = q.Where("listing_id = ?", listingID)
	}
	if err := q.Returning("*").Scan(ctx, &expired); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("expire boost orders: %w", err)
	}
	return expired, nil
}

func (d *DB) ListOrdersByUser(ctx context.Context, userID string) ([]models.BoostOrder, error) {
	var orders []models.BoostOrder
	err := d.Bun.NewSelect().
		Model(&orders).
		Relation("Listing").
		Where("bo.user_id = ?", userID).
		OrderExpr("bo.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list boost orders for user %s: %w", userID, err)
	}
	return orders, nil
}

func (d *DB) ListActiveOrders(ctx context.Context, now time.Time) ([]models.BoostOrder, error) {
	var orders []models.BoostOrder
	err := d.Bun.NewSelect().
		Model(&orders).
		Relation("Listing").
		Where("bo.status = ?", models.BoostStatusActive).
		Where("bo.boost_end_date > ?", now).
		OrderExpr("bo.boost_start_date DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active boost orders: %w", err)
	}
	return orders, nil
}

func (d *DB) IsBoosted(ctx context.Context, listingID int64, now time.Time) (bool, error) {
	ok, err := IsBoosted(ctx, d.Bun, listingID, now)
	if err != nil {
		return false, fmt.Errorf("check boost status for listing %d: %w", listingID, err)
	}
	return ok, nil
}

// IsUniqueViolation recognises unique index violations from lib/pq, pgdriver and sqlite.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
