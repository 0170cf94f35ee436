package db

import (
	"context"
	"time"

	"ms-boost/internal/models"

	"github.com/uptrace/bun"
)

// liveBoost matches active, unexpired orders of the outer listing row (alias l).
const liveBoost = "FROM boost_orders AS lb WHERE lb.listing_id = l.id AND lb.status = ? AND lb.boost_end_date > ?"

// IsBoosted is true iff an active order with end > now exists for the listing.
func IsBoosted(ctx context.Context, db bun.IDB, listingID int64, now time.Time) (bool, error) {
	return db.NewSelect().
		Model((*models.BoostOrder)(nil)).
		Where("bo.listing_id = ?", listingID).
		Where("bo.status = ?", models.BoostStatusActive).
		Where("bo.boost_end_date > ?", now).
		Exists(ctx)
}

// BoostedColumns adds the is_boosted and boost_end_date projections to a listing select.
func BoostedColumns(q *bun.SelectQuery, now time.Time) *bun.SelectQuery {
	return q.
		ColumnExpr("EXISTS (SELECT 1 "+liveBoost+") AS is_boosted", models.BoostStatusActive, now).
		ColumnExpr("(SELECT MAX(lb.boost_end_date) "+liveBoost+") AS boost_end_date", models.BoostStatusActive, now)
}

// BoostedFirst sorts boosted listings ahead of the rest, newest first within each group.
func BoostedFirst(q *bun.SelectQuery) *bun.SelectQuery {
	return q.
		OrderExpr("is_boosted DESC").
		OrderExpr("l.created_at DESC").
		OrderExpr("l.id DESC")
}
