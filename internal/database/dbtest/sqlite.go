// Package dbtest opens an in-memory SQLite database carrying the service schema.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"ms-boost/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// OpenIndex mirrors the partial unique index of the postgres migrations.
const OpenIndex = `CREATE UNIQUE INDEX uq_boost_orders_open_listing ON boost_orders (listing_id) WHERE status IN ('pending', 'active')`

func NewSQLite(t testing.TB) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	// Every new connection to :memory: is a fresh database.
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	ctx := context.Background()

	for _, model := range []interface{}{
		(*models.Listing)(nil),
		(*models.BoostOrder)(nil),
		(*models.Activity)(nil),
	} {
		if _, err := bunDB.NewCreateTable().Model(model).Exec(ctx); err != nil {
			t.Fatalf("Failed to create table for %T: %v", model, err)
		}
	}
	if _, err := bunDB.ExecContext(ctx, OpenIndex); err != nil {
		t.Fatalf("Failed to create open order index: %v", err)
	}

	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}

// SeedListing inserts listing, filling in its auto-generated id.
func SeedListing(t testing.TB, db *bun.DB, listing *models.Listing) *models.Listing {
	t.Helper()
	if listing.Images == nil {
		listing.Images = []models.ListingImage{}
	}
	if _, err := db.NewInsert().Model(listing).Exec(context.Background()); err != nil {
		t.Fatalf("Failed to seed listing: %v", err)
	}
	return listing
}
