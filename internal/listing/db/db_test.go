package db_test

import (
	"context"
	"testing"
	"time"

	boostdb "ms-boost/internal/boost/db"
	"ms-boost/internal/database/dbtest"
	"ms-boost/internal/listing/db"
	"ms-boost/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T, bunDB *bun.DB, brand, model string, price int64, createdAt time.Time) *models.Listing {
	return dbtest.SeedListing(t, bunDB, &models.Listing{
		Make:           brand,
		Model:          model,
		Year:           2019,
		Price:          price,
		FuelType:       "Petrol",
		Transmission:   "Manual",
		Location:       "Pune",
		SellerID:       "u1",
		CreatedAt:      createdAt,
		ExpirationDate: createdAt.Add(60 * 24 * time.Hour),
	})
}

func boostListing(t *testing.T, bunDB *bun.DB, listingID int64, start, end time.Time) {
	orders := &boostdb.DB{Bun: bunDB}
	order := &models.BoostOrder{
		OrderID:       uuid.NewString(),
		UserID:        "u1",
		ListingID:     listingID,
		Amount:        150,
		Status:        models.BoostStatusPending,
		PaymentMethod: models.PaymentMethodSimulator,
		CreatedAt:     start,
		UpdatedAt:     start,
	}
	require.NoError(t, orders.InsertOrder(context.Background(), order))
	_, err := orders.ActivateOrder(context.Background(), order.OrderID, start, end, "sim")
	require.NoError(t, err)
}

func ids(views []models.ListingView) []int64 {
	out := make([]int64, 0, len(views))
	for _, v := range views {
		out = append(out, v.ID)
	}
	return out
}

func TestListListings_BoostedFirst(t *testing.T) {
	bunDB := dbtest.NewSQLite(t)
	listingDB := &db.DB{Bun: bunDB}
	ctx := context.Background()

	oldest := seed(t, bunDB, "Honda", "City", 850000, base)
	middle := seed(t, bunDB, "Maruti", "Swift", 500000, base.Add(time.Hour))
	newest := seed(t, bunDB, "Hyundai", "Creta", 1200000, base.Add(2*time.Hour))

	boostListing(t, bunDB, oldest.ID, base, base.Add(30*24*time.Hour))

	now := base.Add(3 * time.Hour)
	views, total, err := listingDB.ListListings(ctx, models.ListingFilter{Page: 1, Limit: 20}, now)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []int64{oldest.ID, newest.ID, middle.ID}, ids(views))
	assert.True(t, views[0].IsBoosted)
	require.NotNil(t, views[0].BoostEndDate)
	assert.True(t, views[0].BoostEndDate.Equal(base.Add(30*24*time.Hour)))
	assert.False(t, views[1].IsBoosted)
	assert.Nil(t, views[1].BoostEndDate)

	// Once the boost lapses the listing falls back to date order, sweep or not.
	later := base.Add(31 * 24 * time.Hour)
	views, _, err = listingDB.ListListings(ctx, models.ListingFilter{Page: 1, Limit: 20}, later)
	require.NoError(t, err)
	assert.Equal(t, []int64{newest.ID, middle.ID, oldest.ID}, ids(views))
	for _, v := range views {
		assert.False(t, v.IsBoosted)
	}
}

func TestListListings_FiltersAndPaging(t *testing.T) {
	bunDB := dbtest.NewSQLite(t)
	listingDB := &db.DB{Bun: bunDB}
	ctx := context.Background()

	city := seed(t, bunDB, "Honda", "City", 850000, base)
	seed(t, bunDB, "Honda", "Amaze", 600000, base.Add(time.Hour))
	seed(t, bunDB, "Maruti", "Swift", 500000, base.Add(2*time.Hour))
	expired := seed(t, bunDB, "Honda", "Jazz", 400000, base.Add(-90*24*time.Hour))

	now := base.Add(3 * time.Hour)

	views, total, err := listingDB.ListListings(ctx, models.ListingFilter{Make: "honda", Page: 1, Limit: 20}, now)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.NotContains(t, ids(views), expired.ID)

	views, _, err = listingDB.ListListings(ctx, models.ListingFilter{Query: "CIT", Page: 1, Limit: 20}, now)
	require.NoError(t, err)
	assert.Equal(t, []int64{city.ID}, ids(views))

	views, total, err = listingDB.ListListings(ctx, models.ListingFilter{MinPrice: 550000, MaxPrice: 900000, Page: 1, Limit: 20}, now)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, views, 2)

	views, total, err = listingDB.ListListings(ctx, models.ListingFilter{Page: 2, Limit: 2}, now)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []int64{city.ID}, ids(views))

	views, total, err = listingDB.ListListings(ctx, models.ListingFilter{Make: "Tesla", Page: 1, Limit: 20}, now)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, views)
}

func TestGetListingView(t *testing.T) {
	bunDB := dbtest.NewSQLite(t)
	listingDB := &db.DB{Bun: bunDB}
	ctx := context.Background()

	listing := seed(t, bunDB, "Honda", "City", 850000, base)
	boostListing(t, bunDB, listing.ID, base, base.Add(24*time.Hour))

	view, err := listingDB.GetListingView(ctx, listing.ID, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "Honda", view.Make)
	assert.True(t, view.IsBoosted)

	_, err = listingDB.GetListingView(ctx, 9999, base)
	assert.ErrorIs(t, err, db.ErrListingNotFound)
}

func TestListBySeller_IncludesExpired(t *testing.T) {
	bunDB := dbtest.NewSQLite(t)
	listingDB := &db.DB{Bun: bunDB}
	ctx := context.Background()

	seed(t, bunDB, "Honda", "City", 850000, base)
	seed(t, bunDB, "Honda", "Jazz", 400000, base.Add(-90*24*time.Hour))
	dbtest.SeedListing(t, bunDB, &models.Listing{
		Make: "Kia", Model: "Seltos", Year: 2021, Price: 1300000, SellerID: "u2",
		CreatedAt: base, ExpirationDate: base.Add(60 * 24 * time.Hour),
	})

	views, err := listingDB.ListBySeller(ctx, "u1", base)
	require.NoError(t, err)
	assert.Len(t, views, 2)

	views, err = listingDB.ListBySeller(ctx, "nobody", base)
	require.NoError(t, err)
	assert.NotNil(t, views)
	assert.Empty(t, views)
}

func TestUpdateImagesAndDelete(t *testing.T) {
	bunDB := dbtest.NewSQLite(t)
	listingDB := &db.DB{Bun: bunDB}
	ctx := context.Background()

	listing := seed(t, bunDB, "Honda", "City", 850000, base)
	boostListing(t, bunDB, listing.ID, base, base.Add(24*time.Hour))

	images := []models.ListingImage{{Key: "listings/a.jpg", URL: "http://cdn/a.jpg", ContentType: "image/jpeg", Size: 10}}
	require.NoError(t, listingDB.UpdateImages(ctx, listing.ID, images))

	got, err := listingDB.GetListingByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, images, got.Images)

	require.NoError(t, listingDB.DeleteListing(ctx, listing.ID))

	_, err = listingDB.GetListingByID(ctx, listing.ID)
	assert.ErrorIs(t, err, db.ErrListingNotFound)

	count, err := bunDB.NewSelect().Model((*models.BoostOrder)(nil)).Where("listing_id = ?", listing.ID).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.ErrorIs(t, listingDB.DeleteListing(ctx, listing.ID), db.ErrListingNotFound)
}

func TestUpdateListingAndExpiration(t *testing.T) {
	bunDB := dbtest.NewSQLite(t)
	listingDB := &db.DB{Bun: bunDB}
	ctx := context.Background()

	listing := seed(t, bunDB, "Honda", "City", 850000, base)
	listing.Price = 799000
	listing.Color = "Red"
	listing.SellerID = "someone-else"
	require.NoError(t, listingDB.UpdateListing(ctx, listing))

	expires := base.Add(90 * 24 * time.Hour)
	require.NoError(t, listingDB.UpdateExpiration(ctx, listing.ID, expires))

	got, err := listingDB.GetListingByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(799000), got.Price)
	assert.Equal(t, "Red", got.Color)
	assert.Equal(t, "u1", got.SellerID, "ownership is not an editable column")
	assert.True(t, got.ExpirationDate.Equal(expires))

	assert.ErrorIs(t, listingDB.UpdateListing(ctx, &models.Listing{ID: 999, Make: "x"}), db.ErrListingNotFound)
	assert.ErrorIs(t, listingDB.UpdateExpiration(ctx, 999, expires), db.ErrListingNotFound)
}
