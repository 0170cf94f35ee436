package activity_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-boost/internal/activity"
	"ms-boost/internal/activity/api"
	"ms-boost/internal/database/dbtest"
	"ms-boost/internal/kafka"
	"ms-boost/internal/logger"
	"ms-boost/internal/metrics"
	"ms-boost/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newRecorder(t *testing.T) (*activity.Recorder, *metrics.MetricsManager) {
	m := metrics.NewMetricsManager("test")
	r := activity.NewRecorder(&activity.DB{Bun: dbtest.NewSQLite(t)}, m, logger.NewWithWriter(io.Discard, "error"))
	r.Clock = func() time.Time { return now }
	return r, m
}

func boostMessage(t *testing.T, ev models.BoostEvent) kafka.Message {
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return kafka.Message{Topic: "marketplace.boost." + ev.Type, Key: []byte("42"), Value: payload, Time: ev.OccurredAt}
}

func TestFromBoostEvent(t *testing.T) {
	ev := models.BoostEvent{
		Type: models.BoostEventActivated, OrderID: "o1", UserID: "u1", ListingID: 42,
		ListingTitle: "2019 Honda City", Amount: 150, PaymentMethod: models.PaymentMethodSimulator, OccurredAt: now,
	}
	a := activity.FromBoostEvent(ev)
	assert.Equal(t, "Boost activated for 2019 Honda City", a.Description)
	assert.Equal(t, models.ActivityTypeBoost, a.Type)
	assert.Equal(t, "o1", a.ReferenceID)

	ev.PaymentMethod = models.PaymentMethodComplimentary
	assert.Equal(t, "Listing featured: 2019 Honda City", activity.FromBoostEvent(ev).Description)

	ev.Type = models.BoostEventExpired
	ev.ListingTitle = ""
	assert.Equal(t, "Boost expired for listing #42", activity.FromBoostEvent(ev).Description)
}

func TestHandleMessage_RecordsAndListsNewestFirst(t *testing.T) {
	r, m := newRecorder(t)
	ctx := context.Background()

	events := []models.BoostEvent{
		{Type: models.BoostEventCreated, OrderID: "o1", ListingID: 42, OccurredAt: now.Add(-2 * time.Hour)},
		{Type: models.BoostEventActivated, OrderID: "o1", ListingID: 42, OccurredAt: now.Add(-5 * time.Minute)},
		{Type: models.BoostEventPaymentFailed, OrderID: "o2", ListingID: 7, Reason: "declined", OccurredAt: now.Add(-30 * time.Second)},
	}
	for _, ev := range events {
		require.NoError(t, r.HandleMessage(ctx, boostMessage(t, ev)))
	}

	views, err := r.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, "Boost payment failed for listing #7", views[0].Description)
	assert.Equal(t, "just now", views[0].TimeAgo)
	assert.Equal(t, "declined", views[0].Metadata["reason"])
	assert.Equal(t, "5 minutes ago", views[1].TimeAgo)
	assert.Equal(t, "2 hours ago", views[2].TimeAgo)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.ActivitiesRecorded))
}

func TestHandleMessage_DropsBadPayloads(t *testing.T) {
	r, _ := newRecorder(t)
	ctx := context.Background()

	assert.NoError(t, r.HandleMessage(ctx, kafka.Message{Topic: "marketplace.boost.created", Value: []byte("{not json")}))
	assert.NoError(t, r.HandleMessage(ctx, kafka.Message{Topic: "marketplace.boost.created", Value: []byte(`{"type":"created"}`)}))

	views, err := r.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestRecent_Limits(t *testing.T) {
	r, _ := newRecorder(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		require.NoError(t, r.Record(ctx, &models.Activity{
			Type: models.ActivityTypeListing, Action: "created", Description: "New listing",
			CreatedAt: now.Add(-time.Duration(i) * time.Minute),
		}))
	}

	views, err := r.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, views, activity.DefaultRecentLimit)

	views, err = r.Recent(ctx, 500)
	require.NoError(t, err)
	assert.Len(t, views, activity.MaxRecentLimit)
}

func TestRecentHandler(t *testing.T) {
	r, _ := newRecorder(t)
	require.NoError(t, r.Record(context.Background(), &models.Activity{
		Type: models.ActivityTypeListing, Action: "created", Description: "New listing: 2019 Honda City",
		CreatedAt: now.Add(-3 * 24 * time.Hour),
	}))

	router := chi.NewRouter()
	api.NewHandler(r, logger.NewWithWriter(io.Discard, "error")).Routes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/activities/recent?limit=3", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool                  `json:"success"`
		Data    []models.ActivityView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "3 days ago", body.Data[0].TimeAgo)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/activities/recent?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
