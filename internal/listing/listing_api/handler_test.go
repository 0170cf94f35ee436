package listing_api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"ms-boost/internal/auth"
	"ms-boost/internal/config"
	"ms-boost/internal/database/dbtest"
	"ms-boost/internal/listing"
	listingdb "ms-boost/internal/listing/db"
	"ms-boost/internal/logger"
	"ms-boost/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBlobs struct {
	uploaded []string
	deleted  []string
}

func (m *memoryBlobs) Upload(_ context.Context, fileName, contentType string, data []byte) (models.ListingImage, error) {
	key := "listings/" + fileName
	m.uploaded = append(m.uploaded, key)
	return models.ListingImage{Key: key, URL: "http://cdn/" + key, ContentType: contentType, Size: int64(len(data))}, nil
}

func (m *memoryBlobs) Delete(_ context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return nil
}

func fakeAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.WithUser(r.Context(), r.Header.Get("X-User"), "Asha", r.Header.Get("X-Admin") == "true")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func setup(t *testing.T) (http.Handler, *memoryBlobs) {
	log := logger.NewWithWriter(io.Discard, "error")
	blobs := &memoryBlobs{}
	cfg := config.ListingConfig{TTL: 60 * 24 * time.Hour, PageSize: 20, MaxPageSize: 100, MaxImages: 10, MaxImageSize: 1 << 20}
	svc := listing.NewListingService(&listingdb.DB{Bun: dbtest.NewSQLite(t)}, blobs, nil, nil, log, cfg)
	h := NewHandler(svc, log, cfg.MaxImageSize, cfg.MaxImages)

	r := chi.NewRouter()
	r.Route("/api/cars", func(r chi.Router) {
		h.PublicRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(fakeAuth)
			h.ProtectedRoutes(r)
		})
	})
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(fakeAuth)
		r.Use(auth.RequireAdmin(log))
		h.AdminRoutes(r)
	})
	return r, blobs
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func send(t *testing.T, router http.Handler, req *http.Request) (int, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func createListing(t *testing.T, router http.Handler, user, body string) models.Listing {
	req := httptest.NewRequest(http.MethodPost, "/api/cars", strings.NewReader(body))
	req.Header.Set("X-User", user)
	code, env := send(t, router, req)
	require.Equal(t, http.StatusCreated, code)

	var l models.Listing
	require.NoError(t, json.Unmarshal(env.Data, &l))
	return l
}

func TestCreateAndBrowse(t *testing.T) {
	router, _ := setup(t)

	created := createListing(t, router, "u1", `{"make":"Honda","model":"City","year":2019,"price":850000}`)
	assert.Equal(t, "u1", created.SellerID)
	assert.Equal(t, "Asha", created.SellerName)
	createListing(t, router, "u1", `{"make":"Maruti","model":"Swift","year":2018,"price":500000}`)

	code, env := send(t, router, httptest.NewRequest(http.MethodGet, "/api/cars?limit=1", nil))
	require.Equal(t, http.StatusOK, code)
	var page models.ListingPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Listings, 1)

	code, env = send(t, router, httptest.NewRequest(http.MethodGet, "/api/cars/search?q=swift", nil))
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Listings, 1)
	assert.Equal(t, "Swift", page.Listings[0].Model)
	assert.False(t, page.Listings[0].IsBoosted)

	code, _ = send(t, router, httptest.NewRequest(http.MethodGet, "/api/cars?minPrice=abc", nil))
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = send(t, router, httptest.NewRequest(http.MethodGet, "/api/cars/999", nil))
	assert.Equal(t, http.StatusNotFound, code)

	code, env = send(t, router, httptest.NewRequest(http.MethodGet, "/api/cars/seller/u1", nil))
	require.Equal(t, http.StatusOK, code)
	var mine []models.ListingView
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	assert.Len(t, mine, 2)
}

func TestCreate_Invalid(t *testing.T) {
	router, _ := setup(t)

	req := httptest.NewRequest(http.MethodPost, "/api/cars", strings.NewReader(`{"make":"Honda","year":2019,"price":1}`))
	req.Header.Set("X-User", "u1")
	code, env := send(t, router, req)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error)
}

func TestDelete(t *testing.T) {
	router, _ := setup(t)
	created := createListing(t, router, "u1", `{"make":"Honda","model":"City","year":2019,"price":850000}`)
	path := "/api/cars/" + strconv.FormatInt(created.ID, 10)

	req := httptest.NewRequest(http.MethodDelete, path, nil)
	req.Header.Set("X-User", "u2")
	code, _ := send(t, router, req)
	assert.Equal(t, http.StatusForbidden, code)

	req = httptest.NewRequest(http.MethodDelete, path, nil)
	req.Header.Set("X-User", "u1")
	code, _ = send(t, router, req)
	assert.Equal(t, http.StatusOK, code)

	code, _ = send(t, router, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusNotFound, code)
}

func uploadImage(t *testing.T, router http.Handler, listingID int64, fileName string) models.Listing {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="images"; filename="`+fileName+`"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("\xff\xd8\xff fake jpeg"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/cars/"+strconv.FormatInt(listingID, 10)+"/images", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User", "u1")
	code, env := send(t, router, req)
	require.Equal(t, http.StatusOK, code, string(env.Data))

	var updated models.Listing
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	return updated
}

func TestAddImages(t *testing.T) {
	router, blobs := setup(t)
	created := createListing(t, router, "u1", `{"make":"Honda","model":"City","year":2019,"price":850000}`)

	updated := uploadImage(t, router, created.ID, "front.jpg")
	require.Len(t, updated.Images, 1)
	assert.Equal(t, "listings/front.jpg", updated.Images[0].Key)
	assert.Equal(t, []string{"listings/front.jpg"}, blobs.uploaded)
}

func TestUpdate(t *testing.T) {
	router, _ := setup(t)
	created := createListing(t, router, "u1", `{"make":"Honda","model":"City","year":2019,"price":850000}`)
	path := "/api/cars/" + strconv.FormatInt(created.ID, 10)
	body := `{"make":"Honda","model":"City","year":2019,"price":799000,"color":"Red"}`

	req := httptest.NewRequest(http.MethodPut, path, strings.NewReader(body))
	req.Header.Set("X-User", "u2")
	code, _ := send(t, router, req)
	assert.Equal(t, http.StatusForbidden, code)

	req = httptest.NewRequest(http.MethodPut, path, strings.NewReader(`{"make":"Honda"`))
	req.Header.Set("X-User", "u1")
	code, _ = send(t, router, req)
	assert.Equal(t, http.StatusBadRequest, code)

	req = httptest.NewRequest(http.MethodPut, path, strings.NewReader(body))
	req.Header.Set("X-User", "u1")
	code, env := send(t, router, req)
	require.Equal(t, http.StatusOK, code)

	var updated models.Listing
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, int64(799000), updated.Price)
	assert.Equal(t, "Red", updated.Color)
}

func TestRemoveImage(t *testing.T) {
	router, blobs := setup(t)
	created := createListing(t, router, "u1", `{"make":"Honda","model":"City","year":2019,"price":850000}`)
	uploadImage(t, router, created.ID, "front.jpg")
	uploadImage(t, router, created.ID, "rear.jpg")
	base := "/api/cars/" + strconv.FormatInt(created.ID, 10) + "/images/"

	req := httptest.NewRequest(http.MethodDelete, base+"0", nil)
	req.Header.Set("X-User", "u2")
	code, _ := send(t, router, req)
	assert.Equal(t, http.StatusForbidden, code)

	for _, idx := range []string{"abc", "5"} {
		req = httptest.NewRequest(http.MethodDelete, base+idx, nil)
		req.Header.Set("X-User", "u1")
		code, _ = send(t, router, req)
		assert.Equal(t, http.StatusBadRequest, code, idx)
	}

	req = httptest.NewRequest(http.MethodDelete, base+"0", nil)
	req.Header.Set("X-User", "u1")
	code, env := send(t, router, req)
	require.Equal(t, http.StatusOK, code)

	var updated models.Listing
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	require.Len(t, updated.Images, 1)
	assert.Equal(t, "listings/rear.jpg", updated.Images[0].Key)
	assert.Equal(t, []string{"listings/front.jpg"}, blobs.deleted)
}

func TestSetExpiration_AdminOnly(t *testing.T) {
	router, _ := setup(t)
	created := createListing(t, router, "u1", `{"make":"Honda","model":"City","year":2019,"price":850000}`)
	path := "/api/admin/listings/" + strconv.FormatInt(created.ID, 10) + "/expiration"
	body := `{"expirationDate":"2030-01-02T15:04:05Z"}`

	req := httptest.NewRequest(http.MethodPatch, path, strings.NewReader(body))
	req.Header.Set("X-User", "u1")
	code, _ := send(t, router, req)
	assert.Equal(t, http.StatusForbidden, code)

	for _, bad := range []string{`{}`, `{"expirationDate":"next week"}`} {
		req = httptest.NewRequest(http.MethodPatch, path, strings.NewReader(bad))
		req.Header.Set("X-User", "admin")
		req.Header.Set("X-Admin", "true")
		code, _ = send(t, router, req)
		assert.Equal(t, http.StatusBadRequest, code, bad)
	}

	req = httptest.NewRequest(http.MethodPatch, "/api/admin/listings/999/expiration", strings.NewReader(body))
	req.Header.Set("X-User", "admin")
	req.Header.Set("X-Admin", "true")
	code, _ = send(t, router, req)
	assert.Equal(t, http.StatusNotFound, code)

	req = httptest.NewRequest(http.MethodPatch, path, strings.NewReader(body))
	req.Header.Set("X-User", "admin")
	req.Header.Set("X-Admin", "true")
	code, env := send(t, router, req)
	require.Equal(t, http.StatusOK, code)

	var updated models.Listing
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.True(t, updated.ExpirationDate.Equal(time.Date(2030, 1, 2, 15, 4, 5, 0, time.UTC)))
}
