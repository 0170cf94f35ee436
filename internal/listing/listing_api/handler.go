package listing_api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ms-boost/internal/apperror"
	"ms-boost/internal/auth"
	"ms-boost/internal/listing"
	"ms-boost/internal/logger"
	"ms-boost/internal/models"
	"ms-boost/internal/utils"

	"github.com/go-chi/chi/v5"
)

const imagesField = "images"

type Store interface {
	List(ctx context.Context, filter models.ListingFilter) (*models.ListingPage, error)
	Get(ctx context.Context, listingID int64) (*models.ListingView, error)
	BySeller(ctx context.Context, sellerID string) ([]models.ListingView, error)
	Create(ctx context.Context, sellerID, sellerName string, in models.ListingInput) (*models.Listing, error)
	Update(ctx context.Context, requesterID string, listingID int64, in models.ListingInput) (*models.Listing, error)
	Delete(ctx context.Context, requesterID string, isAdmin bool, listingID int64) error
	AddImages(ctx context.Context, requesterID string, listingID int64, files []listing.ImageUpload) (*models.Listing, error)
	RemoveImage(ctx context.Context, requesterID string, listingID int64, index int) (*models.Listing, error)
	SetExpiration(ctx context.Context, listingID int64, expiresAt time.Time) (*models.Listing, error)
}

type Handler struct {
	Listings     Store
	Logger       *logger.Logger
	MaxImageSize int64
	MaxImages    int
}

func NewHandler(listings Store, log *logger.Logger, maxImageSize int64, maxImages int) *Handler {
	return &Handler{Listings: listings, Logger: log, MaxImageSize: maxImageSize, MaxImages: maxImages}
}

// PublicRoutes are mounted under /cars without authentication.
func (h *Handler) PublicRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/search", h.List)
	r.Get("/seller/{sellerId}", h.BySeller)
	r.Get("/{listingId}", h.Get)
}

// ProtectedRoutes are mounted under /cars behind auth.Middleware.
func (h *Handler) ProtectedRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Put("/{listingId}", h.Update)
	r.Delete("/{listingId}", h.Delete)
	r.Post("/{listingId}/images", h.AddImages)
	r.Delete("/{listingId}/images/{imageIndex}", h.RemoveImage)
}

// AdminRoutes are mounted under /admin behind auth.RequireAdmin.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Patch("/listings/{listingId}/expiration", h.SetExpiration)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		utils.WriteError(w, h.Logger, "API", err)
		return
	}

	page, err := h.Listings.List(r.Context(), filter)
	if err != nil {
		utils.WriteError(w, h.Logger, "API", err)
		return
	}
	utils.WriteSuccess(w, h.Logger, http.StatusOK, "listings", page)
}

func parseFilter(q url.Values) (models.ListingFilter, error) {
	f := models.ListingFilter{
		Query:        q.Get("q"),
		Make:         q.Get("make"),
		Model:        q.Get("model"),
		FuelType:     q.Get("fuelType"),
		Transmission: q.Get("transmission"),
		Location:     q.Get("location"),
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"minYear", &f.MinYear},
		{"maxYear", &f.MaxYear},
		{"page", &f.Page},
		{"limit", &f.Limit},
	}
	for _, p := range ints {
		if raw := q.Get(p.name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return f, apperror.Validation(fmt.Sprintf("%s must be an integer", p.name))
			}
			*p.dst = n
		}
	}

	prices := []struct {
		name string
		dst  *int64
	}{
		{"minPrice", &f.MinPrice},
		{"maxPrice", &f.MaxPrice},
	}
	for _, p := range prices {
		if raw := q.Get(p.name); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return f, apperror.Validation(fmt.Sprintf("%s must be an integer", p.name))
			}
			*p.dst = n
		}
	}
	return f, nil
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := listingIDParam(r)
	if err != nil {
		utils.WriteError(w, h.Logger, "API", err)
		return
	}

	view, err := h.Listings.Get(r.Context(), id)
	if err != nil {
		utils.WriteError(w, h.Logger, "API", err)
		return
	}
	utils.WriteSuccess(w, h.Logger, http.StatusOK, "listing", view)
}

func (h *Handler) BySeller(w http.ResponseWriter, r *http.Request) {
	views, err := h.Listings.BySeller(r.Context(), chi.URLParam(r, "sellerId"))
	if err != nil {
		utils.WriteError(w, h.Logger, "API", err)
		return
	}
	utils.WriteSuccess(w, h.Logger, http.StatusOK, "seller listings", views)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in models.ListingInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.WriteError(w, h.Logger, "API", apperror.Validation("invalid request body"))
		return
	}

	created, err := h.Listings.Create(r.Context(), auth.UserID(r.Context()), auth.UserName(r.Context()), in)
	if err != nil {
		utils.WriteError(w, h.Logger, "API", err)
		return
	}
	utils.WriteSuccess(w, h.Logger, http.StatusCreated, "listing created", created)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := listingIDParam(r)
	if err != nil {
		utils.WriteError(w, h.Logger, "API", err)
		return
	}

	var in models.ListingInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.WriteError(w, h.Logger, "API", apperror.Validation("invalid request body"))
		return
	}

	updated, err := h.Listings.Update(r.Context(), auth.UserID(r.Context()), id, in)
	if err != nil {
		utils.WriteError(w, h.Logger, "API", err)
		return
	}
	utils.WriteSuccess(w, h.Logger, http.StatusOK, "listing updated", updated)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := listingIDParam(r)
	if err != nil {
		utils.WriteError(w, h.Logger, "API", err)
		return
	}

	if err := h.Listings.Delete(r.Context(), auth.UserID(r.Context()), auth.IsAdmin(r.Context()), id); err != nil {
		utils.WriteError(w, h.Logger, "API", err)
		return
	}
	utils.WriteSuccess(w, h.Logger, http.StatusOK, "listing deleted", map[string]int64{"listingId": id})
}

func (h *Handler) AddImages(w http.ResponseWriter, r *http.Request) {
	id, err := listingIDParam(r)
	if err != nil {
		utils.WriteError(w, h.Logger, "API", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxImageSize*int64(h.MaxImages)+(1<<20))
	if err := r.ParseMultipartForm(h.MaxImageSize); err != nil {
		utils.WriteError(w, h.Logger, "API", apperror.Validation("invalid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[imagesField]
	files := make([]listing.ImageUpload, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > h.MaxImageSize {
			utils.WriteError(w, h.Logger, "API", apperror.Validation(fmt.Sprintf("%s exceeds the %d MB limit", fh.Filename, h.MaxImageSize>>20)))
			return
		}
		upload, err := readUpload(fh)
		if err != nil {
			utils.WriteError(w, h.Logger, "API", apperror.Validation(fmt.Sprintf("cannot read %s", fh.Filename)))
			return
		}
		files = append(files, upload)
	}

	updated, err := h.Listings.AddImages(r.Context(), auth.UserID(r.Context()), id, files)
	if err != nil {
		utils.WriteError(w, h.Logger, "API", err)
		return
	}
	utils.WriteSuccess(w, h.Logger, http.StatusOK, fmt.Sprintf("%d image(s) uploaded", len(files)), updated)
}

func (h *Handler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	id, err := listingIDParam(r)
	if err != nil {
		utils.WriteError(w, h.Logger, "API", err)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "imageIndex"))
	if err != nil {
		utils.WriteError(w, h.Logger, "API", apperror.Validation("invalid image index"))
		return
	}

	updated, err := h.Listings.RemoveImage(r.Context(), auth.UserID(r.Context()), id, index)
	if err != nil {
		utils.WriteError(w, h.Logger, "API", err)
		return
	}
	utils.WriteSuccess(w, h.Logger, http.StatusOK, "image removed", updated)
}

func (h *Handler) SetExpiration(w http.ResponseWriter, r *http.Request) {
	id, err := listingIDParam(r)
	if err != nil {
		utils.WriteError(w, h.Logger, "API", err)
		return
	}

	var req models.ExpirationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ExpirationDate == "" {
		utils.WriteError(w, h.Logger, "API", apperror.Validation("expirationDate is required"))
		return
	}
	expiresAt, err := time.Parse(time.RFC3339, req.ExpirationDate)
	if err != nil {
		utils.WriteError(w, h.Logger, "API", apperror.Validation("expirationDate must be an RFC 3339 timestamp"))
		return
	}

	updated, err := h.Listings.SetExpiration(r.Context(), id, expiresAt)
	if err != nil {
		utils.WriteError(w, h.Logger, "API", err)
		return
	}
	utils.WriteSuccess(w, h.Logger, http.StatusOK, "listing expiration updated", updated)
}

func readUpload(fh *multipart.FileHeader) (listing.ImageUpload, error) {
	f, err := fh.Open()
	if err != nil {
		return listing.ImageUpload{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return listing.ImageUpload{}, err
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return listing.ImageUpload{FileName: fh.Filename, ContentType: contentType, Data: data}, nil
}

func listingIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "listingId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.Validation("invalid listing id")
	}
	return id, nil
}
