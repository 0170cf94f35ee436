package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-boost/internal/apperror"
	"ms-boost/internal/config"
	listingdb "ms-boost/internal/listing/db"
	"ms-boost/internal/logger"
	"ms-boost/internal/metrics"
	"ms-boost/internal/models"
)

// DefaultPageSize applies when neither the request nor the config sets a limit.
const DefaultPageSize = 20

type DBLayer interface {
	InsertListing(ctx context.Context, listing *models.Listing) error
	GetListingByID(ctx context.Context, listingID int64) (*models.Listing, error)
	GetListingView(ctx context.Context, listingID int64, now time.Time) (*models.ListingView, error)
	ListListings(ctx context.Context, filter models.ListingFilter, now time.Time) ([]models.ListingView, int, error)
	ListBySeller(ctx context.Context, sellerID string, now time.Time) ([]models.ListingView, error)
	UpdateListing(ctx context.Context, listing *models.Listing) error
	UpdateImages(ctx context.Context, listingID int64, images []models.ListingImage) error
	UpdateExpiration(ctx context.Context, listingID int64, expiresAt time.Time) error
	DeleteListing(ctx context.Context, listingID int64) error
}

type BlobStore interface {
	Upload(ctx context.Context, fileName, contentType string, data []byte) (models.ListingImage, error)
	Delete(ctx context.Context, key string) error
}

type ActivityRecorder interface {
	Record(ctx context.Context, activity *models.Activity) error
}

type ImageUpload struct {
	FileName    string
	ContentType string
	Data        []byte
}

type ListingService struct {
	DB         DBLayer
	Blobs      BlobStore
	Activities ActivityRecorder
	Metrics    *metrics.MetricsManager
	Logger     *logger.Logger
	Config     config.ListingConfig
	Clock      func() time.Time
}

func NewListingService(db DBLayer, blobs BlobStore, activities ActivityRecorder, m *metrics.MetricsManager, log *logger.Logger, cfg config.ListingConfig) *ListingService {
	return &ListingService{
		DB:         db,
		Blobs:      blobs,
		Activities: activities,
		Metrics:    m,
		Logger:     log,
		Config:     cfg,
	}
}

func (s *ListingService) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

func (s *ListingService) List(ctx context.Context, filter models.ListingFilter) (*models.ListingPage, error) {
	if filter.MinPrice < 0 || filter.MaxPrice < 0 {
		return nil, apperror.Validation("price bounds must not be negative")
	}
	if filter.MaxPrice > 0 && filter.MinPrice > filter.MaxPrice {
		return nil, apperror.Validation("minPrice must not exceed maxPrice")
	}
	if filter.MaxYear > 0 && filter.MinYear > filter.MaxYear {
		return nil, apperror.Validation("minYear must not exceed maxYear")
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = s.Config.PageSize
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultPageSize
	}
	if s.Config.MaxPageSize > 0 && filter.Limit > s.Config.MaxPageSize {
		filter.Limit = s.Config.MaxPageSize
	}

	views, total, err := s.DB.ListListings(ctx, filter, s.now())
	if err != nil {
		return nil, apperror.Internal("list listings", err)
	}

	return &models.ListingPage{
		Listings:   views,
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: (total + filter.Limit - 1) / filter.Limit,
	}, nil
}

func (s *ListingService) Get(ctx context.Context, listingID int64) (*models.ListingView, error) {
	if listingID <= 0 {
		return nil, apperror.Validation("invalid listing id")
	}
	view, err := s.DB.GetListingView(ctx, listingID, s.now())
	if errors.Is(err, listingdb.ErrListingNotFound) {
		return nil, apperror.NotFound("listing not found")
	}
	if err != nil {
		return nil, apperror.Internal("get listing", err)
	}
	return view, nil
}

func (s *ListingService) BySeller(ctx context.Context, sellerID string) ([]models.ListingView, error) {
	if strings.TrimSpace(sellerID) == "" {
		return nil, apperror.Validation("sellerId is required")
	}
	views, err := s.DB.ListBySeller(ctx, sellerID, s.now())
	if err != nil {
		return nil, apperror.Internal("list seller listings", err)
	}
	return views, nil
}

func (s *ListingService) Create(ctx context.Context, sellerID, sellerName string, in models.ListingInput) (*models.Listing, error) {
	if strings.TrimSpace(sellerID) == "" {
		return nil, apperror.Unauthorized("authentication required")
	}
	now := s.now()
	if err := validateInput(in, now); err != nil {
		return nil, err
	}

	listing := &models.Listing{
		Make:           strings.TrimSpace(in.Make),
		Model:          strings.TrimSpace(in.Model),
		Year:           in.Year,
		Price:          in.Price,
		FuelType:       in.FuelType,
		Transmission:   in.Transmission,
		Color:          in.Color,
		Mileage:        in.Mileage,
		Location:       in.Location,
		Description:    in.Description,
		Images:         []models.ListingImage{},
		SellerID:       sellerID,
		SellerName:     sellerName,
		CreatedAt:      now,
		ExpirationDate: now.Add(s.Config.TTL),
	}
	if err := s.DB.InsertListing(ctx, listing); err != nil {
		return nil, apperror.Internal("create listing", err)
	}

	s.Logger.LogDatabase("INSERT", "listings", fmt.Sprintf("listing %d created by %s", listing.ID, sellerID))
	s.Metrics.ListingCreated()
	s.record(ctx, &models.Activity{
		Type:        models.ActivityTypeListing,
		Action:      "created",
		Description: fmt.Sprintf("New listing: %s", listing.Title()),
		UserID:      sellerID,
		ReferenceID: fmt.Sprint(listing.ID),
		CreatedAt:   now,
	})
	return listing, nil
}

// Update replaces the editable fields of a listing owned by requesterID.
// Images, ownership and expiry are left untouched.
func (s *ListingService) Update(ctx context.Context, requesterID string, listingID int64, in models.ListingInput) (*models.Listing, error) {
	listing, err := s.getOwned(ctx, requesterID, false, listingID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := validateInput(in, now); err != nil {
		return nil, err
	}

	listing.Make = strings.TrimSpace(in.Make)
	listing.Model = strings.TrimSpace(in.Model)
	listing.Year = in.Year
	listing.Price = in.Price
	listing.FuelType = in.FuelType
	listing.Transmission = in.Transmission
	listing.Color = in.Color
	listing.Mileage = in.Mileage
	listing.Location = in.Location
	listing.Description = in.Description

	if err := s.DB.UpdateListing(ctx, listing); err != nil {
		if errors.Is(err, listingdb.ErrListingNotFound) {
			return nil, apperror.NotFound("listing not found")
		}
		return nil, apperror.Internal("update listing", err)
	}

	s.Logger.LogDatabase("UPDATE", "listings", fmt.Sprintf("listing %d updated by %s", listingID, requesterID))
	s.record(ctx, &models.Activity{
		Type:        models.ActivityTypeListing,
		Action:      "updated",
		Description: fmt.Sprintf("Listing updated: %s", listing.Title()),
		UserID:      requesterID,
		ReferenceID: fmt.Sprint(listing.ID),
		CreatedAt:   now,
	})
	return listing, nil
}

// SetExpiration moves the expiry of any listing. Past timestamps are accepted
// and take the listing out of public results.
func (s *ListingService) SetExpiration(ctx context.Context, listingID int64, expiresAt time.Time) (*models.Listing, error) {
	if listingID <= 0 {
		return nil, apperror.Validation("invalid listing id")
	}
	if expiresAt.IsZero() {
		return nil, apperror.Validation("expirationDate is required")
	}

	if err := s.DB.UpdateExpiration(ctx, listingID, expiresAt.UTC()); err != nil {
		if errors.Is(err, listingdb.ErrListingNotFound) {
			return nil, apperror.NotFound("listing not found")
		}
		return nil, apperror.Internal("update listing expiration", err)
	}
	s.Logger.LogDatabase("UPDATE", "listings", fmt.Sprintf("listing %d now expires at %s", listingID, expiresAt.UTC().Format(time.RFC3339)))

	listing, err := s.DB.GetListingByID(ctx, listingID)
	if err != nil {
		return nil, apperror.Internal("get listing", err)
	}
	return listing, nil
}

func validateInput(in models.ListingInput, now time.Time) error {
	switch {
	case strings.TrimSpace(in.Make) == "":
		return apperror.Validation("make is required")
	case strings.TrimSpace(in.Model) == "":
		return apperror.Validation("model is required")
	case in.Year < 1900 || in.Year > now.Year()+1:
		return apperror.Validation(fmt.Sprintf("year must be between 1900 and %d", now.Year()+1))
	case in.Price <= 0:
		return apperror.Validation("price must be positive")
	case in.Mileage < 0:
		return apperror.Validation("mileage must not be negative")
	}
	return nil
}

// Delete removes a listing owned by requesterID. Admins may delete any listing.
func (s *ListingService) Delete(ctx context.Context, requesterID string, isAdmin bool, listingID int64) error {
	listing, err := s.getOwned(ctx, requesterID, isAdmin, listingID)
	if err != nil {
		return err
	}

	if err := s.DB.DeleteListing(ctx, listingID); err != nil {
		if errors.Is(err, listingdb.ErrListingNotFound) {
			return apperror.NotFound("listing not found")
		}
		return apperror.Internal("delete listing", err)
	}

	if s.Blobs != nil {
		for _, img := range listing.Images {
			if err := s.Blobs.Delete(ctx, img.Key); err != nil {
				s.Logger.Warn("STORAGE", fmt.Sprintf("Failed to remove image %s of listing %d: %v", img.Key, listingID, err))
			}
		}
	}

	s.Logger.LogDatabase("DELETE", "listings", fmt.Sprintf("listing %d deleted by %s", listingID, requesterID))
	return nil
}

func (s *ListingService) AddImages(ctx context.Context, requesterID string, listingID int64, files []ImageUpload) (*models.Listing, error) {
	if s.Blobs == nil {
		return nil, apperror.Validation("image uploads are not enabled")
	}
	if len(files) == 0 {
		return nil, apperror.Validation("no images provided")
	}

	listing, err := s.getOwned(ctx, requesterID, false, listingID)
	if err != nil {
		return nil, err
	}
	if len(listing.Images)+len(files) > s.Config.MaxImages {
		return nil, apperror.Validation(fmt.Sprintf("a listing can have at most %d images", s.Config.MaxImages))
	}
	for _, f := range files {
		if !strings.HasPrefix(f.ContentType, "image/") {
			return nil, apperror.Validation(fmt.Sprintf("%s is not an image", f.FileName))
		}
		if s.Config.MaxImageSize > 0 && int64(len(f.Data)) > s.Config.MaxImageSize {
			return nil, apperror.Validation(fmt.Sprintf("%s exceeds the %d MB limit", f.FileName, s.Config.MaxImageSize>>20))
		}
	}

	images := append([]models.ListingImage{}, listing.Images...)
	uploaded := make([]models.ListingImage, 0, len(files))
	for _, f := range files {
		img, err := s.Blobs.Upload(ctx, f.FileName, f.ContentType, f.Data)
		if err != nil {
			s.discard(ctx, uploaded)
			return nil, apperror.Internal("upload listing image", err)
		}
		uploaded = append(uploaded, img)
	}
	images = append(images, uploaded...)

	if err := s.DB.UpdateImages(ctx, listingID, images); err != nil {
		s.discard(ctx, uploaded)
		if errors.Is(err, listingdb.ErrListingNotFound) {
			return nil, apperror.NotFound("listing not found")
		}
		return nil, apperror.Internal("save listing images", err)
	}

	listing.Images = images
	return listing, nil
}

// RemoveImage drops the image at index from a listing owned by requesterID and
// deletes its blob. A failed blob delete is logged; the listing stays updated.
func (s *ListingService) RemoveImage(ctx context.Context, requesterID string, listingID int64, index int) (*models.Listing, error) {
	listing, err := s.getOwned(ctx, requesterID, false, listingID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(listing.Images) {
		return nil, apperror.Validation(fmt.Sprintf("image index %d out of range", index))
	}

	removed := listing.Images[index]
	images := make([]models.ListingImage, 0, len(listing.Images)-1)
	images = append(images, listing.Images[:index]...)
	images = append(images, listing.Images[index+1:]...)

	if err := s.DB.UpdateImages(ctx, listingID, images); err != nil {
		if errors.Is(err, listingdb.ErrListingNotFound) {
			return nil, apperror.NotFound("listing not found")
		}
		return nil, apperror.Internal("save listing images", err)
	}
	if s.Blobs != nil && removed.Key != "" {
		if err := s.Blobs.Delete(ctx, removed.Key); err != nil {
			s.Logger.Warn("STORAGE", fmt.Sprintf("Failed to remove image %s of listing %d: %v", removed.Key, listingID, err))
		}
	}

	listing.Images = images
	return listing, nil
}

func (s *ListingService) discard(ctx context.Context, images []models.ListingImage) {
	for _, img := range images {
		if err := s.Blobs.Delete(ctx, img.Key); err != nil {
			s.Logger.Warn("STORAGE", fmt.Sprintf("Failed to roll back upload %s: %v", img.Key, err))
		}
	}
}

func (s *ListingService) getOwned(ctx context.Context, requesterID string, isAdmin bool, listingID int64) (*models.Listing, error) {
	if listingID <= 0 {
		return nil, apperror.Validation("invalid listing id")
	}
	listing, err := s.DB.GetListingByID(ctx, listingID)
	if errors.Is(err, listingdb.ErrListingNotFound) {
		return nil, apperror.NotFound("listing not found")
	}
	if err != nil {
		return nil, apperror.Internal("get listing", err)
	}
	if listing.SellerID != requesterID && !isAdmin {
		s.Logger.LogSecurity("LISTING_FORBIDDEN", fmt.Sprintf("user %s attempted to modify listing %d", requesterID, listingID))
		return nil, apperror.Forbidden("you can only manage your own listings")
	}
	return listing, nil
}

func (s *ListingService) record(ctx context.Context, activity *models.Activity) {
	if s.Activities == nil {
		return
	}
	if err := s.Activities.Record(ctx, activity); err != nil {
		s.Logger.Warn("ACTIVITY", fmt.Sprintf("Failed to record %s activity: %v", activity.Type, err))
	}
}
