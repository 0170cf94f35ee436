package boost_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"ms-boost/internal/apperror"
	"ms-boost/internal/auth"
	"ms-boost/internal/logger"
	"ms-boost/internal/metrics"
	"ms-boost/internal/models"
	"ms-boost/internal/utils"

	"github.com/go-chi/chi/v5"
)

// Ledger is the slice of boost.BoostService the handlers use.
type Ledger interface {
	CreateOrder(ctx context.Context, requesterID string, listingID int64) (*models.BoostOrder, error)
	ActivateOrder(ctx context.Context, orderID string) (*models.BoostOrder, error)
	CancelOrder(ctx context.Context, orderID string) (*models.BoostOrder, error)
	SweepExpired(ctx context.Context) (int, error)
	GetOrder(ctx context.Context, orderID string) (*models.BoostOrder, error)
	ListUserOrders(ctx context.Context, userID string) ([]models.BoostOrder, error)
	ListAllActive(ctx context.Context) ([]models.BoostOrder, error)
	IsBoosted(ctx context.Context, listingID int64) (bool, error)
	SetFeatured(ctx context.Context, listingID int64, featured bool) (*models.BoostOrder, error)
}

type Handler struct {
	Ledger  Ledger
	Metrics *metrics.MetricsManager
	Logger  *logger.Logger
}

func NewHandler(ledger Ledger, m *metrics.MetricsManager, log *logger.Logger) *Handler {
	return &Handler{Ledger: ledger, Metrics: m, Logger: log}
}

// Routes registers the /boost endpoints. Authentication is applied by the caller.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/create", h.CreateOrder)
	r.Post("/process-payment/{orderId}", h.ProcessPayment)
	r.Get("/user-orders", h.UserOrders)
	r.Get("/check-status/{listingId}", h.CheckStatus)
	r.Get("/order/{orderId}", h.GetOrder)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAdmin(h.Logger))
		r.Get("/active", h.ActiveOrders)
		r.Delete("/cancel/{orderId}", h.CancelOrder)
		r.Post("/cleanup", h.Cleanup)
	})
}

// AdminRoutes is mounted under /admin behind RequireAdmin.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Patch("/listings/{listingId}/featured", h.SetFeatured)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperror.From(err)
	route := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		route = rctx.RoutePattern()
	}
	h.Metrics.APIError(route, appErr.Code)
	utils.WriteError(w, h.Logger, "API", appErr)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateBoostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperror.Validation("invalid request body"))
		return
	}
	if req.ListingID <= 0 {
		h.writeError(w, r, apperror.Validation("listingId is required"))
		return
	}

	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("CreateOrder: user=%s listing=%d", userID, req.ListingID))

	order, err := h.Ledger.CreateOrder(r.Context(), userID, req.ListingID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, h.Logger, http.StatusCreated, "boost order created", order)
}

func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	if _, err := h.ownedOrder(r, orderID); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("ProcessPayment: order=%s", orderID))
	order, err := h.Ledger.ActivateOrder(r.Context(), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, h.Logger, http.StatusOK, "payment processed, boost active", order)
}

func (h *Handler) UserOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Ledger.ListUserOrders(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, h.Logger, http.StatusOK, "boost orders", orders)
}

func (h *Handler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	listingID, err := listingIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	boosted, err := h.Ledger.IsBoosted(r.Context(), listingID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, h.Logger, http.StatusOK, "boost status", map[string]interface{}{
		"listingId": listingID,
		"isBoosted": boosted,
	})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.ownedOrder(r, chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, h.Logger, http.StatusOK, "boost order", order)
}

func (h *Handler) ActiveOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Ledger.ListAllActive(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, h.Logger, http.StatusOK, "active boosts", orders)
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("CancelOrder: order=%s by %s", orderID, auth.UserID(r.Context())))

	order, err := h.Ledger.CancelOrder(r.Context(), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, h.Logger, http.StatusOK, "boost order cancelled", order)
}

func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	n, err := h.Ledger.SweepExpired(r.Context())
	if err != nil {
		h.writeError(w, r, apperror.Internal("cleanup expired boosts", err))
		return
	}
	utils.WriteSuccess(w, h.Logger, http.StatusOK, fmt.Sprintf("%d expired boost(s) cleaned up", n), map[string]int{"cleanedCount": n})
}

func (h *Handler) SetFeatured(w http.ResponseWriter, r *http.Request) {
	listingID, err := listingIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req models.FeatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsFeatured == nil {
		h.writeError(w, r, apperror.Validation("isFeatured is required"))
		return
	}

	order, err := h.Ledger.SetFeatured(r.Context(), listingID, *req.IsFeatured)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	msg := "listing featured"
	if !*req.IsFeatured {
		msg = "listing unfeatured"
	}
	utils.WriteSuccess(w, h.Logger, http.StatusOK, msg, map[string]interface{}{
		"listingId":  listingID,
		"isFeatured": *req.IsFeatured,
		"order":      order,
	})
}

// ownedOrder loads an order the caller may see: their own, or any for admins.
func (h *Handler) ownedOrder(r *http.Request, orderID string) (*models.BoostOrder, error) {
	order, err := h.Ledger.GetOrder(r.Context(), orderID)
	if err != nil {
		return nil, err
	}
	userID := auth.UserID(r.Context())
	if order.UserID != userID && !auth.IsAdmin(r.Context()) {
		h.Logger.LogSecurity("ORDER_FORBIDDEN", fmt.Sprintf("user %s requested order %s", userID, orderID))
		return nil, apperror.Forbidden("you can only access your own boost orders")
	}
	return order, nil
}

func listingIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "listingId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.Validation("invalid listing id")
	}
	return id, nil
}
