package api

import (
	"context"
	"net/http"
	"strconv"

	"ms-boost/internal/apperror"
	"ms-boost/internal/logger"
	"ms-boost/internal/models"
	"ms-boost/internal/utils"

	"github.com/go-chi/chi/v5"
)

type RecentLister interface {
	Recent(ctx context.Context, limit int) ([]models.ActivityView, error)
}

type Handler struct {
	Activities RecentLister
	Logger     *logger.Logger
}

func NewHandler(activities RecentLister, log *logger.Logger) *Handler {
	return &Handler{Activities: activities, Logger: log}
}

// Routes is mounted under an admin-only group.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/activities/recent", h.Recent)
}

func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			utils.WriteError(w, h.Logger, "API", apperror.Validation("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	views, err := h.Activities.Recent(r.Context(), limit)
	if err != nil {
		utils.WriteError(w, h.Logger, "API", err)
		return
	}
	utils.WriteSuccess(w, h.Logger, http.StatusOK, "recent activities", views)
}
