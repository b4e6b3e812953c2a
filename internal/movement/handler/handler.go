package handler

import (
	"context"
	"iter"
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	estatemodels "gatepass/internal/estate/models"
	"gatepass/internal/movement/models"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/httputil"
	authmw "gatepass/pkg/platform/middleware/auth"
	"gatepass/pkg/requestcontext"
)

// DefaultLimit is used when the request gives no ?limit.
const DefaultLimit = 20

type Service interface {
	Recent(ctx context.Context, estateID id.EstateID, n int) (iter.Seq[models.LogEntry], error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	staff := authmw.RequireRole(h.logger, string(estatemodels.RoleSecurity), string(estatemodels.RoleAdmin))
	r.With(staff).Get("/movements", h.HandleRecent)
}

type RecentResponse struct {
	Entries []models.LogEntry `json:"entries"`
}

// HandleRecent handles GET /movements?limit=n, newest first.
func (h *Handler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.Validation("limit", "limit must be an integer"))
			return
		}
		limit = n
	}

	entries, err := h.service.Recent(ctx, requestcontext.EstateID(ctx), limit)
	if err != nil {
		h.logger.WarnContext(ctx, "recent movements failed",
			"request_id", requestcontext.RequestID(ctx),
			"limit", limit,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	out := slices.Collect(entries)
	if out == nil {
		out = []models.LogEntry{}
	}
	httputil.WriteJSON(w, http.StatusOK, RecentResponse{Entries: out})
}
