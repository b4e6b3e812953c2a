package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gatepass/internal/blacklist/models"
	estatemodels "gatepass/internal/estate/models"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/httputil"
	authmw "gatepass/pkg/platform/middleware/auth"
	"gatepass/pkg/requestcontext"
)

type Service interface {
	Add(ctx context.Context, estateID id.EstateID, name, phone, reason string) (*models.Entry, error)
	Remove(ctx context.Context, estateID id.EstateID, entryID id.BlacklistEntryID) error
	List(ctx context.Context, estateID id.EstateID) ([]*models.Entry, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the denylist routes. Any member of the estate may manage it.
func (h *Handler) Register(r chi.Router) {
	members := authmw.RequireRole(h.logger,
		string(estatemodels.RoleResident),
		string(estatemodels.RoleSecurity),
		string(estatemodels.RoleAdmin),
	)
	r.With(members).Get("/blacklist", h.HandleList)
	r.With(members).Post("/blacklist", h.HandleAdd)
	r.With(members).Delete("/blacklist/{entryID}", h.HandleRemove)
}

type AddEntryRequest struct {
	Name   string `json:"name"`
	Phone  string `json:"phone,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type EntryListResponse struct {
	Entries []*models.Entry `json:"entries"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries, err := h.service.List(ctx, requestcontext.EstateID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "list blacklist failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []*models.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, EntryListResponse{Entries: entries})
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req AddEntryRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	entry, err := h.service.Add(ctx, requestcontext.EstateID(ctx), req.Name, req.Phone, req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "add blacklist entry failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, entry)
}

func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entryID, err := id.ParseBlacklistEntryID(chi.URLParam(r, "entryID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Remove(ctx, requestcontext.EstateID(ctx), entryID); err != nil {
		h.logger.WarnContext(ctx, "remove blacklist entry failed",
			"request_id", requestcontext.RequestID(ctx),
			"entry_id", entryID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
