package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"gatepass/internal/emergency/models"
	"gatepass/internal/emergency/service"
	estatemodels "gatepass/internal/estate/models"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/httputil"
	authmw "gatepass/pkg/platform/middleware/auth"
	"gatepass/pkg/requestcontext"
)

type Service interface {
	Trigger(ctx context.Context, estateID id.EstateID, userID id.UserID, location string, pinVerified bool) (*service.DispatchResult, error)
	Resolve(ctx context.Context, estateID id.EstateID, eventID id.PanicEventID) (*models.PanicEvent, error)
	ListActive(ctx context.Context, estateID id.EstateID) ([]*models.PanicEvent, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the panic routes. Any member may raise an alert; only
// staff see and close them.
func (h *Handler) Register(r chi.Router) {
	staff := authmw.RequireRole(h.logger, string(estatemodels.RoleSecurity), string(estatemodels.RoleAdmin))

	r.Post("/panic", h.HandleTrigger)
	r.With(staff).Get("/panic", h.HandleListActive)
	r.With(staff).Post("/panic/{eventID}/resolve", h.HandleResolve)
}

type TriggerRequest struct {
	Location    string `json:"location"`
	PINVerified bool   `json:"pin_verified"`
}

type TriggerResponse struct {
	Event     *models.PanicEvent `json:"event"`
	Attempted int                `json:"notifications_attempted"`
	Delivered int                `json:"notifications_delivered"`
}

type EventListResponse struct {
	Events []*models.PanicEvent `json:"events"`
}

// HandleTrigger handles POST /panic. An empty body raises an alert with no
// location.
func (h *Handler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req TriggerRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	result, err := h.service.Trigger(ctx, requestcontext.EstateID(ctx), requestcontext.UserID(ctx), strings.TrimSpace(req.Location), req.PINVerified)
	if err != nil {
		h.logger.ErrorContext(ctx, "panic trigger failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, TriggerResponse{
		Event:     result.Event,
		Attempted: result.Attempted,
		Delivered: result.Delivered,
	})
}

// HandleListActive handles GET /panic.
func (h *Handler) HandleListActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	events, err := h.service.ListActive(ctx, requestcontext.EstateID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "list panic events failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	if events == nil {
		events = []*models.PanicEvent{}
	}
	httputil.WriteJSON(w, http.StatusOK, EventListResponse{Events: events})
}

// HandleResolve handles POST /panic/{eventID}/resolve.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventID, err := id.ParsePanicEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	event, err := h.service.Resolve(ctx, requestcontext.EstateID(ctx), eventID)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "resolve panic failed", "event_id", eventID, "error", err)
		} else {
			h.logger.WarnContext(ctx, "resolve panic rejected", "event_id", eventID, "error", err)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, event)
}
