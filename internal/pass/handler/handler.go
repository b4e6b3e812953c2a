package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	estatemodels "gatepass/internal/estate/models"
	"gatepass/internal/pass/models"
	"gatepass/internal/pass/service"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/httputil"
	authmw "gatepass/pkg/platform/middleware/auth"
	"gatepass/pkg/requestcontext"
)

// Service defines the pass operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, estateID id.EstateID, residentID id.UserID, details models.VisitorDetails) (*service.Issued, error)
	VerifyEntry(ctx context.Context, estateID id.EstateID, passID id.PassID, pin string) (*models.VisitorPass, error)
	MarkExit(ctx context.Context, estateID id.EstateID, passID id.PassID) (*models.VisitorPass, error)
	Cancel(ctx context.Context, estateID id.EstateID, passID id.PassID) (*models.VisitorPass, error)
	Get(ctx context.Context, estateID id.EstateID, passID id.PassID) (*models.VisitorPass, error)
	ListForResident(ctx context.Context, estateID id.EstateID, residentID id.UserID) ([]*models.VisitorPass, error)
	ListActive(ctx context.Context, estateID id.EstateID) ([]*models.VisitorPass, error)
	QRCode(ctx context.Context, estateID id.EstateID, passID id.PassID) ([]byte, error)
}

// Handler wires visitor pass endpoints to the lifecycle manager.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts pass routes on an estate-scoped router. The caller is
// expected to have authenticated the actor and matched {estateID}.
func (h *Handler) Register(r chi.Router) {
	resident := authmw.RequireRole(h.logger, string(estatemodels.RoleResident))
	gate := authmw.RequireRole(h.logger, string(estatemodels.RoleSecurity))
	staff := authmw.RequireRole(h.logger, string(estatemodels.RoleSecurity), string(estatemodels.RoleAdmin))
	owner := authmw.RequireRole(h.logger, string(estatemodels.RoleResident), string(estatemodels.RoleAdmin))

	r.With(resident).Post("/passes", h.HandleCreate)
	r.With(resident).Get("/passes", h.HandleListOwn)
	r.With(staff).Get("/passes/active", h.HandleListActive)
	r.Get("/passes/{passID}", h.HandleGet)
	r.With(resident).Get("/passes/{passID}/qr", h.HandleQRCode)
	r.With(gate).Post("/passes/{passID}/verify", h.HandleVerify)
	r.With(gate).Post("/passes/{passID}/exit", h.HandleExit)
	r.With(owner).Post("/passes/{passID}/cancel", h.HandleCancel)
}

// HandleCreate handles POST /passes.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	estateID, residentID := requestcontext.EstateID(ctx), requestcontext.UserID(ctx)

	var req CreatePassRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	issued, err := h.service.Create(ctx, estateID, residentID, req.Details())
	if err != nil {
		h.logFailure(ctx, "create pass failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toIssuedResponse(issued, requestcontext.Now(ctx)))
}

// HandleListOwn handles GET /passes for the calling resident.
func (h *Handler) HandleListOwn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	passes, err := h.service.ListForResident(ctx, requestcontext.EstateID(ctx), requestcontext.UserID(ctx))
	if err != nil {
		h.logFailure(ctx, "list resident passes failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PassListResponse{Passes: toPassResponses(passes, requestcontext.Now(ctx))})
}

// HandleListActive handles GET /passes/active.
func (h *Handler) HandleListActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	passes, err := h.service.ListActive(ctx, requestcontext.EstateID(ctx))
	if err != nil {
		h.logFailure(ctx, "list active passes failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PassListResponse{Passes: toPassResponses(passes, requestcontext.Now(ctx))})
}

// HandleGet handles GET /passes/{passID}. Residents only see their own passes.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	passID, ok := parsePassID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(ctx, requestcontext.EstateID(ctx), passID)
	if err == nil {
		err = checkOwner(ctx, p)
	}
	if err != nil {
		h.logFailure(ctx, "get pass failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPassResponse(p, requestcontext.Now(ctx)))
}

// HandleQRCode handles GET /passes/{passID}/qr and returns a PNG.
func (h *Handler) HandleQRCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	estateID := requestcontext.EstateID(ctx)
	passID, ok := parsePassID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(ctx, estateID, passID)
	if err == nil {
		err = checkOwner(ctx, p)
	}
	var img []byte
	if err == nil {
		img, err = h.service.QRCode(ctx, estateID, passID)
	}
	if err != nil {
		h.logFailure(ctx, "render qr failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

// HandleVerify handles POST /passes/{passID}/verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	passID, ok := parsePassID(w, r)
	if !ok {
		return
	}
	var req VerifyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	p, err := h.service.VerifyEntry(ctx, requestcontext.EstateID(ctx), passID, req.PIN)
	if err != nil {
		h.logFailure(ctx, "verify entry failed", err, "pass_id", passID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPassResponse(p, requestcontext.Now(ctx)))
}

// HandleExit handles POST /passes/{passID}/exit.
func (h *Handler) HandleExit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "mark exit failed", h.service.MarkExit)
}

// HandleCancel handles POST /passes/{passID}/cancel.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel pass failed", h.service.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, failure string, apply func(context.Context, id.EstateID, id.PassID) (*models.VisitorPass, error)) {
	ctx := r.Context()
	passID, ok := parsePassID(w, r)
	if !ok {
		return
	}
	p, err := apply(ctx, requestcontext.EstateID(ctx), passID)
	if err != nil {
		h.logFailure(ctx, failure, err, "pass_id", passID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPassResponse(p, requestcontext.Now(ctx)))
}

// logFailure logs client errors at warn and everything else at error.
func (h *Handler) logFailure(ctx context.Context, msg string, err error, args ...any) {
	args = append(args,
		"request_id", requestcontext.RequestID(ctx),
		"estate_id", requestcontext.EstateID(ctx),
		"error", err,
	)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, args...)
		return
	}
	h.logger.WarnContext(ctx, msg, args...)
}

func parsePassID(w http.ResponseWriter, r *http.Request) (id.PassID, bool) {
	passID, err := id.ParsePassID(chi.URLParam(r, "passID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.PassID{}, false
	}
	return passID, true
}

func checkOwner(ctx context.Context, p *models.VisitorPass) error {
	if requestcontext.Role(ctx) == string(estatemodels.RoleResident) && p.ResidentID != requestcontext.UserID(ctx) {
		return dErrors.New(dErrors.CodeNotFound, "pass not found")
	}
	return nil
}
