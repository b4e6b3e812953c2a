package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gatepass/internal/estate/models"
	"gatepass/internal/estate/service"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/httputil"
	authmw "gatepass/pkg/platform/middleware/auth"
	"gatepass/pkg/requestcontext"
)

// Service defines the estate operations exposed over HTTP.
type Service interface {
	Register(ctx context.Context, name, address string, policy *models.Policy) (*models.Estate, error)
	Get(ctx context.Context, estateID id.EstateID) (*models.Estate, error)
	UpdatePolicy(ctx context.Context, estateID id.EstateID, policy models.Policy) (*models.Estate, error)
	AddMember(ctx context.Context, estateID id.EstateID, in service.NewMemberInput) (*models.Member, error)
	Member(ctx context.Context, estateID id.EstateID, userID id.UserID) (*models.Member, error)
	ListMembers(ctx context.Context, estateID id.EstateID) ([]*models.Member, error)
}

// TokenIssuer mints member access tokens.
type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, estateID id.EstateID, role string, expiresIn time.Duration) (string, error)
}

type Handler struct {
	service  Service
	tokens   TokenIssuer
	tokenTTL time.Duration
	logger   *slog.Logger
}

func New(service Service, tokens TokenIssuer, tokenTTL time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		tokens:   tokens,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

// RegisterAdmin mounts platform-operator routes. The caller guards them with
// the admin token.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/estates", h.HandleRegister)
	r.Post("/tokens", h.HandleIssueToken)
}

// Register mounts member routes on an estate-scoped, authenticated router.
func (h *Handler) Register(r chi.Router) {
	admin := authmw.RequireRole(h.logger, string(models.RoleAdmin))
	r.Get("/", h.HandleGet)
	r.With(admin).Put("/policy", h.HandleUpdatePolicy)
	r.With(admin).Post("/members", h.HandleAddMember)
	r.With(admin).Get("/members", h.HandleListMembers)
}

// HandleRegister creates an estate and enrols its first admin.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req RegisterEstateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	estate, err := h.service.Register(ctx, req.Name, req.Address, req.Policy)
	if err != nil {
		h.logFailure(ctx, "register estate failed", err)
		httputil.WriteError(w, err)
		return
	}
	admin, err := h.service.AddMember(ctx, estate.ID, req.Admin.toInput(models.RoleAdmin))
	if err != nil {
		h.logFailure(ctx, "enrol first admin failed", err, "estate_id", estate.ID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, RegisterEstateResponse{Estate: estate, Admin: admin})
}

// HandleIssueToken mints an access token for an existing member.
func (h *Handler) HandleIssueToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req IssueTokenRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.EstateID.IsNil() || req.UserID.IsNil() {
		httputil.WriteError(w, dErrors.Validation("user_id", "estate_id and user_id are required"))
		return
	}
	estateID := req.EstateID
	member, err := h.service.Member(ctx, estateID, req.UserID)
	if err != nil {
		h.logFailure(ctx, "issue token failed", err, "estate_id", estateID)
		httputil.WriteError(w, err)
		return
	}
	token, err := h.tokens.GenerateAccessToken(member.UserID, member.EstateID, string(member.Role), h.tokenTTL)
	if err != nil {
		h.logFailure(ctx, "sign token failed", err, "estate_id", estateID)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.tokenTTL / time.Second),
	})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	estate, err := h.service.Get(ctx, requestcontext.EstateID(ctx))
	if err != nil {
		h.logFailure(ctx, "get estate failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, estate)
}

func (h *Handler) HandleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var policy models.Policy
	if err := httputil.DecodeJSON(r, &policy); err != nil {
		httputil.WriteError(w, err)
		return
	}
	estate, err := h.service.UpdatePolicy(ctx, requestcontext.EstateID(ctx), policy)
	if err != nil {
		h.logFailure(ctx, "update policy failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, estate)
}

func (h *Handler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req AddMemberRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	member, err := h.service.AddMember(ctx, requestcontext.EstateID(ctx), req.toInput(models.Role(req.Role)))
	if err != nil {
		h.logFailure(ctx, "add member failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, member)
}

func (h *Handler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	members, err := h.service.ListMembers(ctx, requestcontext.EstateID(ctx))
	if err != nil {
		h.logFailure(ctx, "list members failed", err)
		httputil.WriteError(w, err)
		return
	}
	if members == nil {
		members = []*models.Member{}
	}
	httputil.WriteJSON(w, http.StatusOK, MemberListResponse{Members: members})
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error, args ...any) {
	args = append(args, "request_id", requestcontext.RequestID(ctx), "error", err)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, args...)
		return
	}
	h.logger.WarnContext(ctx, msg, args...)
}
