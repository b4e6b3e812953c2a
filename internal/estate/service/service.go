package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"gatepass/internal/estate/models"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/audit"
	"gatepass/pkg/platform/sentinel"
	"gatepass/pkg/platform/tx"
	"gatepass/pkg/requestcontext"
)

type EstateStore interface {
	Create(ctx context.Context, estate *models.Estate) error
	FindByID(ctx context.Context, estateID id.EstateID) (*models.Estate, error)
	Execute(ctx context.Context, estateID id.EstateID, validate func(*models.Estate) error, mutate func(*models.Estate)) (*models.Estate, error)
}

type MemberStore interface {
	Add(ctx context.Context, member *models.Member) error
	Find(ctx context.Context, estateID id.EstateID, userID id.UserID) (*models.Member, error)
	ListByEstate(ctx context.Context, estateID id.EstateID, role models.Role) ([]*models.Member, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service registers estates and keeps their member directory. The pass and
// emergency services read policy and admins through it.
type Service struct {
	estates        EstateStore
	members        MemberStore
	tx             tx.Runner
	logger         *slog.Logger
	auditPublisher AuditPublisher
	defaults       models.Policy
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithTx(runner tx.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

// WithDefaultPolicy sets the policy given to estates registered without one.
func WithDefaultPolicy(policy models.Policy) Option {
	return func(s *Service) {
		s.defaults = policy
	}
}

func New(estates EstateStore, members MemberStore, opts ...Option) *Service {
	s := &Service{
		estates:  estates,
		members:  members,
		defaults: models.Policy{PassHistoryLimit: 10},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = tx.NewShardedRunner()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Register creates an estate. A nil policy takes the configured defaults.
func (s *Service) Register(ctx context.Context, name, address string, policy *models.Policy) (*models.Estate, error) {
	p := s.defaults
	if policy != nil {
		p = *policy
	}
	var estate *models.Estate
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		e, err := models.NewEstate(id.EstateID(uuid.New()), name, address, p, requestcontext.Now(txCtx))
		if err != nil {
			return err
		}
		if err := s.estates.Create(txCtx, e); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "estate name must be unique")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to register estate")
		}
		if err := s.emit(txCtx, audit.EventEstateRegistered, e.ID, e.ID.String(), ""); err != nil {
			return err
		}
		estate = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "estate registered", "estate_id", estate.ID, "name", estate.Name)
	return estate, nil
}

func (s *Service) Get(ctx context.Context, estateID id.EstateID) (*models.Estate, error) {
	e, err := s.estates.FindByID(ctx, estateID)
	if err != nil {
		return nil, wrapEstateErr(err, "estate not found")
	}
	return e, nil
}

// Policy returns the estate's operator policy.
func (s *Service) Policy(ctx context.Context, estateID id.EstateID) (models.Policy, error) {
	e, err := s.Get(ctx, estateID)
	if err != nil {
		return models.Policy{}, err
	}
	return e.Policy, nil
}

func (s *Service) UpdatePolicy(ctx context.Context, estateID id.EstateID, policy models.Policy) (*models.Estate, error) {
	now := requestcontext.Now(ctx)
	var estate *models.Estate
	err := s.tx.RunInTx(tx.WithLockKey(ctx, estateID.String()), func(txCtx context.Context) error {
		e, err := s.estates.Execute(txCtx, estateID,
			func(*models.Estate) error { return policy.Validate() },
			func(e *models.Estate) { e.ApplyPolicy(policy, now) },
		)
		if err != nil {
			return wrapEstateErr(err, "estate not found")
		}
		estate = e
		return s.emit(txCtx, audit.EventEstatePolicyUpdated, estateID, estateID.String(), "")
	})
	if err != nil {
		return nil, err
	}
	return estate, nil
}

// NewMemberInput carries what an admin submits to enrol a member.
type NewMemberInput struct {
	UserID     id.UserID
	Name       string
	Email      string
	Phone      string
	Role       models.Role
	UnitNumber string
}

func (s *Service) AddMember(ctx context.Context, estateID id.EstateID, in NewMemberInput) (*models.Member, error) {
	if _, err := s.Get(ctx, estateID); err != nil {
		return nil, err
	}
	userID := in.UserID
	if userID.IsNil() {
		userID = id.UserID(uuid.New())
	}
	var member *models.Member
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		m, err := models.NewMember(estateID, userID, in.Name, in.Email, in.Phone, in.Role, in.UnitNumber, requestcontext.Now(txCtx))
		if err != nil {
			return err
		}
		if err := s.members.Add(txCtx, m); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "user is already a member of this estate")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to add member")
		}
		if err := s.emit(txCtx, audit.EventMemberAdded, estateID, m.UserID.String(), string(m.Role)); err != nil {
			return err
		}
		member = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "member added", "estate_id", estateID, "user_id", member.UserID, "role", member.Role)
	return member, nil
}

func (s *Service) Member(ctx context.Context, estateID id.EstateID, userID id.UserID) (*models.Member, error) {
	m, err := s.members.Find(ctx, estateID, userID)
	if err != nil {
		return nil, wrapEstateErr(err, "member not found")
	}
	return m, nil
}

func (s *Service) ListMembers(ctx context.Context, estateID id.EstateID) ([]*models.Member, error) {
	members, err := s.members.ListByEstate(ctx, estateID, "")
	if err != nil {
		return nil, wrapEstateErr(err, "")
	}
	return members, nil
}

// ListAdmins returns the estate's administrators, the panic fan-out audience.
func (s *Service) ListAdmins(ctx context.Context, estateID id.EstateID) ([]*models.Member, error) {
	members, err := s.members.ListByEstate(ctx, estateID, models.RoleAdmin)
	if err != nil {
		return nil, wrapEstateErr(err, "")
	}
	return members, nil
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, estateID id.EstateID, subject, reason string) error {
	if s.auditPublisher == nil {
		return nil
	}
	return s.auditPublisher.Emit(ctx, audit.Event{
		EstateID: estateID,
		Subject:  subject,
		Action:   string(action),
		Reason:   reason,
	})
}

func wrapEstateErr(err error, notFoundMsg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg)
	case dErrors.IsDomainError(err):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "estate store failure")
	}
}
