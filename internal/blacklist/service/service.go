// Package service is the estate blacklist registry: add, remove and screen
// visitor identities.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"gatepass/internal/blacklist/models"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/audit"
	"gatepass/pkg/platform/sentinel"
	"gatepass/pkg/requestcontext"
)

type Store interface {
	Add(ctx context.Context, entry *models.Entry) error
	Remove(ctx context.Context, estateID id.EstateID, entryID id.BlacklistEntryID) error
	List(ctx context.Context, estateID id.EstateID) ([]*models.Entry, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store          Store
	logger         *slog.Logger
	auditPublisher AuditPublisher
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

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Add records a flagged identity. The acting user from ctx is kept as AddedBy.
func (s *Service) Add(ctx context.Context, estateID id.EstateID, name, phone, reason string) (*models.Entry, error) {
	entry, err := models.NewEntry(id.BlacklistEntryID(uuid.New()), estateID, name, phone, reason,
		requestcontext.UserID(ctx), requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Add(ctx, entry); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to add blacklist entry")
	}
	s.logger.InfoContext(ctx, "blacklist entry added", "estate_id", estateID, "entry_id", entry.ID)
	s.emit(ctx, audit.EventBlacklistEntryAdded, estateID, entry.ID.String(), entry.Reason)
	return entry, nil
}

func (s *Service) Remove(ctx context.Context, estateID id.EstateID, entryID id.BlacklistEntryID) error {
	if err := s.store.Remove(ctx, estateID, entryID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "blacklist entry not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove blacklist entry")
	}
	s.logger.InfoContext(ctx, "blacklist entry removed", "estate_id", estateID, "entry_id", entryID)
	s.emit(ctx, audit.EventBlacklistEntryRemoved, estateID, entryID.String(), "")
	return nil
}

func (s *Service) List(ctx context.Context, estateID id.EstateID) ([]*models.Entry, error) {
	entries, err := s.store.List(ctx, estateID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list blacklist")
	}
	return entries, nil
}

// Screen matches name and phone against one snapshot of the estate's list.
func (s *Service) Screen(ctx context.Context, estateID id.EstateID, name, phone string) (*models.Match, error) {
	entries, err := s.List(ctx, estateID)
	if err != nil {
		return nil, err
	}
	return models.Screen(entries, name, phone), nil
}

func (s *Service) IsBlacklisted(ctx context.Context, estateID id.EstateID, name, phone string) (bool, error) {
	m, err := s.Screen(ctx, estateID, name, phone)
	if err != nil {
		return false, err
	}
	return m.Found(), nil
}

// emit is best effort: the registry change already happened.
func (s *Service) emit(ctx context.Context, action audit.AuditEvent, estateID id.EstateID, subject, reason string) {
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		EstateID: estateID,
		Subject:  subject,
		Action:   string(action),
		Reason:   reason,
	}); err != nil {
		s.logger.WarnContext(ctx, "blacklist audit failed", "action", action, "error", err)
	}
}
