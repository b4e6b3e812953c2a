// Package service is the gate entry/exit log.
package service

import (
	"context"
	"iter"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"gatepass/internal/movement/models"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/requestcontext"
)

// MaxRecent bounds a single Recent query.
const MaxRecent = 500

type Store interface {
	Append(ctx context.Context, entry models.LogEntry) error
	Recent(ctx context.Context, estateID id.EstateID, n int) ([]models.LogEntry, error)
	ForPass(ctx context.Context, estateID id.EstateID, passID id.PassID) ([]models.LogEntry, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
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

// Append writes entry, assigning an ID and timestamp when unset. Callers
// append inside the same transaction as the pass transition it records.
func (s *Service) Append(ctx context.Context, entry models.LogEntry) (models.LogEntry, error) {
	if !entry.Type.IsValid() {
		return models.LogEntry{}, dErrors.Validation("type", "type must be entry or exit")
	}
	if entry.ID.IsNil() {
		entry.ID = id.LogEntryID(uuid.New())
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	if err := s.store.Append(ctx, entry); err != nil {
		return models.LogEntry{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append movement")
	}
	s.logger.DebugContext(ctx, "movement appended",
		"estate_id", entry.EstateID,
		"pass_id", entry.PassID,
		"type", entry.Type,
	)
	return entry, nil
}

// Recent yields up to n entries, newest first. The sequence ranges over a
// snapshot taken at call time, so it can be iterated repeatedly with the same
// result.
func (s *Service) Recent(ctx context.Context, estateID id.EstateID, n int) (iter.Seq[models.LogEntry], error) {
	if n < 0 {
		return nil, dErrors.Validation("limit", "limit must not be negative")
	}
	n = min(n, MaxRecent)
	if n == 0 {
		return func(func(models.LogEntry) bool) {}, nil
	}
	entries, err := s.store.Recent(ctx, estateID, n)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read movements")
	}
	return slices.Values(entries), nil
}

func (s *Service) ForPass(ctx context.Context, estateID id.EstateID, passID id.PassID) ([]models.LogEntry, error) {
	entries, err := s.store.ForPass(ctx, estateID, passID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read pass movements")
	}
	return entries, nil
}
