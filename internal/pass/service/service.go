// Package service is the visitor pass lifecycle manager.
//
// Every transition runs inside a tx.Runner unit of work keyed by the pass ID
// and goes through Store.Execute, so concurrent transitions on one pass
// serialize and the loser fails with a stale-state error. Gate log entries are
// appended in the same unit of work as the transition they record.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	blacklistmodels "gatepass/internal/blacklist/models"
	estatemodels "gatepass/internal/estate/models"
	movementmodels "gatepass/internal/movement/models"
	"gatepass/internal/pass/codegen"
	passmetrics "gatepass/internal/pass/metrics"
	"gatepass/internal/pass/models"
	"gatepass/internal/pass/qr"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/audit"
	"gatepass/pkg/platform/clock"
	"gatepass/pkg/platform/tx"
	"gatepass/pkg/requestcontext"
)

// maxCodeAttempts bounds retries when a generated pass code collides with a
// live pass.
const maxCodeAttempts = 5

const defaultHistoryLimit = 10

type Store interface {
	Create(ctx context.Context, pass *models.VisitorPass) error
	FindByID(ctx context.Context, passID id.PassID) (*models.VisitorPass, error)
	Execute(ctx context.Context, passID id.PassID, validate func(*models.VisitorPass) error, mutate func(*models.VisitorPass)) (*models.VisitorPass, error)
	ListByResident(ctx context.Context, estateID id.EstateID, residentID id.UserID, limit int) ([]*models.VisitorPass, error)
	ListLive(ctx context.Context, estateID id.EstateID) ([]*models.VisitorPass, error)
	ListAllLive(ctx context.Context) ([]*models.VisitorPass, error)
}

type CodeGenerator interface {
	PassCode() string
	PIN() string
}

type PINHasher interface {
	Hash(pin string) (string, error)
	Matches(hash, pin string) bool
}

// BlacklistRegistry screens visitors and owns the estate denylist.
type BlacklistRegistry interface {
	Screen(ctx context.Context, estateID id.EstateID, name, phone string) (*blacklistmodels.Match, error)
	Add(ctx context.Context, estateID id.EstateID, name, phone, reason string) (*blacklistmodels.Entry, error)
	Remove(ctx context.Context, estateID id.EstateID, entryID id.BlacklistEntryID) error
}

// EstateDirectory supplies estate policy and resident details.
type EstateDirectory interface {
	Policy(ctx context.Context, estateID id.EstateID) (estatemodels.Policy, error)
	Member(ctx context.Context, estateID id.EstateID, userID id.UserID) (*estatemodels.Member, error)
}

type MovementLog interface {
	Append(ctx context.Context, entry movementmodels.LogEntry) (movementmodels.LogEntry, error)
}

// ExpiryScheduler arranges for Expire to be called at a pass's deadline.
type ExpiryScheduler interface {
	Schedule(ctx context.Context, passID id.PassID, deadline time.Time) error
	Cancel(ctx context.Context, passID id.PassID) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	passes    Store
	blacklist BlacklistRegistry
	estates   EstateDirectory
	movements MovementLog

	codes     CodeGenerator
	hasher    PINHasher
	renderer  qr.Renderer
	scheduler ExpiryScheduler
	clock     clock.Clock
	tx        tx.Runner

	logger         *slog.Logger
	metrics        *passmetrics.Metrics
	auditPublisher AuditPublisher
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *passmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
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

func WithScheduler(scheduler ExpiryScheduler) Option {
	return func(s *Service) {
		s.scheduler = scheduler
	}
}

func WithCodeGenerator(g CodeGenerator) Option {
	return func(s *Service) {
		s.codes = g
	}
}

func WithPINHasher(h PINHasher) Option {
	return func(s *Service) {
		s.hasher = h
	}
}

func WithRenderer(r qr.Renderer) Option {
	return func(s *Service) {
		s.renderer = r
	}
}

// WithClock sets the time source used when the request carries no time.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

func New(passes Store, blacklist BlacklistRegistry, estates EstateDirectory, movements MovementLog, opts ...Option) *Service {
	s := &Service{
		passes:    passes,
		blacklist: blacklist,
		estates:   estates,
		movements: movements,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.codes == nil {
		s.codes = codegen.New()
	}
	if s.hasher == nil {
		s.hasher = codegen.NewPINHasher(0)
	}
	if s.renderer == nil {
		s.renderer = qr.NewPNGRenderer(0)
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.tx == nil {
		s.tx = tx.NewShardedRunner()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.tracer = otel.Tracer("gatepass/pass")
	return s
}

// now prefers the request-scoped time so one request sees one instant.
func (s *Service) now(ctx context.Context) time.Time {
	if t, ok := requestcontext.Time(ctx); ok {
		return t
	}
	return s.clock.Now()
}

func passLock(ctx context.Context, passID id.PassID) context.Context {
	return tx.WithLockKey(ctx, "pass:"+passID.String())
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, p *models.VisitorPass, reason string) error {
	if s.auditPublisher == nil {
		return nil
	}
	return s.auditPublisher.Emit(ctx, audit.Event{
		Timestamp: s.now(ctx),
		EstateID:  p.EstateID,
		Subject:   p.ID.String(),
		Action:    string(action),
		Reason:    reason,
	})
}

func (s *Service) incrementTransition(status models.Status) {
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(status))
	}
}

func (s *Service) observe(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(operation, start)
	}
}
