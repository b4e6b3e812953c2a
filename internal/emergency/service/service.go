// Package service is the panic alert dispatcher.
//
// A trigger is durable before it is loud: the event is committed first and
// only then fanned out, security channel first and estate admins after, in
// parallel. Delivery failures are logged and counted but never fail the
// trigger.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gatepass/internal/emergency/metrics"
	"gatepass/internal/emergency/models"
	estatemodels "gatepass/internal/estate/models"
	"gatepass/internal/notify"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/audit"
	"gatepass/pkg/platform/sentinel"
	"gatepass/pkg/platform/tx"
	"gatepass/pkg/requestcontext"
)

const (
	defaultSecurityPrefix = "gatepass.security"
	defaultFanOut         = 8
	defaultNotifyTimeout  = 10 * time.Second
)

type Store interface {
	Create(ctx context.Context, event *models.PanicEvent) error
	FindByID(ctx context.Context, eventID id.PanicEventID) (*models.PanicEvent, error)
	Execute(ctx context.Context, eventID id.PanicEventID, validate func(*models.PanicEvent) error, mutate func(*models.PanicEvent)) (*models.PanicEvent, error)
	ListActive(ctx context.Context, estateID id.EstateID) ([]*models.PanicEvent, error)
}

// Directory resolves who raised the alarm and who must hear about it.
type Directory interface {
	Member(ctx context.Context, estateID id.EstateID, userID id.UserID) (*estatemodels.Member, error)
	ListAdmins(ctx context.Context, estateID id.EstateID) ([]*estatemodels.Member, error)
}

type Notifier interface {
	Notify(ctx context.Context, to notify.Recipient, msg notify.Message) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// DispatchResult reports how far the fan-out got. Failed deliveries are
// already logged.
type DispatchResult struct {
	Event     *models.PanicEvent
	Attempted int
	Delivered int
}

type Service struct {
	store     Store
	directory Directory
	notifier  Notifier

	tx             tx.Runner
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher

	securityPrefix string
	fanOut         int
	notifyTimeout  time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
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

// WithSecurityPrefix sets the subject prefix of the gate console channel; the
// estate ID is appended.
func WithSecurityPrefix(prefix string) Option {
	return func(s *Service) {
		if prefix != "" {
			s.securityPrefix = prefix
		}
	}
}

// WithFanOut bounds how many admin notifications run at once.
func WithFanOut(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.fanOut = n
		}
	}
}

func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

func New(store Store, directory Directory, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		store:          store,
		directory:      directory,
		notifier:       notifier,
		securityPrefix: defaultSecurityPrefix,
		fanOut:         defaultFanOut,
		notifyTimeout:  defaultNotifyTimeout,
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

// Trigger records a panic raised by userID and alerts security and every
// estate admin. It fails with CodeDispatch only when the event cannot be
// stored.
func (s *Service) Trigger(ctx context.Context, estateID id.EstateID, userID id.UserID, location string, pinVerified bool) (*DispatchResult, error) {
	member, err := s.directory.Member(ctx, estateID, userID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeForbidden, "only estate members can raise a panic alert")
		}
		return nil, err
	}

	event, err := models.NewPanicEvent(id.PanicEventID(uuid.New()), estateID, userID, location, pinVerified, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Create(txCtx, event); err != nil {
			return err
		}
		return s.emit(txCtx, audit.EventPanicTriggered, event, location)
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementDispatchFailure()
		}
		s.logger.ErrorContext(ctx, "panic event could not be recorded",
			"estate_id", estateID,
			"user_id", userID,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeDispatch, "panic alert could not be recorded")
	}
	if s.metrics != nil {
		s.metrics.IncrementTriggered()
	}
	s.logger.WarnContext(ctx, "panic triggered",
		"estate_id", estateID,
		"event_id", event.ID,
		"user_id", userID,
		"verified_by_pin", pinVerified,
	)

	// the caller going away must not cut the alert short
	result := s.dispatch(context.WithoutCancel(ctx), event, member)
	return result, nil
}

func (s *Service) dispatch(ctx context.Context, event *models.PanicEvent, member *estatemodels.Member) *DispatchResult {
	msg := alertMessage(event, member)
	result := &DispatchResult{Event: event, Attempted: 1}

	security := notify.Recipient{
		Channel: notify.ChannelSecurity,
		Address: notify.SecuritySubject(s.securityPrefix, event.EstateID.String()),
		Name:    "security",
	}
	if s.deliver(ctx, event, security, msg) {
		result.Delivered++
	}

	admins, err := s.directory.ListAdmins(ctx, event.EstateID)
	if err != nil {
		s.logger.ErrorContext(ctx, "panic admin lookup failed; only security was notified",
			"event_id", event.ID,
			"error", err,
		)
		return result
	}

	delivered := make([]bool, len(admins))
	var g errgroup.Group
	g.SetLimit(s.fanOut)
	for i, admin := range admins {
		g.Go(func() error {
			delivered[i] = s.deliver(ctx, event, adminRecipient(admin), msg)
			return nil
		})
	}
	_ = g.Wait()

	result.Attempted += len(admins)
	for _, ok := range delivered {
		if ok {
			result.Delivered++
		}
	}
	return result
}

// deliver sends one notification and reports whether it went out.
func (s *Service) deliver(ctx context.Context, event *models.PanicEvent, to notify.Recipient, msg notify.Message) bool {
	ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()

	var err error
	if to.Address == "" {
		err = fmt.Errorf("recipient %q has no address on channel %s", to.Name, to.Channel)
	} else {
		err = s.notifier.Notify(ctx, to, msg)
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
		s.logger.ErrorContext(ctx, "panic notification failed",
			"event_id", event.ID,
			"channel", to.Channel,
			"recipient", to.Name,
			"error", err,
		)
	}
	if s.metrics != nil {
		s.metrics.IncrementNotification(string(to.Channel), outcome)
	}
	return err == nil
}

// Resolve closes an active event. The acting member comes from ctx.
func (s *Service) Resolve(ctx context.Context, estateID id.EstateID, eventID id.PanicEventID) (*models.PanicEvent, error) {
	current, err := s.store.FindByID(ctx, eventID)
	if err != nil {
		return nil, wrapEventErr(err)
	}
	if current.EstateID != estateID {
		return nil, dErrors.New(dErrors.CodeNotFound, "panic event not found")
	}

	actor, now := requestcontext.UserID(ctx), requestcontext.Now(ctx)
	var resolved *models.PanicEvent
	err = s.tx.RunInTx(tx.WithLockKey(ctx, "panic:"+eventID.String()), func(txCtx context.Context) error {
		e, err := s.store.Execute(txCtx, eventID,
			func(e *models.PanicEvent) error { return e.CanResolve() },
			func(e *models.PanicEvent) { e.ApplyResolution(actor, now) },
		)
		if err != nil {
			return err
		}
		resolved = e
		return s.emit(txCtx, audit.EventPanicResolved, e, "")
	})
	if err != nil {
		return nil, wrapEventErr(err)
	}
	s.logger.InfoContext(ctx, "panic resolved", "estate_id", estateID, "event_id", eventID, "resolved_by", actor)
	return resolved, nil
}

func (s *Service) ListActive(ctx context.Context, estateID id.EstateID) ([]*models.PanicEvent, error) {
	events, err := s.store.ListActive(ctx, estateID)
	if err != nil {
		return nil, wrapEventErr(err)
	}
	return events, nil
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, e *models.PanicEvent, reason string) error {
	if s.auditPublisher == nil {
		return nil
	}
	return s.auditPublisher.Emit(ctx, audit.Event{
		EstateID: e.EstateID,
		Subject:  e.ID.String(),
		Action:   string(action),
		Reason:   reason,
	})
}

func alertMessage(e *models.PanicEvent, member *estatemodels.Member) notify.Message {
	who := member.Name
	if member.UnitNumber != "" {
		who += ", unit " + member.UnitNumber
	}
	body := "Panic alert raised by " + who + "."
	if !e.VerifiedByPIN {
		body += " The alert was not confirmed with a PIN."
	}
	return notify.Message{
		Kind:     "panic",
		Subject:  "PANIC: " + who,
		Body:     body,
		EstateID: e.EstateID,
		EventID:  e.ID.String(),
		Location: e.Location,
		At:       e.CreatedAt,
	}
}

func adminRecipient(m *estatemodels.Member) notify.Recipient {
	return notify.Recipient{Channel: notify.ChannelEmail, Address: m.Email, Name: m.Name}
}

func wrapEventErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "panic event not found")
	case dErrors.IsDomainError(err):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "panic store failure")
	}
}
