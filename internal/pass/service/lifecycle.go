package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	movementmodels "gatepass/internal/movement/models"
	"gatepass/internal/pass/models"
	"gatepass/internal/pass/qr"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/audit"
	"gatepass/pkg/platform/sentinel"
	"gatepass/pkg/requestcontext"
)

// Issued is the result of creating a pass. PIN is the only place the
// plaintext PIN ever appears.
type Issued struct {
	Pass             *models.VisitorPass
	PIN              string
	QR               qr.Payload
	BlacklistWarning string
}

// Create issues a pending pass for a visitor of residentID.
func (s *Service) Create(ctx context.Context, estateID id.EstateID, residentID id.UserID, details models.VisitorDetails) (_ *Issued, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "pass.Create", trace.WithAttributes(attribute.String("estate_id", estateID.String())))
	defer func() { endSpan(span, err) }()
	defer s.observe("create", start)

	now := s.now(ctx)
	details.Normalize()
	if err := details.Validate(now); err != nil {
		return nil, err
	}

	policy, err := s.estates.Policy(ctx, estateID)
	if err != nil {
		return nil, err
	}
	member, err := s.estates.Member(ctx, estateID, residentID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeForbidden, "resident is not a member of this estate")
		}
		return nil, err
	}

	match, err := s.blacklist.Screen(ctx, estateID, details.VisitorName, details.Phone)
	if err != nil {
		return nil, err
	}
	var warning string
	if match.Found() {
		if policy.BlockOnBlacklist {
			s.incrementBlacklistHit("blocked")
			s.logger.WarnContext(ctx, "pass creation blocked by blacklist",
				"estate_id", estateID,
				"resident_id", residentID,
				"matches", len(match.Entries),
			)
			return nil, dErrors.New(dErrors.CodeForbidden, "visitor is blacklisted for this estate")
		}
		s.incrementBlacklistHit("warned")
		warning = match.Warning()
	}

	pin := s.codes.PIN()
	pinHash, err := s.hasher.Hash(pin)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to secure pin")
	}
	resident := models.Resident{ID: residentID, Name: member.Name, UnitNumber: member.UnitNumber}

	var pass *models.VisitorPass
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		p, err := models.NewVisitorPass(id.PassID(uuid.New()), estateID, resident, details, s.codes.PassCode(), pinHash, now)
		if err != nil {
			return nil, err
		}
		err = s.tx.RunInTx(passLock(ctx, p.ID), func(txCtx context.Context) error {
			if err := s.passes.Create(txCtx, p); err != nil {
				return err
			}
			if err := s.emit(txCtx, audit.EventPassCreated, p, ""); err != nil {
				return err
			}
			if warning != "" {
				return s.emit(txCtx, audit.EventPassBlacklistWarning, p, warning)
			}
			return nil
		})
		if err == nil {
			pass = p
			break
		}
		if !errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, wrapPassErr(err)
		}
		s.logger.DebugContext(ctx, "pass code collision", "estate_id", estateID, "attempt", attempt)
	}
	if pass == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "could not allocate a unique pass code")
	}

	s.schedule(ctx, pass)
	s.incrementTransition(models.StatusPending)
	s.logger.InfoContext(ctx, "pass created",
		"estate_id", estateID,
		"pass_id", pass.ID,
		"resident_id", residentID,
		"blacklist_warning", warning != "",
	)
	return &Issued{
		Pass:             pass,
		PIN:              pin,
		QR:               qr.Encode(pass, now),
		BlacklistWarning: warning,
	}, nil
}

// VerifyEntry admits the visitor when the pass is pending, inside its
// validity window and pin matches. A wrong PIN never changes the pass.
func (s *Service) VerifyEntry(ctx context.Context, estateID id.EstateID, passID id.PassID, pin string) (_ *models.VisitorPass, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "pass.VerifyEntry", trace.WithAttributes(attribute.String("pass_id", passID.String())))
	defer func() { endSpan(span, err) }()
	defer s.observe("verify_entry", start)

	now := s.now(ctx)
	p, err := s.load(ctx, estateID, passID)
	if err != nil {
		return nil, err
	}
	if p.Status.IsLive() && p.IsPastDeadline(now) {
		s.expireDue(ctx, p.ID, now)
		return nil, dErrors.New(dErrors.CodeStaleState, "cannot verify: pass has expired")
	}
	if err := p.CanVerify(now); err != nil {
		return nil, err
	}
	if !s.hasher.Matches(p.PINHash, pin) {
		if s.metrics != nil {
			s.metrics.IncrementVerificationFailure()
		}
		if err := s.emit(ctx, audit.EventPassVerificationFailed, p, "pin mismatch"); err != nil {
			s.logger.WarnContext(ctx, "audit emit failed", "pass_id", passID, "error", err)
		}
		s.logger.InfoContext(ctx, "pass verification failed", "estate_id", estateID, "pass_id", passID)
		return nil, dErrors.New(dErrors.CodeVerification, "pin does not match")
	}

	var verified *models.VisitorPass
	err = s.tx.RunInTx(passLock(ctx, passID), func(txCtx context.Context) error {
		updated, err := s.passes.Execute(txCtx, passID,
			func(p *models.VisitorPass) error { return p.CanVerify(now) },
			func(p *models.VisitorPass) { p.ApplyVerification(now) },
		)
		if err != nil {
			return err
		}
		if err := s.appendMovement(txCtx, updated, movementmodels.TypeEntry, now); err != nil {
			return err
		}
		if err := s.emit(txCtx, audit.EventPassVerified, updated, ""); err != nil {
			return err
		}
		verified = updated
		return nil
	})
	if err != nil {
		return nil, wrapPassErr(err)
	}

	s.incrementTransition(models.StatusActive)
	s.logger.InfoContext(ctx, "visitor admitted", "estate_id", estateID, "pass_id", passID)
	return verified, nil
}

// MarkExit completes an active pass and records the exit.
func (s *Service) MarkExit(ctx context.Context, estateID id.EstateID, passID id.PassID) (_ *models.VisitorPass, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "pass.MarkExit", trace.WithAttributes(attribute.String("pass_id", passID.String())))
	defer func() { endSpan(span, err) }()
	defer s.observe("mark_exit", start)

	now := s.now(ctx)
	if _, err := s.load(ctx, estateID, passID); err != nil {
		return nil, err
	}
	var exited *models.VisitorPass
	err = s.tx.RunInTx(passLock(ctx, passID), func(txCtx context.Context) error {
		updated, err := s.passes.Execute(txCtx, passID,
			func(p *models.VisitorPass) error { return p.CanExit() },
			func(p *models.VisitorPass) { p.ApplyExit(now) },
		)
		if err != nil {
			return err
		}
		if err := s.appendMovement(txCtx, updated, movementmodels.TypeExit, now); err != nil {
			return err
		}
		if err := s.emit(txCtx, audit.EventPassExited, updated, ""); err != nil {
			return err
		}
		exited = updated
		return nil
	})
	if err != nil {
		return nil, wrapPassErr(err)
	}

	s.unschedule(ctx, passID)
	s.incrementTransition(models.StatusCompleted)
	s.logger.InfoContext(ctx, "visitor exited", "estate_id", estateID, "pass_id", passID)
	return exited, nil
}

// Cancel withdraws a pending pass. Only its resident or an estate admin may
// cancel it.
func (s *Service) Cancel(ctx context.Context, estateID id.EstateID, passID id.PassID) (_ *models.VisitorPass, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "pass.Cancel", trace.WithAttributes(attribute.String("pass_id", passID.String())))
	defer func() { endSpan(span, err) }()
	defer s.observe("cancel", start)

	now := s.now(ctx)
	p, err := s.load(ctx, estateID, passID)
	if err != nil {
		return nil, err
	}
	if actor := requestcontext.UserID(ctx); !actor.IsNil() && actor != p.ResidentID && requestcontext.Role(ctx) != "admin" {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the inviting resident can cancel this pass")
	}

	var cancelled *models.VisitorPass
	err = s.tx.RunInTx(passLock(ctx, passID), func(txCtx context.Context) error {
		updated, err := s.passes.Execute(txCtx, passID,
			func(p *models.VisitorPass) error { return p.CanCancel() },
			func(p *models.VisitorPass) { p.ApplyCancellation(now) },
		)
		if err != nil {
			return err
		}
		cancelled = updated
		return s.emit(txCtx, audit.EventPassCancelled, updated, "")
	})
	if err != nil {
		return nil, wrapPassErr(err)
	}

	s.unschedule(ctx, passID)
	s.incrementTransition(models.StatusCancelled)
	s.logger.InfoContext(ctx, "pass cancelled", "estate_id", estateID, "pass_id", passID)
	return cancelled, nil
}

// Expire ends a live pass whose deadline has been reached. It is what the
// expiry scheduler calls; a pass that already reached a terminal state fails
// with a stale-state error. A pass that is not due yet fails with a conflict
// and is scheduled again for its deadline.
func (s *Service) Expire(ctx context.Context, passID id.PassID) (_ *models.VisitorPass, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "pass.Expire", trace.WithAttributes(attribute.String("pass_id", passID.String())))
	defer func() { endSpan(span, err) }()
	defer s.observe("expire", start)

	now := s.now(ctx)
	var (
		expired *models.VisitorPass
		rearmAt time.Time
	)
	err = s.tx.RunInTx(passLock(ctx, passID), func(txCtx context.Context) error {
		updated, err := s.passes.Execute(txCtx, passID,
			func(p *models.VisitorPass) error {
				if err := p.CanExpire(); err != nil {
					return err
				}
				if !p.IsPastDeadline(now) {
					rearmAt = p.ExpectedDeparture
					return dErrors.New(dErrors.CodeConflict, "pass has not reached its deadline")
				}
				return nil
			},
			func(p *models.VisitorPass) { p.ApplyExpiry(now) },
		)
		if err != nil {
			return err
		}
		expired = updated
		return s.emit(txCtx, audit.EventPassExpired, updated, "")
	})
	if err != nil {
		if !rearmAt.IsZero() {
			s.scheduleAt(ctx, passID, rearmAt)
		}
		return nil, wrapPassErr(err)
	}

	s.incrementTransition(models.StatusExpired)
	s.logger.InfoContext(ctx, "pass expired", "estate_id", expired.EstateID, "pass_id", passID)
	return expired, nil
}

// expireDue applies a lazily detected expiry. Losing the race to another
// terminal transition is fine.
func (s *Service) expireDue(ctx context.Context, passID id.PassID, now time.Time) {
	_, err := s.Expire(requestcontext.WithTime(ctx, now), passID)
	if err != nil && !dErrors.HasCode(err, dErrors.CodeStaleState) {
		s.logger.WarnContext(ctx, "lazy expiry failed", "pass_id", passID, "error", err)
	}
}

func (s *Service) appendMovement(ctx context.Context, p *models.VisitorPass, kind movementmodels.Type, now time.Time) error {
	_, err := s.movements.Append(ctx, movementmodels.LogEntry{
		EstateID:    p.EstateID,
		PassID:      p.ID,
		VisitorName: p.VisitorName,
		PassCode:    p.PassCode,
		Type:        kind,
		Timestamp:   now,
		VerifiedBy:  requestcontext.UserID(ctx),
	})
	return err
}

func (s *Service) schedule(ctx context.Context, p *models.VisitorPass) {
	s.scheduleAt(ctx, p.ID, p.ExpectedDeparture)
}

func (s *Service) scheduleAt(ctx context.Context, passID id.PassID, deadline time.Time) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.Schedule(ctx, passID, deadline); err != nil {
		// reads still expire the pass lazily
		s.logger.WarnContext(ctx, "failed to schedule expiry", "pass_id", passID, "error", err)
	}
}

func (s *Service) unschedule(ctx context.Context, passID id.PassID) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.Cancel(ctx, passID); err != nil {
		s.logger.WarnContext(ctx, "failed to cancel expiry", "pass_id", passID, "error", err)
	}
}

func (s *Service) incrementBlacklistHit(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementBlacklistHit(outcome)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}
