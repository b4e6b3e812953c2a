package service

import (
	"context"
	"errors"
	"time"

	blacklistmodels "gatepass/internal/blacklist/models"
	"gatepass/internal/pass/models"
	"gatepass/internal/pass/qr"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/sentinel"
)

// Get returns the pass, expiring it first if its deadline has passed.
func (s *Service) Get(ctx context.Context, estateID id.EstateID, passID id.PassID) (*models.VisitorPass, error) {
	p, err := s.load(ctx, estateID, passID)
	if err != nil {
		return nil, err
	}
	now := s.now(ctx)
	if p.Status.IsLive() && p.IsPastDeadline(now) {
		s.expireDue(ctx, passID, now)
		return s.load(ctx, estateID, passID)
	}
	return p, nil
}

// TimeRemaining is the validity left on the pass now.
func (s *Service) TimeRemaining(ctx context.Context, estateID id.EstateID, passID id.PassID) (time.Duration, error) {
	p, err := s.load(ctx, estateID, passID)
	if err != nil {
		return 0, err
	}
	return models.TimeRemaining(p, s.now(ctx)), nil
}

// ListForResident returns the resident's most recent passes, capped by the
// estate's history limit.
func (s *Service) ListForResident(ctx context.Context, estateID id.EstateID, residentID id.UserID) ([]*models.VisitorPass, error) {
	policy, err := s.estates.Policy(ctx, estateID)
	if err != nil {
		return nil, err
	}
	limit := policy.PassHistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	passes, err := s.passes.ListByResident(ctx, estateID, residentID, limit)
	if err != nil {
		return nil, wrapPassErr(err)
	}
	return passes, nil
}

// ListActive returns the estate's live passes. Passes found past their
// deadline are expired and left out.
func (s *Service) ListActive(ctx context.Context, estateID id.EstateID) ([]*models.VisitorPass, error) {
	passes, err := s.passes.ListLive(ctx, estateID)
	if err != nil {
		return nil, wrapPassErr(err)
	}
	now := s.now(ctx)
	out := make([]*models.VisitorPass, 0, len(passes))
	for _, p := range passes {
		if p.IsPastDeadline(now) {
			s.expireDue(ctx, p.ID, now)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// QRCode renders the pass's public payload. Terminal passes have no code.
func (s *Service) QRCode(ctx context.Context, estateID id.EstateID, passID id.PassID) ([]byte, error) {
	p, err := s.Get(ctx, estateID, passID)
	if err != nil {
		return nil, err
	}
	if p.Status.IsTerminal() {
		return nil, dErrors.New(dErrors.CodeStaleState, "pass is "+string(p.Status))
	}
	img, err := s.renderer.Render(ctx, qr.Encode(p, s.now(ctx)))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to render qr code")
	}
	return img, nil
}

// RescheduleLive re-arms expiry for every live pass, expiring the ones already
// due. Run once at startup; returns how many were scheduled.
func (s *Service) RescheduleLive(ctx context.Context) (int, error) {
	passes, err := s.passes.ListAllLive(ctx)
	if err != nil {
		return 0, wrapPassErr(err)
	}
	now := s.now(ctx)
	scheduled := 0
	for _, p := range passes {
		if p.IsPastDeadline(now) {
			s.expireDue(ctx, p.ID, now)
			continue
		}
		s.schedule(ctx, p)
		scheduled++
	}
	s.logger.InfoContext(ctx, "pass expiry rescheduled", "scheduled", scheduled, "live", len(passes))
	return scheduled, nil
}

func (s *Service) AddToBlacklist(ctx context.Context, estateID id.EstateID, name, phone, reason string) (*blacklistmodels.Entry, error) {
	return s.blacklist.Add(ctx, estateID, name, phone, reason)
}

func (s *Service) RemoveFromBlacklist(ctx context.Context, estateID id.EstateID, entryID id.BlacklistEntryID) error {
	return s.blacklist.Remove(ctx, estateID, entryID)
}

// load fetches a pass scoped to estateID; other estates' passes read as missing.
func (s *Service) load(ctx context.Context, estateID id.EstateID, passID id.PassID) (*models.VisitorPass, error) {
	p, err := s.passes.FindByID(ctx, passID)
	if err != nil {
		return nil, wrapPassErr(err)
	}
	if p.EstateID != estateID {
		return nil, dErrors.New(dErrors.CodeNotFound, "pass not found")
	}
	return p, nil
}

// wrapPassErr maps store sentinels to domain codes and keeps domain errors.
func wrapPassErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "pass not found")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "pass code already in use")
	case dErrors.IsDomainError(err):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "pass store failure")
	}
}
