// Package expiry calls Expire on passes when their deadline arrives.
//
// Two backends exist: TimerScheduler arms one clock timer per pass inside the
// process, RedisQueue keeps deadlines in a sorted set shared by every
// instance. Neither is authoritative on its own: reads expire overdue passes
// lazily as well.
package expiry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gatepass/internal/pass/models"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/clock"
)

// Expirer is the lifecycle operation a scheduler drives. Expire fails with
// CodeConflict and schedules the pass again when its deadline has not been
// reached.
type Expirer interface {
	Expire(ctx context.Context, passID id.PassID) (*models.VisitorPass, error)
}

const expireTimeout = 10 * time.Second

// TimerScheduler keeps one timer per pass. Timers are lost on restart; the
// server re-arms them from the store at startup.
type TimerScheduler struct {
	mu      sync.Mutex
	clock   clock.Clock
	logger  *slog.Logger
	expirer Expirer
	timers  map[id.PassID]clock.Timer
	stopped bool
}

func NewTimerScheduler(c clock.Clock, logger *slog.Logger) *TimerScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimerScheduler{
		clock:  c,
		logger: logger,
		timers: make(map[id.PassID]clock.Timer),
	}
}

// Bind sets the target of fired timers. Call before the first Schedule.
func (s *TimerScheduler) Bind(e Expirer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expirer = e
}

// Schedule arms a timer for deadline, replacing any earlier one for passID.
func (s *TimerScheduler) Schedule(_ context.Context, passID id.PassID, deadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return dErrors.New(dErrors.CodeInternal, "expiry scheduler stopped")
	}
	if t, ok := s.timers[passID]; ok {
		t.Stop()
	}
	s.timers[passID] = s.clock.AfterFunc(deadline.Sub(s.clock.Now()), func() { s.fire(passID) })
	return nil
}

func (s *TimerScheduler) Cancel(_ context.Context, passID id.PassID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[passID]; ok {
		t.Stop()
		delete(s.timers, passID)
	}
	return nil
}

// Pending reports how many passes have an armed timer.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms every timer.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for passID, t := range s.timers {
		t.Stop()
		delete(s.timers, passID)
	}
	s.stopped = true
}

func (s *TimerScheduler) fire(passID id.PassID) {
	s.mu.Lock()
	delete(s.timers, passID)
	expirer := s.expirer
	s.mu.Unlock()
	if expirer == nil {
		s.logger.Warn("expiry timer fired with no expirer bound", "pass_id", passID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), expireTimeout)
	defer cancel()
	expire(ctx, s.logger, expirer, passID)
}

// expire runs one expiry and logs the outcome. Stale passes already ended
// some other way. A pass that is not due yet has been re-armed by the
// expirer for its deadline.
func expire(ctx context.Context, logger *slog.Logger, e Expirer, passID id.PassID) {
	_, err := e.Expire(ctx, passID)
	switch {
	case err == nil:
	case dErrors.HasCode(err, dErrors.CodeStaleState), dErrors.HasCode(err, dErrors.CodeNotFound):
		logger.DebugContext(ctx, "expiry skipped", "pass_id", passID, "reason", err.Error())
	case dErrors.HasCode(err, dErrors.CodeConflict):
		logger.InfoContext(ctx, "expiry fired early, re-armed", "pass_id", passID)
	default:
		logger.ErrorContext(ctx, "pass expiry failed", "pass_id", passID, "error", err)
	}
}
