package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"gatepass/internal/pass/expiry"
	"gatepass/internal/pass/models"
	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/clock"
)

// zset is an in-memory stand-in for the sorted-set commands RedisQueue uses.
// Any other command panics through the nil embedded interface.
type zset struct {
	redis.Cmdable

	mu     sync.Mutex
	scores map[string]float64
}

func newZSet() *zset {
	return &zset{scores: make(map[string]float64)}
}

func (z *zset) ZAdd(ctx context.Context, _ string, members ...redis.Z) *redis.IntCmd {
	z.mu.Lock()
	defer z.mu.Unlock()
	var added int64
	for _, m := range members {
		name := fmt.Sprint(m.Member)
		if _, ok := z.scores[name]; !ok {
			added++
		}
		z.scores[name] = m.Score
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(added)
	return cmd
}

func (z *zset) ZRem(ctx context.Context, _ string, members ...interface{}) *redis.IntCmd {
	z.mu.Lock()
	defer z.mu.Unlock()
	var removed int64
	for _, m := range members {
		name := fmt.Sprint(m)
		if _, ok := z.scores[name]; ok {
			delete(z.scores, name)
			removed++
		}
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(removed)
	return cmd
}

func (z *zset) ZRangeByScore(ctx context.Context, _ string, opt *redis.ZRangeBy) *redis.StringSliceCmd {
	z.mu.Lock()
	defer z.mu.Unlock()
	maxScore, err := strconv.ParseFloat(opt.Max, 64)
	cmd := redis.NewStringSliceCmd(ctx)
	if err != nil {
		cmd.SetErr(err)
		return cmd
	}
	var due []string
	for name, score := range z.scores {
		if score <= maxScore {
			due = append(due, name)
		}
	}
	sort.Slice(due, func(i, j int) bool { return z.scores[due[i]] < z.scores[due[j]] })
	if opt.Count > 0 && int64(len(due)) > opt.Count {
		due = due[:opt.Count]
	}
	cmd.SetVal(due)
	return cmd
}

func (z *zset) score(member string) (float64, bool) {
	z.mu.Lock()
	defer z.mu.Unlock()
	v, ok := z.scores[member]
	return v, ok
}

func (z *zset) set(member string, score float64) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.scores[member] = score
}

func (s *PassServiceSuite) statusIn(svc *Service, passID id.PassID) models.Status {
	p, err := svc.passes.FindByID(s.ctx(), passID)
	s.Require().NoError(err)
	return p.Status
}

func (s *PassServiceSuite) TestRedisQueueWaitsOutSubMillisecondDeadline() {
	set := newZSet()
	queue := expiry.NewRedisQueue(set, s.clock, nil)
	svc := s.newService(WithScheduler(queue))
	queue.Bind(svc)

	d := ashaRao()
	d.ExpectedDeparture = t0.Add(2*time.Hour + 500*time.Microsecond)
	issued, err := svc.Create(s.residentCtx(), s.estateID, s.resident, d)
	s.Require().NoError(err)

	score, ok := set.score(issued.Pass.ID.String())
	s.Require().True(ok)
	s.Equal(float64(d.ExpectedDeparture.UnixMilli()+1), score)

	s.clock.Set(t0.Add(2*time.Hour + 200*time.Microsecond))
	claimed, err := queue.Poll(s.ctx())
	s.Require().NoError(err)
	s.Zero(claimed)
	s.Equal(models.StatusPending, s.statusIn(svc, issued.Pass.ID))

	s.clock.Set(t0.Add(2*time.Hour + time.Millisecond))
	claimed, err = queue.Poll(s.ctx())
	s.Require().NoError(err)
	s.Equal(1, claimed)
	s.Equal(models.StatusExpired, s.statusIn(svc, issued.Pass.ID))
}

func (s *PassServiceSuite) TestEarlyRedisClaimRearmsPass() {
	set := newZSet()
	queue := expiry.NewRedisQueue(set, s.clock, nil)
	svc := s.newService(WithScheduler(queue))
	queue.Bind(svc)

	issued, err := svc.Create(s.residentCtx(), s.estateID, s.resident, ashaRao())
	s.Require().NoError(err)
	member := issued.Pass.ID.String()
	deadline := float64(issued.Pass.ExpectedDeparture.UnixMilli())

	// a member scored one millisecond early is claimed before its deadline
	set.set(member, deadline-1)
	s.clock.Set(t0.Add(2*time.Hour - 500*time.Microsecond))
	claimed, err := queue.Poll(s.ctx())
	s.Require().NoError(err)
	s.Equal(1, claimed)
	s.Equal(models.StatusPending, s.statusIn(svc, issued.Pass.ID))

	score, ok := set.score(member)
	s.Require().True(ok, "pass must be queued again")
	s.Equal(deadline, score)

	s.clock.Set(t0.Add(5 * time.Hour))
	claimed, err = queue.Poll(s.ctx())
	s.Require().NoError(err)
	s.Equal(1, claimed)
	s.Equal(models.StatusExpired, s.statusIn(svc, issued.Pass.ID))
}

func (s *PassServiceSuite) TestEarlyTimerRearmsPass() {
	// the scheduler's clock runs ahead of the service's, as after a wall-clock step back
	timerClock := clock.NewFake(t0)
	timers := expiry.NewTimerScheduler(timerClock, nil)
	svc := s.newService(WithScheduler(timers))
	timers.Bind(svc)

	issued, err := svc.Create(s.residentCtx(), s.estateID, s.resident, ashaRao())
	s.Require().NoError(err)

	timerClock.Advance(2 * time.Hour)
	s.Equal(models.StatusPending, s.statusIn(svc, issued.Pass.ID))
	s.Equal(1, timers.Pending())

	s.clock.Set(t0.Add(2 * time.Hour))
	timerClock.Advance(time.Millisecond)
	s.Equal(models.StatusExpired, s.statusIn(svc, issued.Pass.ID))
	s.Zero(timers.Pending())
}

func (s *PassServiceSuite) TestDirectEarlyExpireKeepsTimerArmed() {
	issued := s.create()
	_, err := s.service.Expire(s.ctx(), issued.Pass.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(1, s.scheduler.Pending())

	s.clock.Advance(2 * time.Hour)
	s.Equal(models.StatusExpired, s.status(issued.Pass.ID))
}

func (s *PassServiceSuite) TestCancelAndExpireAreTimed() {
	cancelled := s.create()
	_, err := s.service.Cancel(s.residentCtx(), s.estateID, cancelled.Pass.ID)
	s.Require().NoError(err)

	expired := s.create()
	s.clock.Advance(2 * time.Hour)
	s.Require().Equal(models.StatusExpired, s.status(expired.Pass.ID))

	s.Equal(3, testutil.CollectAndCount(s.metrics.TransitionDuration))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Transitions.WithLabelValues(string(models.StatusCancelled))))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Transitions.WithLabelValues(string(models.StatusExpired))))
}
