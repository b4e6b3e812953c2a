package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatepass/internal/pass/models"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

var base = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

func newPass(t *testing.T, estateID id.EstateID, residentID id.UserID, code string, createdAt time.Time) *models.VisitorPass {
	t.Helper()
	p, err := models.NewVisitorPass(id.PassID(uuid.New()), estateID, models.Resident{ID: residentID},
		models.VisitorDetails{
			VisitorName:       "Asha Rao",
			Phone:             "9812345678",
			ExpectedArrival:   createdAt,
			ExpectedDeparture: createdAt.Add(2 * time.Hour),
		}, code, "hash", createdAt)
	require.NoError(t, err)
	return p
}

func TestCreate_LiveCodeUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	estateID := id.EstateID(uuid.New())
	first := newPass(t, estateID, id.UserID(uuid.New()), "ABC123", base)
	require.NoError(t, s.Create(ctx, first))

	t.Run("collides with a live pass", func(t *testing.T) {
		err := s.Create(ctx, newPass(t, estateID, id.UserID(uuid.New()), "ABC123", base))
		assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
	})

	t.Run("other estates may reuse it", func(t *testing.T) {
		require.NoError(t, s.Create(ctx, newPass(t, id.EstateID(uuid.New()), id.UserID(uuid.New()), "ABC123", base)))
	})

	t.Run("terminal passes release the code", func(t *testing.T) {
		_, err := s.Execute(ctx, first.ID,
			func(p *models.VisitorPass) error { return p.CanCancel() },
			func(p *models.VisitorPass) { p.ApplyCancellation(base) })
		require.NoError(t, err)
		require.NoError(t, s.Create(ctx, newPass(t, estateID, id.UserID(uuid.New()), "ABC123", base)))
	})
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	p := newPass(t, id.EstateID(uuid.New()), id.UserID(uuid.New()), "XYZ789", base)
	require.NoError(t, s.Create(ctx, p))

	t.Run("validate failure leaves state untouched", func(t *testing.T) {
		boom := errors.New("nope")
		_, err := s.Execute(ctx, p.ID,
			func(*models.VisitorPass) error { return boom },
			func(p *models.VisitorPass) { p.ApplyVerification(base) })
		assert.ErrorIs(t, err, boom)

		got, err := s.FindByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)
	})

	t.Run("returned pass is a copy", func(t *testing.T) {
		got, err := s.FindByID(ctx, p.ID)
		require.NoError(t, err)
		got.Status = models.StatusCompleted
		again, _ := s.FindByID(ctx, p.ID)
		assert.Equal(t, models.StatusPending, again.Status)
	})

	t.Run("exactly one concurrent terminal transition wins", func(t *testing.T) {
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			success int
		)
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Execute(ctx, p.ID,
					func(p *models.VisitorPass) error { return p.CanExpire() },
					func(p *models.VisitorPass) { p.ApplyExpiry(base) })
				if err == nil {
					mu.Lock()
					success++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, success)
	})

	t.Run("missing pass", func(t *testing.T) {
		_, err := s.Execute(ctx, id.PassID(uuid.New()),
			func(*models.VisitorPass) error { return nil },
			func(*models.VisitorPass) {})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestListByResident(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	estateID := id.EstateID(uuid.New())
	resident := id.UserID(uuid.New())
	for i := range 12 {
		require.NoError(t, s.Create(ctx, newPass(t, estateID, resident, string(rune('A'+i))+"00000", base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, s.Create(ctx, newPass(t, estateID, id.UserID(uuid.New()), "ZZZZZZ", base)))

	got, err := s.ListByResident(ctx, estateID, resident, 10)
	require.NoError(t, err)
	require.Len(t, got, 10)
	assert.Equal(t, "L00000", got[0].PassCode)
	assert.Equal(t, "C00000", got[9].PassCode)

	live, err := s.ListLive(ctx, estateID)
	require.NoError(t, err)
	assert.Len(t, live, 13)

	all, err := s.ListAllLive(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 13)
}
