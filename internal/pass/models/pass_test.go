package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
)

var t0 = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

func details() VisitorDetails {
	return VisitorDetails{
		VisitorName:       " Asha Rao ",
		Phone:             "9812345678",
		Purpose:           "Delivery",
		VehicleNumber:     "ka01ab1234",
		ExpectedArrival:   t0,
		ExpectedDeparture: t0.Add(2 * time.Hour),
	}
}

func pendingPass(t *testing.T) *VisitorPass {
	t.Helper()
	d := details()
	d.Normalize()
	p, err := NewVisitorPass(id.PassID(uuid.New()), id.EstateID(uuid.New()),
		Resident{ID: id.UserID(uuid.New()), Name: "Ravi", UnitNumber: "B-12"}, d, "K7Q2ZD", "hash", t0)
	require.NoError(t, err)
	return p
}

func TestVisitorDetailsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*VisitorDetails)
		field  string
	}{
		{"missing name", func(d *VisitorDetails) { d.VisitorName = "" }, "visitor_name"},
		{"missing phone", func(d *VisitorDetails) { d.Phone = "" }, "phone"},
		{"missing arrival", func(d *VisitorDetails) { d.ExpectedArrival = time.Time{} }, "expected_arrival"},
		{"departure before arrival", func(d *VisitorDetails) { d.ExpectedDeparture = t0.Add(-time.Minute) }, "expected_departure"},
		{"departure equals arrival", func(d *VisitorDetails) { d.ExpectedDeparture = t0 }, "expected_departure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := details()
			tt.modify(&d)
			d.Normalize()
			err := d.Validate(t0)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Equal(t, tt.field, dErrors.FieldOf(err))
		})
	}

	t.Run("departure in the past", func(t *testing.T) {
		d := details()
		err := d.Validate(t0.Add(3 * time.Hour))
		assert.Equal(t, "expected_departure", dErrors.FieldOf(err))
	})

	t.Run("normalized details pass", func(t *testing.T) {
		d := details()
		d.Normalize()
		require.NoError(t, d.Validate(t0))
		assert.Equal(t, "Asha Rao", d.VisitorName)
		assert.Equal(t, "KA01AB1234", d.VehicleNumber)
	})
}

func TestNewVisitorPass(t *testing.T) {
	p := pendingPass(t)
	assert.Equal(t, StatusPending, p.Status)
	assert.False(t, p.SecurityVerified)
	assert.Equal(t, "Ravi", p.ResidentName)

	_, err := NewVisitorPass(id.PassID(uuid.New()), id.EstateID(uuid.New()), Resident{}, details(), "", "hash", t0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestLifecycle(t *testing.T) {
	t.Run("verify then exit", func(t *testing.T) {
		p := pendingPass(t)
		require.NoError(t, p.CanVerify(t0.Add(time.Minute)))
		p.ApplyVerification(t0.Add(time.Minute))
		assert.Equal(t, StatusActive, p.Status)
		assert.True(t, p.SecurityVerified)

		assert.True(t, dErrors.HasCode(p.CanVerify(t0.Add(2*time.Minute)), dErrors.CodeStaleState))
		assert.True(t, dErrors.HasCode(p.CanCancel(), dErrors.CodeStaleState))

		require.NoError(t, p.CanExit())
		p.ApplyExit(t0.Add(time.Hour))
		assert.Equal(t, StatusCompleted, p.Status)
		assert.True(t, dErrors.HasCode(p.CanExit(), dErrors.CodeStaleState))
		assert.True(t, dErrors.HasCode(p.CanExpire(), dErrors.CodeStaleState))
	})

	t.Run("exit requires active", func(t *testing.T) {
		p := pendingPass(t)
		assert.True(t, dErrors.HasCode(p.CanExit(), dErrors.CodeStaleState))
	})

	t.Run("verify at deadline is stale", func(t *testing.T) {
		p := pendingPass(t)
		assert.True(t, dErrors.HasCode(p.CanVerify(p.ExpectedDeparture), dErrors.CodeStaleState))
	})

	t.Run("expire from pending and active", func(t *testing.T) {
		p := pendingPass(t)
		require.NoError(t, p.CanExpire())
		p.ApplyExpiry(p.ExpectedDeparture)
		assert.Equal(t, StatusExpired, p.Status)
		assert.True(t, dErrors.HasCode(p.CanExpire(), dErrors.CodeStaleState))

		a := pendingPass(t)
		a.ApplyVerification(t0)
		require.NoError(t, a.CanExpire())
	})

	t.Run("cancel pending", func(t *testing.T) {
		p := pendingPass(t)
		require.NoError(t, p.CanCancel())
		p.ApplyCancellation(t0)
		assert.Equal(t, StatusCancelled, p.Status)
		assert.NotNil(t, p.CancelledAt)
		assert.True(t, dErrors.HasCode(p.CanVerify(t0), dErrors.CodeStaleState))
	})
}

func TestClone(t *testing.T) {
	p := pendingPass(t)
	p.ApplyVerification(t0)
	c := p.Clone()
	*c.VerifiedAt = t0.Add(time.Hour)
	assert.Equal(t, t0, *p.VerifiedAt)
}

func TestTimeRemaining(t *testing.T) {
	p := pendingPass(t)
	assert.Equal(t, 2*time.Hour, TimeRemaining(p, t0))
	assert.Equal(t, 30*time.Minute, TimeRemaining(p, t0.Add(90*time.Minute)))
	assert.Zero(t, TimeRemaining(p, p.ExpectedDeparture))
	assert.Zero(t, TimeRemaining(p, p.ExpectedDeparture.Add(time.Hour)))

	p.ApplyCancellation(t0)
	assert.Zero(t, TimeRemaining(p, t0))
	assert.Zero(t, TimeRemaining(nil, t0))
}

func TestStatusTransitions(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusExpired, StatusCancelled} {
		assert.True(t, s.IsTerminal())
		assert.False(t, s.IsLive())
		for _, next := range []Status{StatusPending, StatusActive, StatusCompleted, StatusExpired, StatusCancelled} {
			assert.False(t, s.CanTransitionTo(next), "%s -> %s", s, next)
		}
	}
	assert.True(t, StatusPending.CanTransitionTo(StatusActive))
	assert.False(t, StatusPending.CanTransitionTo(StatusCompleted))
	assert.False(t, StatusActive.CanTransitionTo(StatusCancelled))
	assert.False(t, Status("bogus").IsValid())
}
