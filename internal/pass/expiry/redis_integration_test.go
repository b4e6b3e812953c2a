//go:build integration

package expiry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/clock"
	"gatepass/pkg/testutil/containers"
)

func TestRedisQueue(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.GetManager().GetRedis(t)

	ctx := context.Background()
	start := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)
	exp := &recordingExpirer{}

	q := NewRedisQueue(rc.Client, clk, nil, WithKey(rc.Key(t, "test:expiry")), WithBatchSize(10))
	q.Bind(exp)

	due, later, cancelled := id.PassID(uuid.New()), id.PassID(uuid.New()), id.PassID(uuid.New())
	require.NoError(t, q.Schedule(ctx, due, start.Add(time.Minute)))
	require.NoError(t, q.Schedule(ctx, later, start.Add(time.Hour)))
	require.NoError(t, q.Schedule(ctx, cancelled, start.Add(time.Minute)))
	require.NoError(t, q.Cancel(ctx, cancelled))

	clk.Set(start.Add(2 * time.Minute))
	claimed, err := q.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)
	assert.Equal(t, []id.PassID{due}, exp.Calls())

	t.Run("a second poller finds nothing to claim", func(t *testing.T) {
		other := NewRedisQueue(rc.Client, clk, nil, WithKey(q.key))
		other.Bind(exp)
		claimed, err := other.Poll(ctx)
		require.NoError(t, err)
		assert.Zero(t, claimed)
	})

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
