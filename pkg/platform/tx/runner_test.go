package tx

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "gatepass/pkg/domain-errors"
)

func TestShardedRunner_SerializesSameKey(t *testing.T) {
	runner := NewShardedRunner()
	ctx := WithLockKey(context.Background(), "pass-1")

	var inside, maxInside int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := runner.RunInTx(ctx, func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					cur := atomic.LoadInt32(&maxInside)
					if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestShardedRunner_NestedCallsReuseLock(t *testing.T) {
	runner := NewShardedRunner()
	ctx := WithLockKey(context.Background(), "pass-1")

	called := false
	err := runner.RunInTx(ctx, func(txCtx context.Context) error {
		return runner.RunInTx(txCtx, func(context.Context) error {
			called = true
			return nil
		})
	})

	require.NoError(t, err)
	assert.True(t, called)
}

func TestShardedRunner_PropagatesError(t *testing.T) {
	runner := NewShardedRunner()
	boom := errors.New("boom")

	err := runner.RunInTx(context.Background(), func(context.Context) error { return boom })

	require.ErrorIs(t, err, boom)
}

func TestShardedRunner_CancelledContext(t *testing.T) {
	runner := NewShardedRunner()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runner.RunInTx(ctx, func(context.Context) error { return nil })

	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}
