package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatepass/internal/notify"
	"gatepass/internal/pass/expiry"
	"gatepass/internal/platform/config"
	"gatepass/internal/platform/redis"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/clock"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildScheduler(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC))

	t.Run("timer backend runs in process", func(t *testing.T) {
		scheduler, run, stop, err := buildScheduler(config.ExpiryConfig{Backend: "timer"}, nil, clk, quietLogger())
		require.NoError(t, err)
		defer stop()
		assert.IsType(t, &expiry.TimerScheduler{}, scheduler)
		assert.Nil(t, run)
	})

	t.Run("redis backend needs a client", func(t *testing.T) {
		_, _, _, err := buildScheduler(config.ExpiryConfig{Backend: "redis"}, nil, clk, quietLogger())
		require.Error(t, err)
	})

	t.Run("redis backend polls in the background", func(t *testing.T) {
		rdb := &redis.Client{Client: goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})}
		defer rdb.Close()

		scheduler, run, stop, err := buildScheduler(config.ExpiryConfig{
			Backend:      "redis",
			PollInterval: time.Second,
			BatchSize:    50,
		}, rdb, clk, quietLogger())
		require.NoError(t, err)
		defer stop()
		assert.IsType(t, &expiry.RedisQueue{}, scheduler)
		assert.NotNil(t, run)
	})
}

func TestMemoryStoresCoverEveryAggregate(t *testing.T) {
	st := memoryStores()
	assert.NotNil(t, st.estates)
	assert.NotNil(t, st.members)
	assert.NotNil(t, st.passes)
	assert.NotNil(t, st.blacklist)
	assert.NotNil(t, st.movements)
	assert.NotNil(t, st.panics)
	assert.NotNil(t, st.audit)
	assert.NotNil(t, st.tx)
	assert.Nil(t, st.outbox, "the audit stream needs postgres")
}

func TestBuildNotifierFallsBackToLog(t *testing.T) {
	notifier, closer, err := buildNotifier(&config.Config{Mail: config.MailConfig{DevMode: true}}, quietLogger())
	require.NoError(t, err)
	defer closer()

	msg := notify.Message{Kind: "panic", Subject: "Panic at gate", EstateID: id.EstateID{}, At: time.Now()}
	ctx := context.Background()
	assert.NoError(t, notifier.Notify(ctx, notify.Recipient{Channel: notify.ChannelSecurity, Address: "gatepass.security.x"}, msg))
	assert.NoError(t, notifier.Notify(ctx, notify.Recipient{Channel: notify.ChannelEmail, Address: "admin@example.com"}, msg))
}
