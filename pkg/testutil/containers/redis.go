//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"gatepass/internal/platform/config"
	platformredis "gatepass/internal/platform/redis"
)

// RedisContainer is a Redis instance reached through the server's own client
// constructor.
type RedisContainer struct {
	Container testcontainers.Container
	URL       string
	Client    *platformredis.Client
}

func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get redis connection string: %v", err)
	}

	client, err := platformredis.New(ctx, config.RedisConfig{URL: url, PoolSize: 4})
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to connect to redis: %v", err)
	}

	// shared by the Manager; Ryuk terminates it
	return &RedisContainer{Container: container, URL: url, Client: client}
}

// Key returns a key unique to the calling test so suites sharing the
// container never see each other's data.
func (r *RedisContainer) Key(t *testing.T, prefix string) string {
	t.Helper()
	key := prefix + ":" + uuid.NewString()
	t.Cleanup(func() { _ = r.Client.Del(context.Background(), key).Err() })
	return key
}
