package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/pulse/internal/infrastructure/config"
	"github.com/taskmaster/pulse/internal/ports"
)

func TestNoop(t *testing.T) {
	ctx := context.Background()
	c := Noop{}

	require.NoError(t, c.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))

	var dest map[string]int
	assert.ErrorIs(t, c.Get(ctx, "k", &dest), ports.ErrCacheMiss)

	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, c.DeletePattern(ctx, "analytics:*"))
	assert.NoError(t, c.Ping(ctx))
}

func TestRedisCache_KeyPrefix(t *testing.T) {
	c := NewRedisCache(nil, "taskpulse:")
	assert.Equal(t, "taskpulse:analytics:u1:dashboard", c.key("analytics:u1:dashboard"))
}

func TestRedisCache_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedisCache(client, "test:")
	ctx := context.Background()

	var dest map[string]int
	err := c.Get(ctx, "k", &dest)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ports.ErrCacheMiss)

	assert.Error(t, c.Set(ctx, "k", 1, time.Minute))
	assert.Error(t, c.Ping(ctx))
}

func TestNewClient_Unreachable(t *testing.T) {
	_, err := NewClient(config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1})
	assert.Error(t, err)
}
