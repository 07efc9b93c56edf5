package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func TestInMemoryTenantCacheInvalidator(t *testing.T) {
	inv := NewInMemoryTenantCacheInvalidator()
	ctx := context.Background()
	tenantA, tenantB := uuid.New(), uuid.New()

	var received []TenantInvalidation
	inv.OnInvalidate(func(m TenantInvalidation) { received = append(received, m) })

	t.Run("starts at generation zero", func(t *testing.T) {
		gen, err := inv.Generation(ctx, tenantA)
		require.NoError(t, err)
		assert.Zero(t, gen)
	})

	t.Run("bumps generation per tenant", func(t *testing.T) {
		require.NoError(t, inv.InvalidateTenant(ctx, tenantA))
		require.NoError(t, inv.InvalidateTenant(ctx, tenantA))
		require.NoError(t, inv.InvalidateTenant(ctx, tenantB))

		genA, _ := inv.Generation(ctx, tenantA)
		genB, _ := inv.Generation(ctx, tenantB)
		assert.Equal(t, int64(2), genA)
		assert.Equal(t, int64(1), genB)
	})

	t.Run("notifies subscribers", func(t *testing.T) {
		require.Len(t, received, 3)
		assert.Equal(t, tenantA, received[1].TenantID)
		assert.Equal(t, int64(2), received[1].Generation)
		assert.NotZero(t, received[1].Timestamp)
	})
}

func TestInMemoryTenantCacheInvalidator_SubscriberRegisteredBeforeInvalidate(t *testing.T) {
	inv := NewInMemoryTenantCacheInvalidator()
	ctx := context.Background()
	tenantID := uuid.New()

	var generations []int64
	inv.OnInvalidate(func(m TenantInvalidation) {
		// reads back through the invalidator, which must not hold its lock here
		gen, err := inv.Generation(ctx, m.TenantID)
		require.NoError(t, err)
		generations = append(generations, gen)
	})

	require.NoError(t, inv.InvalidateTenant(ctx, tenantID))

	var late []TenantInvalidation
	inv.OnInvalidate(func(m TenantInvalidation) { late = append(late, m) })
	require.NoError(t, inv.InvalidateTenant(ctx, tenantID))

	assert.Equal(t, []int64{1, 2}, generations)
	require.Len(t, late, 1)
	assert.Equal(t, int64(2), late[0].Generation)
}

func TestNotifierFactory_WithoutRedis(t *testing.T) {
	n, err := NewNotifierFactory(config.RedisConfig{}).Create()
	require.NoError(t, err)
	defer n.Close()

	assert.IsType(t, &InMemoryTenantCacheInvalidator{}, n.Invalidator)
	assert.Nil(t, n.Lock)
}

func TestNotifierFactory_UnreachableRedis(t *testing.T) {
	cfg := config.RedisConfig{Host: "127.0.0.1", Port: 1}

	t.Run("falls back to in-memory", func(t *testing.T) {
		n, err := NewNotifierFactory(cfg, WithLogger(zap.NewNop())).Create()
		require.NoError(t, err)
		assert.IsType(t, &InMemoryTenantCacheInvalidator{}, n.Invalidator)
	})

	t.Run("fails when fallback disabled", func(t *testing.T) {
		_, err := NewNotifierFactory(cfg, WithInMemoryFallback(false)).Create()
		assert.Error(t, err)
	})
}

// startRedis runs a throwaway Redis container
func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Redis container test in short mode")
	}
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisTenantCacheInvalidator(t *testing.T) {
	client := startRedis(t)
	inv := NewRedisTenantCacheInvalidator(client, WithInvalidatorChannel("test:invalidate"))
	tenantID := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan TenantInvalidation, 4)
	subscribed := make(chan error, 1)
	go func() {
		subscribed <- inv.Subscribe(ctx, func(m TenantInvalidation) { received <- m })
	}()

	// the subscription must be live before publishing
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, "test:invalidate").Result()
		return err == nil && n["test:invalidate"] == 1
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, inv.InvalidateTenant(ctx, tenantID))
	require.NoError(t, inv.InvalidateTenant(ctx, tenantID))

	gen, err := inv.Generation(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), gen)

	for want := int64(1); want <= 2; want++ {
		select {
		case m := <-received:
			assert.Equal(t, tenantID, m.TenantID)
			assert.Equal(t, want, m.Generation)
		case <-time.After(5 * time.Second):
			t.Fatal("invalidation not received")
		}
	}

	assert.Error(t, inv.Subscribe(ctx, func(TenantInvalidation) {}))

	cancel()
	select {
	case err := <-subscribed:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("subscription did not stop")
	}
}

func TestRedisLeaderLock(t *testing.T) {
	client := startRedis(t)
	first := NewRedisLeaderLock(client, zap.NewNop())
	second := NewRedisLeaderLock(client, zap.NewNop())
	ctx := context.Background()

	release, ok, err := first.TryAcquire(ctx, "outbox:stale-sweeper", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = second.TryAcquire(ctx, "outbox:stale-sweeper", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	release()

	release, ok, err = second.TryAcquire(ctx, "outbox:stale-sweeper", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}
