package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// TenantInvalidation is broadcast when a tenant's cached inventory data is stale.
// Generation increases with every invalidation of the tenant.
type TenantInvalidation struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	Generation int64     `json:"generation"`
	Timestamp  int64     `json:"timestamp"`
}

// RedisTenantCacheInvalidator bumps a per-tenant generation counter and
// announces the new generation on a Pub/Sub channel
type RedisTenantCacheInvalidator struct {
	client    *redis.Client
	channel   string
	genPrefix string
	logger    *zap.Logger

	mu        sync.Mutex
	isRunning bool
}

// RedisInvalidatorOption is a functional option for configuring the invalidator
type RedisInvalidatorOption func(*RedisTenantCacheInvalidator)

// WithInvalidatorChannel sets the Pub/Sub channel name
func WithInvalidatorChannel(channel string) RedisInvalidatorOption {
	return func(i *RedisTenantCacheInvalidator) {
		if channel != "" {
			i.channel = channel
		}
	}
}

// WithGenerationPrefix sets the key prefix of the generation counters
func WithGenerationPrefix(prefix string) RedisInvalidatorOption {
	return func(i *RedisTenantCacheInvalidator) {
		if prefix != "" {
			i.genPrefix = prefix
		}
	}
}

// WithInvalidatorLogger sets the logger for the invalidator
func WithInvalidatorLogger(logger *zap.Logger) RedisInvalidatorOption {
	return func(i *RedisTenantCacheInvalidator) {
		i.logger = logger
	}
}

// NewRedisTenantCacheInvalidator creates an invalidator on an existing client.
// The caller retains ownership of the client.
func NewRedisTenantCacheInvalidator(client *redis.Client, opts ...RedisInvalidatorOption) *RedisTenantCacheInvalidator {
	i := &RedisTenantCacheInvalidator{
		client:    client,
		channel:   "inventory:cache:invalidate",
		genPrefix: "inventory:cache:gen:",
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *RedisTenantCacheInvalidator) generationKey(tenantID uuid.UUID) string {
	return i.genPrefix + tenantID.String()
}

// InvalidateTenant increments the tenant generation and publishes it.
// Both commands run in one MULTI/EXEC so subscribers never see a generation
// that is not stored yet.
func (i *RedisTenantCacheInvalidator) InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error {
	key := i.generationKey(tenantID)

	var incr *redis.IntCmd
	_, err := i.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to bump generation for tenant %s: %w", tenantID, err)
	}

	msg := TenantInvalidation{
		TenantID:   tenantID,
		Generation: incr.Val(),
		Timestamp:  time.Now().UnixNano(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation: %w", err)
	}
	if err := i.client.Publish(ctx, i.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}

	i.logger.Debug("Tenant cache invalidated",
		zap.String("tenant_id", tenantID.String()),
		zap.Int64("generation", msg.Generation),
		zap.String("channel", i.channel))
	return nil
}

// Generation returns the tenant's current generation, 0 if never invalidated
func (i *RedisTenantCacheInvalidator) Generation(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	v, err := i.client.Get(ctx, i.generationKey(tenantID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read generation: %w", err)
	}
	return strconv.ParseInt(v, 10, 64)
}

// Subscribe delivers invalidations to callback until ctx is cancelled.
// It blocks; run it in its own goroutine.
func (i *RedisTenantCacheInvalidator) Subscribe(ctx context.Context, callback func(TenantInvalidation)) error {
	i.mu.Lock()
	if i.isRunning {
		i.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	i.isRunning = true
	i.mu.Unlock()
	defer func() {
		i.mu.Lock()
		i.isRunning = false
		i.mu.Unlock()
	}()

	pubsub := i.client.Subscribe(ctx, i.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}
	i.logger.Info("Subscribed to cache invalidation channel", zap.String("channel", i.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			i.logger.Info("Cache invalidation subscription stopped")
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				i.logger.Warn("Cache invalidation channel closed")
				return nil
			}
			var inv TenantInvalidation
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				i.logger.Error("Failed to unmarshal invalidation",
					zap.String("payload", msg.Payload),
					zap.Error(err))
				continue
			}
			i.deliver(callback, inv)
		}
	}
}

func (i *RedisTenantCacheInvalidator) deliver(callback func(TenantInvalidation), inv TenantInvalidation) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("Panic in invalidation callback",
				zap.String("tenant_id", inv.TenantID.String()),
				zap.Any("panic", r))
		}
	}()
	callback(inv)
}

// InMemoryTenantCacheInvalidator keeps generations in process memory.
// It serves single-instance deployments and tests.
type InMemoryTenantCacheInvalidator struct {
	mu          sync.RWMutex
	generations map[uuid.UUID]int64
	subscribers []func(TenantInvalidation)
}

// NewInMemoryTenantCacheInvalidator creates an in-memory invalidator
func NewInMemoryTenantCacheInvalidator() *InMemoryTenantCacheInvalidator {
	return &InMemoryTenantCacheInvalidator{generations: make(map[uuid.UUID]int64)}
}

// InvalidateTenant bumps the generation and calls every subscriber synchronously
func (m *InMemoryTenantCacheInvalidator) InvalidateTenant(_ context.Context, tenantID uuid.UUID) error {
	m.mu.Lock()
	m.generations[tenantID]++
	inv := TenantInvalidation{
		TenantID:   tenantID,
		Generation: m.generations[tenantID],
		Timestamp:  time.Now().UnixNano(),
	}
	subs := slices.Clone(m.subscribers)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(inv)
	}
	return nil
}

// Generation returns the tenant's current generation
func (m *InMemoryTenantCacheInvalidator) Generation(_ context.Context, tenantID uuid.UUID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generations[tenantID], nil
}

// OnInvalidate registers a callback for every later invalidation
func (m *InMemoryTenantCacheInvalidator) OnInvalidate(fn func(TenantInvalidation)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}
