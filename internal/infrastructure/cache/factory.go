package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	appcosting "github.com/jwfreed/inventory-manager-sub010/internal/application/costing"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrRedisDisabled is returned when no Redis host is configured
var ErrRedisDisabled = errors.New("redis is not configured")

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr() == "" {
		return nil, ErrRedisDisabled
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Notifiers are the Redis-backed collaborators of the worker. Lock is nil
// when Redis is unavailable; the stale sweeper then runs on every worker.
type Notifiers struct {
	Invalidator appcosting.TenantCacheInvalidator
	Lock        *RedisLeaderLock
	client      *redis.Client
}

// Close closes the Redis client, if one was opened
func (n *Notifiers) Close() error {
	if n.client == nil {
		return nil
	}
	return n.client.Close()
}

// NotifierFactory builds cache notifiers from configuration
type NotifierFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// NotifierFactoryOption is a functional option for configuring the factory
type NotifierFactoryOption func(*NotifierFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) NotifierFactoryOption {
	return func(f *NotifierFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to
// in-memory invalidation. Default is true.
func WithInMemoryFallback(allow bool) NotifierFactoryOption {
	return func(f *NotifierFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewNotifierFactory creates a new factory
func NewNotifierFactory(cfg config.RedisConfig, opts ...NotifierFactoryOption) *NotifierFactory {
	f := &NotifierFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create tries Redis first and falls back to in-memory invalidation when
// Redis is disabled, or unreachable and fallback is allowed
func (f *NotifierFactory) Create() (*Notifiers, error) {
	client, err := NewRedisClient(f.redisConfig)
	if err == nil {
		f.logger.Info("using Redis cache invalidation", zap.String("addr", f.redisConfig.Addr()))
		return &Notifiers{
			Invalidator: NewRedisTenantCacheInvalidator(client,
				WithInvalidatorChannel(f.redisConfig.InvalidateChannel),
				WithGenerationPrefix(f.redisConfig.GenerationPrefix),
				WithInvalidatorLogger(f.logger),
			),
			Lock:   NewRedisLeaderLock(client, f.logger),
			client: client,
		}, nil
	}

	if errors.Is(err, ErrRedisDisabled) {
		f.logger.Info("Redis not configured, using in-memory cache invalidation")
		return &Notifiers{Invalidator: NewInMemoryTenantCacheInvalidator()}, nil
	}
	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for cache invalidation but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory cache invalidation. "+
		"Other processes will not see invalidations and every worker runs the stale sweeper.",
		zap.Error(err),
	)
	return &Notifiers{Invalidator: NewInMemoryTenantCacheInvalidator()}, nil
}
