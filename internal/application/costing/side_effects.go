package costing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/costing"
	"go.uber.org/zap"
)

// SideEffect is a best-effort command emitted by the projector and executed
// after the ledger transaction commits. The set of commands is closed.
type SideEffect interface {
	// Kind names the command for logging
	Kind() string
	sideEffect()
}

// InvalidateTenantCache asks downstream caches and derived metrics of a tenant to refresh
type InvalidateTenantCache struct {
	TenantID uuid.UUID
}

// Kind implements SideEffect
func (InvalidateTenantCache) Kind() string { return "invalidate_tenant_cache" }
func (InvalidateTenantCache) sideEffect()  {}

// PublishMovementPosted broadcasts a projected movement to external consumers
type PublishMovementPosted struct {
	TenantID     uuid.UUID
	MovementID   uuid.UUID
	MovementType costing.MovementType
	ItemIDs      []uuid.UUID
	LocationIDs  []uuid.UUID
}

// Kind implements SideEffect
func (PublishMovementPosted) Kind() string { return "publish_movement_posted" }
func (PublishMovementPosted) sideEffect()  {}

// TenantCacheInvalidator drops cached data derived from a tenant's inventory
type TenantCacheInvalidator interface {
	InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error
}

// MovementEventPublisher delivers movement notifications to an external bus
type MovementEventPublisher interface {
	PublishMovementPosted(ctx context.Context, event *costing.MovementPostedEvent) error
}

// RelayConfig configures a SideEffectRelay
type RelayConfig struct {
	// QueueSize bounds the number of pending commands; Submit drops beyond it
	QueueSize int
	// Timeout bounds each command execution
	Timeout time.Duration
}

// DefaultRelayConfig returns the default relay configuration
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		QueueSize: 1024,
		Timeout:   5 * time.Second,
	}
}

// SideEffectRelay executes side effects on its own goroutine.
// Submit never blocks, and execution errors are logged and swallowed.
type SideEffectRelay struct {
	invalidator TenantCacheInvalidator
	publisher   MovementEventPublisher
	config      RelayConfig
	logger      *zap.Logger

	queue   chan SideEffect
	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Uint64
}

// NewSideEffectRelay creates a relay and starts its worker.
// A nil invalidator or publisher turns the matching command into a no-op.
func NewSideEffectRelay(
	invalidator TenantCacheInvalidator,
	publisher MovementEventPublisher,
	config RelayConfig,
	logger *zap.Logger,
) *SideEffectRelay {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultRelayConfig().QueueSize
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultRelayConfig().Timeout
	}
	r := &SideEffectRelay{
		invalidator: invalidator,
		publisher:   publisher,
		config:      config,
		logger:      logger,
		queue:       make(chan SideEffect, config.QueueSize),
		done:        make(chan struct{}),
	}
	go r.run()
	return r
}

// Submit enqueues commands for asynchronous execution
func (r *SideEffectRelay) Submit(effects ...SideEffect) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, effect := range effects {
		if r.closed {
			r.logger.Warn("Side effect dropped, relay closed", zap.String("kind", effect.Kind()))
			continue
		}
		select {
		case r.queue <- effect:
		default:
			r.dropped.Add(1)
			r.logger.Warn("Side effect dropped, queue full",
				zap.String("kind", effect.Kind()),
				zap.Int("queue_size", r.config.QueueSize),
			)
		}
	}
}

// Dropped returns how many commands were discarded because the queue was full
func (r *SideEffectRelay) Dropped() uint64 {
	return r.dropped.Load()
}

// Close stops accepting commands and waits for queued ones to run or ctx to end
func (r *SideEffectRelay) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *SideEffectRelay) run() {
	defer close(r.done)
	for effect := range r.queue {
		r.execute(effect)
	}
}

func (r *SideEffectRelay) execute(effect SideEffect) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.Timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Side effect panicked",
				zap.String("kind", effect.Kind()),
				zap.Any("panic", p),
			)
		}
	}()

	if err := r.Execute(ctx, effect); err != nil {
		r.logger.Warn("Side effect failed",
			zap.String("kind", effect.Kind()),
			zap.Error(err),
		)
	}
}

// Execute runs one command synchronously and returns its error
func (r *SideEffectRelay) Execute(ctx context.Context, effect SideEffect) error {
	switch e := effect.(type) {
	case InvalidateTenantCache:
		if r.invalidator == nil {
			return nil
		}
		return r.invalidator.InvalidateTenant(ctx, e.TenantID)
	case PublishMovementPosted:
		if r.publisher == nil {
			return nil
		}
		event := costing.NewMovementPostedEvent(e.TenantID, e.MovementID, e.MovementType, e.ItemIDs, e.LocationIDs)
		return r.publisher.PublishMovementPosted(ctx, event)
	default:
		return fmt.Errorf("unsupported side effect %T", effect)
	}
}
