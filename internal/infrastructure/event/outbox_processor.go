package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appcosting "github.com/jwfreed/inventory-manager-sub010/internal/application/costing"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/shared"
	applogger "github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/logger"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// sweepLockKey names the leader lock taken before a stale sweep
const sweepLockKey = "outbox:stale-sweeper"

// MessageHandler handles one decoded message inside the claim transaction.
// Writes made through tx commit together with the event's completion.
type MessageHandler interface {
	Handle(ctx context.Context, tx *gorm.DB, msg OutboxMessage) ([]appcosting.SideEffect, error)
}

// EffectSink accepts side-effect commands once their transaction committed
type EffectSink interface {
	Submit(effects ...appcosting.SideEffect)
}

// DeadLetterArchiver keeps a copy of dead letters outside the database
type DeadLetterArchiver interface {
	Archive(ctx context.Context, dl *shared.DeadLetter) error
}

// LeaderLock elects a single holder of key across worker processes.
// ok is false when another process holds it.
type LeaderLock interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// OutboxDispatcherConfig holds configuration for the outbox dispatcher
type OutboxDispatcherConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	HandlerTimeout   time.Duration
	StaleAfter       time.Duration
	SweepInterval    time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultOutboxDispatcherConfig returns default configuration
func DefaultOutboxDispatcherConfig() OutboxDispatcherConfig {
	return OutboxDispatcherConfig{
		BatchSize:        25,
		PollInterval:     2 * time.Second,
		HandlerTimeout:   30 * time.Second,
		StaleAfter:       5 * time.Minute,
		SweepInterval:    time.Minute,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// DispatcherOption configures optional collaborators of an OutboxDispatcher
type DispatcherOption func(*OutboxDispatcher)

// WithEffectSink sets where side effects go after commit
func WithEffectSink(sink EffectSink) DispatcherOption {
	return func(d *OutboxDispatcher) { d.effects = sink }
}

// WithArchiver sets the dead-letter archiver
func WithArchiver(a DeadLetterArchiver) DispatcherOption {
	return func(d *OutboxDispatcher) { d.archiver = a }
}

// WithLeaderLock makes the stale sweeper run on one worker per interval
func WithLeaderLock(l LeaderLock) DispatcherOption {
	return func(d *OutboxDispatcher) { d.lock = l }
}

// WithMetrics records dispatch outcomes on m
func WithMetrics(m *telemetry.OutboxMetrics) DispatcherOption {
	return func(d *OutboxDispatcher) { d.metrics = m }
}

// OutboxDispatcher claims outbox events one at a time and runs their handler
// inside the claim transaction
type OutboxDispatcher struct {
	store    *GormOutboxStore
	handler  MessageHandler
	effects  EffectSink
	archiver DeadLetterArchiver
	lock     LeaderLock
	metrics  *telemetry.OutboxMetrics
	config   OutboxDispatcherConfig
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutboxDispatcher creates a new outbox dispatcher
func NewOutboxDispatcher(
	store *GormOutboxStore,
	handler MessageHandler,
	config OutboxDispatcherConfig,
	logger *zap.Logger,
	opts ...DispatcherOption,
) *OutboxDispatcher {
	defaults := DefaultOutboxDispatcherConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = defaults.HandlerTimeout
	}
	d := &OutboxDispatcher{
		store:   store,
		handler: handler,
		config:  config,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// dispatchResult is what happened to one claimed event
type dispatchResult struct {
	outcome    string
	effects    []appcosting.SideEffect
	deadLetter *shared.DeadLetter
	cause      error
	// detached is set when the failure was recorded in its own transaction
	detached bool
}

// ProcessBatch claims and handles events until maxBatchSize events were
// processed or nothing is claimable. Successes and recorded failures both
// count as processed. An error means the store itself failed.
func (d *OutboxDispatcher) ProcessBatch(ctx context.Context, maxBatchSize int) (int, error) {
	if maxBatchSize <= 0 {
		maxBatchSize = d.config.BatchSize
	}

	processed := 0
	for processed < maxBatchSize {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		claim, err := d.store.ClaimNext(ctx)
		if err != nil {
			return processed, fmt.Errorf("claim outbox event: %w", err)
		}
		if claim == nil {
			break
		}

		if err := d.dispatch(ctx, claim); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func (d *OutboxDispatcher) dispatch(ctx context.Context, claim *Claim) error {
	start := time.Now()
	ev := claim.Event

	ctx = applogger.WithOutboxEvent(ctx, ev.ID.String())
	ctx = applogger.WithTenantID(ctx, ev.TenantID.String())
	ctx, span := telemetry.StartSpan(ctx, "outbox.dispatch",
		telemetry.AttrEventType.String(ev.EventType),
		attribute.String("outbox.event_id", ev.ID.String()),
		attribute.Int("outbox.attempt", ev.Attempts),
	)
	defer span.End()
	log := applogger.WithLogger(ctx, d.logger)

	res, err := d.settle(ctx, claim)
	if err != nil {
		claim.Rollback()
		telemetry.RecordError(span, err)
		log.Error("outbox event could not be settled", zap.String("event_type", ev.EventType), zap.Error(err))
		return err
	}
	if !res.detached {
		if err := claim.Commit(); err != nil {
			telemetry.RecordError(span, err)
			log.Error("failed to commit outbox claim", zap.String("event_type", ev.EventType), zap.Error(err))
			return fmt.Errorf("commit outbox claim %s: %w", ev.ID, err)
		}
	}
	ev = claim.Event

	d.afterCommit(ctx, log, ev, res)
	d.metrics.RecordDispatch(ctx, ev.EventType, res.outcome, time.Since(start))
	span.SetAttributes(telemetry.AttrOutcome.String(res.outcome))
	if res.cause != nil {
		telemetry.RecordError(span, res.cause)
	} else {
		telemetry.SetOK(span)
	}
	return nil
}

// settle runs the handler and records its outcome. The claim transaction is
// left open for the caller to commit, unless a detached failure replaced it.
func (d *OutboxDispatcher) settle(ctx context.Context, claim *Claim) (dispatchResult, error) {
	effects, handleErr := d.runHandler(ctx, claim)
	if handleErr == nil {
		if err := d.store.Complete(ctx, claim); err != nil {
			return dispatchResult{}, fmt.Errorf("complete outbox event: %w", err)
		}
		return dispatchResult{outcome: telemetry.OutcomeCompleted, effects: effects}, nil
	}

	cause := handleErr.Error()
	if err := claim.RollbackToSavepoint(); err != nil {
		// The claim transaction is unusable; record the failure in a fresh one.
		claim.Rollback()
		detached, outcome, ferr := d.store.FailDetached(ctx, claim.Event.ID, cause)
		if ferr != nil {
			return dispatchResult{}, fmt.Errorf("record detached failure: %w", ferr)
		}
		res := dispatchResult{outcome: outcomeName(outcome), cause: handleErr, detached: true}
		if detached != nil {
			claim.Event = detached.Event
			res.deadLetter = detached.DeadLetter
		}
		return res, nil
	}

	outcome, err := d.store.Fail(ctx, claim, cause)
	if err != nil {
		return dispatchResult{}, fmt.Errorf("record failure: %w", err)
	}
	return dispatchResult{outcome: outcomeName(outcome), deadLetter: claim.DeadLetter, cause: handleErr}, nil
}

func (d *OutboxDispatcher) runHandler(ctx context.Context, claim *Claim) (effects []appcosting.SideEffect, err error) {
	if err := claim.Savepoint(); err != nil {
		return nil, fmt.Errorf("create savepoint: %w", err)
	}
	msg, err := DecodeMessage(claim.Event)
	if err != nil {
		return nil, err
	}

	hctx, cancel := context.WithTimeout(ctx, d.config.HandlerTimeout)
	defer cancel()

	telemetry.WithDispatchLabels(hctx, claim.Event.EventType, func(c context.Context) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()
		effects, err = d.handler.Handle(c, claim.Tx, msg)
	})
	if err == nil && hctx.Err() != nil {
		err = fmt.Errorf("handler exceeded %s: %w", d.config.HandlerTimeout, hctx.Err())
	}
	return effects, err
}

func (d *OutboxDispatcher) afterCommit(ctx context.Context, log *applogger.ContextLogger, ev *shared.OutboxEvent, res dispatchResult) {
	switch res.outcome {
	case telemetry.OutcomeCompleted:
		log.Debug("outbox event processed",
			zap.String("event_type", ev.EventType),
			zap.Int("attempts", ev.Attempts),
			zap.Int("side_effects", len(res.effects)),
		)
		if d.effects != nil && len(res.effects) > 0 {
			d.effects.Submit(res.effects...)
		}
	case telemetry.OutcomeRetry:
		log.Warn("outbox event failed, retry scheduled",
			zap.String("event_type", ev.EventType),
			zap.Int("attempts", ev.Attempts),
			zap.Time("available_at", ev.AvailableAt),
			zap.String("error_code", shared.ErrorCode(res.cause)),
			zap.Error(res.cause),
		)
	case telemetry.OutcomeDead:
		log.Error("outbox event moved to dead letters",
			zap.String("event_type", ev.EventType),
			zap.String("aggregate_type", ev.AggregateType),
			zap.String("aggregate_id", ev.AggregateID.String()),
			zap.Int("attempts", ev.Attempts),
			zap.String("error_code", shared.ErrorCode(res.cause)),
			zap.Error(res.cause),
		)
		if d.archiver != nil && res.deadLetter != nil {
			if err := d.archiver.Archive(ctx, res.deadLetter); err != nil {
				log.Warn("failed to archive dead letter", zap.Error(err))
			}
		}
	}
}

func outcomeName(o shared.FailOutcome) string {
	if o == shared.FailOutcomeDead {
		return telemetry.OutcomeDead
	}
	return telemetry.OutcomeRetry
}

// RecoverStale runs one stale sweep, under the leader lock when one is configured
func (d *OutboxDispatcher) RecoverStale(ctx context.Context) (int64, error) {
	if d.lock != nil {
		release, ok, err := d.lock.TryAcquire(ctx, sweepLockKey, d.config.SweepInterval)
		if err != nil {
			return 0, fmt.Errorf("acquire sweeper lock: %w", err)
		}
		if !ok {
			return 0, nil
		}
		defer release()
	}

	recovered, err := d.store.RecoverStale(ctx, d.config.StaleAfter)
	if err != nil {
		return 0, err
	}
	d.metrics.RecordRecovered(ctx, recovered)
	if recovered > 0 {
		d.logger.Warn("recovered stale outbox events",
			zap.Int64("recovered", recovered),
			zap.Duration("stale_after", d.config.StaleAfter),
		)
	}
	return recovered, nil
}

// PurgeCompleted removes completed rows older than the retention window
func (d *OutboxDispatcher) PurgeCompleted(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-d.config.CleanupRetention)
	deleted, err := d.store.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	d.metrics.RecordPurged(ctx, deleted)
	if deleted > 0 {
		d.logger.Info("cleaned up old outbox events",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
	return deleted, nil
}

// Start starts the poll, stale sweep and cleanup loops
func (d *OutboxDispatcher) Start(ctx context.Context) error {
	if d.config.PollInterval <= 0 {
		return errors.New("outbox dispatcher poll interval must be positive")
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go d.every(ctx, d.config.PollInterval, d.drain)

	if d.config.SweepInterval > 0 && d.config.StaleAfter > 0 {
		d.wg.Add(1)
		go d.every(ctx, d.config.SweepInterval, func(ctx context.Context) {
			if _, err := d.RecoverStale(ctx); err != nil {
				d.logger.Error("failed to recover stale outbox events", zap.Error(err))
			}
		})
	}

	if d.config.CleanupEnabled && d.config.CleanupInterval > 0 {
		d.wg.Add(1)
		go d.every(ctx, d.config.CleanupInterval, func(ctx context.Context) {
			if _, err := d.PurgeCompleted(ctx); err != nil {
				d.logger.Error("failed to cleanup old outbox events", zap.Error(err))
			}
		})
	}

	d.logger.Info("outbox dispatcher started",
		zap.Int("batch_size", d.config.BatchSize),
		zap.Duration("poll_interval", d.config.PollInterval),
		zap.Duration("handler_timeout", d.config.HandlerTimeout),
	)
	return nil
}

// Stop gracefully stops the dispatcher
func (d *OutboxDispatcher) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("outbox dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain processes full batches until one comes back short
func (d *OutboxDispatcher) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := d.ProcessBatch(ctx, d.config.BatchSize)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				d.logger.Error("failed to process outbox batch", zap.Error(err))
			}
			return
		}
		if n < d.config.BatchSize {
			return
		}
	}
}

func (d *OutboxDispatcher) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	defer d.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
