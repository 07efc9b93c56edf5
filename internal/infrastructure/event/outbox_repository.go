package event

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/shared"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// handlerSavepoint marks the start of handler writes inside a claim
const handlerSavepoint = "outbox_handler"

// staleCause is recorded on rows returned to the queue by RecoverStale
const staleCause = "processing lock expired; returned to queue"

var dedupColumns = []clause.Column{
	{Name: "tenant_id"},
	{Name: "aggregate_type"},
	{Name: "aggregate_id"},
	{Name: "event_type"},
}

// GormOutboxStore implements the outbox store using GORM.
// Claims hold a row lock (FOR UPDATE SKIP LOCKED) for the life of their transaction.
type GormOutboxStore struct {
	db     *gorm.DB
	policy shared.RetryPolicy
	jitter func(max time.Duration) time.Duration
	now    func() time.Time
}

// OutboxStoreOption configures a GormOutboxStore
type OutboxStoreOption func(*GormOutboxStore)

// WithRetryPolicy sets the policy applied by Fail
func WithRetryPolicy(p shared.RetryPolicy) OutboxStoreOption {
	return func(s *GormOutboxStore) { s.policy = p.Normalize() }
}

// WithJitter replaces the uniform jitter source
func WithJitter(fn func(max time.Duration) time.Duration) OutboxStoreOption {
	return func(s *GormOutboxStore) { s.jitter = fn }
}

// WithClock replaces time.Now
func WithClock(fn func() time.Time) OutboxStoreOption {
	return func(s *GormOutboxStore) { s.now = fn }
}

// NewGormOutboxStore creates a new GORM-based outbox store
func NewGormOutboxStore(db *gorm.DB, opts ...OutboxStoreOption) *GormOutboxStore {
	s := &GormOutboxStore{
		db:     db,
		policy: shared.DefaultRetryPolicy(),
		jitter: uniformJitter,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithTx returns a store bound to tx with the same policy and clock
func (s *GormOutboxStore) WithTx(tx *gorm.DB) *GormOutboxStore {
	clone := *s
	clone.db = tx
	return &clone
}

// Policy returns the retry policy applied by Fail
func (s *GormOutboxStore) Policy() shared.RetryPolicy {
	return s.policy
}

func uniformJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max) + 1))
}

// Enqueue inserts a pending event unless a row with the same dedup key exists,
// in which case the existing row's id is returned and nothing is written
func (s *GormOutboxStore) Enqueue(ctx context.Context, event *shared.OutboxEvent) (uuid.UUID, error) {
	m := models.OutboxEventModelFromDomain(event)
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: dedupColumns, DoNothing: true}).
		Create(m)
	if result.Error != nil {
		return uuid.Nil, fmt.Errorf("insert outbox event: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return m.ID, nil
	}

	var ids []uuid.UUID
	if err := s.db.WithContext(ctx).
		Model(&models.OutboxEventModel{}).
		Where("tenant_id = ? AND aggregate_type = ? AND aggregate_id = ? AND event_type = ?",
			event.TenantID, event.AggregateType, event.AggregateID, event.EventType).
		Limit(1).
		Pluck("id", &ids).Error; err != nil {
		return uuid.Nil, fmt.Errorf("lookup existing outbox event: %w", err)
	}
	if len(ids) == 0 {
		return uuid.Nil, fmt.Errorf("outbox event conflicted but no row matches key %s/%s/%s",
			event.AggregateType, event.AggregateID, event.EventType)
	}
	return ids[0], nil
}

// Claim is an event locked by ClaimNext together with the transaction holding the lock.
// Exactly one of Commit or Rollback must be called.
type Claim struct {
	Event *shared.OutboxEvent
	Tx    *gorm.DB

	// DeadLetter is set by Fail when the event exhausted its retries
	DeadLetter *shared.DeadLetter

	done bool
}

// Savepoint marks the point handler writes can be rolled back to
func (c *Claim) Savepoint() error {
	return c.Tx.SavePoint(handlerSavepoint).Error
}

// RollbackToSavepoint discards handler writes made since Savepoint
func (c *Claim) RollbackToSavepoint() error {
	return c.Tx.RollbackTo(handlerSavepoint).Error
}

// Commit commits the claim transaction
func (c *Claim) Commit() error {
	if c.done {
		return errors.New("claim already finished")
	}
	c.done = true
	return c.Tx.Commit().Error
}

// Rollback aborts the claim transaction; the event becomes claimable again.
// It is a no-op after Commit.
func (c *Claim) Rollback() error {
	if c.done {
		return nil
	}
	c.done = true
	return c.Tx.Rollback().Error
}

// ClaimNext locks the oldest claimable event, marks it processing and returns it
// with the open transaction. It returns nil, nil when nothing is claimable.
func (s *GormOutboxStore) ClaimNext(ctx context.Context) (*Claim, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("begin claim: %w", tx.Error)
	}

	now := s.now()
	var rows []models.OutboxEventModel
	if err := tx.
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status IN ? AND available_at <= ?", []shared.OutboxStatus{
			shared.OutboxStatusPending,
			shared.OutboxStatusFailed,
		}, now).
		Order("created_at ASC").
		Limit(1).
		Find(&rows).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("select claimable event: %w", err)
	}
	if len(rows) == 0 {
		if err := tx.Commit().Error; err != nil {
			return nil, fmt.Errorf("commit empty claim: %w", err)
		}
		return nil, nil
	}

	event := rows[0].ToDomain()
	if err := event.MarkProcessing(now); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Model(&models.OutboxEventModel{}).
		Where("id = ?", event.ID).
		Updates(map[string]any{
			"status":     event.Status,
			"attempts":   event.Attempts,
			"locked_at":  event.LockedAt,
			"updated_at": event.UpdatedAt,
		}).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("mark event processing: %w", err)
	}

	return &Claim{Event: event, Tx: tx}, nil
}

// Complete marks the claimed event completed inside the claim transaction
func (s *GormOutboxStore) Complete(ctx context.Context, claim *Claim) error {
	claim.Event.MarkCompleted(s.now())
	return claim.Tx.WithContext(ctx).
		Model(&models.OutboxEventModel{}).
		Where("id = ?", claim.Event.ID).
		Updates(map[string]any{
			"status":       claim.Event.Status,
			"processed_at": claim.Event.ProcessedAt,
			"locked_at":    nil,
			"last_error":   nil,
			"updated_at":   claim.Event.UpdatedAt,
		}).Error
}

// Fail records a handler failure inside the claim transaction. An event that
// reached the policy's attempt limit is snapshotted into outbox_dead_letters
// and marked dead; otherwise it is rescheduled with backoff and jitter.
func (s *GormOutboxStore) Fail(ctx context.Context, claim *Claim, cause string) (shared.FailOutcome, error) {
	now := s.now()
	outcome := claim.Event.MarkFailed(s.policy, cause, s.jitter(s.policy.MaxJitter), now)

	tx := claim.Tx.WithContext(ctx)
	if outcome == shared.FailOutcomeDead {
		dl := shared.NewDeadLetter(claim.Event, now)
		if err := tx.Create(models.DeadLetterModelFromDomain(dl)).Error; err != nil {
			return outcome, fmt.Errorf("insert dead letter: %w", err)
		}
		claim.DeadLetter = dl
	}

	if err := tx.Model(&models.OutboxEventModel{}).
		Where("id = ?", claim.Event.ID).
		Updates(map[string]any{
			"status":       claim.Event.Status,
			"attempts":     claim.Event.Attempts,
			"available_at": claim.Event.AvailableAt,
			"locked_at":    nil,
			"last_error":   claim.Event.LastError,
			"updated_at":   claim.Event.UpdatedAt,
		}).Error; err != nil {
		return outcome, fmt.Errorf("record failure: %w", err)
	}
	return outcome, nil
}

// FailDetached records a failure for an event whose claim transaction was
// lost, for example when a handler timeout closed the connection. The event
// is locked again in a fresh transaction and the attempt is counted, so an
// event that always breaks its transaction still reaches the dead-letter table.
// It returns a nil claim when the event is no longer claimable.
func (s *GormOutboxStore) FailDetached(ctx context.Context, id uuid.UUID, cause string) (*Claim, shared.FailOutcome, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, "", fmt.Errorf("begin detached failure: %w", tx.Error)
	}
	claim := &Claim{Tx: tx}
	defer claim.Rollback()

	var rows []models.OutboxEventModel
	if err := tx.
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("id = ?", id).
		Find(&rows).Error; err != nil {
		return nil, "", err
	}
	if len(rows) == 0 {
		return nil, "", claim.Commit()
	}
	claim.Event = rows[0].ToDomain()
	if err := claim.Event.MarkProcessing(s.now()); err != nil {
		return nil, "", claim.Commit()
	}

	outcome, err := s.Fail(ctx, claim, cause)
	if err != nil {
		return nil, outcome, err
	}
	if err := claim.Commit(); err != nil {
		return nil, outcome, fmt.Errorf("commit detached failure: %w", err)
	}
	return claim, outcome, nil
}

// RecoverStale returns rows stuck in processing with a lock older than
// olderThan to the retry path. Rows locked by a live claim are skipped.
func (s *GormOutboxStore) RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := s.now()
	cutoff := now.Add(-olderThan)

	var recovered int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []models.OutboxEventModel
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND locked_at < ?", shared.OutboxStatusProcessing, cutoff).
			Find(&rows).Error; err != nil {
			return err
		}

		for i := range rows {
			event := rows[i].ToDomain()
			if err := event.Requeue(staleCause, now); err != nil {
				return err
			}
			if err := tx.Model(&models.OutboxEventModel{}).
				Where("id = ?", event.ID).
				Updates(map[string]any{
					"status":       event.Status,
					"available_at": event.AvailableAt,
					"locked_at":    nil,
					"last_error":   event.LastError,
					"updated_at":   event.UpdatedAt,
				}).Error; err != nil {
				return err
			}
			recovered++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("recover stale events: %w", err)
	}
	return recovered, nil
}

// DeleteCompletedBefore removes completed rows processed before the cutoff
func (s *GormOutboxStore) DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("status = ? AND processed_at < ?", shared.OutboxStatusCompleted, before).
		Delete(&models.OutboxEventModel{})
	return result.RowsAffected, result.Error
}

// FindByID retrieves a single outbox event by ID
func (s *GormOutboxStore) FindByID(ctx context.Context, id uuid.UUID) (*shared.OutboxEvent, error) {
	var m models.OutboxEventModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// CountByStatus returns the number of events for each status
func (s *GormOutboxStore) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	type statusCount struct {
		Status shared.OutboxStatus
		Count  int64
	}

	var results []statusCount
	if err := s.db.WithContext(ctx).
		Model(&models.OutboxEventModel{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&results).Error; err != nil {
		return nil, err
	}

	counts := make(map[shared.OutboxStatus]int64, len(results))
	for _, r := range results {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// CountByStatusNames is CountByStatus keyed by plain strings, for metric callbacks
func (s *GormOutboxStore) CountByStatusNames(ctx context.Context) (map[string]int64, error) {
	counts, err := s.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(counts))
	for status, n := range counts {
		out[string(status)] = n
	}
	return out, nil
}

// FindDeadLetters returns dead letters, newest first
func (s *GormOutboxStore) FindDeadLetters(ctx context.Context, page, pageSize int) (shared.Paginated[shared.DeadLetter], error) {
	var total int64
	if err := s.db.WithContext(ctx).
		Model(&models.DeadLetterModel{}).
		Count(&total).Error; err != nil {
		return shared.Paginated[shared.DeadLetter]{}, err
	}

	var rows []models.DeadLetterModel
	if err := s.db.WithContext(ctx).
		Order("failed_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return shared.Paginated[shared.DeadLetter]{}, err
	}

	items := make([]shared.DeadLetter, len(rows))
	for i := range rows {
		items[i] = rows[i].ToDomain()
	}
	return shared.NewPaginated(items, total, page, pageSize), nil
}

// Ensure GormOutboxStore implements OutboxRepository
var _ shared.OutboxRepository = (*GormOutboxStore)(nil)
