package shared

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus represents the status of an outbox event
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusCompleted  OutboxStatus = "completed"
	OutboxStatusFailed     OutboxStatus = "failed"
	OutboxStatusDead       OutboxStatus = "dead"
)

// Default retry configuration
const (
	DefaultMaxAttempts = 8
	DefaultBaseBackoff = 2 * time.Second
	DefaultMaxBackoff  = 60 * time.Second
	DefaultMaxJitter   = time.Second
)

// EventKey is the dedup key of an outbox event. At most one row exists per key.
type EventKey struct {
	TenantID      uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
}

// OutboxEvent is a domain event persisted in the same transaction as the change
// that produced it, waiting to be claimed by a dispatcher.
type OutboxEvent struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	Status        OutboxStatus
	Attempts      int
	AvailableAt   time.Time
	LockedAt      *time.Time
	ProcessedAt   *time.Time
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOutboxEvent creates a pending outbox event that is claimable immediately
func NewOutboxEvent(key EventKey, payload []byte, now time.Time) *OutboxEvent {
	return &OutboxEvent{
		ID:            uuid.New(),
		TenantID:      key.TenantID,
		AggregateType: key.AggregateType,
		AggregateID:   key.AggregateID,
		EventType:     key.EventType,
		Payload:       payload,
		Status:        OutboxStatusPending,
		AvailableAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Key returns the dedup key of the event
func (e *OutboxEvent) Key() EventKey {
	return EventKey{
		TenantID:      e.TenantID,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		EventType:     e.EventType,
	}
}

// IsClaimable returns true if a dispatcher may claim the event at now
func (e *OutboxEvent) IsClaimable(now time.Time) bool {
	if e.Status != OutboxStatusPending && e.Status != OutboxStatusFailed {
		return false
	}
	return !e.AvailableAt.After(now)
}

// MarkProcessing flips a claimable event to processing and counts the attempt
func (e *OutboxEvent) MarkProcessing(now time.Time) error {
	if e.Status != OutboxStatusPending && e.Status != OutboxStatusFailed {
		return errors.New("can only claim pending or failed events")
	}
	e.Status = OutboxStatusProcessing
	e.Attempts++
	e.LockedAt = &now
	e.UpdatedAt = now
	return nil
}

// MarkCompleted marks the event as successfully handled
func (e *OutboxEvent) MarkCompleted(now time.Time) {
	e.Status = OutboxStatusCompleted
	e.ProcessedAt = &now
	e.LockedAt = nil
	e.LastError = ""
	e.UpdatedAt = now
}

// FailOutcome tells what a failure did to the event
type FailOutcome string

const (
	FailOutcomeRetry FailOutcome = "retry"
	FailOutcomeDead  FailOutcome = "dead"
)

// MarkFailed records a handler failure. Once the policy is exhausted the event
// becomes dead; otherwise it is rescheduled at now + backoff + jitter.
func (e *OutboxEvent) MarkFailed(policy RetryPolicy, cause string, jitter time.Duration, now time.Time) FailOutcome {
	e.LastError = cause
	e.LockedAt = nil
	e.UpdatedAt = now

	if policy.Exhausted(e.Attempts) {
		e.Status = OutboxStatusDead
		return FailOutcomeDead
	}

	e.Status = OutboxStatusFailed
	e.AvailableAt = now.Add(policy.Backoff(e.Attempts) + jitter)
	return FailOutcomeRetry
}

// Requeue returns a stuck processing event to the retry path
func (e *OutboxEvent) Requeue(cause string, now time.Time) error {
	if e.Status != OutboxStatusProcessing {
		return errors.New("can only requeue processing events")
	}
	e.Status = OutboxStatusFailed
	e.LockedAt = nil
	e.LastError = cause
	e.AvailableAt = now
	e.UpdatedAt = now
	return nil
}

// IsDead returns true if the event exhausted its retries
func (e *OutboxEvent) IsDead() bool {
	return e.Status == OutboxStatusDead
}

// DeadLetter is an immutable snapshot of an event that exhausted its retries
type DeadLetter struct {
	ID            uuid.UUID
	OutboxEventID uuid.UUID
	TenantID      uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	Attempts      int
	LastError     string
	FailedAt      time.Time
}

// NewDeadLetter snapshots a dead event
func NewDeadLetter(e *OutboxEvent, failedAt time.Time) *DeadLetter {
	payload := make([]byte, len(e.Payload))
	copy(payload, e.Payload)
	return &DeadLetter{
		ID:            uuid.New(),
		OutboxEventID: e.ID,
		TenantID:      e.TenantID,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		EventType:     e.EventType,
		Payload:       payload,
		Attempts:      e.Attempts,
		LastError:     e.LastError,
		FailedAt:      failedAt,
	}
}

// RetryPolicy controls how failed events are rescheduled
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	MaxJitter   time.Duration
}

// DefaultRetryPolicy returns the default retry policy (8 attempts, 2s base, 60s cap, 1s jitter)
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseBackoff: DefaultBaseBackoff,
		MaxBackoff:  DefaultMaxBackoff,
		MaxJitter:   DefaultMaxJitter,
	}
}

// Normalize fills zero fields with defaults
func (p RetryPolicy) Normalize() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = d.BaseBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = d.MaxBackoff
	}
	if p.MaxJitter < 0 {
		p.MaxJitter = 0
	}
	return p
}

// Exhausted returns true once attempts reached the maximum
func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

// Backoff returns base * 2^(attempts-1), capped at MaxBackoff. Jitter is not included.
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := p.BaseBackoff
	for i := 1; i < attempts; i++ {
		if d >= p.MaxBackoff {
			break
		}
		d *= 2
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// OutboxRepository is the operator read side plus the in-transaction enqueue
// used by producers. Claiming lives with the dispatcher's store.
type OutboxRepository interface {
	// Enqueue inserts a pending event unless one with the same key exists.
	// Returns the id of the new or pre-existing row.
	Enqueue(ctx context.Context, event *OutboxEvent) (uuid.UUID, error)

	// FindByID returns an event or ErrNotFound
	FindByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error)

	// CountByStatus returns the number of events per status
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)

	// FindDeadLetters returns dead letters, newest first
	FindDeadLetters(ctx context.Context, page, pageSize int) (Paginated[DeadLetter], error)
}
