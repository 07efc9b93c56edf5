package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/shared"
	"gorm.io/datatypes"
)

// OutboxEventModel is the persistence model for events stored in the outbox.
// The four-part dedup key is unique; ClaimNext reads idx_outbox_claim.
type OutboxEventModel struct {
	ID            uuid.UUID           `gorm:"type:uuid;primaryKey"`
	TenantID      uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:uq_outbox_events_dedup,priority:1"`
	AggregateType string              `gorm:"type:varchar(100);not null;uniqueIndex:uq_outbox_events_dedup,priority:2"`
	AggregateID   uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:uq_outbox_events_dedup,priority:3"`
	EventType     string              `gorm:"type:varchar(255);not null;uniqueIndex:uq_outbox_events_dedup,priority:4"`
	Payload       datatypes.JSON      `gorm:"not null"`
	Status        shared.OutboxStatus `gorm:"type:varchar(20);not null;default:pending;index:idx_outbox_claim,priority:1"`
	Attempts      int                 `gorm:"not null;default:0"`
	AvailableAt   time.Time           `gorm:"not null;index:idx_outbox_claim,priority:2"`
	LockedAt      *time.Time          `gorm:"index"`
	ProcessedAt   *time.Time
	LastError     *string   `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"not null;index:idx_outbox_claim,priority:3"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OutboxEventModel) TableName() string {
	return "outbox_events"
}

// ToDomain converts the persistence model to a domain OutboxEvent
func (m *OutboxEventModel) ToDomain() *shared.OutboxEvent {
	return &shared.OutboxEvent{
		ID:            m.ID,
		TenantID:      m.TenantID,
		AggregateType: m.AggregateType,
		AggregateID:   m.AggregateID,
		EventType:     m.EventType,
		Payload:       []byte(m.Payload),
		Status:        m.Status,
		Attempts:      m.Attempts,
		AvailableAt:   m.AvailableAt,
		LockedAt:      m.LockedAt,
		ProcessedAt:   m.ProcessedAt,
		LastError:     stringValue(m.LastError),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain OutboxEvent
func (m *OutboxEventModel) FromDomain(e *shared.OutboxEvent) {
	m.ID = e.ID
	m.TenantID = e.TenantID
	m.AggregateType = e.AggregateType
	m.AggregateID = e.AggregateID
	m.EventType = e.EventType
	m.Payload = datatypes.JSON(e.Payload)
	m.Status = e.Status
	m.Attempts = e.Attempts
	m.AvailableAt = e.AvailableAt
	m.LockedAt = e.LockedAt
	m.ProcessedAt = e.ProcessedAt
	m.LastError = nullableString(e.LastError)
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// OutboxEventModelFromDomain creates a new persistence model from a domain OutboxEvent
func OutboxEventModelFromDomain(e *shared.OutboxEvent) *OutboxEventModel {
	m := &OutboxEventModel{}
	m.FromDomain(e)
	return m
}

// DeadLetterModel is the append-only snapshot of an event that exhausted its retries
type DeadLetterModel struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey"`
	OutboxEventID uuid.UUID      `gorm:"type:uuid;not null;index"`
	TenantID      uuid.UUID      `gorm:"type:uuid;not null;index"`
	AggregateType string         `gorm:"type:varchar(100);not null"`
	AggregateID   uuid.UUID      `gorm:"type:uuid;not null"`
	EventType     string         `gorm:"type:varchar(255);not null"`
	Payload       datatypes.JSON `gorm:"not null"`
	Attempts      int            `gorm:"not null"`
	LastError     string         `gorm:"type:text;not null"`
	FailedAt      time.Time      `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (DeadLetterModel) TableName() string {
	return "outbox_dead_letters"
}

// ToDomain converts the persistence model to a domain DeadLetter
func (m *DeadLetterModel) ToDomain() shared.DeadLetter {
	return shared.DeadLetter{
		ID:            m.ID,
		OutboxEventID: m.OutboxEventID,
		TenantID:      m.TenantID,
		AggregateType: m.AggregateType,
		AggregateID:   m.AggregateID,
		EventType:     m.EventType,
		Payload:       []byte(m.Payload),
		Attempts:      m.Attempts,
		LastError:     m.LastError,
		FailedAt:      m.FailedAt,
	}
}

// DeadLetterModelFromDomain creates a new persistence model from a domain DeadLetter
func DeadLetterModelFromDomain(d *shared.DeadLetter) *DeadLetterModel {
	return &DeadLetterModel{
		ID:            d.ID,
		OutboxEventID: d.OutboxEventID,
		TenantID:      d.TenantID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       datatypes.JSON(d.Payload),
		Attempts:      d.Attempts,
		LastError:     d.LastError,
		FailedAt:      d.FailedAt,
	}
}
