package event

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/shared"
	"go.uber.org/zap"
)

const maxDeadLetterPageSize = 100

// OutboxService exposes the read-only operator view of the outbox
type OutboxService struct {
	repo   shared.OutboxRepository
	logger *zap.Logger
}

// NewOutboxService creates a new outbox service
func NewOutboxService(
	repo shared.OutboxRepository,
	logger *zap.Logger,
) *OutboxService {
	return &OutboxService{
		repo:   repo,
		logger: logger,
	}
}

// OutboxEventDTO represents an outbox event data transfer object
type OutboxEventDTO struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	AggregateType string     `json:"aggregate_type"`
	AggregateID   uuid.UUID  `json:"aggregate_id"`
	EventType     string     `json:"event_type"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	AvailableAt   time.Time  `json:"available_at"`
	LockedAt      *time.Time `json:"locked_at,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// DeadLetterDTO represents a dead letter data transfer object
type DeadLetterDTO struct {
	ID            uuid.UUID `json:"id"`
	OutboxEventID uuid.UUID `json:"outbox_event_id"`
	TenantID      uuid.UUID `json:"tenant_id"`
	AggregateType string    `json:"aggregate_type"`
	AggregateID   uuid.UUID `json:"aggregate_id"`
	EventType     string    `json:"event_type"`
	Payload       string    `json:"payload"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error"`
	FailedAt      time.Time `json:"failed_at"`
}

// DeadLetterFilter represents the paging of the dead letter list
type DeadLetterFilter struct {
	Page     int `form:"page,default=1" binding:"min=1"`
	PageSize int `form:"page_size,default=20" binding:"min=1,max=100"`
}

// DeadLetterListResult represents paginated dead letters
type DeadLetterListResult struct {
	Entries    []DeadLetterDTO `json:"entries"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

// OutboxStatsDTO represents outbox statistics
type OutboxStatsDTO struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Total      int64 `json:"total"`
}

// Service errors
var (
	ErrEventNotFound = shared.NewDomainError("EVENT_NOT_FOUND", "Outbox event not found")
	ErrInternal      = shared.NewDomainError("INTERNAL_ERROR", "Failed to read the outbox")
)

// ListDeadLetters retrieves dead letters with pagination, newest first
func (s *OutboxService) ListDeadLetters(ctx context.Context, filter DeadLetterFilter) (*DeadLetterListResult, error) {
	page, pageSize := shared.NormalizePage(filter.Page, filter.PageSize, maxDeadLetterPageSize)

	result, err := s.repo.FindDeadLetters(ctx, page, pageSize)
	if err != nil {
		s.logger.Error("Failed to find dead letters", zap.Error(err))
		return nil, ErrInternal
	}

	entries := make([]DeadLetterDTO, len(result.Items))
	for i, dl := range result.Items {
		entries[i] = toDeadLetterDTO(dl)
	}

	return &DeadLetterListResult{
		Entries:    entries,
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	}, nil
}

// GetEvent retrieves a single outbox event by ID
func (s *OutboxService) GetEvent(ctx context.Context, id uuid.UUID) (*OutboxEventDTO, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		s.logger.Error("Failed to find outbox event", zap.Error(err), zap.String("id", id.String()))
		return nil, ErrInternal
	}

	dto := toOutboxEventDTO(event)
	return &dto, nil
}

// GetStats returns outbox statistics
func (s *OutboxService) GetStats(ctx context.Context) (*OutboxStatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("Failed to get outbox stats", zap.Error(err))
		return nil, ErrInternal
	}

	var total int64
	for _, count := range counts {
		total += count
	}

	return &OutboxStatsDTO{
		Pending:    counts[shared.OutboxStatusPending],
		Processing: counts[shared.OutboxStatusProcessing],
		Completed:  counts[shared.OutboxStatusCompleted],
		Failed:     counts[shared.OutboxStatusFailed],
		Dead:       counts[shared.OutboxStatusDead],
		Total:      total,
	}, nil
}

func toOutboxEventDTO(e *shared.OutboxEvent) OutboxEventDTO {
	return OutboxEventDTO{
		ID:            e.ID,
		TenantID:      e.TenantID,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		EventType:     e.EventType,
		Status:        string(e.Status),
		Attempts:      e.Attempts,
		AvailableAt:   e.AvailableAt,
		LockedAt:      e.LockedAt,
		ProcessedAt:   e.ProcessedAt,
		LastError:     e.LastError,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func toDeadLetterDTO(dl shared.DeadLetter) DeadLetterDTO {
	return DeadLetterDTO{
		ID:            dl.ID,
		OutboxEventID: dl.OutboxEventID,
		TenantID:      dl.TenantID,
		AggregateType: dl.AggregateType,
		AggregateID:   dl.AggregateID,
		EventType:     dl.EventType,
		Payload:       string(dl.Payload),
		Attempts:      dl.Attempts,
		LastError:     dl.LastError,
		FailedAt:      dl.FailedAt,
	}
}
