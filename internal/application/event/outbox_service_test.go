package event

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockOutboxRepoForService is a mock implementation for testing OutboxService
type mockOutboxRepoForService struct {
	events      map[uuid.UUID]*shared.OutboxEvent
	deadLetters []shared.DeadLetter
	err         error
}

func newMockOutboxRepoForService() *mockOutboxRepoForService {
	return &mockOutboxRepoForService{
		events: make(map[uuid.UUID]*shared.OutboxEvent),
	}
}

func (r *mockOutboxRepoForService) Enqueue(_ context.Context, e *shared.OutboxEvent) (uuid.UUID, error) {
	r.events[e.ID] = e
	return e.ID, nil
}

func (r *mockOutboxRepoForService) FindByID(_ context.Context, id uuid.UUID) (*shared.OutboxEvent, error) {
	if r.err != nil {
		return nil, r.err
	}
	if e, ok := r.events[id]; ok {
		return e, nil
	}
	return nil, shared.ErrNotFound
}

func (r *mockOutboxRepoForService) CountByStatus(context.Context) (map[shared.OutboxStatus]int64, error) {
	if r.err != nil {
		return nil, r.err
	}
	counts := make(map[shared.OutboxStatus]int64)
	for _, e := range r.events {
		counts[e.Status]++
	}
	return counts, nil
}

func (r *mockOutboxRepoForService) FindDeadLetters(_ context.Context, page, pageSize int) (shared.Paginated[shared.DeadLetter], error) {
	if r.err != nil {
		return shared.Paginated[shared.DeadLetter]{}, r.err
	}
	sorted := append([]shared.DeadLetter(nil), r.deadLetters...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FailedAt.After(sorted[j].FailedAt) })

	start := (page - 1) * pageSize
	if start > len(sorted) {
		start = len(sorted)
	}
	end := start + pageSize
	if end > len(sorted) {
		end = len(sorted)
	}
	return shared.NewPaginated(sorted[start:end], int64(len(sorted)), page, pageSize), nil
}

func seedEvent(repo *mockOutboxRepoForService, status shared.OutboxStatus) *shared.OutboxEvent {
	e := shared.NewOutboxEvent(shared.EventKey{
		TenantID:      uuid.New(),
		AggregateType: "inventory_movement",
		AggregateID:   uuid.New(),
		EventType:     "inventory.movement.posted",
	}, []byte(`{"movement_id":"x"}`), time.Now())
	e.Status = status
	repo.events[e.ID] = e
	return e
}

func TestOutboxService_GetStats(t *testing.T) {
	repo := newMockOutboxRepoForService()
	svc := NewOutboxService(repo, zap.NewNop())

	seedEvent(repo, shared.OutboxStatusPending)
	seedEvent(repo, shared.OutboxStatusPending)
	seedEvent(repo, shared.OutboxStatusCompleted)
	seedEvent(repo, shared.OutboxStatusFailed)
	seedEvent(repo, shared.OutboxStatusDead)

	stats, err := svc.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Dead)
	assert.Equal(t, int64(0), stats.Processing)
	assert.Equal(t, int64(5), stats.Total)
}

func TestOutboxService_GetEvent(t *testing.T) {
	repo := newMockOutboxRepoForService()
	svc := NewOutboxService(repo, zap.NewNop())
	e := seedEvent(repo, shared.OutboxStatusFailed)
	e.Attempts = 3
	e.LastError = "boom"

	t.Run("found", func(t *testing.T) {
		dto, err := svc.GetEvent(context.Background(), e.ID)
		require.NoError(t, err)
		assert.Equal(t, e.ID, dto.ID)
		assert.Equal(t, "failed", dto.Status)
		assert.Equal(t, 3, dto.Attempts)
		assert.Equal(t, "boom", dto.LastError)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := svc.GetEvent(context.Background(), uuid.New())
		assert.True(t, errors.Is(err, ErrEventNotFound))
	})

	t.Run("repository failure", func(t *testing.T) {
		repo.err = errors.New("connection reset")
		defer func() { repo.err = nil }()
		_, err := svc.GetEvent(context.Background(), e.ID)
		assert.True(t, errors.Is(err, ErrInternal))
	})
}

func TestOutboxService_ListDeadLetters(t *testing.T) {
	repo := newMockOutboxRepoForService()
	svc := NewOutboxService(repo, zap.NewNop())

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		repo.deadLetters = append(repo.deadLetters, shared.DeadLetter{
			ID:        uuid.New(),
			EventType: "inventory.movement.posted",
			Payload:   []byte(`{}`),
			Attempts:  8,
			FailedAt:  base.Add(time.Duration(i) * time.Minute),
		})
	}

	t.Run("defaults", func(t *testing.T) {
		result, err := svc.ListDeadLetters(context.Background(), DeadLetterFilter{})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Page)
		assert.Equal(t, 20, result.PageSize)
		assert.Equal(t, int64(25), result.Total)
		assert.Equal(t, 2, result.TotalPages)
		require.Len(t, result.Entries, 20)
		assert.Equal(t, "{}", result.Entries[0].Payload)
		assert.True(t, result.Entries[0].FailedAt.After(result.Entries[1].FailedAt))
	})

	t.Run("second page", func(t *testing.T) {
		result, err := svc.ListDeadLetters(context.Background(), DeadLetterFilter{Page: 2, PageSize: 20})
		require.NoError(t, err)
		assert.Len(t, result.Entries, 5)
	})

	t.Run("page size capped", func(t *testing.T) {
		result, err := svc.ListDeadLetters(context.Background(), DeadLetterFilter{PageSize: 1000})
		require.NoError(t, err)
		assert.Equal(t, 100, result.PageSize)
	})
}
