package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/application/event"
	"github.com/jwfreed/inventory-manager-sub010/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubOutboxReader struct {
	stats      *event.OutboxStatsDTO
	events     map[uuid.UUID]*event.OutboxEventDTO
	dead       *event.DeadLetterListResult
	lastFilter event.DeadLetterFilter
	err        error
}

func (s *stubOutboxReader) GetStats(context.Context) (*event.OutboxStatsDTO, error) {
	return s.stats, s.err
}

func (s *stubOutboxReader) ListDeadLetters(_ context.Context, filter event.DeadLetterFilter) (*event.DeadLetterListResult, error) {
	s.lastFilter = filter
	return s.dead, s.err
}

func (s *stubOutboxReader) GetEvent(_ context.Context, id uuid.UUID) (*event.OutboxEventDTO, error) {
	if s.err != nil {
		return nil, s.err
	}
	if ev, ok := s.events[id]; ok {
		return ev, nil
	}
	return nil, event.ErrEventNotFound
}

func newOutboxRouter(reader OutboxReader) *gin.Engine {
	r := gin.New()
	NewOutboxHandler(reader).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func doGet(r http.Handler, path string) (*httptest.ResponseRecorder, dto.Response) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)

	var resp dto.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestOutboxHandler_GetStats(t *testing.T) {
	reader := &stubOutboxReader{stats: &event.OutboxStatsDTO{Pending: 3, Dead: 1, Total: 4}}

	w, resp := doGet(newOutboxRouter(reader), "/api/v1/system/outbox/stats")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(3), data["pending"])
	assert.Equal(t, float64(1), data["dead"])
	assert.Equal(t, float64(4), data["total"])
}

func TestOutboxHandler_GetStats_InternalError(t *testing.T) {
	reader := &stubOutboxReader{err: event.ErrInternal}

	w, resp := doGet(newOutboxRouter(reader), "/api/v1/system/outbox/stats")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeInternal, resp.Error.Code)
}

func TestOutboxHandler_ListDeadLetters(t *testing.T) {
	dl := event.DeadLetterDTO{
		ID:            uuid.New(),
		OutboxEventID: uuid.New(),
		EventType:     "inventory.movement.posted",
		Attempts:      8,
		LastError:     "movement not found",
		FailedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	reader := &stubOutboxReader{dead: &event.DeadLetterListResult{
		Entries:    []event.DeadLetterDTO{dl},
		Total:      21,
		Page:       2,
		PageSize:   20,
		TotalPages: 2,
	}}

	w, resp := doGet(newOutboxRouter(reader), "/api/v1/system/outbox/dead-letters?page=2&page_size=20")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, event.DeadLetterFilter{Page: 2, PageSize: 20}, reader.lastFilter)
	entries := resp.Data.([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, dl.OutboxEventID.String(), entries[0].(map[string]any)["outbox_event_id"])
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(21), resp.Meta.Total)
	assert.Equal(t, 2, resp.Meta.TotalPages)
}

func TestOutboxHandler_ListDeadLetters_InvalidQuery(t *testing.T) {
	reader := &stubOutboxReader{}
	r := newOutboxRouter(reader)

	for _, path := range []string{
		"/api/v1/system/outbox/dead-letters?page=0",
		"/api/v1/system/outbox/dead-letters?page_size=0",
		"/api/v1/system/outbox/dead-letters?page_size=500",
		"/api/v1/system/outbox/dead-letters?page=abc",
	} {
		t.Run(path, func(t *testing.T) {
			w, resp := doGet(r, path)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, dto.ErrCodeBadRequest, resp.Error.Code)
		})
	}
}

func TestOutboxHandler_ListDeadLetters_DefaultPaging(t *testing.T) {
	reader := &stubOutboxReader{}

	w, resp := doGet(newOutboxRouter(reader), "/api/v1/system/outbox/dead-letters")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, event.DeadLetterFilter{Page: 1, PageSize: 20}, reader.lastFilter)
	assert.Empty(t, resp.Data)
	require.NotNil(t, resp.Meta)
	assert.Zero(t, resp.Meta.Total)
	assert.Equal(t, 1, resp.Meta.Page)
}

func TestOutboxHandler_GetEvent(t *testing.T) {
	id := uuid.New()
	reader := &stubOutboxReader{events: map[uuid.UUID]*event.OutboxEventDTO{
		id: {ID: id, Status: "failed", Attempts: 3, LastError: "boom"},
	}}
	r := newOutboxRouter(reader)

	t.Run("found", func(t *testing.T) {
		w, resp := doGet(r, "/api/v1/system/outbox/events/"+id.String())
		assert.Equal(t, http.StatusOK, w.Code)
		data := resp.Data.(map[string]any)
		assert.Equal(t, id.String(), data["id"])
		assert.Equal(t, "failed", data["status"])
	})

	t.Run("not found", func(t *testing.T) {
		w, resp := doGet(r, "/api/v1/system/outbox/events/"+uuid.NewString())
		assert.Equal(t, http.StatusNotFound, w.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		w, _ := doGet(r, "/api/v1/system/outbox/events/not-a-uuid")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestBaseHandler_HandleError_UnknownError(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("X-Request-ID", "req-42")

	var h BaseHandler
	h.HandleError(c, errors.New("connection reset"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "req-42", resp.Error.RequestID)
	assert.NotContains(t, resp.Error.Message, "connection reset")
}
