package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/application/event"
)

// OutboxReader is the read-only outbox view served to operators
type OutboxReader interface {
	GetStats(ctx context.Context) (*event.OutboxStatsDTO, error)
	ListDeadLetters(ctx context.Context, filter event.DeadLetterFilter) (*event.DeadLetterListResult, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*event.OutboxEventDTO, error)
}

// OutboxHandler handles outbox inspection HTTP requests
type OutboxHandler struct {
	BaseHandler
	outboxService OutboxReader
}

// NewOutboxHandler creates a new outbox handler
func NewOutboxHandler(outboxService OutboxReader) *OutboxHandler {
	return &OutboxHandler{
		outboxService: outboxService,
	}
}

// RegisterRoutes mounts the handler under /system/outbox
func (h *OutboxHandler) RegisterRoutes(rg *gin.RouterGroup) {
	outbox := rg.Group("/system/outbox")
	outbox.GET("/stats", h.GetStats)
	outbox.GET("/dead-letters", h.ListDeadLetters)
	outbox.GET("/events/:id", h.GetEvent)
}

// GetStats returns the number of events per status.
// GET /api/v1/system/outbox/stats
func (h *OutboxHandler) GetStats(c *gin.Context) {
	stats, err := h.outboxService.GetStats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, stats)
}

// ListDeadLetters returns dead letters, newest first.
// GET /api/v1/system/outbox/dead-letters?page=1&page_size=20
func (h *OutboxHandler) ListDeadLetters(c *gin.Context) {
	var filter event.DeadLetterFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}

	result, err := h.outboxService.ListDeadLetters(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if result == nil {
		result = &event.DeadLetterListResult{Entries: []event.DeadLetterDTO{}, Page: filter.Page, PageSize: filter.PageSize}
	}

	h.SuccessWithMeta(c, result.Entries, result.Total, result.Page, result.PageSize, result.TotalPages)
}

// GetEvent returns one outbox event.
// GET /api/v1/system/outbox/events/:id
func (h *OutboxHandler) GetEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid event ID")
		return
	}

	ev, err := h.outboxService.GetEvent(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, ev)
}
