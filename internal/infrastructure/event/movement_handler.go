package event

import (
	"context"

	appcosting "github.com/jwfreed/inventory-manager-sub010/internal/application/costing"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RepositoriesFactory binds the ledger repositories to a transaction
type RepositoriesFactory func(tx *gorm.DB) appcosting.LedgerRepositories

// MovementProjectionHandler projects posted movements onto the cost ledger
type MovementProjectionHandler struct {
	projector *appcosting.MovementProjector
	repos     RepositoriesFactory
	logger    *zap.Logger
}

// NewMovementProjectionHandler creates a handler that projects movements
// through repositories built by repos
func NewMovementProjectionHandler(projector *appcosting.MovementProjector, repos RepositoriesFactory, logger *zap.Logger) *MovementProjectionHandler {
	return &MovementProjectionHandler{
		projector: projector,
		repos:     repos,
		logger:    logger,
	}
}

// Handle implements MessageHandler
func (h *MovementProjectionHandler) Handle(ctx context.Context, tx *gorm.DB, msg OutboxMessage) ([]appcosting.SideEffect, error) {
	v := &projectionVisitor{ctx: ctx, handler: h, repos: h.repos(tx.WithContext(ctx))}
	if err := msg.Accept(v); err != nil {
		return nil, err
	}
	return v.effects, nil
}

type projectionVisitor struct {
	ctx     context.Context
	handler *MovementProjectionHandler
	repos   appcosting.LedgerRepositories
	effects []appcosting.SideEffect
}

func (v *projectionVisitor) VisitMovementPosted(msg *MovementPostedMessage) error {
	result, err := v.handler.projector.Project(v.ctx, v.repos, msg.TenantID, msg.MovementID)
	if err != nil {
		return err
	}
	if result.Skipped != "" {
		v.handler.logger.Debug("movement projection skipped",
			zap.String("movement_id", msg.MovementID.String()),
			zap.String("reason", string(result.Skipped)),
		)
	}
	v.effects = result.SideEffects
	return nil
}
