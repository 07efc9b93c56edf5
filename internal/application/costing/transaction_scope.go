package costing

import (
	"context"

	"github.com/jwfreed/inventory-manager-sub010/internal/domain/costing"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/shared"
)

// TransactionScope runs a function against repositories that share one
// database transaction. A returned error rolls the transaction back.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos LedgerRepositories) error) error
}

// LedgerRepositories provides the repositories touched while posting or
// projecting a movement, all scoped to the same transaction.
type LedgerRepositories interface {
	// Movements returns the movement read model repository
	Movements() costing.MovementRepository
	// CostLayers returns the cost layer repository
	CostLayers() costing.CostLayerRepository
	// Consumptions returns the cost layer consumption repository
	Consumptions() costing.ConsumptionRepository
	// StandardCosts returns the item standard cost reader
	StandardCosts() costing.StandardCostReader
	// Outbox returns the outbox repository used to enqueue events
	Outbox() shared.OutboxRepository
}
