package persistence

import (
	"context"

	appcosting "github.com/jwfreed/inventory-manager-sub010/internal/application/costing"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/costing"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/shared"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/event"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
type GormTransactionScope struct {
	db     *gorm.DB
	outbox *event.GormOutboxStore
}

// NewGormTransactionScope creates a new GormTransactionScope. Outbox writes
// go through outbox bound to the scope's transaction.
func NewGormTransactionScope(db *gorm.DB, outbox *event.GormOutboxStore) *GormTransactionScope {
	return &GormTransactionScope{db: db, outbox: outbox}
}

// Execute runs fn within a database transaction.
// If fn returns an error, the transaction is rolled back.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appcosting.LedgerRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewLedgerRepositories(tx, s.outbox))
	})
}

// NewLedgerRepositories returns repositories bound to tx. The outbox dispatcher
// uses it to run handlers inside the claim transaction.
func NewLedgerRepositories(tx *gorm.DB, outbox *event.GormOutboxStore) appcosting.LedgerRepositories {
	if outbox == nil {
		outbox = event.NewGormOutboxStore(tx)
	} else {
		outbox = outbox.WithTx(tx)
	}
	return &gormLedgerRepositories{tx: tx, outbox: outbox}
}

type gormLedgerRepositories struct {
	tx     *gorm.DB
	outbox *event.GormOutboxStore
}

func (r *gormLedgerRepositories) Movements() costing.MovementRepository {
	return NewGormMovementRepository(r.tx)
}

func (r *gormLedgerRepositories) CostLayers() costing.CostLayerRepository {
	return NewGormCostLayerRepository(r.tx)
}

func (r *gormLedgerRepositories) Consumptions() costing.ConsumptionRepository {
	return NewGormConsumptionRepository(r.tx)
}

func (r *gormLedgerRepositories) StandardCosts() costing.StandardCostReader {
	return NewGormItemCostReader(r.tx)
}

func (r *gormLedgerRepositories) Outbox() shared.OutboxRepository {
	return r.outbox
}

// Ensure GormTransactionScope implements TransactionScope
var _ appcosting.TransactionScope = (*GormTransactionScope)(nil)
