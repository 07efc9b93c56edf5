package costing

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/costing"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// memLedger is an in-memory LedgerRepositories used by the application tests
type memLedger struct {
	mu            sync.Mutex
	movements     map[uuid.UUID]*costing.InventoryMovement
	layers        []*costing.CostLayer
	consumptions  []*costing.CostLayerConsumption
	standardCosts map[uuid.UUID]decimal.Decimal
	outbox        []*shared.OutboxEvent

	createErr error
}

func newMemLedger() *memLedger {
	return &memLedger{
		movements:     make(map[uuid.UUID]*costing.InventoryMovement),
		standardCosts: make(map[uuid.UUID]decimal.Decimal),
	}
}

func (m *memLedger) Movements() costing.MovementRepository       { return memMovements{m} }
func (m *memLedger) CostLayers() costing.CostLayerRepository     { return memLayers{m} }
func (m *memLedger) Consumptions() costing.ConsumptionRepository { return memConsumptions{m} }
func (m *memLedger) StandardCosts() costing.StandardCostReader   { return memStandardCosts{m} }
func (m *memLedger) Outbox() shared.OutboxRepository             { return memOutbox{m} }

// Execute implements TransactionScope without real rollback
func (m *memLedger) Execute(_ context.Context, fn func(repos LedgerRepositories) error) error {
	return fn(m)
}

func (m *memLedger) layersFor(key costing.LayerKey) []*costing.CostLayer {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*costing.CostLayer
	for _, l := range m.layers {
		if l.Key() == key {
			out = append(out, l)
		}
	}
	return out
}

type memMovements struct{ m *memLedger }

func (r memMovements) FindPosted(_ context.Context, tenantID, movementID uuid.UUID) (*costing.InventoryMovement, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	mv, ok := r.m.movements[movementID]
	if !ok || mv.TenantID != tenantID || !mv.IsPosted() {
		return nil, shared.ErrMovementNotFound
	}
	return mv, nil
}

func (r memMovements) Save(_ context.Context, movement *costing.InventoryMovement) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, exists := r.m.movements[movement.ID]; exists {
		return nil
	}
	r.m.movements[movement.ID] = movement
	return nil
}

type memLayers struct{ m *memLedger }

func (r memLayers) Create(_ context.Context, layer *costing.CostLayer) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.createErr != nil {
		return r.m.createErr
	}
	r.m.layers = append(r.m.layers, layer)
	return nil
}

func (r memLayers) LockOpenLayers(ctx context.Context, key costing.LayerKey) ([]*costing.CostLayer, error) {
	return r.FindOpenLayers(ctx, key)
}

func (r memLayers) FindOpenLayers(_ context.Context, key costing.LayerKey) ([]*costing.CostLayer, error) {
	var open []*costing.CostLayer
	for _, l := range r.m.layersFor(key) {
		if l.IsOpen() {
			open = append(open, l)
		}
	}
	costing.SortFIFO(open)
	return open, nil
}

func (r memLayers) UpdateRemaining(context.Context, ...*costing.CostLayer) error {
	return nil
}

func (r memLayers) FindByKey(_ context.Context, key costing.LayerKey) ([]*costing.CostLayer, error) {
	return r.m.layersFor(key), nil
}

func (r memLayers) ExistsForMovement(_ context.Context, tenantID, movementID uuid.UUID) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, l := range r.m.layers {
		if l.TenantID == tenantID && l.MovementID != nil && *l.MovementID == movementID {
			return true, nil
		}
	}
	return false, nil
}

type memConsumptions struct{ m *memLedger }

func (r memConsumptions) CreateBatch(_ context.Context, consumptions []*costing.CostLayerConsumption) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.consumptions = append(r.m.consumptions, consumptions...)
	return nil
}

func (r memConsumptions) FindByMovement(_ context.Context, tenantID, movementID uuid.UUID) ([]*costing.CostLayerConsumption, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*costing.CostLayerConsumption
	for _, c := range r.m.consumptions {
		if c.TenantID == tenantID && c.MovementID != nil && *c.MovementID == movementID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r memConsumptions) FindByKey(_ context.Context, key costing.LayerKey) ([]*costing.CostLayerConsumption, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*costing.CostLayerConsumption
	for _, c := range r.m.consumptions {
		if c.TenantID == key.TenantID && c.ItemID == key.ItemID && c.LocationID == key.LocationID && c.UOM == key.UOM {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r memConsumptions) ExistsForMovement(ctx context.Context, tenantID, movementID uuid.UUID) (bool, error) {
	found, err := r.FindByMovement(ctx, tenantID, movementID)
	return len(found) > 0, err
}

type memStandardCosts struct{ m *memLedger }

func (r memStandardCosts) StandardCost(_ context.Context, _, itemID uuid.UUID, _ string) (decimal.Decimal, bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cost, ok := r.m.standardCosts[itemID]
	return cost, ok, nil
}

type memOutbox struct{ m *memLedger }

func (r memOutbox) Enqueue(_ context.Context, event *shared.OutboxEvent) (uuid.UUID, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.outbox {
		if existing.Key() == event.Key() {
			return existing.ID, nil
		}
	}
	r.m.outbox = append(r.m.outbox, event)
	return event.ID, nil
}

func (r memOutbox) FindByID(_ context.Context, id uuid.UUID) (*shared.OutboxEvent, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, e := range r.m.outbox {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r memOutbox) CountByStatus(context.Context) (map[shared.OutboxStatus]int64, error) {
	return nil, errors.New("not implemented")
}

func (r memOutbox) FindDeadLetters(context.Context, int, int) (shared.Paginated[shared.DeadLetter], error) {
	return shared.Paginated[shared.DeadLetter]{}, errors.New("not implemented")
}

// stubCalculator returns a fixed cost, or nothing when cost is nil
type stubCalculator struct {
	cost  *decimal.Decimal
	err   error
	calls int
}

func (s *stubCalculator) MovementUnitCost(context.Context, costing.UnitCostInput) (decimal.Decimal, bool, error) {
	s.calls++
	if s.err != nil {
		return decimal.Zero, false, s.err
	}
	if s.cost == nil {
		return decimal.Zero, false, nil
	}
	return *s.cost, true, nil
}
