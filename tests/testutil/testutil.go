// Package testutil provides helpers shared by the integration tests: a
// sqlmock-backed GORM handle, deterministic ids, movement fixtures and
// polling assertions.
package testutil

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	appcosting "github.com/jwfreed/inventory-manager-sub010/internal/application/costing"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/costing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// MockDB wraps a GORM database with sqlmock for testing.
type MockDB struct {
	DB    *gorm.DB
	Mock  sqlmock.Sqlmock
	SqlDB *sql.DB
}

// NewMockDB creates a postgres-dialect GORM handle over sqlmock. The
// connection is closed on test cleanup.
func NewMockDB(t *testing.T) *MockDB {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err, "Failed to create sqlmock")

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err, "Failed to open GORM connection")

	t.Cleanup(func() { _ = mockDB.Close() })

	return &MockDB{
		DB:    gormDB,
		Mock:  mock,
		SqlDB: mockDB,
	}
}

// ExpectationsWereMet verifies that all expectations were met.
func (m *MockDB) ExpectationsWereMet(t *testing.T) {
	t.Helper()
	err := m.Mock.ExpectationsWereMet()
	require.NoError(t, err, "Unmet database expectations")
}

// NewTestUUID generates a deterministic UUID from seed.
func NewTestUUID(seed string) uuid.UUID {
	namespace := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	return uuid.NewSHA1(namespace, []byte(seed))
}

// TestTenantID returns a standard tenant ID for tests.
func TestTenantID() uuid.UUID {
	return NewTestUUID("test-tenant")
}

// ReceiptInput builds a single-line receive movement with a known unit cost.
func ReceiptInput(tenantID, itemID, locationID uuid.UUID, qty, unitCost int64, ref string) appcosting.PostMovementInput {
	cost := decimal.NewFromInt(unitCost)
	return appcosting.PostMovementInput{
		TenantID:     tenantID,
		MovementType: string(costing.MovementTypeReceive),
		ExternalRef:  ref,
		OccurredAt:   time.Now().UTC(),
		Lines: []appcosting.PostMovementLineInput{{
			ItemID:        itemID,
			LocationID:    locationID,
			QuantityDelta: decimal.NewFromInt(qty),
			UOM:           "ea",
			UnitCost:      &cost,
		}},
	}
}

// IssueInput builds a single-line issue movement taking qty out of stock.
func IssueInput(tenantID, itemID, locationID uuid.UUID, qty int64, ref string) appcosting.PostMovementInput {
	return appcosting.PostMovementInput{
		TenantID:     tenantID,
		MovementType: string(costing.MovementTypeIssue),
		ExternalRef:  ref,
		OccurredAt:   time.Now().UTC(),
		Lines: []appcosting.PostMovementLineInput{{
			ItemID:        itemID,
			LocationID:    locationID,
			QuantityDelta: decimal.NewFromInt(-qty),
			UOM:           "ea",
		}},
	}
}

// RefSeq returns n distinct external references with the given prefix.
func RefSeq(prefix string, n int) []string {
	refs := make([]string, n)
	for i := range refs {
		refs[i] = fmt.Sprintf("%s:%04d", prefix, i+1)
	}
	return refs
}

// RequireEventually retries condition until it passes or the timeout elapses.
func RequireEventually(t *testing.T, condition func() bool, timeout, interval time.Duration, msgAndArgs ...any) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(interval)
	}

	require.Fail(t, "Condition not met within timeout", msgAndArgs...)
}

// AssertNever verifies a condition never becomes true within the duration.
func AssertNever(t *testing.T, condition func() bool, duration, interval time.Duration, msgAndArgs ...any) {
	t.Helper()

	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if condition() {
			t.Fatalf("Condition unexpectedly became true: %v", msgAndArgs)
		}
		time.Sleep(interval)
	}
}
