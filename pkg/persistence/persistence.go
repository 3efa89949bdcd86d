// Package persistence provides the data storage abstraction layer for
// connections, credit accounts and the transaction ledger.
package persistence

import (
	"context"

	"github.com/flowdeck/flowdeck/pkg/models"
)

type Persistence interface {
	// SaveConnection upserts a connection. Saving an active connection
	// deactivates any other active connection for the same tenant and
	// platform in the same atomic write.
	SaveConnection(ctx context.Context, conn *models.Connection) error
	ConnectionByID(ctx context.Context, id string) (*models.Connection, error)
	// ActiveConnection returns the single dispatchable connection for the
	// tenant and platform, or nil when none is active.
	ActiveConnection(ctx context.Context, tenantID string, platform models.Platform) (*models.Connection, error)
	ConnectionsByTenant(ctx context.Context, tenantID string) ([]*models.Connection, error)
	DeactivateConnection(ctx context.Context, id string) error

	CreateCreditAccount(ctx context.Context, account *models.CreditAccount) error
	CreditAccountByTenant(ctx context.Context, tenantID string) (*models.CreditAccount, error)
	// ApplyLedger appends the transaction rows and moves the tenant's cached
	// balances by exactly the sum of the rows per kind, as one atomic unit.
	// A nil newTier leaves the tier unchanged; an empty row set is valid
	// only as a tier-only update. The write fails with
	// ErrInsufficientCredits, without any row written, when a balance would
	// go negative.
	ApplyLedger(ctx context.Context, tenantID string, newTier *models.PlanTier, rows []*models.CreditTransaction) (*models.CreditAccount, error)
	TransactionsByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*models.CreditTransaction, error)
	// CreditAccountTenantIDs lists every tenant holding an account, for
	// allowance sweeps.
	CreditAccountTenantIDs(ctx context.Context) ([]string, error)

	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
