// Package postgresql provides PostgreSQL persistence for connections and
// credit accounts.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db             *sql.DB
	logger         *slog.Logger
	connectionRepo *ConnectionRepository
	creditRepo     *CreditRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Initialize components
	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())
	connectionRepo := NewConnectionRepository(database, logger)
	creditRepo := NewCreditRepository(database, logger)

	postgres := &Persistence{
		db:             database,
		logger:         logger,
		connectionRepo: connectionRepo,
		creditRepo:     creditRepo,
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// SaveConnection upserts a connection, deactivating any other active
// connection for the same tenant and platform in the same transaction.
func (p *Persistence) SaveConnection(ctx context.Context, conn *models.Connection) error {
	return p.connectionRepo.Save(ctx, conn)
}

// ConnectionByID returns a connection by its ID.
func (p *Persistence) ConnectionByID(ctx context.Context, id string) (*models.Connection, error) {
	return p.connectionRepo.GetByID(ctx, id)
}

// ActiveConnection returns the dispatchable connection for the tenant and platform.
func (p *Persistence) ActiveConnection(ctx context.Context, tenantID string, platform models.Platform) (*models.Connection, error) {
	return p.connectionRepo.GetActive(ctx, tenantID, platform)
}

// ConnectionsByTenant returns every connection a tenant owns.
func (p *Persistence) ConnectionsByTenant(ctx context.Context, tenantID string) ([]*models.Connection, error) {
	return p.connectionRepo.ListByTenant(ctx, tenantID)
}

// DeactivateConnection soft deactivates a connection by setting deactivated_at.
func (p *Persistence) DeactivateConnection(ctx context.Context, id string) error {
	return p.connectionRepo.Deactivate(ctx, id)
}

// CreateCreditAccount creates a fresh account for a tenant.
func (p *Persistence) CreateCreditAccount(ctx context.Context, account *models.CreditAccount) error {
	return p.creditRepo.CreateAccount(ctx, account)
}

// CreditAccountByTenant returns the tenant's credit account.
func (p *Persistence) CreditAccountByTenant(ctx context.Context, tenantID string) (*models.CreditAccount, error) {
	return p.creditRepo.AccountByTenant(ctx, tenantID)
}

// ApplyLedger appends ledger rows and moves the cached balances atomically.
func (p *Persistence) ApplyLedger(ctx context.Context, tenantID string, newTier *models.PlanTier, rows []*models.CreditTransaction) (*models.CreditAccount, error) {
	return p.creditRepo.ApplyLedger(ctx, tenantID, newTier, rows)
}

// TransactionsByTenant returns the tenant's ledger rows, newest first.
func (p *Persistence) TransactionsByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*models.CreditTransaction, error) {
	return p.creditRepo.TransactionsByTenant(ctx, tenantID, limit, offset)
}

// CreditAccountTenantIDs lists every tenant holding a credit account.
func (p *Persistence) CreditAccountTenantIDs(ctx context.Context) ([]string, error) {
	return p.creditRepo.TenantIDs(ctx)
}
