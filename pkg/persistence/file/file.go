// Package file provides file-based persistence for connections and credit
// accounts, used for development and tests.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root           string
	connectionRepo *ConnectionRepository
	creditRepo     *CreditRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:           cleanRoot,
		connectionRepo: NewConnectionRepository(cleanRoot),
		creditRepo:     NewCreditRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) SaveConnection(ctx context.Context, conn *models.Connection) error {
	return fp.connectionRepo.Save(ctx, conn)
}

func (fp *Persistence) ConnectionByID(ctx context.Context, id string) (*models.Connection, error) {
	return fp.connectionRepo.GetByID(ctx, id)
}

func (fp *Persistence) ActiveConnection(ctx context.Context, tenantID string, platform models.Platform) (*models.Connection, error) {
	return fp.connectionRepo.GetActive(ctx, tenantID, platform)
}

func (fp *Persistence) ConnectionsByTenant(ctx context.Context, tenantID string) ([]*models.Connection, error) {
	return fp.connectionRepo.ListByTenant(ctx, tenantID)
}

func (fp *Persistence) DeactivateConnection(ctx context.Context, id string) error {
	return fp.connectionRepo.Deactivate(ctx, id)
}

func (fp *Persistence) CreateCreditAccount(ctx context.Context, account *models.CreditAccount) error {
	return fp.creditRepo.CreateAccount(ctx, account)
}

func (fp *Persistence) CreditAccountByTenant(ctx context.Context, tenantID string) (*models.CreditAccount, error) {
	return fp.creditRepo.AccountByTenant(ctx, tenantID)
}

func (fp *Persistence) ApplyLedger(ctx context.Context, tenantID string, newTier *models.PlanTier, rows []*models.CreditTransaction) (*models.CreditAccount, error) {
	return fp.creditRepo.ApplyLedger(ctx, tenantID, newTier, rows)
}

func (fp *Persistence) TransactionsByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*models.CreditTransaction, error) {
	return fp.creditRepo.TransactionsByTenant(ctx, tenantID, limit, offset)
}

func (fp *Persistence) CreditAccountTenantIDs(ctx context.Context) ([]string, error) {
	return fp.creditRepo.TenantIDs(ctx)
}
