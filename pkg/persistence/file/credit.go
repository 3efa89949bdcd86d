package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/persistence"
)

// CreditRepository handles credit account and ledger file operations. The
// account file is the cached balance; the per-tenant transactions file is
// the append-only ledger, and the two are only ever written together under
// the repository lock.
type CreditRepository struct {
	root string
	mu   sync.Mutex
}

// NewCreditRepository creates a new credit repository.
func NewCreditRepository(root string) *CreditRepository {
	return &CreditRepository{root: root}
}

// CreateAccount writes a fresh account for a tenant.
func (cr *CreditRepository) CreateAccount(_ context.Context, account *models.CreditAccount) error {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	existing, err := cr.readAccount(account.TenantID)
	if err != nil {
		return err
	}

	if existing != nil {
		return persistence.NewLedgerError("CreateAccount", account.TenantID, persistence.ErrAccountAlreadyExists)
	}

	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}

	account.UpdatedAt = now

	return cr.writeAccount(account)
}

// AccountByTenant retrieves a credit account, or nil when the tenant has none.
func (cr *CreditRepository) AccountByTenant(_ context.Context, tenantID string) (*models.CreditAccount, error) {
	return cr.readAccount(tenantID)
}

// ApplyLedger appends the rows and moves the cached balances by exactly the
// per-kind sum of the rows, refusing the whole write when a balance would go
// negative.
func (cr *CreditRepository) ApplyLedger(_ context.Context, tenantID string, newTier *models.PlanTier, rows []*models.CreditTransaction) (*models.CreditAccount, error) {
	// A rowless write is only valid as a tier-only update.
	if len(rows) == 0 && newTier == nil {
		return nil, persistence.NewLedgerError("ApplyLedger", tenantID, persistence.ErrInvalidTransaction)
	}

	cr.mu.Lock()
	defer cr.mu.Unlock()

	account, err := cr.readAccount(tenantID)
	if err != nil {
		return nil, err
	}

	if account == nil {
		return nil, persistence.NewLedgerError("ApplyLedger", tenantID, persistence.ErrAccountNotFound)
	}

	now := time.Now().UTC()

	var deltaRegular, deltaBonus int64

	for _, row := range rows {
		if row.TenantID != tenantID || row.Amount == 0 || !row.Kind.Valid() {
			return nil, persistence.NewLedgerError("ApplyLedger", tenantID, persistence.ErrInvalidTransaction)
		}

		if row.ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return nil, fmt.Errorf("failed to generate transaction ID: %w", err)
			}

			row.ID = id.String()
		}

		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}

		switch row.Kind {
		case models.CreditKindRegular:
			deltaRegular += row.Amount
		case models.CreditKindBonus:
			deltaBonus += row.Amount
		}
	}

	if account.RegularBalance+deltaRegular < 0 || account.BonusBalance+deltaBonus < 0 {
		return nil, persistence.NewLedgerError("ApplyLedger", tenantID, persistence.ErrInsufficientCredits)
	}

	existing := []*models.CreditTransaction{}

	if len(rows) > 0 {
		existing, err = cr.readTransactions(tenantID)
		if err != nil {
			return nil, err
		}
	}

	account.RegularBalance += deltaRegular
	account.BonusBalance += deltaBonus
	account.UpdatedAt = now

	if newTier != nil {
		account.Tier = *newTier
	}

	if len(rows) > 0 {
		if err := cr.writeTransactions(tenantID, append(existing, rows...)); err != nil {
			return nil, err
		}
	}

	if err := cr.writeAccount(account); err != nil {
		return nil, err
	}

	saved := *account

	return &saved, nil
}

// TransactionsByTenant returns the tenant's ledger rows, newest first.
func (cr *CreditRepository) TransactionsByTenant(_ context.Context, tenantID string, limit, offset int) ([]*models.CreditTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	if offset < 0 {
		offset = 0
	}

	cr.mu.Lock()
	defer cr.mu.Unlock()

	rows, err := cr.readTransactions(tenantID)
	if err != nil {
		return nil, err
	}

	// Rows are stored append-ordered; reverse for newest first.
	reversed := make([]*models.CreditTransaction, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		reversed = append(reversed, rows[i])
	}

	if offset >= len(reversed) {
		return []*models.CreditTransaction{}, nil
	}

	end := offset + limit
	if end > len(reversed) {
		end = len(reversed)
	}

	return reversed[offset:end], nil
}

// TenantIDs lists every tenant holding a credit account.
func (cr *CreditRepository) TenantIDs(_ context.Context) ([]string, error) {
	root := os.DirFS(cr.root + "/credit_accounts")

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list account files: %w", err)
	}

	tenants := make([]string, 0, len(jsonFiles))
	for _, file := range jsonFiles {
		tenants = append(tenants, file[:len(file)-5])
	}

	return tenants, nil
}

func (cr *CreditRepository) readAccount(tenantID string) (*models.CreditAccount, error) {
	filePath := filepath.Clean(path.Join(cr.root, "credit_accounts", tenantID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch credit account %s: %w", tenantID, err)
	}

	var account models.CreditAccount

	err = json.Unmarshal(body, &account)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal credit account %s: %w", tenantID, err)
	}

	return &account, nil
}

func (cr *CreditRepository) writeAccount(account *models.CreditAccount) error {
	err := os.MkdirAll(cr.root+"/credit_accounts", 0750)
	if err != nil {
		return fmt.Errorf("failed to create credit_accounts directory: %w", err)
	}

	data, err := json.MarshalIndent(account, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credit account %s: %w", account.TenantID, err)
	}

	filePath := path.Join(cr.root+"/credit_accounts", account.TenantID+".json")

	return os.WriteFile(filePath, data, 0600)
}

func (cr *CreditRepository) readTransactions(tenantID string) ([]*models.CreditTransaction, error) {
	filePath := filepath.Clean(path.Join(cr.root, "credit_transactions", tenantID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.CreditTransaction{}, nil
		}

		return nil, fmt.Errorf("failed to fetch transactions for %s: %w", tenantID, err)
	}

	var rows []*models.CreditTransaction

	err = json.Unmarshal(body, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal transactions for %s: %w", tenantID, err)
	}

	return rows, nil
}

func (cr *CreditRepository) writeTransactions(tenantID string, rows []*models.CreditTransaction) error {
	err := os.MkdirAll(cr.root+"/credit_transactions", 0750)
	if err != nil {
		return fmt.Errorf("failed to create credit_transactions directory: %w", err)
	}

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal transactions for %s: %w", tenantID, err)
	}

	filePath := path.Join(cr.root+"/credit_transactions", tenantID+".json")

	return os.WriteFile(filePath, data, 0600)
}
