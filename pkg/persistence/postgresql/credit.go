package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/persistence"
)

// CreditRepository handles credit account and ledger database operations.
type CreditRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewCreditRepository creates a new credit repository.
func NewCreditRepository(db *sql.DB, logger *slog.Logger) *CreditRepository {
	return &CreditRepository{db: db, logger: logger}
}

// CreateAccount inserts a fresh account for a tenant.
func (r *CreditRepository) CreateAccount(ctx context.Context, account *models.CreditAccount) error {
	now := time.Now().UTC()

	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}

	account.UpdatedAt = now

	query := `
		INSERT INTO credit_accounts (tenant_id, regular_balance, bonus_balance, tier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		account.TenantID,
		account.RegularBalance,
		account.BonusBalance,
		account.Tier,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create credit account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewLedgerError("CreateAccount", account.TenantID, persistence.ErrAccountAlreadyExists)
	}

	return nil
}

// AccountByTenant returns the tenant's account, or nil when none exists.
func (r *CreditRepository) AccountByTenant(ctx context.Context, tenantID string) (*models.CreditAccount, error) {
	query := `
		SELECT
			tenant_id
		  , regular_balance
		  , bonus_balance
		  , tier
		  , created_at
		  , updated_at
		FROM credit_accounts
		WHERE tenant_id = $1
	`

	row := r.db.QueryRowContext(ctx, query, tenantID)

	account, err := r.scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan credit account: %w", err)
	}

	return account, nil
}

// ApplyLedger appends the rows and moves the cached balances by exactly the
// per-kind sum of the rows in one transaction. The balance update carries the
// non-negative guard, so concurrent spend can never commit a negative balance.
func (r *CreditRepository) ApplyLedger(ctx context.Context, tenantID string, newTier *models.PlanTier, rows []*models.CreditTransaction) (*models.CreditAccount, error) {
	// A rowless write is only valid as a tier-only update.
	if len(rows) == 0 && newTier == nil {
		return nil, persistence.NewLedgerError("ApplyLedger", tenantID, persistence.ErrInvalidTransaction)
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

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var tierParam *string

	if newTier != nil {
		tier := string(*newTier)
		tierParam = &tier
	}

	updateQuery := `
		UPDATE credit_accounts
		SET regular_balance = regular_balance + $2,
			bonus_balance = bonus_balance + $3,
			tier = COALESCE($4::VARCHAR, tier),
			updated_at = $5
		WHERE tenant_id = $1
		  AND regular_balance + $2 >= 0
		  AND bonus_balance + $3 >= 0
		RETURNING tenant_id, regular_balance, bonus_balance, tier, created_at, updated_at
	`

	row := tx.QueryRowContext(ctx, updateQuery, tenantID, deltaRegular, deltaBonus, tierParam, now)

	account, err := r.scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Either the account is missing or the guard refused the write.
			exists, checkErr := r.accountExists(ctx, tx, tenantID)
			if checkErr != nil {
				return nil, checkErr
			}

			if !exists {
				return nil, persistence.NewLedgerError("ApplyLedger", tenantID, persistence.ErrAccountNotFound)
			}

			return nil, persistence.NewLedgerError("ApplyLedger", tenantID, persistence.ErrInsufficientCredits)
		}

		return nil, fmt.Errorf("failed to update credit account: %w", err)
	}

	for _, txRow := range rows {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO credit_transactions (id, tenant_id, amount, kind, reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, txRow.ID, txRow.TenantID, txRow.Amount, txRow.Kind, txRow.Reason, txRow.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to insert credit transaction: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return account, nil
}

func (r *CreditRepository) accountExists(ctx context.Context, tx *sql.Tx, tenantID string) (bool, error) {
	var exists bool

	err := tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM credit_accounts WHERE tenant_id = $1)", tenantID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check account existence: %w", err)
	}

	return exists, nil
}

// TransactionsByTenant returns the tenant's ledger rows, newest first.
func (r *CreditRepository) TransactionsByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*models.CreditTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT
			id
		  , tenant_id
		  , amount
		  , kind
		  , reason
		  , created_at
		FROM credit_transactions
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query credit transactions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	transactions := make([]*models.CreditTransaction, 0)

	for rows.Next() {
		var transaction models.CreditTransaction

		err := rows.Scan(
			&transaction.ID,
			&transaction.TenantID,
			&transaction.Amount,
			&transaction.Kind,
			&transaction.Reason,
			&transaction.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credit transaction: %w", err)
		}

		transactions = append(transactions, &transaction)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating credit transactions: %w", err)
	}

	return transactions, nil
}

// TenantIDs lists every tenant holding a credit account.
func (r *CreditRepository) TenantIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT tenant_id FROM credit_accounts ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to query account tenants: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	tenants := make([]string, 0)

	for rows.Next() {
		var tenantID string

		if err := rows.Scan(&tenantID); err != nil {
			return nil, fmt.Errorf("failed to scan tenant ID: %w", err)
		}

		tenants = append(tenants, tenantID)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating account tenants: %w", err)
	}

	return tenants, nil
}

func (r *CreditRepository) scanAccount(scanner interface {
	Scan(dest ...any) error
}) (*models.CreditAccount, error) {
	var account models.CreditAccount

	err := scanner.Scan(
		&account.TenantID,
		&account.RegularBalance,
		&account.BonusBalance,
		&account.Tier,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &account, nil
}
