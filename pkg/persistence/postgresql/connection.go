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

// ConnectionRepository handles connection-related database operations.
type ConnectionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewConnectionRepository creates a new connection repository.
func NewConnectionRepository(db *sql.DB, logger *slog.Logger) *ConnectionRepository {
	return &ConnectionRepository{db: db, logger: logger}
}

// GetByID returns a connection by its ID, or nil when it does not exist.
func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*models.Connection, error) {
	query := `
		SELECT
			id
		  , tenant_id
		  , platform
		  , base_url
		  , credential
		  , team_id
		  , is_active
		  , created_at
		  , updated_at
		  , deactivated_at
		FROM connections
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	conn, err := r.scanConnection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan connection: %w", err)
	}

	return conn, nil
}

// GetActive returns the single dispatchable connection for the tenant and
// platform, or nil when none is active.
func (r *ConnectionRepository) GetActive(ctx context.Context, tenantID string, platform models.Platform) (*models.Connection, error) {
	query := `
		SELECT
			id
		  , tenant_id
		  , platform
		  , base_url
		  , credential
		  , team_id
		  , is_active
		  , created_at
		  , updated_at
		  , deactivated_at
		FROM connections
		WHERE tenant_id = $1 AND platform = $2 AND is_active
	`

	row := r.db.QueryRowContext(ctx, query, tenantID, platform)

	conn, err := r.scanConnection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan active connection: %w", err)
	}

	return conn, nil
}

// ListByTenant returns every connection a tenant owns, newest first.
func (r *ConnectionRepository) ListByTenant(ctx context.Context, tenantID string) ([]*models.Connection, error) {
	query := `
		SELECT
			id
		  , tenant_id
		  , platform
		  , base_url
		  , credential
		  , team_id
		  , is_active
		  , created_at
		  , updated_at
		  , deactivated_at
		FROM connections
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	connections := make([]*models.Connection, 0)

	for rows.Next() {
		conn, err := r.scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}

		connections = append(connections, conn)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}

	return connections, nil
}

// Save upserts a connection. When the saved connection is active, any other
// active connection for the same tenant and platform is deactivated in the
// same transaction.
func (r *ConnectionRepository) Save(ctx context.Context, conn *models.Connection) error {
	now := time.Now().UTC()

	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}

	conn.UpdatedAt = now

	if conn.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate connection ID: %w", err)
		}

		conn.ID = id.String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if conn.IsActive {
		_, err = tx.ExecContext(ctx, `
			UPDATE connections
			SET is_active = FALSE, deactivated_at = $3, updated_at = $3
			WHERE tenant_id = $1 AND platform = $2 AND is_active AND id <> $4
		`, conn.TenantID, conn.Platform, now, conn.ID)
		if err != nil {
			return fmt.Errorf("failed to deactivate prior connections: %w", err)
		}
	}

	query := `
		INSERT INTO connections (id, tenant_id, platform, base_url, credential, team_id, is_active, created_at, updated_at, deactivated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			base_url = EXCLUDED.base_url,
			credential = EXCLUDED.credential,
			team_id = EXCLUDED.team_id,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at,
			deactivated_at = EXCLUDED.deactivated_at
	`

	_, err = tx.ExecContext(ctx, query,
		conn.ID,
		conn.TenantID,
		conn.Platform,
		conn.BaseURL,
		conn.Credential,
		conn.TeamID,
		conn.IsActive,
		conn.CreatedAt,
		conn.UpdatedAt,
		conn.DeactivatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Deactivate soft deactivates a connection by setting deactivated_at. The
// row is kept so ledger history stays traceable.
func (r *ConnectionRepository) Deactivate(ctx context.Context, id string) error {
	query := `
		UPDATE connections
		SET is_active = FALSE, deactivated_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND is_active
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate connection: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		existing, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if existing == nil {
			return persistence.NewConnectionError("Deactivate", id, persistence.ErrConnectionNotFound)
		}

		// Already inactive.
		return nil
	}

	return nil
}

func (r *ConnectionRepository) scanConnection(scanner interface {
	Scan(dest ...any) error
}) (*models.Connection, error) {
	var conn models.Connection

	err := scanner.Scan(
		&conn.ID,
		&conn.TenantID,
		&conn.Platform,
		&conn.BaseURL,
		&conn.Credential,
		&conn.TeamID,
		&conn.IsActive,
		&conn.CreatedAt,
		&conn.UpdatedAt,
		&conn.DeactivatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &conn, nil
}
