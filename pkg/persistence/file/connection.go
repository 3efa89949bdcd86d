package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/persistence"
)

// ConnectionRepository handles connection-related file operations.
type ConnectionRepository struct {
	root string // File system root for storing connections
	mu   sync.Mutex
}

// NewConnectionRepository creates a new connection repository.
func NewConnectionRepository(root string) *ConnectionRepository {
	return &ConnectionRepository{root: root}
}

// GetByID retrieves a connection by its ID from the file system.
func (cr *ConnectionRepository) GetByID(_ context.Context, connectionID string) (*models.Connection, error) {
	return cr.readConnection(connectionID)
}

func (cr *ConnectionRepository) readConnection(connectionID string) (*models.Connection, error) {
	filePath := filepath.Clean(path.Join(cr.root, "connections", connectionID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch connection %s: %w", connectionID, err)
	}

	var conn models.Connection

	err = json.Unmarshal(body, &conn)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal connection %s: %w", connectionID, err)
	}

	return &conn, nil
}

// Save upserts a connection. Saving an active connection deactivates any
// other active connection for the same tenant and platform under the same
// lock, so at most one connection per pair stays dispatchable.
func (cr *ConnectionRepository) Save(ctx context.Context, conn *models.Connection) error {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	now := time.Now().UTC()
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}

	conn.UpdatedAt = now

	if conn.IsActive {
		others, err := cr.listAll()
		if err != nil {
			return fmt.Errorf("failed to list connections: %w", err)
		}

		for _, other := range others {
			if other.ID == conn.ID || !other.IsActive {
				continue
			}

			if other.TenantID == conn.TenantID && other.Platform == conn.Platform {
				other.Deactivate()

				if err := cr.writeConnection(other); err != nil {
					return fmt.Errorf("failed to deactivate connection %s: %w", other.ID, err)
				}
			}
		}
	}

	return cr.writeConnection(conn)
}

func (cr *ConnectionRepository) writeConnection(conn *models.Connection) error {
	err := os.MkdirAll(cr.root+"/connections", 0750)
	if err != nil {
		return fmt.Errorf("failed to create connections directory: %w", err)
	}

	data, err := json.MarshalIndent(conn, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal connection %s: %w", conn.ID, err)
	}

	filePath := path.Join(cr.root+"/connections", conn.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

func (cr *ConnectionRepository) listAll() ([]*models.Connection, error) {
	root := os.DirFS(cr.root + "/connections")

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list connection files: %w", err)
	}

	connections := make([]*models.Connection, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		connectionID := file[:len(file)-5] // Remove .json extension

		conn, err := cr.readConnection(connectionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load connection %s: %w", connectionID, err)
		}

		if conn != nil {
			connections = append(connections, conn)
		}
	}

	return connections, nil
}

// GetActive returns the dispatchable connection for the tenant and platform,
// or nil when none is active.
func (cr *ConnectionRepository) GetActive(_ context.Context, tenantID string, platform models.Platform) (*models.Connection, error) {
	connections, err := cr.listAll()
	if err != nil {
		return nil, err
	}

	for _, conn := range connections {
		if conn.TenantID == tenantID && conn.Platform == platform && conn.IsActive {
			return conn, nil
		}
	}

	return nil, nil
}

// ListByTenant returns every connection a tenant owns, newest first.
func (cr *ConnectionRepository) ListByTenant(_ context.Context, tenantID string) ([]*models.Connection, error) {
	connections, err := cr.listAll()
	if err != nil {
		return nil, err
	}

	owned := make([]*models.Connection, 0)

	for _, conn := range connections {
		if conn.TenantID == tenantID {
			owned = append(owned, conn)
		}
	}

	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	return owned, nil
}

// Deactivate flips the connection out of dispatch rotation.
func (cr *ConnectionRepository) Deactivate(_ context.Context, connectionID string) error {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	conn, err := cr.readConnection(connectionID)
	if err != nil {
		return err
	}

	if conn == nil {
		return persistence.NewConnectionError("Deactivate", connectionID, persistence.ErrConnectionNotFound)
	}

	if !conn.IsActive {
		return nil
	}

	conn.Deactivate()

	return cr.writeConnection(conn)
}
