package platforms

import (
	"context"

	"github.com/flowdeck/flowdeck/pkg/models"
)

// Adapter translates one platform's native workflow representation into the
// normalized WorkflowState model and a normalized desired status back into
// the platform's native toggle request. Implementations never persist
// anything; every result is a read-through projection of upstream truth.
type Adapter interface {
	Platform() models.Platform

	// SupportsControl reports whether the platform exposes a management API
	// for status changes. Adapters that return false reject SetStatus with
	// ErrUnsupportedOperation without any upstream call.
	SupportsControl() bool

	List(ctx context.Context, conn *models.Connection) ([]*models.WorkflowState, error)

	// Get fetches one workflow's current state, used for no-op detection
	// before a billable toggle.
	Get(ctx context.Context, conn *models.Connection, workflowID string) (*models.WorkflowState, error)

	SetStatus(ctx context.Context, conn *models.Connection, workflowID string, desired models.WorkflowStatus) (*models.WorkflowState, error)

	// ListExecutions returns recent runs for platforms that expose execution
	// history. Platforms without it fail with ErrUnsupportedOperation.
	ListExecutions(ctx context.Context, conn *models.Connection, workflowID string, limit int) ([]*models.ExecutionRecord, error)
}
