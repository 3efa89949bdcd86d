// Package zapier provides the degraded Zapier adapter. Zapier has no public
// management API, so listing yields a static unsupported marker without any
// upstream call and every control operation fails with the permanent
// ErrUnsupportedOperation condition, never a transient fault.
package zapier

import (
	"context"
	"log/slog"

	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/platforms"
)

// Adapter implements platforms.Adapter for Zapier.
type Adapter struct {
	logger *slog.Logger
}

// NewAdapter creates the static Zapier adapter. It takes no gateway: the
// adapter performs no I/O at all.
func NewAdapter(logger *slog.Logger) *Adapter {
	return &Adapter{
		logger: logger.With("module", "zapier_adapter"),
	}
}

// Platform returns the platform key this adapter serves.
func (a *Adapter) Platform() models.Platform {
	return models.PlatformZapier
}

// SupportsControl reports that Zapier exposes no control API.
func (a *Adapter) SupportsControl() bool {
	return false
}

// List returns the degraded static listing: no items, no upstream call. The
// facade marks the whole listing unsupported so clients can render "not
// available" instead of an empty healthy list.
func (a *Adapter) List(ctx context.Context, _ *models.Connection) ([]*models.WorkflowState, error) {
	a.logger.DebugContext(ctx, "Zapier listing is static, no upstream call made")

	return []*models.WorkflowState{}, nil
}

// Get always fails: individual Zap state is not readable.
func (a *Adapter) Get(_ context.Context, _ *models.Connection, _ string) (*models.WorkflowState, error) {
	return nil, platforms.NewUpstreamError(models.PlatformZapier, "Get", 0, platforms.ErrUnsupportedOperation)
}

// SetStatus always fails: Zaps cannot be toggled remotely.
func (a *Adapter) SetStatus(_ context.Context, _ *models.Connection, _ string, _ models.WorkflowStatus) (*models.WorkflowState, error) {
	return nil, platforms.NewUpstreamError(models.PlatformZapier, "SetStatus", 0, platforms.ErrUnsupportedOperation)
}

// ListExecutions always fails: Zap run history is not exposed.
func (a *Adapter) ListExecutions(_ context.Context, _ *models.Connection, _ string, _ int) ([]*models.ExecutionRecord, error) {
	return nil, platforms.NewUpstreamError(models.PlatformZapier, "ListExecutions", 0, platforms.ErrUnsupportedOperation)
}
