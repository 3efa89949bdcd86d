package platforms

import (
	"log/slog"

	"github.com/flowdeck/flowdeck/pkg/models"
)

// Registry holds one adapter per platform and dispatches by platform key.
type Registry struct {
	logger   *slog.Logger
	adapters map[models.Platform]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger,
		adapters: make(map[models.Platform]Adapter),
	}
}

// Register installs an adapter for its platform, replacing any previous one.
func (r *Registry) Register(adapter Adapter) {
	r.adapters[adapter.Platform()] = adapter
	r.logger.Info("Registered platform adapter", "platform", adapter.Platform())
}

// Get returns the adapter for the platform.
func (r *Registry) Get(platform models.Platform) (Adapter, error) {
	adapter, ok := r.adapters[platform]
	if !ok {
		return nil, NewUpstreamError(platform, "Get", 0, ErrPlatformNotRegistered)
	}

	return adapter, nil
}

// Platforms lists every registered platform.
func (r *Registry) Platforms() []models.Platform {
	keys := make([]models.Platform, 0, len(r.adapters))
	for platform := range r.adapters {
		keys = append(keys, platform)
	}

	return keys
}

// HealthCheck reports registry readiness as a message plus flag.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.adapters) == 0 {
		return "No platform adapters registered", false
	}

	return "Platform adapter registry is healthy", true
}
