package platforms

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeck/flowdeck/pkg/models"
)

type stubAdapter struct {
	Adapter

	platform models.Platform
}

func (s *stubAdapter) Platform() models.Platform {
	return s.platform
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := NewRegistry(slog.Default())
	registry.Register(&stubAdapter{platform: models.PlatformN8N})

	adapter, err := registry.Get(models.PlatformN8N)
	require.NoError(t, err)
	assert.Equal(t, models.PlatformN8N, adapter.Platform())
}

func TestRegistry_GetUnregistered(t *testing.T) {
	registry := NewRegistry(slog.Default())

	adapter, err := registry.Get(models.PlatformZapier)
	assert.Nil(t, adapter)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPlatformNotRegistered)
}

func TestRegistry_Platforms(t *testing.T) {
	registry := NewRegistry(slog.Default())
	registry.Register(&stubAdapter{platform: models.PlatformN8N})
	registry.Register(&stubAdapter{platform: models.PlatformMake})

	assert.ElementsMatch(t, []models.Platform{models.PlatformN8N, models.PlatformMake}, registry.Platforms())
}

func TestRegistry_HealthCheck(t *testing.T) {
	registry := NewRegistry(slog.Default())

	_, ok := registry.HealthCheck()
	assert.False(t, ok)

	registry.Register(&stubAdapter{platform: models.PlatformN8N})

	_, ok = registry.HealthCheck()
	assert.True(t, ok)
}

func TestUpstreamError_Error(t *testing.T) {
	err := NewUpstreamError(models.PlatformN8N, "Get", 404, ErrWorkflowNotFound)
	assert.Contains(t, err.Error(), "n8n")
	assert.Contains(t, err.Error(), "Get")
	assert.Contains(t, err.Error(), "404")

	noResponse := NewUpstreamError(models.PlatformMake, "List", 0, ErrUpstreamUnreachable)
	assert.NotContains(t, noResponse.Error(), "status")
}

func TestUpstreamError_Unwrap(t *testing.T) {
	err := NewUpstreamError(models.PlatformZapier, "SetStatus", 0, ErrUnsupportedOperation)

	assert.ErrorIs(t, err, ErrUnsupportedOperation)
	assert.NotErrorIs(t, err, ErrUpstreamTimeout)

	var upstreamErr *UpstreamError

	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, "SetStatus", upstreamErr.Op)
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsUnsupportedOperation(NewUpstreamError(models.PlatformZapier, "Get", 0, ErrUnsupportedOperation)))
	assert.True(t, IsUpstreamAuthFailed(NewUpstreamError(models.PlatformMake, "List", 401, ErrUpstreamAuthFailed)))
	assert.True(t, IsUpstreamTimeout(NewUpstreamError(models.PlatformN8N, "SetStatus", 0, ErrUpstreamTimeout)))
	assert.True(t, IsWorkflowNotFound(NewUpstreamError(models.PlatformN8N, "Get", 404, ErrWorkflowNotFound)))

	assert.False(t, IsUnsupportedOperation(errors.New("boom")))
	assert.False(t, IsUpstreamTimeout(nil))
}
