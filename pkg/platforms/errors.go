// Package platforms defines the adapter contract that normalizes the three
// upstream automation platforms behind one interface, plus the upstream
// error taxonomy shared by every adapter.
package platforms

import (
	"errors"
	"fmt"

	"github.com/flowdeck/flowdeck/pkg/models"
)

// Upstream failure sentinels. These are the only failure shapes an adapter
// may surface; raw transport errors never cross the package boundary.
var (
	// ErrUpstreamUnreachable indicates the platform could not be reached or
	// kept failing server-side after the retry budget was spent.
	ErrUpstreamUnreachable = errors.New("upstream platform unreachable")

	// ErrUpstreamAuthFailed indicates the platform rejected the connection's
	// credential.
	ErrUpstreamAuthFailed = errors.New("upstream authentication failed")

	// ErrUpstreamMalformedResponse indicates the platform answered with a
	// body that does not match its documented schema.
	ErrUpstreamMalformedResponse = errors.New("upstream response malformed")

	// ErrUpstreamTimeout indicates the per-request deadline expired.
	ErrUpstreamTimeout = errors.New("upstream request timed out")

	// ErrUnsupportedOperation indicates the platform exposes no API for the
	// requested operation. This is a permanent, expected condition for
	// Zapier control calls, not a transient fault.
	ErrUnsupportedOperation = errors.New("operation not supported by platform")

	// ErrWorkflowNotFound indicates the platform knows no workflow with the
	// requested identifier.
	ErrWorkflowNotFound = errors.New("workflow not found on platform")

	// ErrPlatformNotRegistered indicates no adapter is registered for the
	// requested platform.
	ErrPlatformNotRegistered = errors.New("platform not registered")
)

// UpstreamError wraps an upstream failure with the platform, the operation
// and the last HTTP status observed, when any response was received.
type UpstreamError struct {
	Platform   models.Platform
	Op         string // Adapter operation (e.g. "List", "SetStatus")
	StatusCode int    // Last upstream HTTP status, 0 when no response arrived
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s failed (status %d): %v", e.Platform, e.Op, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("%s %s failed: %v", e.Platform, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for upstream errors.
func (e *UpstreamError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewUpstreamError creates a new upstream error with context.
func NewUpstreamError(platform models.Platform, op string, statusCode int, err error) *UpstreamError {
	return &UpstreamError{
		Platform:   platform,
		Op:         op,
		StatusCode: statusCode,
		Err:        err,
	}
}

// IsUnsupportedOperation checks if an error is the permanent no-control-API
// condition rather than a transient fault.
func IsUnsupportedOperation(err error) bool {
	return errors.Is(err, ErrUnsupportedOperation)
}

// IsUpstreamAuthFailed checks if an error indicates a rejected credential.
func IsUpstreamAuthFailed(err error) bool {
	return errors.Is(err, ErrUpstreamAuthFailed)
}

// IsUpstreamTimeout checks if an error indicates a request deadline expired.
func IsUpstreamTimeout(err error) bool {
	return errors.Is(err, ErrUpstreamTimeout)
}

// IsWorkflowNotFound checks if an error indicates an unknown workflow ID.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}
