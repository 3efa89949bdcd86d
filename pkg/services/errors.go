// Package services provides the orchestration facade consumed by the
// presentation layer, plus the service-level error taxonomy.
package services

import (
	"errors"

	"github.com/flowdeck/flowdeck/pkg/ledger"
	"github.com/flowdeck/flowdeck/pkg/locks"
	"github.com/flowdeck/flowdeck/pkg/persistence"
	"github.com/flowdeck/flowdeck/pkg/platforms"
)

var (
	// Validation errors (400).
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInvalidPlatform = errors.New("invalid platform")
	ErrInvalidStatus   = errors.New("requested status is not a valid toggle target")
	ErrEmptyTenantID   = errors.New("tenant ID cannot be empty")
	ErrInvalidAmount   = ledger.ErrInvalidAmount
	ErrInvalidKind     = ledger.ErrInvalidKind

	// Authorization errors.
	ErrUnauthorized        = errors.New("unauthorized")
	ErrPlanUpgradeRequired = errors.New("plan upgrade required")

	// Lock contention: a toggle is already in flight on the connection.
	ErrConcurrentModification = errors.New("connection is busy with another status change")

	// Re-exported storage and upstream sentinels so callers depend on one
	// package for the whole taxonomy.
	ErrConnectionNotFound   = persistence.ErrConnectionNotFound
	ErrAccountNotFound      = persistence.ErrAccountNotFound
	ErrInsufficientCredits  = persistence.ErrInsufficientCredits
	ErrUnsupportedOperation = platforms.ErrUnsupportedOperation
	ErrWorkflowNotFound     = platforms.ErrWorkflowNotFound
)

// IsValidationError checks if an error should surface as HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidPlatform) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrEmptyTenantID) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidKind)
}

// IsConcurrentModification checks for lock contention, including the raw
// locker sentinel.
func IsConcurrentModification(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, locks.ErrLockHeld)
}

// IsPlanUpgradeRequired checks if the tier lacks the requested capability.
func IsPlanUpgradeRequired(err error) bool {
	return errors.Is(err, ErrPlanUpgradeRequired)
}
