// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrConnectionNotFound indicates a connection was not found by the given identifier.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrAccountNotFound indicates no credit account exists for the given tenant.
	ErrAccountNotFound = errors.New("credit account not found")

	// ErrAccountAlreadyExists indicates a credit account already exists for the tenant.
	ErrAccountAlreadyExists = errors.New("credit account already exists")

	// ErrInsufficientCredits indicates a ledger write would drive a balance negative.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrInvalidTransaction indicates a ledger row failed validation before writing.
	ErrInvalidTransaction = errors.New("invalid credit transaction")
)

// ConnectionError wraps connection-related errors with additional context.
type ConnectionError struct {
	Op           string // Operation being performed (e.g., "Save", "Deactivate")
	ConnectionID string // Connection ID if applicable
	TenantID     string // Tenant ID if applicable
	Err          error  // Underlying error
}

func (e *ConnectionError) Error() string {
	target := e.ConnectionID
	if target == "" {
		target = fmt.Sprintf("tenant %s", e.TenantID)
	}

	return fmt.Sprintf("%s operation failed for connection %s: %v", e.Op, target, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for connection errors.
func (e *ConnectionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewConnectionError creates a new connection error with context.
func NewConnectionError(op, connectionID string, err error) *ConnectionError {
	return &ConnectionError{
		Op:           op,
		ConnectionID: connectionID,
		Err:          err,
	}
}

// LedgerError wraps credit ledger errors with additional context.
type LedgerError struct {
	Op       string // Operation being performed
	TenantID string // Tenant whose account was touched
	Err      error  // Underlying error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("%s operation failed for tenant %s: %v", e.Op, e.TenantID, e.Err)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

func (e *LedgerError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewLedgerError creates a new ledger error with context.
func NewLedgerError(op, tenantID string, err error) *LedgerError {
	return &LedgerError{
		Op:       op,
		TenantID: tenantID,
		Err:      err,
	}
}

// IsConnectionNotFound checks if an error indicates a connection was not found.
func IsConnectionNotFound(err error) bool {
	return errors.Is(err, ErrConnectionNotFound)
}

// IsAccountNotFound checks if an error indicates a credit account was not found.
func IsAccountNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

// IsInsufficientCredits checks if an error indicates a balance guard rejected a write.
func IsInsufficientCredits(err error) bool {
	return errors.Is(err, ErrInsufficientCredits)
}

// IsInvalidTransaction checks if an error indicates ledger row validation failed.
func IsInvalidTransaction(err error) bool {
	return errors.Is(err, ErrInvalidTransaction)
}
