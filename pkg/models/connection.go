package models

import "time"

// Connection binds one tenant to one platform instance with an opaque
// credential. Connections are never physically deleted; deactivation keeps
// the row so ledger history stays traceable.
type Connection struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenant_id" validate:"required"`
	Platform Platform `json:"platform"  validate:"required"`
	BaseURL  string   `json:"base_url"  validate:"omitempty,url"`
	// Credential is the raw platform token. It is stored as-is and must be
	// redacted before any API response leaves the web layer.
	Credential    string     `json:"credential"`
	TeamID        string     `json:"team_id,omitempty"` // Make.com team scope, unused elsewhere
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

// Deactivate flips the connection out of dispatch rotation.
func (c *Connection) Deactivate() {
	now := time.Now().UTC()
	c.IsActive = false
	c.DeactivatedAt = &now
	c.UpdatedAt = now
}
