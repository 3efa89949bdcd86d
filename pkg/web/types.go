// Package web provides the HTTP surface of the platform abstraction and
// credit metering core: fiber handlers, request/response types and the
// RFC 7807 error mapping.
package web

import (
	"time"

	"github.com/flowdeck/flowdeck/pkg/models"
)

// CreateConnectionRequest represents the request body for binding a tenant
// to a platform instance.
type CreateConnectionRequest struct {
	Platform   string `json:"platform"   validate:"required,oneof=n8n make zapier"`
	BaseURL    string `json:"base_url"   validate:"omitempty,url"`
	Credential string `json:"credential" validate:"required"`
	TeamID     string `json:"team_id,omitempty"`
}

// SetWorkflowStatusRequest represents the request body for a toggle.
type SetWorkflowStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

// GrantCreditsRequest represents the administrative grant body.
type GrantCreditsRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Kind   string `json:"kind"   validate:"required,oneof=regular bonus"`
	Reason string `json:"reason" validate:"required"`
}

// ChangePlanRequest represents the plan switch body.
type ChangePlanRequest struct {
	Tier string `json:"tier" validate:"required"`
}

// ConnectionResponse is the connection view with the credential redacted.
// Raw credentials never leave the web layer.
type ConnectionResponse struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenant_id"`
	Platform      models.Platform `json:"platform"`
	BaseURL       string          `json:"base_url"`
	TeamID        string          `json:"team_id,omitempty"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeactivatedAt *time.Time      `json:"deactivated_at,omitempty"`
}

// TransformConnectionResponse redacts a connection for API output.
func TransformConnectionResponse(conn *models.Connection) ConnectionResponse {
	return ConnectionResponse{
		ID:            conn.ID,
		TenantID:      conn.TenantID,
		Platform:      conn.Platform,
		BaseURL:       conn.BaseURL,
		TeamID:        conn.TeamID,
		IsActive:      conn.IsActive,
		CreatedAt:     conn.CreatedAt,
		UpdatedAt:     conn.UpdatedAt,
		DeactivatedAt: conn.DeactivatedAt,
	}
}
