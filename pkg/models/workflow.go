package models

import "time"

// WorkflowStatus is the normalized activation state of a remote workflow.
type WorkflowStatus string

const (
	WorkflowStatusActive      WorkflowStatus = "active"
	WorkflowStatusInactive    WorkflowStatus = "inactive"
	WorkflowStatusUnsupported WorkflowStatus = "unsupported" // platform exposes no status
)

// Toggleable reports whether s is a state a caller may request. Only
// active and inactive are valid toggle targets.
func (s WorkflowStatus) Toggleable() bool {
	return s == WorkflowStatusActive || s == WorkflowStatusInactive
}

// WorkflowState is the normalized view of a remote automation unit. It is a
// read-through projection of upstream truth: fetched on demand, never
// persisted.
type WorkflowState struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Status    WorkflowStatus `json:"status"`
	UpdatedAt time.Time      `json:"updated_at"`
	// NodeCount is nil on platforms whose list shape does not expose it.
	NodeCount *int `json:"node_count,omitempty"`
}

// ExecutionRecord is a single remote workflow run, as reported by platforms
// that expose execution history.
type ExecutionRecord struct {
	ID         string     `json:"id"`
	WorkflowID string     `json:"workflow_id"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
