// Package events defines the typed lifecycle events published after every
// state-changing core operation.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/flowdeck/flowdeck/pkg/models"
)

type EventType string

// Topic is the single event stream every lifecycle event is published on.
const Topic = "flowdeck.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Workflow lifecycle events.
	WorkflowStatusChangedEvent EventType = "workflow.status.changed"

	// Credit lifecycle events.
	CreditDebitedEvent     EventType = "credit.debited"
	CreditGrantedEvent     EventType = "credit.granted"
	CreditDebitFailedEvent EventType = "credit.debit_failed"
	PlanChangedEvent       EventType = "plan.changed"
	AllowanceResetEvent    EventType = "allowance.reset"

	// Connection lifecycle events.
	ConnectionCreatedEvent     EventType = "connection.created"
	ConnectionDeactivatedEvent EventType = "connection.deactivated"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TenantID  string         `json:"tenant_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, tenantID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		TenantID:  tenantID,
		Metadata:  make(map[string]any),
	}
}

// WorkflowStatusChanged records a confirmed upstream toggle.
type WorkflowStatusChanged struct {
	BaseEvent

	Platform     models.Platform       `json:"platform"`
	ConnectionID string                `json:"connection_id"`
	WorkflowID   string                `json:"workflow_id"`
	Status       models.WorkflowStatus `json:"status"`
	Billed       bool                  `json:"billed"`
}

func (w WorkflowStatusChanged) GetType() EventType {
	return WorkflowStatusChangedEvent
}

// CreditDebited records a committed debit, one amount per kind touched.
type CreditDebited struct {
	BaseEvent

	Amount         int64  `json:"amount"`
	RegularDebited int64  `json:"regular_debited"`
	BonusDebited   int64  `json:"bonus_debited"`
	Reason         string `json:"reason"`
	RegularBalance int64  `json:"regular_balance"`
	BonusBalance   int64  `json:"bonus_balance"`
}

func (c CreditDebited) GetType() EventType {
	return CreditDebitedEvent
}

// CreditGranted records an administrative grant.
type CreditGranted struct {
	BaseEvent

	Amount int64             `json:"amount"`
	Kind   models.CreditKind `json:"kind"`
	Reason string            `json:"reason"`
}

func (c CreditGranted) GetType() EventType {
	return CreditGrantedEvent
}

// CreditDebitFailed records an upstream success that could not be billed.
// The side effect stands; the unbilled outcome is surfaced for follow-up.
type CreditDebitFailed struct {
	BaseEvent

	Amount     int64  `json:"amount"`
	Reason     string `json:"reason"`
	Error      string `json:"error"`
	WorkflowID string `json:"workflow_id,omitempty"`
}

func (c CreditDebitFailed) GetType() EventType {
	return CreditDebitFailedEvent
}

// PlanChanged records a tier switch and the regular-balance overwrite delta.
type PlanChanged struct {
	BaseEvent

	PreviousTier   models.PlanTier `json:"previous_tier"`
	NewTier        models.PlanTier `json:"new_tier"`
	RegularBalance int64           `json:"regular_balance"`
	Delta          int64           `json:"delta"`
}

func (p PlanChanged) GetType() EventType {
	return PlanChangedEvent
}

// AllowanceReset records a monthly regular-credit reset.
type AllowanceReset struct {
	BaseEvent

	Tier           models.PlanTier `json:"tier"`
	RegularBalance int64           `json:"regular_balance"`
	Delta          int64           `json:"delta"`
}

func (a AllowanceReset) GetType() EventType {
	return AllowanceResetEvent
}

// ConnectionCreated records a new platform credential binding.
type ConnectionCreated struct {
	BaseEvent

	ConnectionID string          `json:"connection_id"`
	Platform     models.Platform `json:"platform"`
	// ReplacedConnectionID names the previously active connection that this
	// one displaced, when any.
	ReplacedConnectionID string `json:"replaced_connection_id,omitempty"`
}

func (c ConnectionCreated) GetType() EventType {
	return ConnectionCreatedEvent
}

// ConnectionDeactivated records a soft deactivation.
type ConnectionDeactivated struct {
	BaseEvent

	ConnectionID string          `json:"connection_id"`
	Platform     models.Platform `json:"platform"`
}

func (c ConnectionDeactivated) GetType() EventType {
	return ConnectionDeactivatedEvent
}
