package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/flowdeck/flowdeck/pkg/eventbus"
	"github.com/flowdeck/flowdeck/pkg/events"
	"github.com/flowdeck/flowdeck/pkg/ledger"
	"github.com/flowdeck/flowdeck/pkg/locks"
	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/otelhelper"
	"github.com/flowdeck/flowdeck/pkg/persistence"
	"github.com/flowdeck/flowdeck/pkg/plans"
	"github.com/flowdeck/flowdeck/pkg/platforms"
)

// ListingControl marks whether a platform listing is backed by a real
// control surface or degraded to a static unsupported view.
type ListingControl string

const (
	ControlSupported   ListingControl = "supported"
	ControlUnsupported ListingControl = "unsupported"
)

// WorkflowListResult is the normalized listing envelope.
type WorkflowListResult struct {
	Platform models.Platform         `json:"platform"`
	Control  ListingControl          `json:"control"`
	Items    []*models.WorkflowState `json:"items"`
}

// ToggleResult is the outcome of a status change request.
type ToggleResult struct {
	State *models.WorkflowState `json:"state"`

	// NoOp marks that the upstream state already matched the desired status
	// and nothing was dispatched or billed.
	NoOp bool `json:"no_op"`

	// Billed marks whether the operation was debited. An upstream success
	// that could not be billed carries Billed=false plus UnbilledReason;
	// the side effect stands.
	Billed         bool   `json:"billed"`
	UnbilledReason string `json:"unbilled_reason,omitempty"`
}

// Balance is the credit summary returned to the presentation layer.
type Balance struct {
	TenantID string          `json:"tenant_id"`
	Regular  int64           `json:"regular"`
	Bonus    int64           `json:"bonus"`
	Total    int64           `json:"total"`
	Tier     models.PlanTier `json:"tier"`
}

// CreateConnectionInput carries the user-supplied connection configuration.
type CreateConnectionInput struct {
	TenantID   string
	Platform   models.Platform
	BaseURL    string
	Credential string
	TeamID     string
}

// Orchestrator is the facade composing authorization, dispatch and metering.
// Each request walks Authorizing, Executing, Metering; authorization and
// balance checks run before any upstream call, so a confirmed upstream
// success is never aborted for billing reasons.
type Orchestrator struct {
	persistence persistence.Persistence
	adapters    *platforms.Registry
	ledger      *ledger.Service
	plans       *plans.Resolver
	locker      locks.Locker
	eventBus    eventbus.EventBus
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewOrchestrator creates the facade.
func NewOrchestrator(
	p persistence.Persistence,
	adapters *platforms.Registry,
	ledgerService *ledger.Service,
	resolver *plans.Resolver,
	locker locks.Locker,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		persistence: p,
		adapters:    adapters,
		ledger:      ledgerService,
		plans:       resolver,
		locker:      locker,
		eventBus:    eventBus,
		logger:      logger.With("module", "orchestrator"),
		tracer:      noop.NewTracerProvider().Tracer("flowdeck"),
	}
}

// WithTracer installs a real tracer for facade spans.
func (o *Orchestrator) WithTracer(tracer trace.Tracer) *Orchestrator {
	o.tracer = tracer

	return o
}

// HealthCheck reports persistence and registry health as a message plus
// readiness flag.
func (o *Orchestrator) HealthCheck(ctx context.Context) (string, bool) {
	if _, ok := o.adapters.HealthCheck(); !ok {
		return "Platform adapter registry is empty", false
	}

	if err := o.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Core services are healthy", true
}

// ListWorkflows returns the normalized workflow listing for the tenant's
// active connection on the platform. Listing is free; it still requires the
// workflow_list capability and an active connection.
func (o *Orchestrator) ListWorkflows(ctx context.Context, tenantID string, platform models.Platform) (*WorkflowListResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "ListWorkflows",
		attribute.String(otelhelper.TenantIDKey, tenantID),
		attribute.String(otelhelper.PlatformKey, string(platform)),
	)
	defer span.End()

	adapter, conn, err := o.authorize(ctx, tenantID, platform, models.CapabilityWorkflowList)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	items, err := adapter.List(ctx, conn)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	control := ControlSupported
	if !adapter.SupportsControl() {
		control = ControlUnsupported
	}

	return &WorkflowListResult{Platform: platform, Control: control, Items: items}, nil
}

// SetWorkflowStatus toggles one workflow to the desired status. The request
// is authorized and balance-checked first, serialized per connection, no-op
// detected against the current upstream state, executed, then metered.
func (o *Orchestrator) SetWorkflowStatus(ctx context.Context, tenantID string, platform models.Platform, workflowID string, desired models.WorkflowStatus) (*ToggleResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "SetWorkflowStatus",
		attribute.String(otelhelper.TenantIDKey, tenantID),
		attribute.String(otelhelper.PlatformKey, string(platform)),
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
	)
	defer span.End()

	result, err := o.setWorkflowStatus(ctx, tenantID, platform, workflowID, desired)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return result, nil
}

func (o *Orchestrator) setWorkflowStatus(ctx context.Context, tenantID string, platform models.Platform, workflowID string, desired models.WorkflowStatus) (*ToggleResult, error) {
	if !desired.Toggleable() {
		return nil, ErrInvalidStatus
	}

	// Authorizing.
	account, err := o.account(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if !o.plans.CanAccess(account.Tier, models.CapabilityWorkflowToggle) {
		return nil, fmt.Errorf("%w: tier %s lacks %s", ErrPlanUpgradeRequired, account.Tier, models.CapabilityWorkflowToggle)
	}

	adapter, err := o.adapters.Get(platform)
	if err != nil {
		return nil, err
	}

	// Zapier short-circuits here, before any connection lookup, lock or
	// gateway traffic.
	if !adapter.SupportsControl() {
		return nil, platforms.NewUpstreamError(platform, "SetStatus", 0, platforms.ErrUnsupportedOperation)
	}

	conn, err := o.activeConnection(ctx, tenantID, platform)
	if err != nil {
		return nil, err
	}

	// Billable operations are balance-checked before execution so metering
	// failures are eliminated by construction, short of a concurrent-spend
	// race.
	rate := o.plans.Rate(account.Tier, models.OperationWorkflowToggle)
	if rate > 0 && account.TotalBalance() < rate {
		return nil, persistence.NewLedgerError("SetWorkflowStatus", tenantID, ErrInsufficientCredits)
	}

	// Executing: one status write in flight per connection.
	release, err := o.locker.Acquire(ctx, conn.ID)
	if err != nil {
		if IsConcurrentModification(err) {
			return nil, fmt.Errorf("%w: connection %s", ErrConcurrentModification, conn.ID)
		}

		return nil, fmt.Errorf("failed to acquire connection lock: %w", err)
	}
	defer release()

	// No-op detection: an idempotent repeat returns the current state
	// without dispatching or billing.
	current, err := adapter.Get(ctx, conn, workflowID)
	if err != nil {
		return nil, err
	}

	if current.Status == desired {
		return &ToggleResult{State: current, NoOp: true}, nil
	}

	state, err := adapter.SetStatus(ctx, conn, workflowID, desired)
	if err != nil {
		return nil, err
	}

	// Metering: only after confirmed upstream success. A debit failure here
	// does not roll the toggle back; the unbilled success is surfaced and
	// flagged for follow-up.
	result := &ToggleResult{State: state}

	if rate > 0 {
		if _, debitErr := o.ledger.Debit(ctx, tenantID, rate, models.OperationWorkflowToggle); debitErr != nil {
			o.logger.ErrorContext(ctx, "Upstream toggle succeeded but debit failed",
				"tenant_id", tenantID, "workflow_id", workflowID, "error", debitErr)

			result.UnbilledReason = debitErr.Error()

			o.publish(ctx, tenantID, events.CreditDebitFailed{
				BaseEvent:  events.NewBaseEvent(events.CreditDebitFailedEvent, tenantID),
				Amount:     rate,
				Reason:     models.OperationWorkflowToggle,
				Error:      debitErr.Error(),
				WorkflowID: workflowID,
			})
		} else {
			result.Billed = true
		}
	}

	o.publish(ctx, tenantID, events.WorkflowStatusChanged{
		BaseEvent:    events.NewBaseEvent(events.WorkflowStatusChangedEvent, tenantID),
		Platform:     platform,
		ConnectionID: conn.ID,
		WorkflowID:   workflowID,
		Status:       state.Status,
		Billed:       result.Billed,
	})

	return result, nil
}

// ListWorkflowExecutions returns recent runs for a workflow. Monitoring is
// free but gated behind the n8n_monitoring capability.
func (o *Orchestrator) ListWorkflowExecutions(ctx context.Context, tenantID string, platform models.Platform, workflowID string, limit int) ([]*models.ExecutionRecord, error) {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "ListWorkflowExecutions",
		attribute.String(otelhelper.TenantIDKey, tenantID),
		attribute.String(otelhelper.PlatformKey, string(platform)),
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
	)
	defer span.End()

	adapter, conn, err := o.authorize(ctx, tenantID, platform, models.CapabilityN8NMonitoring)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	records, err := adapter.ListExecutions(ctx, conn, workflowID, limit)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return records, nil
}

// GetCreditBalance returns the tenant's credit summary.
func (o *Orchestrator) GetCreditBalance(ctx context.Context, tenantID string) (*Balance, error) {
	account, err := o.account(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	return &Balance{
		TenantID: account.TenantID,
		Regular:  account.RegularBalance,
		Bonus:    account.BonusBalance,
		Total:    account.TotalBalance(),
		Tier:     account.Tier,
	}, nil
}

// GrantCredits is the administrative grant path. Elevated-privilege
// enforcement belongs to the identity provider boundary; the core trusts
// the principal it is handed.
func (o *Orchestrator) GrantCredits(ctx context.Context, tenantID string, amount int64, kind models.CreditKind, reason string) (*ledger.TransactionResult, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}

	return o.ledger.Credit(ctx, tenantID, amount, kind, reason)
}

// ChangePlan switches the tenant's tier and overwrites the regular balance
// with the new tier's allocation. Leftover regular credits are forfeited;
// the bonus balance is untouched.
func (o *Orchestrator) ChangePlan(ctx context.Context, tenantID string, newTier models.PlanTier) (*models.CreditAccount, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}

	if !o.plans.KnownTier(newTier) {
		return nil, fmt.Errorf("%w: %w: %s", ErrInvalidRequest, plans.ErrUnknownTier, newTier)
	}

	return o.ledger.ApplyPlanChange(ctx, tenantID, newTier)
}

// ListTransactions returns the tenant's ledger history, newest first.
func (o *Orchestrator) ListTransactions(ctx context.Context, tenantID string, limit, offset int) ([]*models.CreditTransaction, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}

	return o.ledger.Transactions(ctx, tenantID, limit, offset)
}

// CreateConnection stores a new credential binding. Creating an active
// connection displaces any previously active one for the same tenant and
// platform inside the same persistence write.
func (o *Orchestrator) CreateConnection(ctx context.Context, input CreateConnectionInput) (*models.Connection, error) {
	if input.TenantID == "" {
		return nil, ErrEmptyTenantID
	}

	if !input.Platform.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPlatform, input.Platform)
	}

	replaced, err := o.persistence.ActiveConnection(ctx, input.TenantID, input.Platform)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	conn := &models.Connection{
		ID:         uuid.New().String(),
		TenantID:   input.TenantID,
		Platform:   input.Platform,
		BaseURL:    input.BaseURL,
		Credential: input.Credential,
		TeamID:     input.TeamID,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := o.persistence.SaveConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}

	event := events.ConnectionCreated{
		BaseEvent:    events.NewBaseEvent(events.ConnectionCreatedEvent, input.TenantID),
		ConnectionID: conn.ID,
		Platform:     conn.Platform,
	}
	if replaced != nil {
		event.ReplacedConnectionID = replaced.ID
	}

	o.publish(ctx, input.TenantID, event)

	return conn, nil
}

// ListConnections returns every connection the tenant owns, newest first.
// Credential redaction is the web layer's job; the facade returns the full
// records for internal callers.
func (o *Orchestrator) ListConnections(ctx context.Context, tenantID string) ([]*models.Connection, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}

	return o.persistence.ConnectionsByTenant(ctx, tenantID)
}

// DeactivateConnection soft-deactivates a connection. Rows are never
// physically deleted; history stays traceable against the ledger.
func (o *Orchestrator) DeactivateConnection(ctx context.Context, tenantID, connectionID string) (*models.Connection, error) {
	conn, err := o.persistence.ConnectionByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	if conn == nil || conn.TenantID != tenantID {
		// A foreign connection is indistinguishable from a missing one.
		return nil, persistence.NewConnectionError("Deactivate", connectionID, ErrConnectionNotFound)
	}

	if err := o.persistence.DeactivateConnection(ctx, connectionID); err != nil {
		return nil, err
	}

	conn.Deactivate()

	o.publish(ctx, tenantID, events.ConnectionDeactivated{
		BaseEvent:    events.NewBaseEvent(events.ConnectionDeactivatedEvent, tenantID),
		ConnectionID: conn.ID,
		Platform:     conn.Platform,
	})

	return conn, nil
}

/// authorize runs the shared Authorizing stage: tenant sanity, capability
// gate against the tier, adapter lookup and active-connection resolution.
func (o *Orchestrator) authorize(ctx context.Context, tenantID string, platform models.Platform, capability models.Capability) (platforms.Adapter, *models.Connection, error) {
	account, err := o.account(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}

	if !o.plans.CanAccess(account.Tier, capability) {
		return nil, nil, fmt.Errorf("%w: tier %s lacks %s", ErrPlanUpgradeRequired, account.Tier, capability)
	}

	adapter, err := o.adapters.Get(platform)
	if err != nil {
		return nil, nil, err
	}

	conn, err := o.activeConnection(ctx, tenantID, platform)
	if err != nil {
		return nil, nil, err
	}

	return adapter, conn, nil
}

func (o *Orchestrator) account(ctx context.Context, tenantID string) (*models.CreditAccount, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}

	return o.ledger.BalanceOf(ctx, tenantID)
}

func (o *Orchestrator) activeConnection(ctx context.Context, tenantID string, platform models.Platform) (*models.Connection, error) {
	if !platform.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPlatform, platform)
	}

	conn, err := o.persistence.ActiveConnection(ctx, tenantID, platform)
	if err != nil {
		return nil, err
	}

	if conn == nil {
		return nil, persistence.NewConnectionError("ActiveConnection", "", fmt.Errorf("%w: no active %s connection for tenant %s", ErrConnectionNotFound, platform, tenantID))
	}

	return conn, nil
}

func (o *Orchestrator) publish(ctx context.Context, key string, event eventbus.Event) {
	if o.eventBus == nil {
		return
	}

	if err := o.eventBus.Publish(ctx, key, event); err != nil {
		o.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}
