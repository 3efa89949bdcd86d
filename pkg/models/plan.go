package models

// PlanTier keys a subscription plan.
type PlanTier string

const (
	PlanTierFree    PlanTier = "free"
	PlanTierStarter PlanTier = "starter"
	PlanTierPro     PlanTier = "pro"
	PlanTierAgency  PlanTier = "agency"
)

// Capability is a named feature gate checked against a subscription tier.
type Capability string

const (
	CapabilityWorkflowList   Capability = "workflow_list"
	CapabilityWorkflowToggle Capability = "workflow_toggle"
	CapabilityN8NPush        Capability = "n8n_push"
	CapabilityN8NMonitoring  Capability = "n8n_monitoring"
)

// Operation keys used for billing rates and ledger reasons.
const (
	OperationWorkflowList       = "workflow_list"
	OperationWorkflowToggle     = "workflow_toggle"
	OperationWorkflowExecutions = "workflow_executions"
)

// SubscriptionPlan is the static per-tier configuration. Plans are immutable
// at runtime; they change only by deployment or configuration update, never
// by a core operation.
type SubscriptionPlan struct {
	Tier           PlanTier `json:"tier" validate:"required"`
	MonthlyCredits int64    `json:"monthly_credits" validate:"gte=0"`
	// BonusRolloverCap is 0 for standard tiers; bonus credits above the cap
	// are untouched today but the field is part of the plan contract.
	BonusRolloverCap int64            `json:"bonus_rollover_cap" validate:"gte=0"`
	Features         []Capability     `json:"features"`
	Rates            map[string]int64 `json:"rates"`
}

// HasFeature reports whether the plan grants the capability.
func (p *SubscriptionPlan) HasFeature(capability Capability) bool {
	for _, f := range p.Features {
		if f == capability {
			return true
		}
	}

	return false
}

// Rate returns the credit cost of an operation under this plan. Operations
// without a configured rate are free.
func (p *SubscriptionPlan) Rate(operation string) int64 {
	if p.Rates == nil {
		return 0
	}

	return p.Rates[operation]
}
