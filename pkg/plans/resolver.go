// Package plans resolves subscription tiers to credit allocations, feature
// gates and billing rates. The resolver is pure after construction: no I/O
// on the lookup path, config-driven only.
package plans

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/flowdeck/flowdeck/pkg/models"
)

var (
	// ErrUnknownTier indicates a lookup against a tier the catalog does not hold.
	ErrUnknownTier = errors.New("unknown subscription tier")

	// ErrInvalidCatalog indicates a catalog file failed schema validation.
	ErrInvalidCatalog = errors.New("invalid plan catalog")
)

// Resolver answers tier questions from an immutable catalog.
type Resolver struct {
	catalog map[models.PlanTier]*models.SubscriptionPlan
}

// NewResolver creates a resolver over the built-in catalog.
func NewResolver() *Resolver {
	return &Resolver{catalog: defaultCatalog()}
}

// NewResolverFromFile creates a resolver from a JSON catalog file, validated
// against the plan schema. An invalid file refuses to boot.
func NewResolverFromFile(path string) (*Resolver, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan catalog: %w", err)
	}

	if err := validateCatalog(body); err != nil {
		return nil, err
	}

	var plans []*models.SubscriptionPlan
	if err := json.Unmarshal(body, &plans); err != nil {
		return nil, fmt.Errorf("failed to parse plan catalog: %w", err)
	}

	catalog := make(map[models.PlanTier]*models.SubscriptionPlan, len(plans))
	for _, plan := range plans {
		catalog[plan.Tier] = plan
	}

	return &Resolver{catalog: catalog}, nil
}

// Plan returns the full plan for a tier.
func (r *Resolver) Plan(tier models.PlanTier) (*models.SubscriptionPlan, error) {
	plan, ok := r.catalog[tier]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}

	return plan, nil
}

// Allocation returns the tier's monthly regular-credit allocation.
func (r *Resolver) Allocation(tier models.PlanTier) (int64, error) {
	plan, err := r.Plan(tier)
	if err != nil {
		return 0, err
	}

	return plan.MonthlyCredits, nil
}

// RolloverCap returns the tier's bonus rollover cap, 0 for standard tiers.
func (r *Resolver) RolloverCap(tier models.PlanTier) (int64, error) {
	plan, err := r.Plan(tier)
	if err != nil {
		return 0, err
	}

	return plan.BonusRolloverCap, nil
}

// CanAccess reports whether the tier grants the capability. Unknown tiers
// grant nothing.
func (r *Resolver) CanAccess(tier models.PlanTier, capability models.Capability) bool {
	plan, ok := r.catalog[tier]
	if !ok {
		return false
	}

	return plan.HasFeature(capability)
}

// Rate returns the credit cost of an operation under the tier. Operations
// without a configured rate are free, as are unknown tiers (they fail the
// capability gate first).
func (r *Resolver) Rate(tier models.PlanTier, operation string) int64 {
	plan, ok := r.catalog[tier]
	if !ok {
		return 0
	}

	return plan.Rate(operation)
}

// Tiers lists every tier in the catalog.
func (r *Resolver) Tiers() []models.PlanTier {
	tiers := make([]models.PlanTier, 0, len(r.catalog))
	for tier := range r.catalog {
		tiers = append(tiers, tier)
	}

	return tiers
}

// KnownTier reports whether the catalog holds the tier.
func (r *Resolver) KnownTier(tier models.PlanTier) bool {
	_, ok := r.catalog[tier]

	return ok
}

const catalogSchema = `{
	"type": "array",
	"minItems": 1,
	"items": {
		"type": "object",
		"required": ["tier", "monthly_credits"],
		"properties": {
			"tier": {"type": "string", "minLength": 1},
			"monthly_credits": {"type": "integer", "minimum": 0},
			"bonus_rollover_cap": {"type": "integer", "minimum": 0},
			"features": {"type": "array", "items": {"type": "string"}},
			"rates": {
				"type": "object",
				"additionalProperties": {"type": "integer", "minimum": 0}
			}
		},
		"additionalProperties": false
	}
}`

func validateCatalog(body []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(catalogSchema)
	dataLoader := gojsonschema.NewBytesLoader(body)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate plan catalog: %w", err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, fieldErr := range result.Errors() {
			messages = append(messages, fieldErr.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(messages, "; "))
	}

	return nil
}

func defaultCatalog() map[models.PlanTier]*models.SubscriptionPlan {
	toggleRates := map[string]int64{
		models.OperationWorkflowToggle: 1,
	}

	return map[models.PlanTier]*models.SubscriptionPlan{
		models.PlanTierFree: {
			Tier:           models.PlanTierFree,
			MonthlyCredits: 10,
			Features: []models.Capability{
				models.CapabilityWorkflowList,
			},
		},
		models.PlanTierStarter: {
			Tier:           models.PlanTierStarter,
			MonthlyCredits: 25,
			Features: []models.Capability{
				models.CapabilityWorkflowList,
				models.CapabilityWorkflowToggle,
			},
			Rates: toggleRates,
		},
		models.PlanTierPro: {
			Tier:           models.PlanTierPro,
			MonthlyCredits: 100,
			Features: []models.Capability{
				models.CapabilityWorkflowList,
				models.CapabilityWorkflowToggle,
				models.CapabilityN8NPush,
				models.CapabilityN8NMonitoring,
			},
			Rates: toggleRates,
		},
		models.PlanTierAgency: {
			Tier:           models.PlanTierAgency,
			MonthlyCredits: 300,
			Features: []models.Capability{
				models.CapabilityWorkflowList,
				models.CapabilityWorkflowToggle,
				models.CapabilityN8NPush,
				models.CapabilityN8NMonitoring,
			},
			Rates: toggleRates,
		},
	}
}
