// Package ledger implements atomic credit metering: every balance mutation
// is an append-only transaction row pair-written with the cached balance, so
// the fold of a tenant's rows always equals the account.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flowdeck/flowdeck/pkg/eventbus"
	"github.com/flowdeck/flowdeck/pkg/events"
	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/persistence"
)

var (
	// ErrInvalidAmount indicates a debit or grant with a non-positive amount.
	// Validation failures write nothing.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidKind indicates an unknown credit kind on a grant.
	ErrInvalidKind = errors.New("invalid credit kind")

	// Re-exported persistence sentinels, the way the service layer exposes
	// storage conditions to callers.
	ErrAccountNotFound     = persistence.ErrAccountNotFound
	ErrInsufficientCredits = persistence.ErrInsufficientCredits
)

// Ledger reasons for allocation bookkeeping.
const (
	ReasonPlanAllocation = "plan_allocation"
	ReasonPlanChange     = "plan_change"
	ReasonMonthlyReset   = "monthly_reset"
)

// TierResolver supplies the monthly allocation per tier; satisfied by
// plans.Resolver.
type TierResolver interface {
	Allocation(tier models.PlanTier) (int64, error)
	KnownTier(tier models.PlanTier) bool
}

// TransactionResult is the outcome of one committed ledger mutation.
type TransactionResult struct {
	Account *models.CreditAccount       `json:"account"`
	Rows    []*models.CreditTransaction `json:"rows"`

	// Per-kind split of a debit; zero on grants and allocation changes.
	RegularDebited int64 `json:"regular_debited,omitempty"`
	BonusDebited   int64 `json:"bonus_debited,omitempty"`
}

// Service is the CreditLedger: atomic debit/credit plus the allocation
// overwrites for plan changes and monthly resets. Per-tenant mutations are
// linearized through a keyed mutex; the persistence layer additionally
// guards non-negativity inside its atomic write.
type Service struct {
	persistence persistence.Persistence
	tiers       TierResolver
	eventBus    eventbus.EventBus
	logger      *slog.Logger

	// PreferBonusFirst spends bonus credits before regular ones when set;
	// the default spends the monthly allocation first.
	preferBonusFirst bool

	mu      sync.Mutex
	tenants map[string]*sync.Mutex
}

// Option configures the ledger service.
type Option func(*Service)

// WithPreferBonusFirst switches the debit split policy to spend bonus
// credits before regular credits.
func WithPreferBonusFirst() Option {
	return func(s *Service) {
		s.preferBonusFirst = true
	}
}

// NewService creates a ledger service.
func NewService(p persistence.Persistence, tiers TierResolver, eventBus eventbus.EventBus, logger *slog.Logger, opts ...Option) *Service {
	service := &Service{
		persistence: p,
		tiers:       tiers,
		eventBus:    eventBus,
		logger:      logger.With("module", "ledger"),
		tenants:     make(map[string]*sync.Mutex),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// tenantLock returns the mutex linearizing one tenant's mutations.
func (s *Service) tenantLock(tenantID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.tenants[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		s.tenants[tenantID] = lock
	}

	return lock
}

// OpenAccount provisions a tenant's account on its tier with the tier's
// monthly allocation, recorded as an allocation row so the fold invariant
// holds from the first transaction.
func (s *Service) OpenAccount(ctx context.Context, tenantID string, tier models.PlanTier) (*models.CreditAccount, error) {
	allocation, err := s.tiers.Allocation(tier)
	if err != nil {
		return nil, err
	}

	lock := s.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	account := &models.CreditAccount{TenantID: tenantID, Tier: tier}
	if err := s.persistence.CreateCreditAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to open account: %w", err)
	}

	if allocation == 0 {
		return account, nil
	}

	account, err = s.persistence.ApplyLedger(ctx, tenantID, nil, []*models.CreditTransaction{{
		TenantID: tenantID,
		Amount:   allocation,
		Kind:     models.CreditKindRegular,
		Reason:   ReasonPlanAllocation,
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to record opening allocation: %w", err)
	}

	return account, nil
}

// BalanceOf returns the tenant's cached account.
func (s *Service) BalanceOf(ctx context.Context, tenantID string) (*models.CreditAccount, error) {
	account, err := s.persistence.CreditAccountByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if account == nil {
		return nil, ErrAccountNotFound
	}

	return account, nil
}

// Transactions returns the tenant's ledger rows, newest first.
func (s *Service) Transactions(ctx context.Context, tenantID string, limit, offset int) ([]*models.CreditTransaction, error) {
	return s.persistence.TransactionsByTenant(ctx, tenantID, limit, offset)
}

// Debit spends amount credits under the split policy: one balance first,
// the other as fallback, never letting either go negative. A combined
// shortfall fails with ErrInsufficientCredits and writes nothing.
func (s *Service) Debit(ctx context.Context, tenantID string, amount int64, reason string) (*TransactionResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	lock := s.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	account, err := s.BalanceOf(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if account.TotalBalance() < amount {
		return nil, persistence.NewLedgerError("Debit", tenantID, ErrInsufficientCredits)
	}

	first, second := models.CreditKindRegular, models.CreditKindBonus
	firstBalance := account.RegularBalance

	if s.preferBonusFirst {
		first, second = models.CreditKindBonus, models.CreditKindRegular
		firstBalance = account.BonusBalance
	}

	fromFirst := min(amount, firstBalance)
	fromSecond := amount - fromFirst

	rows := make([]*models.CreditTransaction, 0, 2)
	if fromFirst > 0 {
		rows = append(rows, &models.CreditTransaction{
			TenantID: tenantID,
			Amount:   -fromFirst,
			Kind:     first,
			Reason:   reason,
		})
	}

	if fromSecond > 0 {
		rows = append(rows, &models.CreditTransaction{
			TenantID: tenantID,
			Amount:   -fromSecond,
			Kind:     second,
			Reason:   reason,
		})
	}

	account, err = s.persistence.ApplyLedger(ctx, tenantID, nil, rows)
	if err != nil {
		return nil, err
	}

	result := &TransactionResult{Account: account, Rows: rows}
	for _, row := range rows {
		switch row.Kind {
		case models.CreditKindRegular:
			result.RegularDebited = -row.Amount
		case models.CreditKindBonus:
			result.BonusDebited = -row.Amount
		}
	}

	s.publish(ctx, tenantID, events.CreditDebited{
		BaseEvent:      events.NewBaseEvent(events.CreditDebitedEvent, tenantID),
		Amount:         amount,
		RegularDebited: result.RegularDebited,
		BonusDebited:   result.BonusDebited,
		Reason:         reason,
		RegularBalance: account.RegularBalance,
		BonusBalance:   account.BonusBalance,
	})

	return result, nil
}

// Credit adds amount credits of the given kind, used by administrative
// grants.
func (s *Service) Credit(ctx context.Context, tenantID string, amount int64, kind models.CreditKind, reason string) (*TransactionResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	if !kind.Valid() {
		return nil, ErrInvalidKind
	}

	lock := s.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	rows := []*models.CreditTransaction{{
		TenantID: tenantID,
		Amount:   amount,
		Kind:     kind,
		Reason:   reason,
	}}

	account, err := s.persistence.ApplyLedger(ctx, tenantID, nil, rows)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, tenantID, events.CreditGranted{
		BaseEvent: events.NewBaseEvent(events.CreditGrantedEvent, tenantID),
		Amount:    amount,
		Kind:      kind,
		Reason:    reason,
	})

	return &TransactionResult{Account: account, Rows: rows}, nil
}

// ApplyPlanChange switches the tenant to newTier and SETS the regular
// balance to the new tier's monthly allocation. This is an overwrite, not an
// additive credit: leftover regular credits are forfeited. The bonus balance
// is untouched. The overwrite is recorded as a signed delta row so the fold
// invariant holds. A tenant without an account is provisioned on the new
// tier.
func (s *Service) ApplyPlanChange(ctx context.Context, tenantID string, newTier models.PlanTier) (*models.CreditAccount, error) {
	allocation, err := s.tiers.Allocation(newTier)
	if err != nil {
		return nil, err
	}

	existing, err := s.persistence.CreditAccountByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		return s.OpenAccount(ctx, tenantID, newTier)
	}

	account, delta, err := s.overwriteRegular(ctx, tenantID, newTier, allocation, ReasonPlanChange)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, tenantID, events.PlanChanged{
		BaseEvent:      events.NewBaseEvent(events.PlanChangedEvent, tenantID),
		PreviousTier:   existing.Tier,
		NewTier:        newTier,
		RegularBalance: account.RegularBalance,
		Delta:          delta,
	})

	return account, nil
}

// ApplyMonthlyReset overwrites the regular balance with the tenant's current
// tier allocation. Regular credits do not roll over; bonus credits are never
// reset.
func (s *Service) ApplyMonthlyReset(ctx context.Context, tenantID string) (*models.CreditAccount, error) {
	existing, err := s.BalanceOf(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	allocation, err := s.tiers.Allocation(existing.Tier)
	if err != nil {
		return nil, err
	}

	account, delta, err := s.overwriteRegular(ctx, tenantID, existing.Tier, allocation, ReasonMonthlyReset)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, tenantID, events.AllowanceReset{
		BaseEvent:      events.NewBaseEvent(events.AllowanceResetEvent, tenantID),
		Tier:           account.Tier,
		RegularBalance: account.RegularBalance,
		Delta:          delta,
	})

	return account, nil
}

// overwriteRegular sets the regular balance to allocation via a delta row,
// updating the tier in the same atomic write.
func (s *Service) overwriteRegular(ctx context.Context, tenantID string, tier models.PlanTier, allocation int64, reason string) (*models.CreditAccount, int64, error) {
	lock := s.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock: the delta must be computed against the
	// balance the write will actually apply to.
	account, err := s.BalanceOf(ctx, tenantID)
	if err != nil {
		return nil, 0, err
	}

	delta := allocation - account.RegularBalance

	var rows []*models.CreditTransaction
	if delta != 0 {
		rows = append(rows, &models.CreditTransaction{
			TenantID: tenantID,
			Amount:   delta,
			Kind:     models.CreditKindRegular,
			Reason:   reason,
		})
	}

	if len(rows) == 0 && account.Tier == tier {
		return account, 0, nil
	}

	account, err = s.persistence.ApplyLedger(ctx, tenantID, &tier, rows)
	if err != nil {
		return nil, 0, err
	}

	return account, delta, nil
}

func (s *Service) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.eventBus == nil {
		return
	}

	if err := s.eventBus.Publish(ctx, key, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish ledger event",
			"event_type", event.GetType(), "error", err)
	}
}
