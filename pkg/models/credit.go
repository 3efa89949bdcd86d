package models

import "time"

// CreditKind distinguishes the two balances a tenant holds.
type CreditKind string

const (
	// CreditKindRegular credits come from the monthly plan allocation and
	// reset on every allowance cycle.
	CreditKindRegular CreditKind = "regular"
	// CreditKindBonus credits are granted out-of-band and never expire.
	CreditKindBonus CreditKind = "bonus"
)

// Valid reports whether k names a known credit kind.
func (k CreditKind) Valid() bool {
	return k == CreditKindRegular || k == CreditKindBonus
}

// CreditAccount is the cached balance pair for one tenant. The transaction
// ledger is the source of truth; the account must always equal the fold of
// the tenant's transactions per kind.
type CreditAccount struct {
	TenantID       string    `json:"tenant_id" validate:"required"`
	RegularBalance int64     `json:"regular_balance" validate:"gte=0"`
	BonusBalance   int64     `json:"bonus_balance"   validate:"gte=0"`
	Tier           PlanTier  `json:"tier"            validate:"required"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TotalBalance is the spendable sum across both kinds.
func (a *CreditAccount) TotalBalance() int64 {
	return a.RegularBalance + a.BonusBalance
}

// CreditTransaction is one immutable ledger row. Rows are append-only and
// are never updated or deleted; debits carry a negative amount, grants and
// allocation deltas carry their signed value.
type CreditTransaction struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id" validate:"required"`
	Amount    int64      `json:"amount"`
	Kind      CreditKind `json:"kind" validate:"required"`
	Reason    string     `json:"reason"`
	CreatedAt time.Time  `json:"created_at"`
}
