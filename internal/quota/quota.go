// Package quota decides whether metered usage is permitted for an account.
// All functions are deterministic with no side effects.
package quota

import (
	"fmt"
	"math"

	"lang_gateway/internal/ledger"
	"lang_gateway/internal/models"
)

// PatreonMonthlyCharacterLimit caps patreon members per calendar month.
const PatreonMonthlyCharacterLimit uint64 = 100_000

// Plan is the plan data the policy needs, detached from storage.
type Plan struct {
	KeyType models.KeyType

	// trial and test
	CharacterLimit *uint64

	// getcheddar, in thousands of characters
	ThousandCharQuota float64
	ThousandCharUsed  float64
	OverageAllowed    bool
}

// PlanOf extracts the plan data of a key record.
func PlanOf(k *models.APIKey) Plan {
	p := Plan{
		KeyType:           k.KeyType,
		ThousandCharQuota: models.Deref(k.ThousandCharQuota),
		ThousandCharUsed:  models.Deref(k.ThousandCharUsed),
		OverageAllowed:    k.ThousandCharOverageAllowed,
	}
	if k.CharacterLimit != nil {
		limit := uint64(max(*k.CharacterLimit, 0))
		p.CharacterLimit = &limit
	}
	return p
}

// EnforcementSlice returns the one bucket whose total is checked for a key type.
func EnforcementSlice(kt models.KeyType) (ledger.Slice, error) {
	switch kt {
	case models.KeyTypeGetCheddar:
		return ledger.Slice{Scope: ledger.ScopeUser, Period: ledger.PeriodRecurring}, nil
	case models.KeyTypePatreon:
		return ledger.Slice{Scope: ledger.ScopeUser, Period: ledger.PeriodPatreonMonthly}, nil
	case models.KeyTypeTrial, models.KeyTypeTest:
		return ledger.Slice{Scope: ledger.ScopeUser, Period: ledger.PeriodLifetime}, nil
	}
	return ledger.Slice{}, fmt.Errorf("no enforcement bucket for key type %q", kt)
}

// ProjectedTotal returns the bucket total that IsOverQuota is evaluated against, given
// the post-increment total and the characters of the current call. Trial and test caps
// are lifetime soft caps: the call that crosses the cap completes and the next one is
// rejected, so they are checked against usage recorded before the call.
func ProjectedTotal(kt models.KeyType, after, delta uint64) uint64 {
	switch kt {
	case models.KeyTypeTrial, models.KeyTypeTest:
		if delta > after {
			return 0
		}
		return after - delta
	case models.KeyTypeGetCheddar, models.KeyTypePatreon:
		return after
	}
	return after
}

// IsOverQuota reports whether a bucket total of projected characters violates the plan.
// Only the enforcement slice of a key type can ever return true; every other slice,
// and every global slice, is reporting only.
func IsOverQuota(slice ledger.Slice, plan Plan, projected uint64) bool {
	if slice.Scope == ledger.ScopeGlobal {
		return false
	}

	switch plan.KeyType {
	case models.KeyTypeGetCheddar:
		if slice.Period != ledger.PeriodRecurring || plan.OverageAllowed {
			return false
		}
		return 1000*plan.ThousandCharUsed+float64(projected) > 1000*plan.ThousandCharQuota
	case models.KeyTypePatreon:
		if slice.Period != ledger.PeriodPatreonMonthly {
			return false
		}
		return projected > PatreonMonthlyCharacterLimit
	case models.KeyTypeTrial, models.KeyTypeTest:
		if slice.Period != ledger.PeriodLifetime {
			return false
		}
		return plan.CharacterLimit != nil && projected > *plan.CharacterLimit
	}
	return false
}

// Limit returns the character allowance of the slice for the plan, and false when the
// slice is unlimited.
func Limit(slice ledger.Slice, plan Plan) (uint64, bool) {
	if slice.Scope == ledger.ScopeGlobal {
		return 0, false
	}

	switch plan.KeyType {
	case models.KeyTypeGetCheddar:
		if slice.Period != ledger.PeriodRecurring || plan.OverageAllowed {
			return 0, false
		}
		remaining := 1000 * (plan.ThousandCharQuota - plan.ThousandCharUsed)
		return uint64(math.Max(0, math.Floor(remaining))), true
	case models.KeyTypePatreon:
		if slice.Period != ledger.PeriodPatreonMonthly {
			return 0, false
		}
		return PatreonMonthlyCharacterLimit, true
	case models.KeyTypeTrial, models.KeyTypeTest:
		if slice.Period != ledger.PeriodLifetime || plan.CharacterLimit == nil {
			return 0, false
		}
		return *plan.CharacterLimit, true
	}
	return 0, false
}

// OverQuotaError is returned when a call pushed an account past its allowance. It is
// expected and should be shown to the end user rather than retried.
type OverQuotaError struct {
	KeyType models.KeyType
	Slice   ledger.Slice
	Total   uint64
	Limit   uint64
}

func (e *OverQuotaError) Error() string {
	return fmt.Sprintf("over quota: %s key used %d characters in %s, limit %d",
		e.KeyType, e.Total, e.Slice, e.Limit)
}
