package models

import (
	"fmt"
	"time"
)

// KeyType identifies the account plan an API key belongs to.
type KeyType string

const (
	KeyTypeTest       KeyType = "test"
	KeyTypeTrial      KeyType = "trial"
	KeyTypePatreon    KeyType = "patreon"
	KeyTypeGetCheddar KeyType = "getcheddar"
)

// KeyTypes lists every supported key type.
var KeyTypes = []KeyType{KeyTypeTest, KeyTypeTrial, KeyTypePatreon, KeyTypeGetCheddar}

// ParseKeyType converts a stored value into a KeyType.
func ParseKeyType(s string) (KeyType, error) {
	for _, kt := range KeyTypes {
		if string(kt) == s {
			return kt, nil
		}
	}
	return "", fmt.Errorf("unknown key type %q", s)
}

// SubscriptionStatusCanceled is the billing provider status of a canceled subscription.
const SubscriptionStatusCanceled = "canceled"

// APIKey is the account record behind an opaque API key.
type APIKey struct {
	Key        string     `db:"api_key"`
	KeyType    KeyType    `db:"key_type"`
	OwnerEmail string     `db:"owner_email"`
	OwnerRef   string     `db:"owner_ref"` // email, patreon user id or customer code, unique per key type
	ExpiresAt  *time.Time `db:"expires_at"`

	// trial
	CharacterLimit *int64 `db:"character_limit"` // NULL = no cap

	// patreon
	PatreonUserID *string `db:"patreon_user_id"`

	// getcheddar
	CustomerCode               *string  `db:"customer_code"`
	PlanCode                   *string  `db:"plan_code"`
	SubscriptionStatus         *string  `db:"subscription_status"`
	ThousandCharQuota          *float64 `db:"thousand_char_quota"`
	ThousandCharUsed           *float64 `db:"thousand_char_used"`
	ThousandCharOverageAllowed bool     `db:"thousand_char_overage_allowed"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// IsExpired checks if the key has expired
func (k *APIKey) IsExpired() bool {
	return k.IsExpiredAt(time.Now())
}

// IsExpiredAt reports whether the key had expired at the given instant.
func (k *APIKey) IsExpiredAt(t time.Time) bool {
	if k.ExpiresAt == nil {
		return false
	}
	return t.After(*k.ExpiresAt)
}

// IsCanceled reports whether the getcheddar subscription behind the key was canceled.
func (k *APIKey) IsCanceled() bool {
	return k.SubscriptionStatus != nil && *k.SubscriptionStatus == SubscriptionStatusCanceled
}

// Clone returns a deep copy so cached records are never mutated by callers.
func (k *APIKey) Clone() *APIKey {
	c := *k
	if k.ExpiresAt != nil {
		t := *k.ExpiresAt
		c.ExpiresAt = &t
	}
	c.CharacterLimit = cloneInt64(k.CharacterLimit)
	c.PatreonUserID = cloneString(k.PatreonUserID)
	c.CustomerCode = cloneString(k.CustomerCode)
	c.PlanCode = cloneString(k.PlanCode)
	c.SubscriptionStatus = cloneString(k.SubscriptionStatus)
	c.ThousandCharQuota = cloneFloat64(k.ThousandCharQuota)
	c.ThousandCharUsed = cloneFloat64(k.ThousandCharUsed)
	return &c
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFloat64(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Int64Ptr, StringPtr and Float64Ptr help building optional plan fields.
func Int64Ptr(v int64) *int64       { return &v }
func StringPtr(v string) *string    { return &v }
func Float64Ptr(v float64) *float64 { return &v }

// Deref returns the pointed value or the zero value for nil.
func Deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}
