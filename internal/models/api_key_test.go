package models

import (
	"testing"
	"time"
)

func TestAPIKey_IsExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-1 * time.Hour)
	future := now.Add(1 * time.Hour)

	tests := []struct {
		name      string
		expiresAt *time.Time
		expected  bool
	}{
		{
			name:      "no expiration",
			expiresAt: nil,
			expected:  false,
		},
		{
			name:      "expired",
			expiresAt: &past,
			expected:  true,
		},
		{
			name:      "not expired",
			expiresAt: &future,
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := &APIKey{ExpiresAt: tt.expiresAt}
			if got := key.IsExpired(); got != tt.expected {
				t.Errorf("IsExpired() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAPIKey_IsCanceled(t *testing.T) {
	key := &APIKey{KeyType: KeyTypeGetCheddar}
	if key.IsCanceled() {
		t.Error("IsCanceled() = true with no status, want false")
	}

	key.SubscriptionStatus = StringPtr("active")
	if key.IsCanceled() {
		t.Error("IsCanceled() = true for active, want false")
	}

	key.SubscriptionStatus = StringPtr(SubscriptionStatusCanceled)
	if !key.IsCanceled() {
		t.Error("IsCanceled() = false for canceled, want true")
	}
}

func TestAPIKey_Clone(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	original := &APIKey{
		Key:               "abc",
		KeyType:           KeyTypeGetCheddar,
		ExpiresAt:         &expires,
		CharacterLimit:    Int64Ptr(100),
		CustomerCode:      StringPtr("cust-1"),
		ThousandCharQuota: Float64Ptr(250),
		ThousandCharUsed:  Float64Ptr(10),
	}

	clone := original.Clone()
	*clone.CharacterLimit = 500
	*clone.ThousandCharUsed = 99
	*clone.CustomerCode = "changed"
	*clone.ExpiresAt = expires.Add(time.Hour)

	if *original.CharacterLimit != 100 {
		t.Errorf("original CharacterLimit mutated to %d", *original.CharacterLimit)
	}
	if *original.ThousandCharUsed != 10 {
		t.Errorf("original ThousandCharUsed mutated to %v", *original.ThousandCharUsed)
	}
	if *original.CustomerCode != "cust-1" {
		t.Errorf("original CustomerCode mutated to %s", *original.CustomerCode)
	}
	if !original.ExpiresAt.Equal(expires) {
		t.Error("original ExpiresAt mutated")
	}
}

func TestParseKeyType(t *testing.T) {
	for _, kt := range KeyTypes {
		got, err := ParseKeyType(string(kt))
		if err != nil {
			t.Fatalf("ParseKeyType(%q) error = %v", kt, err)
		}
		if got != kt {
			t.Errorf("ParseKeyType(%q) = %q", kt, got)
		}
	}

	if _, err := ParseKeyType("enterprise"); err == nil {
		t.Error("ParseKeyType(enterprise) error = nil, want error")
	}
}

func TestDeref(t *testing.T) {
	if got := Deref[int64](nil); got != 0 {
		t.Errorf("Deref(nil) = %d, want 0", got)
	}
	if got := Deref(Float64Ptr(2.5)); got != 2.5 {
		t.Errorf("Deref(2.5) = %v, want 2.5", got)
	}
}
