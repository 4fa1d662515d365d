package billing

import (
	"context"
	"errors"
	"time"
)

// ErrProviderUnavailable is returned when the billing provider cannot be reached or
// rejects a report.
var ErrProviderUnavailable = errors.New("billing provider unavailable")

// UsageReport is one delivery of drained usage to the billing provider.
type UsageReport struct {
	CustomerCode  string
	ThousandChars float64

	// IdempotencyKey is the same for every delivery of one drained batch
	IdempotencyKey string
	// OccurredAt is when the batch was drained; retries send the same timestamp
	OccurredAt time.Time
	// UsedBefore is the provider's used-to-date figure before the first delivery
	UsedBefore float64
	// Retry is set when an earlier delivery may have been applied
	Retry bool
}

// Provider is the external billing system of record for metered accounts.
type Provider interface {
	Name() string

	// ReportUsage adds the report's usage to the customer's metered usage and returns
	// the authoritative used-to-date figure, in thousands of characters. Delivering the
	// same report twice must count it once.
	ReportUsage(ctx context.Context, report UsageReport) (float64, error)
}

// UsageReader is implemented by providers that cannot deduplicate by idempotency key.
// The reconciler reads the used-to-date figure before a report so a retry can tell
// whether the earlier delivery was applied.
type UsageReader interface {
	CurrentUsage(ctx context.Context, customerCode string) (float64, error)
}

// NoopProvider accepts every report and keeps no state. It is used when no billing
// provider is configured; reconciliation then only drains the ledger.
type NoopProvider struct{}

func NewNoopProvider() *NoopProvider {
	return &NoopProvider{}
}

func (p *NoopProvider) Name() string {
	return "none"
}

func (p *NoopProvider) ReportUsage(ctx context.Context, report UsageReport) (float64, error) {
	return report.ThousandChars, nil
}
