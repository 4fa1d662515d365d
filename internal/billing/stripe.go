package billing

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/usagerecord"
	"github.com/stripe/stripe-go/v76/usagerecordsummary"
)

// StripeProvider reports metered usage as Stripe usage records. The customer code of
// the account is the id of its metered subscription item, and the item is priced per
// character.
type StripeProvider struct {
	now func() time.Time
}

// NewStripeProvider configures the Stripe client
func NewStripeProvider(secretKey string) *StripeProvider {
	stripe.Key = secretKey
	return &StripeProvider{now: time.Now}
}

func (p *StripeProvider) Name() string {
	return "stripe"
}

// ReportUsage records the characters on the subscription item, then reads back the
// usage of the current billing period. Stripe deduplicates deliveries that share the
// report's idempotency key, so every delivery of one report sends the same parameters.
func (p *StripeProvider) ReportUsage(ctx context.Context, report UsageReport) (float64, error) {
	subscriptionItemID := report.CustomerCode
	quantity := int64(math.Round(report.ThousandChars * 1000))

	occurred := report.OccurredAt
	if occurred.IsZero() {
		occurred = p.now()
	}

	params := &stripe.UsageRecordParams{
		SubscriptionItem: stripe.String(subscriptionItemID),
		Quantity:         stripe.Int64(quantity),
		Timestamp:        stripe.Int64(occurred.Unix()),
		Action:           stripe.String(string(stripe.UsageRecordActionIncrement)),
	}
	params.Context = ctx
	if report.IdempotencyKey != "" {
		params.SetIdempotencyKey(report.IdempotencyKey)
	}

	if _, err := usagerecord.New(params); err != nil {
		return 0, fmt.Errorf("%w: failed to report usage: %w", ErrProviderUnavailable, err)
	}

	listParams := &stripe.UsageRecordSummaryListParams{
		SubscriptionItem: stripe.String(subscriptionItemID),
	}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(1)

	iter := usagerecordsummary.List(listParams)
	if iter.Next() {
		return float64(iter.UsageRecordSummary().TotalUsage) / 1000, nil
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("%w: failed to read usage summary: %w", ErrProviderUnavailable, err)
	}

	return float64(quantity) / 1000, nil
}
