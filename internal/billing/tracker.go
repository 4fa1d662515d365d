// Package billing meters calls against account quotas and reconciles accrued usage
// with the external billing provider.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lang_gateway/internal/cost"
	"lang_gateway/internal/ledger"
	"lang_gateway/internal/metrics"
	"lang_gateway/internal/models"
	"lang_gateway/internal/quota"
	"lang_gateway/internal/utils"
)

// KeyLookup resolves an API key to its account record
type KeyLookup interface {
	Lookup(ctx context.Context, key string) (*models.APIKey, error)
}

// UsageRecorder receives an audit record for every tracked call
type UsageRecorder interface {
	Publish(ctx context.Context, record *models.UsageRecord) error
}

// ErrCharacterCountTooLarge rejects a call reporting more than cost.MaxRawCharacters
var ErrCharacterCountTooLarge = errors.New("character count too large")

// Request describes one metered call
type Request struct {
	Service     cost.Service
	RequestType cost.RequestType
	Language    cost.Language
	Characters  uint64 // raw, before normalization
}

// bucketWrite is one counter the tracker increments for a call
type bucketWrite struct {
	slice       ledger.Slice
	key         string
	enforcement bool
}

// Tracker meters calls: it normalizes the character count, increments the ledger
// buckets of the call and applies the quota policy to the enforcement bucket.
//
// Usage is recorded before the policy is evaluated, so a rejected call still counts
// against the account. Two concurrent calls may both be admitted just under a limit;
// the overshoot is bounded by one call per concurrent request.
type Tracker struct {
	keys     KeyLookup
	store    ledger.Store
	costs    *cost.Table
	recorder UsageRecorder
	metrics  metrics.Metrics
	logger   *utils.Logger
	now      func() time.Time
}

// NewTracker creates a usage tracker. recorder may be nil; nil costs and metrics fall
// back to the default price table and no-op metrics.
func NewTracker(keys KeyLookup, store ledger.Store, costs *cost.Table, recorder UsageRecorder, m metrics.Metrics) *Tracker {
	if costs == nil {
		costs = cost.DefaultTable()
	}
	if m == nil {
		m = metrics.NewNoopMetrics()
	}
	return &Tracker{
		keys:     keys,
		store:    store,
		costs:    costs,
		recorder: recorder,
		metrics:  m,
		logger:   utils.NewLogger("tracker"),
		now:      time.Now,
	}
}

// TrackUsage records a call against the key. It returns *quota.OverQuotaError when the
// call takes the account over its allowance, and a storage error when the enforcement
// bucket cannot be written. The key is expected to be validated by the caller.
func (t *Tracker) TrackUsage(ctx context.Context, apiKey string, req Request) error {
	if req.Characters > cost.MaxRawCharacters {
		return fmt.Errorf("%w: %d exceeds %d", ErrCharacterCountTooLarge, req.Characters, cost.MaxRawCharacters)
	}

	rec, err := t.keys.Lookup(ctx, apiKey)
	if err != nil {
		return err
	}

	billable := cost.Normalize(req.Service, req.RequestType, req.Language, req.Characters)

	writes, err := t.bucketWrites(rec, req, t.now())
	if err != nil {
		return err
	}

	var (
		enforced       ledger.Slice
		total          ledger.Value
		enforcementErr error
	)
	for _, w := range writes {
		v, err := t.store.Increment(ctx, w.key, billable, 1, w.slice.Period.TTL())
		if err != nil {
			t.logger.Warn("Failed to write usage bucket", "bucket", w.key, "error", err)
			t.metrics.ObserveLedgerWriteFailure(w.slice.String())
			if w.enforcement {
				enforcementErr = err
			}
			continue
		}
		if w.enforcement {
			enforced, total = w.slice, v
		}
	}
	// The reporting buckets are written even when the enforcement bucket is not; the
	// call itself is refused.
	if enforcementErr != nil {
		return fmt.Errorf("failed to record usage: %w", enforcementErr)
	}

	plan := quota.PlanOf(rec)
	projected := quota.ProjectedTotal(rec.KeyType, total.Characters, billable)
	over := quota.IsOverQuota(enforced, plan, projected)

	t.publish(ctx, rec, req, billable, !over)
	t.metrics.ObserveUsage(string(req.Service), string(req.RequestType), string(rec.KeyType), billable)

	if over {
		limit, _ := quota.Limit(enforced, plan)
		t.metrics.ObserveOverQuota(string(rec.KeyType))
		t.logger.Info("Call rejected, account over quota",
			"key", keyPrefix(apiKey), "key_type", rec.KeyType, "total", projected, "limit", limit)
		return &quota.OverQuotaError{
			KeyType: rec.KeyType,
			Slice:   enforced,
			Total:   projected,
			Limit:   limit,
		}
	}

	return nil
}

// bucketWrites lists the counters a call increments, enforcement bucket first. The
// per-user daily and monthly buckets and the global buckets are reporting only.
func (t *Tracker) bucketWrites(rec *models.APIKey, req Request, now time.Time) ([]bucketWrite, error) {
	enforcement, err := quota.EnforcementSlice(rec.KeyType)
	if err != nil {
		return nil, err
	}

	slices := []ledger.Slice{
		enforcement,
		{Scope: ledger.ScopeUser, Period: ledger.PeriodDaily},
		{Scope: ledger.ScopeUser, Period: ledger.PeriodMonthly},
		{Scope: ledger.ScopeGlobal, Period: ledger.PeriodDaily},
		{Scope: ledger.ScopeGlobal, Period: ledger.PeriodMonthly},
	}

	writes := make([]bucketWrite, 0, len(slices))
	for i, s := range slices {
		writes = append(writes, bucketWrite{
			slice:       s,
			key:         ledger.BuildBucketKey(s, string(req.Service), string(req.RequestType), rec.Key, now),
			enforcement: i == 0,
		})
	}
	return writes, nil
}

func (t *Tracker) publish(ctx context.Context, rec *models.APIKey, req Request, billable uint64, accepted bool) {
	if t.recorder == nil {
		return
	}

	record := &models.UsageRecord{
		ID:                 uuid.New(),
		APIKey:             rec.Key,
		KeyType:            rec.KeyType,
		Service:            string(req.Service),
		RequestType:        string(req.RequestType),
		Language:           string(req.Language),
		RawCharacters:      int64(req.Characters),
		BillableCharacters: int64(billable),
		CostUSD:            t.costs.Cost(req.Service, req.RequestType, billable),
		Accepted:           accepted,
		CreatedAt:          t.now().UTC(),
	}

	if err := t.recorder.Publish(ctx, record); err != nil {
		t.logger.Warn("Failed to queue usage record", "key", keyPrefix(rec.Key), "error", err)
		t.metrics.ObserveAuditDropped()
	}
}

// AccountSummary is the plan and usage of an account as shown to its owner
type AccountSummary struct {
	KeyType    models.KeyType `json:"key_type"`
	PlanLabel  string         `json:"plan_label"`
	UsageLabel string         `json:"usage_label"`
}

// AccountSummary describes the plan of the key and its usage against the enforcement
// bucket.
func (t *Tracker) AccountSummary(ctx context.Context, apiKey string) (*AccountSummary, error) {
	rec, err := t.keys.Lookup(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	slice, err := quota.EnforcementSlice(rec.KeyType)
	if err != nil {
		return nil, err
	}

	v, err := t.store.Read(ctx, ledger.BuildBucketKey(slice, "", "", rec.Key, t.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to read usage: %w", err)
	}

	summary := &AccountSummary{KeyType: rec.KeyType}
	plan := quota.PlanOf(rec)

	switch rec.KeyType {
	case models.KeyTypeTrial, models.KeyTypeTest:
		summary.PlanLabel = "Trial"
		if rec.KeyType == models.KeyTypeTest {
			summary.PlanLabel = "Test"
		}
		if plan.CharacterLimit != nil {
			summary.UsageLabel = fmt.Sprintf("%d / %d characters", v.Characters, *plan.CharacterLimit)
		} else {
			summary.UsageLabel = fmt.Sprintf("%d characters", v.Characters)
		}
	case models.KeyTypePatreon:
		summary.PlanLabel = "Patreon"
		summary.UsageLabel = fmt.Sprintf("%d / %d characters this month", v.Characters, quota.PatreonMonthlyCharacterLimit)
	case models.KeyTypeGetCheddar:
		summary.PlanLabel = "Pay as you go"
		if rec.PlanCode != nil && *rec.PlanCode != "" {
			summary.PlanLabel = *rec.PlanCode
		}
		if rec.IsCanceled() {
			summary.PlanLabel += " (canceled)"
		}
		used := plan.ThousandCharUsed + float64(v.Characters)/1000
		summary.UsageLabel = fmt.Sprintf("%.1f / %.1f thousand characters", used, plan.ThousandCharQuota)
		if plan.OverageAllowed {
			summary.UsageLabel += ", overage allowed"
		}
	}

	return summary, nil
}

// keyPrefix shortens a key for logs
func keyPrefix(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "..."
}
