package billing

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"lang_gateway/internal/ledger"
	"lang_gateway/internal/metrics"
	"lang_gateway/internal/models"
	"lang_gateway/internal/utils"
)

// Epsilon keeps a clamped report strictly below the remaining allowance, in thousands
// of characters.
const Epsilon = 0.001

// AccountStore is the registry surface the reconciler needs
type AccountStore interface {
	Lookup(ctx context.Context, key string) (*models.APIKey, error)
	ListByType(ctx context.Context, keyType models.KeyType) ([]*models.APIKey, error)
	SetThousandCharUsed(ctx context.Context, key string, used float64) error
}

// Result is the outcome of reconciling one key
type Result struct {
	Key        string
	Outcome    string  // metrics.OutcomeReported, OutcomeSkipped or OutcomeFailed
	Reported   float64 // thousands of characters sent to the provider
	UsedToDate float64 // authoritative figure after the report
	Reason     string
	Err        error
}

// Summary counts the outcomes of a ReportAll run
type Summary struct {
	Reported int
	Skipped  int
	Failed   int
}

// Reconciler reports usage accrued in the recurring bucket of getcheddar accounts to the
// billing provider and stores the provider's used-to-date figure on the account.
//
// Drained usage is written to the pending store before it is sent. A failed delivery
// leaves it there and the next run delivers it again under the same idempotency key,
// so a provider that committed before the failure does not bill twice.
type Reconciler struct {
	accounts AccountStore
	store    ledger.Store
	pending  PendingStore
	provider Provider
	metrics  metrics.Metrics
	logger   *utils.Logger
	now      func() time.Time
}

// NewReconciler creates a reconciler. A nil provider reports nothing and only drains the
// ledger; nil metrics are discarded. Pending reports are kept in memory until
// SetPendingStore is called.
func NewReconciler(accounts AccountStore, store ledger.Store, provider Provider, m metrics.Metrics) *Reconciler {
	if provider == nil {
		provider = NewNoopProvider()
	}
	if m == nil {
		m = metrics.NewNoopMetrics()
	}
	return &Reconciler{
		accounts: accounts,
		store:    store,
		pending:  NewMemoryPendingStore(),
		provider: provider,
		metrics:  m,
		logger:   utils.NewLogger("reconciler"),
		now:      time.Now,
	}
}

// SetPendingStore replaces the in-memory pending store. Processes that share a ledger
// must share it too.
func (r *Reconciler) SetPendingStore(s PendingStore) {
	r.pending = s
}

// ProviderName names the billing provider usage is reported to
func (r *Reconciler) ProviderName() string {
	return r.provider.Name()
}

// Reconcile reports the accrued usage of one key. Failures are logged and returned in
// the result, never as an error, so one account cannot abort a batch.
func (r *Reconciler) Reconcile(ctx context.Context, apiKey string) Result {
	res := r.reconcile(ctx, apiKey)
	r.metrics.ObserveReconcile(res.Outcome, res.Reported)

	switch res.Outcome {
	case metrics.OutcomeFailed:
		r.logger.Error("Reconciliation failed", "key", keyPrefix(apiKey), "error", res.Err)
	case metrics.OutcomeSkipped:
		r.logger.Debug("Reconciliation skipped", "key", keyPrefix(apiKey), "reason", res.Reason)
	default:
		r.logger.Info("Usage reported",
			"key", keyPrefix(apiKey), "provider", r.provider.Name(),
			"thousand_chars", res.Reported, "used_to_date", res.UsedToDate)
	}
	return res
}

func (r *Reconciler) reconcile(ctx context.Context, apiKey string) Result {
	res := Result{Key: apiKey}
	fail := func(err error) Result {
		res.Outcome = metrics.OutcomeFailed
		res.Err = err
		return res
	}
	skip := func(reason string) Result {
		res.Outcome = metrics.OutcomeSkipped
		res.Reason = reason
		return res
	}

	rec, err := r.accounts.Lookup(ctx, apiKey)
	if err != nil {
		return fail(err)
	}
	if rec.KeyType != models.KeyTypeGetCheddar {
		return skip(fmt.Sprintf("%s keys are not metered", rec.KeyType))
	}
	if rec.IsCanceled() {
		return skip("subscription canceled")
	}
	if rec.CustomerCode == nil || *rec.CustomerCode == "" {
		return fail(fmt.Errorf("key has no customer code"))
	}

	allowance := models.Deref(rec.ThousandCharQuota)
	used := models.Deref(rec.ThousandCharUsed)
	res.UsedToDate = used

	// Finish the previous run's delivery before draining more
	pending, err := r.pending.Load(ctx, rec.Key)
	if err != nil {
		return fail(fmt.Errorf("failed to load pending report: %w", err))
	}
	if pending != nil {
		newUsed, err := r.deliver(ctx, rec.Key, pending, true)
		if err != nil {
			return fail(err)
		}
		res.Reported += pending.ThousandChars
		res.UsedToDate = newUsed
		used = newUsed
		if err := r.accounts.SetThousandCharUsed(ctx, rec.Key, newUsed); err != nil {
			return fail(fmt.Errorf("usage reported but not saved: %w", err))
		}
	}

	baseline := used
	if reader, ok := r.provider.(UsageReader); ok {
		if baseline, err = reader.CurrentUsage(ctx, *rec.CustomerCode); err != nil {
			return fail(fmt.Errorf("failed to read usage from %s: %w", r.provider.Name(), err))
		}
	}

	bucket := ledger.BuildBucketKey(
		ledger.Slice{Scope: ledger.ScopeUser, Period: ledger.PeriodRecurring}, "", "", rec.Key, r.now())

	drained, err := r.store.GetAndClear(ctx, bucket)
	if err != nil {
		return fail(fmt.Errorf("failed to drain usage bucket: %w", err))
	}

	quantity := float64(drained.Characters) / 1000
	if !rec.ThousandCharOverageAllowed {
		remaining := math.Max(0, allowance-used-Epsilon)
		if quantity > remaining {
			r.logger.Warn("Clamping reported usage to remaining allowance",
				"key", keyPrefix(apiKey), "accrued", quantity, "remaining", remaining)
			quantity = remaining
		}
	}

	if quantity <= 0 {
		if res.Reported > 0 {
			res.Outcome = metrics.OutcomeReported
			return res
		}
		return skip("no usage to report")
	}

	report := &models.PendingReport{
		ID:            uuid.NewString(),
		CustomerCode:  *rec.CustomerCode,
		ThousandChars: quantity,
		UsedBefore:    baseline,
		Characters:    drained.Characters,
		Requests:      drained.Requests,
		CreatedAt:     r.now(),
		Attempts:      1,
	}
	if err := r.pending.Save(ctx, rec.Key, report); err != nil {
		// Nothing was sent; put the drained usage back so the next run reports it.
		if _, rerr := r.store.Increment(ctx, bucket, drained.Characters, drained.Requests, 0); rerr != nil {
			r.logger.Error("Failed to restore drained usage",
				"key", keyPrefix(apiKey), "characters", drained.Characters, "error", rerr)
		}
		return fail(fmt.Errorf("failed to save pending report: %w", err))
	}

	newUsed, err := r.deliver(ctx, rec.Key, report, false)
	if err != nil {
		return fail(err)
	}

	res.Reported += quantity
	res.UsedToDate = newUsed

	if err := r.accounts.SetThousandCharUsed(ctx, rec.Key, newUsed); err != nil {
		res.Outcome = metrics.OutcomeFailed
		res.Err = fmt.Errorf("usage reported but not saved: %w", err)
		return res
	}

	res.Outcome = metrics.OutcomeReported
	return res
}

// deliver sends a pending report and forgets it once the provider acknowledges it. On
// failure the report stays pending for the next run.
func (r *Reconciler) deliver(ctx context.Context, apiKey string, report *models.PendingReport, retry bool) (float64, error) {
	if retry {
		report.Attempts++
		if err := r.pending.Save(ctx, apiKey, report); err != nil {
			r.logger.Warn("Failed to record delivery attempt", "key", keyPrefix(apiKey), "error", err)
		}
		r.logger.Info("Retrying pending usage report",
			"key", keyPrefix(apiKey), "report", report.ID, "attempt", report.Attempts,
			"thousand_chars", report.ThousandChars)
	}

	newUsed, err := r.provider.ReportUsage(ctx, UsageReport{
		CustomerCode:   report.CustomerCode,
		ThousandChars:  report.ThousandChars,
		IdempotencyKey: report.ID,
		OccurredAt:     report.CreatedAt,
		UsedBefore:     report.UsedBefore,
		Retry:          retry,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to report usage to %s: %w", r.provider.Name(), err)
	}

	if err := r.pending.Delete(ctx, apiKey); err != nil {
		// The next run re-delivers under the same idempotency key
		r.logger.Warn("Failed to clear pending report", "key", keyPrefix(apiKey), "report", report.ID, "error", err)
	}
	return newUsed, nil
}

// ReportAll reconciles every getcheddar key. It only fails when the keys cannot be
// listed.
func (r *Reconciler) ReportAll(ctx context.Context) (Summary, error) {
	var summary Summary

	keys, err := r.accounts.ListByType(ctx, models.KeyTypeGetCheddar)
	if err != nil {
		return summary, fmt.Errorf("failed to list metered keys: %w", err)
	}

	for _, k := range keys {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		switch r.Reconcile(ctx, k.Key).Outcome {
		case metrics.OutcomeReported:
			summary.Reported++
		case metrics.OutcomeSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}

	r.logger.Info("Reconciliation run finished",
		"keys", len(keys), "reported", summary.Reported, "skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}
