// Package ledger addresses the usage counters kept in the shared key-value store.
//
// A bucket is identified by a deterministic string built from its scope, period,
// date bucket, service, request type and API key. Buckets for different periods are
// independent: a daily bucket rolling over never touches the monthly one.
package ledger

import (
	"fmt"
	"strings"
	"time"
)

// Scope says whether a counter is tallied per account or system wide.
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopeUser
)

func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeUser:
		return "user"
	}
	return fmt.Sprintf("scope(%d)", int(s))
}

// Period is the time-window granularity of a counter.
type Period int

const (
	PeriodDaily Period = iota
	PeriodMonthly
	PeriodLifetime
	PeriodRecurring
	PeriodPatreonMonthly
)

// Periods lists every period, in declaration order.
var Periods = []Period{PeriodDaily, PeriodMonthly, PeriodLifetime, PeriodRecurring, PeriodPatreonMonthly}

func (p Period) String() string {
	switch p {
	case PeriodDaily:
		return "daily"
	case PeriodMonthly:
		return "monthly"
	case PeriodLifetime:
		return "lifetime"
	case PeriodRecurring:
		return "recurring"
	case PeriodPatreonMonthly:
		return "patreon_monthly"
	}
	return fmt.Sprintf("period(%d)", int(p))
}

// TTL is how long a bucket of this period is kept after its last write.
// Zero means the bucket never expires.
func (p Period) TTL() time.Duration {
	switch p {
	case PeriodDaily:
		return 45 * 24 * time.Hour
	case PeriodMonthly, PeriodPatreonMonthly:
		return 400 * 24 * time.Hour
	case PeriodLifetime, PeriodRecurring:
		return 0
	}
	return 0
}

// dateBucket formats t for the period: YYYYMMDD for daily, YYYYMM for monthly
// granularity, nothing for running totals.
func (p Period) dateBucket(t time.Time) string {
	t = t.UTC()
	switch p {
	case PeriodDaily:
		return t.Format("20060102")
	case PeriodMonthly, PeriodPatreonMonthly:
		return t.Format("200601")
	case PeriodLifetime, PeriodRecurring:
		return ""
	}
	return ""
}

// Slice is a (scope, period) pair; together with the service, request type and key it
// names a single counter and the policy bound to it.
type Slice struct {
	Scope  Scope
	Period Period
}

func (s Slice) String() string {
	return s.Scope.String() + ":" + s.Period.String()
}

// BuildBucketKey returns the store key for a counter. The result depends only on its
// arguments.
func BuildBucketKey(slice Slice, service, requestType, apiKey string, now time.Time) string {
	scope := slice.Scope.String()
	period := slice.Period.String()

	if slice.Scope == ScopeUser && (slice.Period == PeriodRecurring || slice.Period == PeriodLifetime) {
		return join(scope, period, apiKey)
	}

	date := slice.Period.dateBucket(now)
	if slice.Scope == ScopeUser && slice.Period == PeriodPatreonMonthly {
		return join(scope, period, date, apiKey)
	}

	parts := []string{scope, period}
	if date != "" {
		parts = append(parts, date)
	}
	parts = append(parts, service, requestType)
	if slice.Scope == ScopeUser {
		parts = append(parts, apiKey)
	}
	return join(parts...)
}

func join(parts ...string) string {
	return strings.Join(parts, ":")
}
