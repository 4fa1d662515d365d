package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lang_gateway/internal/auth"
	"lang_gateway/internal/utils"
)

func TestScheduler_InvalidSchedule(t *testing.T) {
	f := newReconcilerFixture(t)
	s := NewScheduler(f.reconciler, "every three hours", time.Minute)

	assert.Error(t, s.Start())
}

func TestScheduler_StartStop(t *testing.T) {
	f := newReconcilerFixture(t)
	s := NewScheduler(f.reconciler, "@every 3h", time.Minute)
	s.logger = utils.NopLogger()

	require.NoError(t, s.Start())
	s.Stop()
}

func TestScheduler_RunReportsAll(t *testing.T) {
	f := newReconcilerFixture(t)
	key := f.provision(t, auth.CustomerData{CustomerCode: "cust-1", ThousandCharQuota: 250})
	f.accrue(t, key, 7_000)

	s := NewScheduler(f.reconciler, "@every 3h", 0)
	s.logger = utils.NopLogger()
	s.run()

	assert.Equal(t, 1, f.provider.callCount())
	assert.Zero(t, f.accrued(t, key))

	rec, err := f.registry.Lookup(context.Background(), key)
	require.NoError(t, err)
	assert.InDelta(t, 7.0, *rec.ThousandCharUsed, 1e-9)
}
