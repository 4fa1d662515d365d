package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lang_gateway/internal/auth"
	"lang_gateway/internal/billing"
	"lang_gateway/internal/config"
	"lang_gateway/internal/cost"
	"lang_gateway/internal/ledger"
	"lang_gateway/internal/metrics"
	"lang_gateway/internal/quota"
	"lang_gateway/internal/storage"
	"lang_gateway/internal/utils"
)

type staticHealth struct{ err error }

func (h staticHealth) Health(ctx context.Context) error { return h.err }

type fakeUsage struct {
	since     time.Time
	summaries []storage.UsageSummary
	err       error
}

func (f *fakeUsage) SummarizeByAPIKey(ctx context.Context, apiKey string, since time.Time) ([]storage.UsageSummary, error) {
	f.since = since
	return f.summaries, f.err
}

type testServer struct {
	deps     *Dependencies
	handler  http.Handler
	registry *auth.Registry
	store    *ledger.MemoryStore
	usage    *fakeUsage
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	registry := auth.NewRegistry(auth.NewInMemoryKeyStore(), auth.DefaultTrialCharacterLimit, utils.NopLogger())
	store := ledger.NewMemoryStore()
	collector := metrics.NewWithRegistry(prometheus.NewRegistry())
	usage := &fakeUsage{}

	deps := &Dependencies{
		Registry: registry,
		Ledger:   store,
		Tracker:  billing.NewTracker(registry, store, cost.DefaultTable(), nil, collector),
		Metrics:  collector,
		Usage:    usage,
		HealthChecks: map[string]HealthChecker{
			"redis":    staticHealth{},
			"postgres": staticHealth{},
		},
	}

	return &testServer{
		deps:     deps,
		handler:  NewRouter(deps),
		registry: registry,
		store:    store,
		usage:    usage,
	}
}

func (s *testServer) do(t *testing.T, method, path, apiKey, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Checks["redis"])

	s.deps.HealthChecks["redis"] = staticHealth{err: errors.New("redis ping failed")}
	w = s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "redis ping failed", resp.Checks["redis"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAccountRequiresKey(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/v1/account", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/v1/account", "unknown", "").Code)
}

func TestTrackUsageAndAccount(t *testing.T) {
	s := newTestServer(t)
	key, err := s.registry.ProvisionTrial(context.Background(), "user@example.com", 1000)
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/v1/usage", key,
		`{"service":"Azure","request_type":"audio","language":"ja","characters":300}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/v1/account", key, "")
	require.Equal(t, http.StatusOK, w.Code)

	var summary billing.AccountSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, "Trial", summary.PlanLabel)
	assert.Equal(t, "600 / 1000 characters", summary.UsageLabel)

	// 600 recorded, the next call crosses the cap and completes, the one after is rejected.
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/usage", key,
		`{"service":"Google","request_type":"translation","characters":500}`).Code)

	w = s.do(t, http.MethodPost, "/v1/usage", key,
		`{"service":"Google","request_type":"translation","characters":10}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	var over OverQuotaResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &over))
	assert.Equal(t, uint64(1100), over.Total)
	assert.Equal(t, uint64(1000), over.Limit)
}

func TestTrackUsage_BadRequests(t *testing.T) {
	s := newTestServer(t)
	key, err := s.registry.ProvisionTrial(context.Background(), "user@example.com", 0)
	require.NoError(t, err)

	for _, body := range []string{
		`not json`,
		`{"service":"Azure"}`,
		`{"service":"Azure","request_type":"audio","characters":-1}`,
		`{"service":"Azure","request_type":"audio","characters":18446744073709451615}`,
		fmt.Sprintf(`{"service":"Naver","request_type":"audio","characters":%d}`, cost.MaxRawCharacters+1),
	} {
		w := s.do(t, http.MethodPost, "/v1/usage", key, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Empty(t, s.store.Keys())
}

func TestAccountUsage(t *testing.T) {
	s := newTestServer(t)
	key, err := s.registry.ProvisionTrial(context.Background(), "user@example.com", 0)
	require.NoError(t, err)

	s.usage.summaries = []storage.UsageSummary{
		{Service: "Azure", RequestType: "audio", Requests: 3, Denied: 1, BillableCharacters: 60, CostUSD: 0.00096},
	}

	w := s.do(t, http.MethodGet, "/v1/account/usage?since=2024-01-01T00:00:00Z", key, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp UsageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, int64(1), resp.Items[0].Denied)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), s.usage.since)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/account/usage?since=yesterday", key, "").Code)

	s.usage.err = fmt.Errorf("%w: query failed", storage.ErrStoreUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodGet, "/v1/account/usage", key, "").Code)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"key not found", auth.ErrKeyNotFound, http.StatusUnauthorized},
		{"key expired", fmt.Errorf("validate: %w", auth.ErrKeyExpired), http.StatusUnauthorized},
		{"over quota", &quota.OverQuotaError{}, http.StatusTooManyRequests},
		{"wrapped over quota", fmt.Errorf("track: %w", &quota.OverQuotaError{}), http.StatusTooManyRequests},
		{"store unavailable", fmt.Errorf("%w: dial tcp", storage.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{"provider unavailable", billing.ErrProviderUnavailable, http.StatusBadGateway},
		{"character count too large", fmt.Errorf("%w: 1 exceeds 0", billing.ErrCharacterCountTooLarge), http.StatusBadRequest},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForError(tt.err))
		})
	}
}

func TestNewBillingProvider(t *testing.T) {
	assert.Equal(t, "none", NewBillingProvider(configFor("none")).Name())
	assert.Equal(t, "cheddar", NewBillingProvider(configFor("cheddar")).Name())
}

func configFor(provider string) config.BillingConfig {
	return config.BillingConfig{
		Provider:           provider,
		CheddarBaseURL:     "https://getcheddar.example",
		CheddarProductCode: "LANG",
		CheddarItemCode:    "thousand_chars",
	}
}
