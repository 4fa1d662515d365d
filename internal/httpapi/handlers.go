package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"lang_gateway/internal/billing"
	"lang_gateway/internal/cost"
	"lang_gateway/internal/middleware"
	"lang_gateway/internal/quota"
	"lang_gateway/internal/utils"
)

const healthCheckTimeout = 2 * time.Second

// HealthResponse reports the state of every backing service
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(d.HealthChecks))}
	code := http.StatusOK

	for name, checker := range d.HealthChecks {
		if err := checker.Health(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	utils.RespondWithJSON(w, code, resp)
}

func (d *Dependencies) handleAccount(w http.ResponseWriter, r *http.Request) {
	apiKey, _ := middleware.GetAPIKey(r.Context())

	summary, err := d.Tracker.AccountSummary(r.Context(), apiKey)
	if err != nil {
		utils.RespondWithError(w, StatusForError(err), err.Error())
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, summary)
}

// UsageResponse lists the audited usage of a key since a point in time
type UsageResponse struct {
	Since time.Time          `json:"since"`
	Items []UsageSummaryItem `json:"items"`
}

// UsageSummaryItem is the usage of one service and request type
type UsageSummaryItem struct {
	Service            string  `json:"service"`
	RequestType        string  `json:"request_type"`
	Requests           int64   `json:"requests"`
	Denied             int64   `json:"denied"`
	BillableCharacters int64   `json:"billable_characters"`
	CostUSD            float64 `json:"cost_usd"`
}

func (d *Dependencies) handleAccountUsage(w http.ResponseWriter, r *http.Request) {
	if d.Usage == nil {
		utils.RespondWithError(w, http.StatusNotImplemented, "Usage history is not available")
		return
	}

	apiKey, _ := middleware.GetAPIKey(r.Context())

	now := time.Now().UTC()
	since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		since = parsed.UTC()
	}

	summaries, err := d.Usage.SummarizeByAPIKey(r.Context(), apiKey, since)
	if err != nil {
		utils.RespondWithError(w, StatusForError(err), "Failed to load usage history")
		return
	}

	resp := UsageResponse{Since: since, Items: make([]UsageSummaryItem, 0, len(summaries))}
	for _, s := range summaries {
		resp.Items = append(resp.Items, UsageSummaryItem(s))
	}

	utils.RespondWithJSON(w, http.StatusOK, resp)
}

// TrackUsageRequest is a metered call reported by a provider adapter
type TrackUsageRequest struct {
	Service     string `json:"service"`
	RequestType string `json:"request_type"`
	Language    string `json:"language,omitempty"`
	Characters  uint64 `json:"characters"`
}

// TrackUsageResponse is returned for an accepted call
type TrackUsageResponse struct {
	Accepted bool `json:"accepted"`
}

// OverQuotaResponse is returned with 429 when the account ran out of allowance
type OverQuotaResponse struct {
	Error string `json:"error"`
	Total uint64 `json:"total"`
	Limit uint64 `json:"limit"`
}

func (d *Dependencies) handleTrackUsage(w http.ResponseWriter, r *http.Request) {
	apiKey, _ := middleware.GetAPIKey(r.Context())

	var req TrackUsageRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Service == "" || req.RequestType == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "service and request_type are required")
		return
	}

	err := d.Tracker.TrackUsage(r.Context(), apiKey, billing.Request{
		Service:     cost.Service(req.Service),
		RequestType: cost.RequestType(req.RequestType),
		Language:    cost.Language(req.Language),
		Characters:  req.Characters,
	})

	var overQuota *quota.OverQuotaError
	switch {
	case err == nil:
		utils.RespondWithJSON(w, http.StatusOK, TrackUsageResponse{Accepted: true})
	case errors.As(err, &overQuota):
		utils.RespondWithJSON(w, http.StatusTooManyRequests, OverQuotaResponse{
			Error: "Usage quota exceeded",
			Total: overQuota.Total,
			Limit: overQuota.Limit,
		})
	default:
		utils.RespondWithError(w, StatusForError(err), err.Error())
	}
}
