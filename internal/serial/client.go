package serial

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultRequestTimeout is the per-request timeout applied when the
// client isn't configured with one explicitly.
const DefaultRequestTimeout = 10 * time.Second

// retrySchedule is the fixed backoff applied to connection/timeout
// failures on idempotent verbs: 1s, then 3s, for a total of three
// attempts including the first.
var retrySchedule = []time.Duration{1 * time.Second, 3 * time.Second}

// fixedSchedule is a backoff.BackOff that walks a fixed list of delays
// and signals backoff.Stop once exhausted, rather than growing or
// jittering — the authority's retry contract is a literal schedule, not
// an exponential curve.
type fixedSchedule struct {
	delays []time.Duration
	idx    int
}

func (f *fixedSchedule) NextBackOff() time.Duration {
	if f.idx >= len(f.delays) {
		return backoff.Stop
	}
	d := f.delays[f.idx]
	f.idx++
	return d
}

// ActivateResult is the outcome of an activation call.
type ActivateResult struct {
	Success      bool
	InstallToken string
	Error        string
	StatusCode   int
}

// MeterResult is the outcome of a metering call.
type MeterResult struct {
	Allowed        bool
	Category       string
	CostUSD        string
	RemainingUSD   string
	Reason         string
	PaymentEnabled bool
	Migrated       bool
	Error          string
	StatusCode     int
}

// StatusResult is the outcome of a status call.
type StatusResult struct {
	Success    bool
	Data       map[string]any
	Migrated   bool
	Error      string
	StatusCode int
}

// RefreshResult is the outcome of a refresh call.
type RefreshResult struct {
	Success      bool
	InstallToken string
	Error        string
	StatusCode   int
}

// Client is the async HTTP client for the serial authority's activation,
// metering, status and refresh endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client against baseURL with the given per-request
// timeout (DefaultRequestTimeout if zero).
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type rawResponse struct {
	statusCode int
	body       map[string]any
}

// do issues one HTTP call, retrying connection/timeout failures per
// retrySchedule. Any HTTP response — 2xx, 4xx, or 5xx — is returned
// immediately without retry; only transport-level failures are retried.
func (c *Client) do(ctx context.Context, method, path string, payload any, headers map[string]string) (rawResponse, error) {
	op := func() (rawResponse, error) {
		var body io.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return rawResponse{}, backoff.Permanent(fmt.Errorf("marshaling request: %w", err))
			}
			body = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return rawResponse{}, backoff.Permanent(fmt.Errorf("building request: %w", err))
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			// Transport-level failure (connection refused, timeout): retryable.
			return rawResponse{}, err
		}
		defer resp.Body.Close()

		raw, _ := io.ReadAll(resp.Body)
		var parsed map[string]any
		_ = json.Unmarshal(raw, &parsed) // non-JSON body is tolerated; parsed stays nil

		return rawResponse{statusCode: resp.StatusCode, body: parsed}, nil
	}

	return backoff.Retry(ctx, op, backoff.WithBackOff(&fixedSchedule{delays: retrySchedule}))
}

func extractError(body map[string]any, statusCode int) string {
	if body == nil {
		return fmt.Sprintf("HTTP %d", statusCode)
	}
	if detail, ok := body["detail"].(string); ok && detail != "" {
		return detail
	}
	return fmt.Sprintf("HTTP %d", statusCode)
}

// Activate calls POST /api/v1/serials/{serial}/activate.
func (c *Client) Activate(ctx context.Context, serial, bootstrapToken, instanceID, hostname, version string) ActivateResult {
	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/serials/%s/activate", serial), map[string]any{
		"bootstrap_token": bootstrapToken,
		"instance_id":     instanceID,
		"hostname":        hostname,
		"app_version":     version,
	}, nil)
	if err != nil {
		return ActivateResult{Error: err.Error(), StatusCode: 0}
	}
	if resp.statusCode == http.StatusOK && resp.body != nil {
		token, _ := resp.body["install_token"].(string)
		return ActivateResult{Success: true, InstallToken: token, StatusCode: resp.statusCode}
	}
	return ActivateResult{Error: extractError(resp.body, resp.statusCode), StatusCode: resp.statusCode}
}

// Meter calls POST /api/v1/serials/{serial}/meter. requestID is the
// idempotency key the authority deduplicates against.
func (c *Client) Meter(ctx context.Context, serial, installToken, category, costUSD, requestID, description string) MeterResult {
	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/serials/%s/meter", serial), map[string]any{
		"install_token": installToken,
		"category":      category,
		"cost_usd":      costUSD,
		"request_id":    requestID,
		"description":   description,
	}, nil)
	if err != nil {
		return MeterResult{Error: err.Error(), StatusCode: 0}
	}
	if resp.body != nil && (resp.statusCode == http.StatusOK || resp.statusCode == http.StatusPaymentRequired) {
		allowed, _ := resp.body["allowed"].(bool)
		respCategory, _ := resp.body["category"].(string)
		if respCategory == "" {
			respCategory = category
		}
		remaining, _ := resp.body["remaining_usd"].(string)
		reason, _ := resp.body["reason"].(string)
		paymentEnabled, _ := resp.body["payment_enabled"].(bool)
		migrated, _ := resp.body["migrated"].(bool)
		return MeterResult{
			Allowed:        allowed,
			Category:       respCategory,
			RemainingUSD:   remaining,
			Reason:         reason,
			PaymentEnabled: paymentEnabled,
			Migrated:       migrated,
			StatusCode:     resp.statusCode,
		}
	}
	return MeterResult{Error: extractError(resp.body, resp.statusCode), StatusCode: resp.statusCode}
}

// Status calls GET /api/v1/serials/{serial}/status with bearer auth.
func (c *Client) Status(ctx context.Context, serial, installToken string) StatusResult {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/serials/%s/status", serial), nil, map[string]string{
		"Authorization": "Bearer " + installToken,
	})
	if err != nil {
		return StatusResult{Error: err.Error(), StatusCode: 0}
	}
	if resp.statusCode == http.StatusOK && resp.body != nil {
		migrated, _ := resp.body["migrated"].(bool)
		return StatusResult{Success: true, Data: resp.body, Migrated: migrated, StatusCode: resp.statusCode}
	}
	return StatusResult{Error: extractError(resp.body, resp.statusCode), StatusCode: resp.statusCode}
}

// Refresh calls POST /api/v1/serials/{serial}/refresh.
func (c *Client) Refresh(ctx context.Context, serial, installToken, instanceID string) RefreshResult {
	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/serials/%s/refresh", serial), map[string]any{
		"install_token": installToken,
		"instance_id":   instanceID,
	}, nil)
	if err != nil {
		return RefreshResult{Error: err.Error(), StatusCode: 0}
	}
	if resp.statusCode == http.StatusOK && resp.body != nil {
		token, _ := resp.body["install_token"].(string)
		return RefreshResult{Success: true, InstallToken: token, StatusCode: resp.statusCode}
	}
	return RefreshResult{Error: extractError(resp.body, resp.statusCode), StatusCode: resp.statusCode}
}
