// Package aggregatorclient talks to the external aggregator's Models,
// Providers, and BYOK endpoints, retrying transient failures with
// bounded exponential backoff in the same shape this codebase's
// provider clients already use for upstream calls.
package aggregatorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	maxAttempts  = 3
	baseBackoff  = 1 * time.Second
	cooldownTTL  = 60 * time.Second
)

// RawProvider is the aggregator's provider representation, before
// translation into models.Provider.
type RawProvider struct {
	Slug              string `json:"slug"`
	DisplayName       string `json:"name"`
	PrivacyPolicyURL  string `json:"privacy_policy_url"`
	TermsOfServiceURL string `json:"terms_of_service_url"`
	StatusPageURL     string `json:"status_page_url"`
}

// RawModel is the aggregator's model representation, before
// translation into models.Model.
type RawModel struct {
	Slug                string                 `json:"id"`
	CanonicalSlug       string                 `json:"canonical_slug"`
	Name                string                 `json:"name"`
	ContextLength       *int                   `json:"context_length"`
	Architecture        map[string]interface{} `json:"architecture"`
	SupportedParameters []string               `json:"supported_parameters"`
	InputModalities     []string               `json:"input_modalities"`
	OutputModalities    []string               `json:"output_modalities"`
	Pricing             RawPricing             `json:"pricing"`
	TopProvider         string                 `json:"top_provider_slug"`
}

// RawPricing mirrors the aggregator's per-token pricing block. Fields
// are strings (or absent) because the aggregator emits prices as
// decimal strings, never as JSON numbers, to avoid float rounding.
type RawPricing struct {
	Prompt            *string `json:"prompt"`
	Completion        *string `json:"completion"`
	Request           *string `json:"request"`
	Image             *string `json:"image"`
	WebSearch         *string `json:"web_search"`
	InternalReasoning *string `json:"internal_reasoning"`
	InputCacheRead    *string `json:"input_cache_read"`
	InputCacheWrite   *string `json:"input_cache_write"`
}

// ListFilters narrows list_models; each is applied server-side as a
// query parameter when set.
type ListFilters struct {
	SupportedParameters []string
	Distillable         *bool
	InputModalities     []string
	OutputModalities    []string
}

// UsageReport is the aggregator's response to a tiny BYOK call.
type UsageReport struct {
	ModelSlug        string
	PromptTokens     int
	CompletionTokens int
	AggregatorCostUSD *string
	ResponseMS       int64
}

// Client is the aggregator HTTP client. Safe for concurrent use; holds
// no per-call mutable state beyond the underlying connection pool and
// the shared rate-limit cooldown cache.
type Client struct {
	baseURL       string
	apiKey        string
	modelsPath    string
	providersPath string
	byokPath      string
	httpClient    *http.Client
	cooldowns     *gocache.Cache
	logger        *slog.Logger
}

// New builds an aggregator client. timeout applies per HTTP request.
func New(baseURL, apiKey, modelsPath, providersPath, byokPath string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:       baseURL,
		apiKey:        apiKey,
		modelsPath:    modelsPath,
		providersPath: providersPath,
		byokPath:      byokPath,
		httpClient:    &http.Client{Timeout: timeout},
		cooldowns:     gocache.New(cooldownTTL, 2*cooldownTTL),
		logger:        logger,
	}
}

const catalogueCacheTTL = 5 * time.Minute

// ListProviders returns the aggregator's provider catalogue, cached for
// catalogueCacheTTL so discovery and the per-model resolution loop in
// the same tick don't each re-fetch it.
func (c *Client) ListProviders(ctx context.Context) ([]RawProvider, error) {
	const cacheKey = "providers"
	if cached, found := c.cooldowns.Get(cacheKey); found {
		return cached.([]RawProvider), nil
	}

	var payload struct {
		Data []RawProvider `json:"data"`
	}
	if err := c.getJSON(ctx, c.providersPath, nil, &payload); err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}

	c.cooldowns.Set(cacheKey, payload.Data, catalogueCacheTTL)
	return payload.Data, nil
}

// ListModels returns the aggregator's model catalogue, applying
// filters server-side via query parameters. Results are cached for
// catalogueCacheTTL, keyed by the filter set.
func (c *Client) ListModels(ctx context.Context, filters ListFilters) ([]RawModel, error) {
	cacheKey := "models:" + filters.cacheKey()
	if cached, found := c.cooldowns.Get(cacheKey); found {
		return cached.([]RawModel), nil
	}

	q := url.Values{}
	if len(filters.SupportedParameters) > 0 {
		q.Set("supported_parameters", joinCSV(filters.SupportedParameters))
	}
	if filters.Distillable != nil {
		q.Set("distillable", strconv.FormatBool(*filters.Distillable))
	}
	if len(filters.InputModalities) > 0 {
		q.Set("input_modalities", joinCSV(filters.InputModalities))
	}
	if len(filters.OutputModalities) > 0 {
		q.Set("output_modalities", joinCSV(filters.OutputModalities))
	}

	var payload struct {
		Data []RawModel `json:"data"`
	}
	if err := c.getJSON(ctx, c.modelsPath, q, &payload); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	c.cooldowns.Set(cacheKey, payload.Data, catalogueCacheTTL)
	return payload.Data, nil
}

func (f ListFilters) cacheKey() string {
	distillable := "nil"
	if f.Distillable != nil {
		distillable = strconv.FormatBool(*f.Distillable)
	}
	return joinCSV(f.SupportedParameters) + "|" + distillable + "|" +
		joinCSV(f.InputModalities) + "|" + joinCSV(f.OutputModalities)
}

// TinyBYOKCall sends a minimal max_tokens=1 completion request asking
// the aggregator to include usage and cost in the response, used only
// for spot-checks.
func (c *Client) TinyBYOKCall(ctx context.Context, modelSlug string) (*UsageReport, error) {
	start := time.Now()

	body := map[string]interface{}{
		"model":      modelSlug,
		"max_tokens": 1,
		"messages":   []map[string]string{{"role": "user", "content": "hi"}},
		"usage":      map[string]bool{"include": true},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal byok request: %w", err)
	}

	var resp struct {
		Usage struct {
			PromptTokens     int     `json:"prompt_tokens"`
			CompletionTokens int     `json:"completion_tokens"`
			CostUSD          *string `json:"cost"`
		} `json:"usage"`
	}

	if err := c.postJSON(ctx, c.byokPath, raw, &resp); err != nil {
		return nil, fmt.Errorf("tiny byok call: %w", err)
	}

	return &UsageReport{
		ModelSlug:         modelSlug,
		PromptTokens:      resp.Usage.PromptTokens,
		CompletionTokens:  resp.Usage.CompletionTokens,
		AggregatorCostUSD: resp.Usage.CostUSD,
		ResponseMS:        time.Since(start).Milliseconds(),
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	return c.doWithRetry(ctx, http.MethodGet, fullURL, nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body []byte, out interface{}) error {
	return c.doWithRetry(ctx, http.MethodPost, c.baseURL+path, body, out)
}

// doWithRetry issues the request, retrying transient network errors and
// 5xx responses with bounded exponential backoff. 4xx other than 429 is
// returned immediately as non-retryable. 429 trips a per-host cooldown
// respected by subsequent calls within the cache's TTL.
func (c *Client) doWithRetry(ctx context.Context, method, fullURL string, body []byte, out interface{}) error {
	host := hostOf(fullURL)
	if _, found := c.cooldowns.Get(host); found {
		return fmt.Errorf("aggregator host %s is in rate-limit cooldown", host)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := calculateBackoff(attempt)
			c.logger.Debug("retrying aggregator request", "attempt", attempt, "backoff_ms", backoff.Milliseconds())
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		statusCode, err := c.attempt(ctx, method, fullURL, body, out)
		if err == nil {
			return nil
		}

		if statusCode == http.StatusTooManyRequests {
			c.cooldowns.Set(host, true, gocache.DefaultExpiration)
			return fmt.Errorf("rate limited by aggregator: %w", err)
		}
		if statusCode >= 400 && statusCode < 500 {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("aggregator request failed after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, method, fullURL string, body []byte, out interface{}) (int, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("aggregator returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

// calculateBackoff returns base*2^(attempt-1) plus up to one base of
// jitter. No cap is applied; the delay is bounded only by maxAttempts.
func calculateBackoff(attempt int) time.Duration {
	exp := math.Pow(2, float64(attempt-1))
	backoff := time.Duration(float64(baseBackoff) * exp)
	jitter := time.Duration(rand.Int63n(int64(baseBackoff)))
	return backoff + jitter
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}

func joinCSV(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ","
		}
		out += item
	}
	return out
}
