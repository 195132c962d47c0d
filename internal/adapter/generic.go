package adapter

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/shopspring/decimal"

	"github.com/g2scv/llm-cost/internal/models"
)

const minInterCallDelay = 1 * time.Second

var (
	minAcceptable = decimal.NewFromFloat(0.01)
	maxAcceptable = decimal.NewFromInt(10_000)

	// priceRe matches "$X.XX" or "$X.XX / 1M tokens"-shaped figures in
	// scraped page text.
	priceRe = regexp.MustCompile(`\$(\d+(?:\.\d+)?)\s*(?:/|per)?\s*(?:1M|1,000,000|million)?`)
)

// GenericWebAdapter is the fallback adapter: it fetches the provider's
// pricing page at https://<provider-slug>.com/pricing, only when that
// host is in a configurable trusted-domain allowlist, and extracts a
// price via regex. It issues no web search, so providers whose pricing
// page lives elsewhere resolve to nothing. A non-200 response or fetch
// failure is not logged and never aborts the pipeline; Resolve returns
// (nil, nil).
type GenericWebAdapter struct {
	searchKey      string
	trustedDomains map[string]bool
	collector      *colly.Collector

	mu       sync.Mutex
	lastCall time.Time
}

// NewGenericWebAdapter builds the fallback adapter. searchKey only
// gates the adapter: when it is empty, Resolve always returns
// (nil, nil); its value is not sent anywhere.
func NewGenericWebAdapter(searchKey string, trustedDomains []string) *GenericWebAdapter {
	domains := make(map[string]bool, len(trustedDomains))
	for _, d := range trustedDomains {
		domains[strings.ToLower(strings.TrimSpace(d))] = true
	}

	return &GenericWebAdapter{
		searchKey:      searchKey,
		trustedDomains: domains,
		collector:      colly.NewCollector(colly.Async(false)),
	}
}

// Resolve fetches the provider's candidate pricing page (see
// candidateURL) and extracts the first per-million price on it, which
// is applied to both input and output and returned in per-token form;
// modelSlug does not affect which page or figure is chosen. Rejects
// anything outside [$0.01, $10,000]/1M. Returns (nil, nil) — not an
// error — when nothing usable was found, so the pipeline can try the
// next source without aborting.
func (a *GenericWebAdapter) Resolve(ctx context.Context, providerSlug, modelSlug string) (*models.PricingResult, error) {
	if a.searchKey == "" {
		return nil, nil
	}

	pageURL := a.candidateURL(providerSlug)
	if pageURL == "" {
		return nil, nil
	}

	a.throttle()

	// Clone rather than reuse the shared collector: OnHTML callbacks
	// accumulate on a collector and every registered callback fires on
	// every Visit, so a per-call collector is required to avoid
	// unbounded callback growth across the lifetime of the adapter.
	visitor := a.collector.Clone()

	var found *models.PricingResult
	visitor.OnHTML("body", func(e *colly.HTMLElement) {
		text := e.Text
		matches := priceRe.FindAllStringSubmatch(text, -1)
		for _, m := range matches {
			val, err := decimal.NewFromString(m[1])
			if err != nil {
				continue
			}
			if val.LessThan(minAcceptable) || val.GreaterThan(maxAcceptable) {
				continue
			}
			// The figure is per million tokens; PricingResult carries
			// per-token prices.
			price := val.Div(decimal.NewFromInt(1_000_000)).String()
			found = &models.PricingResult{
				PromptPerToken:     &price,
				CompletionPerToken: &price,
				SourceURL:          pageURL,
				Note:               "combined rate used for both input and output",
			}
			return
		}
	})

	if err := visitor.Visit(pageURL); err != nil {
		// Non-200 / fetch failure: tolerated, not fatal to the pipeline.
		return nil, nil
	}

	return found, nil
}

// candidateURL returns a pricing page URL for the provider if, and
// only if, its host is in the trusted-domain allowlist.
func (a *GenericWebAdapter) candidateURL(providerSlug string) string {
	candidate := fmt.Sprintf("https://%s.com/pricing", providerSlug)
	u, err := url.Parse(candidate)
	if err != nil {
		return ""
	}
	if !a.trustedDomains[u.Hostname()] {
		return ""
	}
	return candidate
}

// throttle enforces the minimum 1s inter-call delay to be polite to
// scraped sites.
func (a *GenericWebAdapter) throttle() {
	a.mu.Lock()
	defer a.mu.Unlock()

	elapsed := time.Since(a.lastCall)
	if elapsed < minInterCallDelay {
		time.Sleep(minInterCallDelay - elapsed)
	}
	a.lastCall = time.Now()
}
