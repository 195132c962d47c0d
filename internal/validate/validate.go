// Package validate sanity-checks normalised pricing and detects
// significant changes against the prior snapshot for the same source.
package validate

import (
	"github.com/shopspring/decimal"
)

// DefaultMaxPerMillion is the configured cap above which a price is
// flagged as unreasonably large (soft warning, write still occurs).
var DefaultMaxPerMillion = decimal.NewFromInt(10_000)

// Warning is a soft validation finding: the snapshot is still written,
// but the condition is worth logging.
type Warning struct {
	Code    string
	Message string
}

// Input bundles the fields validate needs beyond the two prices.
type Input struct {
	ModelSlug       string
	HasImagePricing bool
	MaxPerMillion   decimal.Decimal
}

// Validate checks a normalised (prompt, completion) pair. ok=false
// means the snapshot must not be written at all (hard failure); ok=true
// with non-empty warnings means the snapshot is written and the
// warnings are logged.
func Validate(prompt, completion *decimal.Decimal, in Input) (ok bool, warnings []Warning) {
	cap := in.MaxPerMillion
	if cap.IsZero() {
		cap = DefaultMaxPerMillion
	}

	// Defence-in-depth: normalize.ToPerMillion already maps negative
	// inputs to NULL, so this should never trigger in practice.
	if (prompt != nil && prompt.IsNegative()) || (completion != nil && completion.IsNegative()) {
		return false, nil
	}

	if prompt != nil && prompt.GreaterThan(cap) {
		warnings = append(warnings, Warning{Code: "price_too_large", Message: "prompt price exceeds configured cap"})
	}
	if completion != nil && completion.GreaterThan(cap) {
		warnings = append(warnings, Warning{Code: "price_too_large", Message: "completion price exceeds configured cap"})
	}

	if prompt != nil && completion != nil && completion.LessThan(*prompt) && !in.HasImagePricing {
		warnings = append(warnings, Warning{Code: "completion_less_than_prompt", Message: "completion price below prompt price"})
	}

	return true, warnings
}

// ChangeEvent describes a significant price move detected by
// DetectChange.
type ChangeEvent struct {
	Field         string
	OldValue      decimal.Decimal
	NewValue      decimal.Decimal
	ChangePercent decimal.Decimal
}

// DetectChange compares the current (prompt, completion) against the
// most recent snapshot of the same source_type and provider, emitting a
// ChangeEvent for any field whose relative change exceeds
// thresholdPercent. prevPrompt/prevCompletion may be nil when there is
// no prior snapshot, in which case no change is reported.
func DetectChange(prevPrompt, prevCompletion, curPrompt, curCompletion *decimal.Decimal, thresholdPercent decimal.Decimal) []ChangeEvent {
	var events []ChangeEvent

	if e, ok := compareField("prompt_usd_per_million", prevPrompt, curPrompt, thresholdPercent); ok {
		events = append(events, e)
	}
	if e, ok := compareField("completion_usd_per_million", prevCompletion, curCompletion, thresholdPercent); ok {
		events = append(events, e)
	}

	return events
}

func compareField(field string, prev, cur *decimal.Decimal, thresholdPercent decimal.Decimal) (ChangeEvent, bool) {
	if prev == nil || cur == nil || prev.IsZero() {
		return ChangeEvent{}, false
	}

	delta := cur.Sub(*prev).Abs()
	changePercent := delta.Div(*prev).Mul(decimal.NewFromInt(100))

	if changePercent.GreaterThan(thresholdPercent) {
		return ChangeEvent{
			Field:         field,
			OldValue:      *prev,
			NewValue:      *cur,
			ChangePercent: changePercent,
		}, true
	}
	return ChangeEvent{}, false
}
