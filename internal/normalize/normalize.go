// Package normalize converts raw per-token prices, as reported by the
// aggregator in its native per-single-token convention, into exact
// USD-per-one-million-token decimals. All arithmetic runs through
// shopspring/decimal; no value is ever represented as a binary float.
package normalize

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Trace records why a value normalised the way it did, for debug
// logging at the call site. Empty when nothing noteworthy happened.
type Trace string

const (
	TraceNone         Trace = ""
	TraceSentinel     Trace = "sentinel"
	TraceUnparseable  Trace = "unparseable"
)

var million = decimal.NewFromInt(1_000_000)

// ToPerMillion converts a per-token price to USD per 1,000,000 tokens.
// nil or empty (blank) input yields (nil, TraceNone); only a
// present-but-garbled value yields (nil, TraceUnparseable). A negative
// value yields (nil, TraceSentinel): upstream APIs use negative prices
// to signal "dynamic routing, not applicable".
func ToPerMillion(raw *string) (*decimal.Decimal, Trace) {
	if raw == nil {
		return nil, TraceNone
	}
	s := strings.TrimSpace(*raw)
	if s == "" {
		return nil, TraceNone
	}

	v, err := decimal.NewFromString(s)
	if err != nil {
		return nil, TraceUnparseable
	}

	if v.IsNegative() {
		return nil, TraceSentinel
	}

	result := v.Mul(million)
	return &result, TraceNone
}

// PassThrough normalises an absolute (not per-token) price field, such
// as a per-request or per-image cost: same sentinel/NULL rules as
// ToPerMillion, but no scaling is applied.
func PassThrough(raw *string) (*decimal.Decimal, Trace) {
	if raw == nil {
		return nil, TraceNone
	}
	s := strings.TrimSpace(*raw)
	if s == "" {
		return nil, TraceNone
	}

	v, err := decimal.NewFromString(s)
	if err != nil {
		return nil, TraceUnparseable
	}

	if v.IsNegative() {
		return nil, TraceSentinel
	}

	return &v, TraceNone
}
