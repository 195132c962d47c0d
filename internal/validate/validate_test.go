package validate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(f float64) *decimal.Decimal {
	d := decimal.NewFromFloat(f)
	return &d
}

func TestValidate_ImageInversionDemoted(t *testing.T) {
	ok, warnings := Validate(dec(2.5), dec(2.0), Input{ModelSlug: "x/y", HasImagePricing: true})
	assert.True(t, ok)
	assert.Empty(t, warnings)
}

func TestValidate_NonImageInversionWarns(t *testing.T) {
	ok, warnings := Validate(dec(2.5), dec(2.0), Input{ModelSlug: "x/y", HasImagePricing: false})
	assert.True(t, ok)
	require.Len(t, warnings, 1)
	assert.Equal(t, "completion_less_than_prompt", warnings[0].Code)
}

func TestValidate_TooLargeWarns(t *testing.T) {
	ok, warnings := Validate(dec(20000), dec(1), Input{ModelSlug: "x/y"})
	assert.True(t, ok)
	// completion (1) below prompt (20000) on a non-image model also warns.
	require.Len(t, warnings, 2)
	assert.Equal(t, "price_too_large", warnings[0].Code)
	assert.Equal(t, "completion_less_than_prompt", warnings[1].Code)
}

func TestDetectChange_SignificantMove(t *testing.T) {
	threshold := decimal.NewFromInt(30)
	events := DetectChange(dec(1.25), dec(5.0), dec(15.0), dec(5.0), threshold)
	require.Len(t, events, 1)
	assert.Equal(t, "prompt_usd_per_million", events[0].Field)
	assert.True(t, events[0].ChangePercent.GreaterThan(decimal.NewFromInt(1000)))
}

func TestDetectChange_NoPriorSnapshot(t *testing.T) {
	threshold := decimal.NewFromInt(30)
	events := DetectChange(nil, nil, dec(15.0), dec(5.0), threshold)
	assert.Empty(t, events)
}

func TestDetectChange_BelowThreshold(t *testing.T) {
	threshold := decimal.NewFromInt(30)
	events := DetectChange(dec(10.0), dec(5.0), dec(11.0), dec(5.0), threshold)
	assert.Empty(t, events)
}
