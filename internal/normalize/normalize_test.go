package normalize

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func str(s string) *string { return &s }

func TestToPerMillion_Sentinel(t *testing.T) {
	v, trace := ToPerMillion(str("-1"))
	assert.Nil(t, v)
	assert.Equal(t, TraceSentinel, trace)
}

func TestToPerMillion_Zero(t *testing.T) {
	v, trace := ToPerMillion(str("0"))
	require.NotNil(t, v)
	assert.True(t, v.IsZero())
	assert.Equal(t, TraceNone, trace)
}

func TestToPerMillion_Nil(t *testing.T) {
	v, trace := ToPerMillion(nil)
	assert.Nil(t, v)
	assert.Equal(t, TraceNone, trace)
}

func TestToPerMillion_Empty(t *testing.T) {
	v, trace := ToPerMillion(str(""))
	assert.Nil(t, v)
	assert.Equal(t, TraceNone, trace)
}

func TestToPerMillion_Unparseable(t *testing.T) {
	v, trace := ToPerMillion(str("not-a-number"))
	assert.Nil(t, v)
	assert.Equal(t, TraceUnparseable, trace)
}

func TestToPerMillion_Scales(t *testing.T) {
	v, trace := ToPerMillion(str("0.000003"))
	require.NotNil(t, v)
	assert.Equal(t, TraceNone, trace)
	assert.True(t, v.Equal(decimal.NewFromFloat(3.0)))
}

func TestToPerMillion_RoundTrip(t *testing.T) {
	raw := "0.000015"
	v, _ := ToPerMillion(&raw)
	require.NotNil(t, v)
	back := v.Div(decimal.NewFromInt(1_000_000))
	expected, _ := decimal.NewFromString(raw)
	assert.True(t, back.Equal(expected))
}

func TestPassThrough_NoScaling(t *testing.T) {
	v, trace := PassThrough(str("0.001"))
	require.NotNil(t, v)
	assert.Equal(t, TraceNone, trace)
	assert.True(t, v.Equal(decimal.NewFromFloat(0.001)))
}
