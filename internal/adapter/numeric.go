package adapter

import "github.com/shopspring/decimal"

// maxStrNum returns whichever of a, b parses to the larger decimal
// value, preferring whichever is non-nil when only one is present.
func maxStrNum(a, b *string) *string {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}

	da, errA := decimal.NewFromString(*a)
	db, errB := decimal.NewFromString(*b)
	if errA != nil {
		return b
	}
	if errB != nil {
		return a
	}
	if db.GreaterThan(da) {
		return b
	}
	return a
}
