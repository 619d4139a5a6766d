package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Minor is a monetary amount in minor currency units (e.g. cents).
// All money in the system is integer minor units; floats never touch it.
type Minor int64

// PercentOf returns pct% of amount, rounded half-up to the nearest minor unit.
func PercentOf(amount Minor, pct decimal.Decimal) Minor {
	d := decimal.NewFromInt(int64(amount)).Mul(pct).Div(decimal.NewFromInt(100))
	return Minor(d.Round(0).IntPart())
}

// BasisPointsOf returns bps basis points of amount, rounded half-up.
func BasisPointsOf(amount Minor, bps int64) Minor {
	d := decimal.NewFromInt(int64(amount)).
		Mul(decimal.NewFromInt(bps)).
		Div(decimal.NewFromInt(10000))
	return Minor(d.Round(0).IntPart())
}

// Clamp returns v bounded to [lo, hi].
func Clamp(v, lo, hi Minor) Minor {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (m Minor) String() string {
	neg := ""
	v := int64(m)
	if v < 0 {
		neg = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", neg, v/100, v%100)
}
