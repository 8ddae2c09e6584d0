package quant

import (
	"encoding/json"
	"fmt"
)

// Difference is the signed result of subtracting one Decimal from another.
// Decimal itself never goes negative, so deltas shown to users live here.
type Difference struct {
	abs      Decimal
	negative bool
}

// Between returns a - b.
func Between(a, b Decimal) Difference {
	switch {
	case a.inf && b.inf:
		panic("DECIMAL_UNDEFINED_SUB: ∞ - ∞")
	case a.inf:
		return Difference{abs: Infinity}
	case b.inf:
		return Difference{abs: Infinity, negative: true}
	}
	if a.Gte(b) {
		return Difference{abs: a.Sub(b)}
	}
	return Difference{abs: b.Sub(a), negative: true}
}

// Sign returns -1, 0 or +1.
func (d Difference) Sign() int {
	switch {
	case d.abs.IsZero():
		return 0
	case d.negative:
		return -1
	default:
		return 1
	}
}

func (d Difference) Positive() bool { return d.Sign() > 0 }
func (d Difference) Negative() bool { return d.Sign() < 0 }
func (d Difference) IsZero() bool   { return d.abs.IsZero() }

// Abs returns the magnitude.
func (d Difference) Abs() Decimal { return d.abs }

// Mul scales the difference by a non-negative factor.
func (d Difference) Mul(x Decimal) Difference {
	return Difference{abs: d.abs.Mul(x), negative: d.negative}
}

func (d Difference) String() string {
	if d.Negative() {
		return "-" + d.abs.String()
	}
	return d.abs.String()
}

// Prettify renders the delta with an explicit sign, e.g. "+1,000.00".
func (d Difference) Prettify(precision int32) string {
	sign := "+"
	if d.Negative() {
		sign = "-"
	}
	return fmt.Sprintf("%s%s", sign, d.abs.Prettify(precision))
}

// MarshalJSON encodes the signed value as a JSON string.
func (d Difference) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
