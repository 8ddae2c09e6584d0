package quant

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// maxWei is the all-ones word the contracts use to encode an infinite ratio.
var maxWei = new(uint256.Int).SetAllOne()

// FromWei interprets a raw 1e18-scaled contract integer.
func FromWei(w *uint256.Int) Decimal {
	if w == nil {
		return Zero
	}
	if w.Eq(maxWei) {
		return Infinity
	}
	return Decimal{v: decimal.NewFromBigInt(w.ToBig(), -Scale)}
}

// ParseWei reads a 0x-prefixed hex word as produced by contract bindings.
func ParseWei(hex string) (Decimal, error) {
	w, err := uint256.FromHex(strings.TrimSpace(hex))
	if err != nil {
		return Zero, &ParseError{Input: hex, Reason: "malformed hex word", Err: err}
	}
	return FromWei(w), nil
}

// Wei returns the raw 1e18-scaled integer form of d.
func (d Decimal) Wei() *uint256.Int {
	if d.inf {
		return new(uint256.Int).Set(maxWei)
	}
	w, overflow := uint256.FromBig(d.v.Shift(Scale).BigInt())
	if overflow {
		panic(fmt.Sprintf("DECIMAL_WEI_OVERFLOW: %s", d.String()))
	}
	return w
}
