package quant

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits every Decimal carries.
// It matches the 1e18 fixed point used by the on-chain contracts.
const Scale = 18

var (
	// Zero is the additive identity.
	Zero = Decimal{}
	// One is 1.000000000000000000.
	One = FromInt(1)
	// Infinity is the sentinel produced by division by zero.
	Infinity = Decimal{inf: true}

	ulp = decimal.New(1, -Scale)
)

// Decimal is an immutable, non-negative fixed-point number with exactly 18
// fractional digits. The zero value is ready to use and equals Zero.
//
// Results of Mul, Div and MulDiv are truncated at the fixed scale, the same
// way the contracts round. Pow rounds half-up at every step.
type Decimal struct {
	v   decimal.Decimal
	inf bool
}

func newDecimal(v decimal.Decimal) Decimal {
	if v.IsNegative() {
		panic(fmt.Sprintf("DECIMAL_NEGATIVE: %s", v.String()))
	}
	return Decimal{v: v}
}

// FromInt creates a Decimal from a non-negative integer. Panics on negative input.
func FromInt(i int64) Decimal {
	return newDecimal(decimal.NewFromInt(i))
}

// FromUint64 creates a Decimal from an unsigned integer.
func FromUint64(u uint64) Decimal {
	return Decimal{v: decimal.NewFromBigInt(new(big.Int).SetUint64(u), 0)}
}

// FromFloat converts an IEEE float, rounding half-up at the fixed scale.
// +Inf maps to Infinity; NaN and negative values panic.
func FromFloat(f float64) Decimal {
	if math.IsInf(f, 1) {
		return Infinity
	}
	if math.IsNaN(f) || f < 0 {
		panic(fmt.Sprintf("DECIMAL_INVALID_FLOAT: %v", f))
	}
	return newDecimal(decimal.NewFromFloat(f).Round(Scale))
}

// FromShopspring adopts a shopspring decimal, rounding half-up at the fixed scale.
func FromShopspring(d decimal.Decimal) (Decimal, error) {
	if d.IsNegative() {
		return Zero, &ParseError{Input: d.String(), Reason: "negative value"}
	}
	return Decimal{v: d.Round(Scale)}, nil
}

// Parse reads a decimal string such as "1234.5", "0.005" or "2e18".
// Digits beyond the fixed scale round half-up. "∞" and "infinity" parse to Infinity.
func Parse(s string) (Decimal, error) {
	trimmed := strings.TrimSpace(s)
	switch strings.ToLower(trimmed) {
	case "":
		return Zero, &ParseError{Input: s, Reason: "empty string"}
	case "∞", "infinity", "inf":
		return Infinity, nil
	}
	if strings.HasPrefix(trimmed, "-") {
		return Zero, &ParseError{Input: s, Reason: "negative value"}
	}
	v, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Zero, &ParseError{Input: s, Reason: "malformed number", Err: err}
	}
	return FromShopspring(v)
}

// MustParse is Parse for constants. Panics on malformed input.
func MustParse(s string) Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ParseOrZero substitutes Zero for malformed input.
// Only for display paths where a bad value must not block rendering.
func ParseOrZero(s string) Decimal {
	d, err := Parse(s)
	if err != nil {
		return Zero
	}
	return d
}

// Infinite reports whether d is the Infinity sentinel.
func (d Decimal) Infinite() bool { return d.inf }

// IsZero reports whether d is exactly zero.
func (d Decimal) IsZero() bool { return !d.inf && d.v.IsZero() }

// NonZero reports whether d is anything other than zero.
func (d Decimal) NonZero() bool { return !d.IsZero() }

// Add returns d + x.
func (d Decimal) Add(x Decimal) Decimal {
	if d.inf || x.inf {
		return Infinity
	}
	return Decimal{v: d.v.Add(x.v)}
}

// Sub returns d - x. The result must not be negative.
func (d Decimal) Sub(x Decimal) Decimal {
	if x.inf {
		panic(fmt.Sprintf("DECIMAL_UNDEFINED_SUB: %s - ∞", d.String()))
	}
	if d.inf {
		return Infinity
	}
	if d.v.LessThan(x.v) {
		panic(fmt.Sprintf("DECIMAL_UNDERFLOW: %s - %s", d.String(), x.String()))
	}
	return Decimal{v: d.v.Sub(x.v)}
}

// Mul returns d * x truncated at the fixed scale.
func (d Decimal) Mul(x Decimal) Decimal {
	if d.inf || x.inf {
		if d.IsZero() || x.IsZero() {
			return Zero
		}
		return Infinity
	}
	return Decimal{v: d.v.Mul(x.v).Truncate(Scale)}
}

// Div returns d / x truncated at the fixed scale. Division by zero yields Infinity.
func (d Decimal) Div(x Decimal) Decimal {
	switch {
	case x.IsZero():
		return Infinity
	case d.inf && x.inf:
		panic("DECIMAL_UNDEFINED_DIV: ∞ / ∞")
	case d.inf:
		return Infinity
	case x.inf:
		return Zero
	}
	q, _ := d.v.QuoRem(x.v, Scale)
	return Decimal{v: q}
}

// DivCeil returns d / x rounded up at the fixed scale.
func (d Decimal) DivCeil(x Decimal) Decimal {
	if x.IsZero() || d.inf || x.inf {
		return d.Div(x)
	}
	q, r := d.v.QuoRem(x.v, Scale)
	if !r.IsZero() {
		q = q.Add(ulp)
	}
	return Decimal{v: q}
}

// MulDiv returns d * multiplier / divider without intermediate truncation.
func (d Decimal) MulDiv(multiplier, divider Decimal) Decimal {
	if divider.IsZero() {
		return Infinity
	}
	if d.inf || multiplier.inf || divider.inf {
		return d.Mul(multiplier).Div(divider)
	}
	q, _ := d.v.Mul(multiplier.v).QuoRem(divider.v, Scale)
	return Decimal{v: q}
}

// Pow raises d to a non-negative integer power by repeated squaring,
// rounding every intermediate product half-up.
func (d Decimal) Pow(exponent uint32) Decimal {
	if exponent == 0 {
		return One
	}
	if d.inf {
		return Infinity
	}
	if exponent == 1 {
		return d
	}
	x, y := d.v, One.v
	for n := exponent; n > 1; n >>= 1 {
		if n&1 == 1 {
			y = roundedMul(x, y)
		}
		x = roundedMul(x, x)
	}
	return Decimal{v: roundedMul(x, y)}
}

func roundedMul(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).Round(Scale)
}

// Cmp returns -1, 0 or +1. Infinity sorts above every finite value.
func (d Decimal) Cmp(x Decimal) int {
	switch {
	case d.inf && x.inf:
		return 0
	case d.inf:
		return 1
	case x.inf:
		return -1
	}
	return d.v.Cmp(x.v)
}

func (d Decimal) Eq(x Decimal) bool  { return d.Cmp(x) == 0 }
func (d Decimal) Lt(x Decimal) bool  { return d.Cmp(x) < 0 }
func (d Decimal) Lte(x Decimal) bool { return d.Cmp(x) <= 0 }
func (d Decimal) Gt(x Decimal) bool  { return d.Cmp(x) > 0 }
func (d Decimal) Gte(x Decimal) bool { return d.Cmp(x) >= 0 }

// Min returns the smaller of a and b.
func Min(a, b Decimal) Decimal {
	if a.Lte(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Decimal) Decimal {
	if a.Gte(b) {
		return a
	}
	return b
}

// Shopspring exposes the finite value for interop. Panics for Infinity.
func (d Decimal) Shopspring() decimal.Decimal {
	if d.inf {
		panic("DECIMAL_INFINITE: no finite representation")
	}
	return d.v
}

// String renders the exact value with trailing zeros trimmed.
func (d Decimal) String() string {
	if d.inf {
		return "∞"
	}
	return d.v.String()
}

// StringFixed renders d with the given number of fractional digits, rounding half-up.
func (d Decimal) StringFixed(precision int32) string {
	if d.inf {
		return "∞"
	}
	if precision > Scale {
		precision = Scale
	}
	return d.v.StringFixed(precision)
}

// Prettify renders d for display with thousands separators.
func (d Decimal) Prettify(precision int32) string {
	if d.inf {
		return "∞"
	}
	characteristic, mantissa, hasMantissa := strings.Cut(d.StringFixed(precision), ".")
	pretty := groupThousands(characteristic)
	if hasMantissa {
		return pretty + "." + mantissa
	}
	return pretty
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

var magnitudes = []string{"", "K", "M", "B", "T"}

// Shorten renders d with a magnitude suffix, e.g. 1234567 -> "1.235M".
func (d Decimal) Shorten() string {
	if d.inf {
		return "∞"
	}
	characteristicLength := len(d.StringFixed(0))
	magnitude := min((characteristicLength-1)/3, len(magnitudes)-1)
	precision := max(3-(characteristicLength-1-3*magnitude), 0)
	normalized := d.Div(Decimal{v: decimal.New(1, int32(3*magnitude))})
	return normalized.Prettify(int32(precision)) + magnitudes[magnitude]
}

// MarshalJSON encodes d as a JSON string.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a JSON string or number.
func (d *Decimal) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		s = string(data)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Decimal) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for config decoders.
func (d *Decimal) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
