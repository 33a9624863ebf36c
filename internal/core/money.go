// Package core provides the ledger domain types and the money boundary.
//
// This file converts between the stored arbitrary-precision decimal and the
// plain numeric wire form handed to presentation code. It never rounds:
// fixed-point display formatting belongs to the caller.
package core

import (
	"encoding/json"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Bounds on what FromWire accepts. Fifteen significant digits is the most
// float64 carries through a decimal round trip.
const (
	MaxSignificantDigits = 15
	MaxIntegerDigits     = 15
	MaxFractionDigits    = 10
)

// ToWire returns d as a plain number. A value FromWire accepted reads back
// from its JSON form as the same decimal. Derived values such as large sums
// may carry more digits than float64 holds and come back rounded.
func ToWire(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

// FromWire parses a wire value into a decimal.
//
// Accepted inputs are numbers (float, integer, json.Number), decimal strings
// ("12.34", " -5 ") and decimal.Decimal. NaN, infinities and anything that does
// not parse as a finite decimal fail with a *ValidationError wrapping
// ErrInvalidAmount. Values outside the digit bounds above fail with
// ErrAmountOutOfRange.
//
// Examples:
//
//	FromWire(12.34)   -> 12.34, nil
//	FromWire("-0.5")  -> -0.5, nil
//	FromWire("abc")   -> error
//	FromWire("1e400") -> error
func FromWire(v any) (decimal.Decimal, error) {
	d, err := parseWire(v)
	if err != nil {
		return decimal.Zero, err
	}
	return bounded(d)
}

func parseWire(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero, invalidAmount()
		}
		return *x, nil
	case float64:
		return fromFloat(x)
	case float32:
		return fromFloat(float64(x))
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int32:
		return decimal.NewFromInt32(x), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case json.Number:
		return parseDecimal(x.String())
	case string:
		return parseDecimal(x)
	default:
		return decimal.Zero, invalidAmount()
	}
}

// WireMoney is a decimal that marshals to and from a JSON number.
type WireMoney struct {
	decimal.Decimal
}

func (m WireMoney) MarshalJSON() ([]byte, error) {
	return json.Marshal(ToWire(m.Decimal))
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (m *WireMoney) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return invalidAmount()
	}
	d, err := FromWire(raw)
	if err != nil {
		return err
	}
	m.Decimal = d
	return nil
}

func fromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, invalidAmount()
	}
	return decimal.NewFromFloat(f), nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, invalidAmount()
	}
	// decimal.NewFromString also accepts exponents; reject the words it does not.
	switch strings.ToLower(strings.TrimLeft(s, "+-")) {
	case "nan", "inf", "infinity":
		return decimal.Zero, invalidAmount()
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, invalidAmount()
	}
	return d, nil
}

// bounded strips trailing zeros from d and range checks what is left. It
// works on the coefficient and exponent only: rendering an unchecked value
// as text can allocate without limit.
func bounded(d decimal.Decimal) (decimal.Decimal, error) {
	coef := d.Coefficient()
	if coef.Sign() == 0 {
		return decimal.Zero, nil
	}
	exp := int64(d.Exponent())
	digits := strings.TrimLeft(coef.String(), "-")
	trimmed := strings.TrimRight(digits, "0")
	if zeros := len(digits) - len(trimmed); zeros > 0 {
		coef.Quo(coef, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(zeros)), nil))
		exp += int64(zeros)
	}

	significant := int64(len(trimmed))
	intDigits, fracDigits := significant+exp, -exp
	if exp >= 0 {
		fracDigits = 0
	}
	if significant > MaxSignificantDigits || intDigits > MaxIntegerDigits || fracDigits > MaxFractionDigits {
		return decimal.Zero, NewValidationError("amount", ErrAmountOutOfRange)
	}
	return decimal.NewFromBigInt(coef, int32(exp)), nil
}

func invalidAmount() error {
	return NewValidationError("amount", ErrInvalidAmount)
}
