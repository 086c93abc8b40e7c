// Package money holds the single currency convention used by the service:
// amounts are integer counts of minor units (cents), converted from the
// browser's major-unit numbers exactly once at the request boundary.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// minorExponent is the number of decimal places between major and minor
// units. Zero-decimal currencies are not supported.
const minorExponent = 2

// Exponent window accepted by ParseMajor. Rescaling a decimal costs time in
// the size of its exponent, so values like 1e-99999999 are refused up front.
const (
	minExponent = -(minorExponent + 16)
	maxExponent = 18
)

var (
	ErrNotANumber       = errors.New("amount is not a number")
	ErrNotPositive      = errors.New("amount must be positive")
	ErrTooManyDecimals  = errors.New("amount has more than two decimal places")
	ErrUnsupportedScale = errors.New("amount is out of range")
)

var hundred = decimal.New(1, minorExponent)

// Amount is a non-negative count of minor currency units.
type Amount struct {
	minor int64
}

// FromMinor wraps an integer number of minor units.
func FromMinor(minor int64) (Amount, error) {
	if minor <= 0 {
		return Amount{}, ErrNotPositive
	}
	return Amount{minor: minor}, nil
}

// FromMajor converts a whole number of major units.
func FromMajor(major int64) (Amount, error) {
	if major > math.MaxInt64/100 {
		return Amount{}, ErrUnsupportedScale
	}
	return FromMinor(major * 100)
}

// ParseMajor parses a decimal major-unit string such as "50" or "12.5".
func ParseMajor(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, ErrNotANumber
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrNotANumber, s)
	}

	return fromDecimal(d)
}

func fromDecimal(d decimal.Decimal) (Amount, error) {
	if !d.IsPositive() {
		return Amount{}, ErrNotPositive
	}
	switch exp := d.Exponent(); {
	case exp < minExponent:
		return Amount{}, ErrTooManyDecimals
	case exp > maxExponent:
		return Amount{}, ErrUnsupportedScale
	}

	minor := d.Mul(hundred)
	if !minor.Equal(minor.Truncate(0)) {
		return Amount{}, ErrTooManyDecimals
	}
	if !minor.BigInt().IsInt64() {
		return Amount{}, ErrUnsupportedScale
	}

	return Amount{minor: minor.IntPart()}, nil
}

func (a Amount) Minor() int64 {
	return a.minor
}

// Major returns the amount in major units, exact.
func (a Amount) Major() decimal.Decimal {
	return decimal.New(a.minor, -minorExponent)
}

func (a Amount) IsZero() bool {
	return a.minor == 0
}

// Within reports whether a lies in the closed interval [lo, hi].
func (a Amount) Within(lo, hi Amount) bool {
	return a.minor >= lo.minor && a.minor <= hi.minor
}

// MultipleOf reports whether a is a whole multiple of unit.
func (a Amount) MultipleOf(unit Amount) bool {
	return unit.minor > 0 && a.minor%unit.minor == 0
}

// String renders the major-unit value with two decimals, e.g. "50.00".
func (a Amount) String() string {
	return a.Major().StringFixed(minorExponent)
}
