package domain

import (
	"errors"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

// QuotePlaces is the number of decimal places kept on converted amounts.
const QuotePlaces = 4

const (
	maxDecimalLength   = 64
	maxDecimalExponent = 32
)

var (
	errNotDecimal       = errors.New("must be a decimal number")
	errDecimalTooLong   = errors.New("must be at most 64 characters")
	errExponentTooLarge = errors.New("exponent is out of range")

	decimalPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)
)

// ParseDecimal parses a plain or exponent decimal into an exact rational.
// Fractions such as "1/3", hex literals and exponents beyond ±32 are rejected.
func ParseDecimal(s string) (*big.Rat, error) {
	s = strings.TrimSpace(s)
	if len(s) > maxDecimalLength {
		return nil, errDecimalTooLong
	}
	if !decimalPattern.MatchString(s) {
		return nil, errNotDecimal
	}
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		exp, err := strconv.Atoi(s[i+1:])
		if err != nil || exp > maxDecimalExponent || exp < -maxDecimalExponent {
			return nil, errExponentTooLarge
		}
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, errNotDecimal
	}
	return r, nil
}

// FitsPlaces reports whether r has no significant digits beyond places
// fractional digits.
func FitsPlaces(r *big.Rat, places int) bool {
	if places < 0 {
		places = 0
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(places)), nil)
	return new(big.Rat).Mul(r, new(big.Rat).SetInt(scale)).IsInt()
}

// Convert multiplies amount by rate without rounding.
func Convert(amount, rate *big.Rat) *big.Rat {
	return new(big.Rat).Mul(amount, rate)
}

// TruncateDecimal renders r with exactly places fractional digits, dropping
// anything beyond them toward zero.
func TruncateDecimal(r *big.Rat, places int) string {
	if places < 0 {
		places = 0
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(places)), nil)
	scaled := new(big.Int).Mul(r.Num(), scale)
	scaled.Quo(scaled, r.Denom())

	negative := scaled.Sign() < 0
	digits := new(big.Int).Abs(scaled).String()
	if len(digits) <= places {
		digits = strings.Repeat("0", places-len(digits)+1) + digits
	}

	out := digits[:len(digits)-places]
	if places > 0 {
		out += "." + digits[len(digits)-places:]
	}
	if negative {
		out = "-" + out
	}
	return out
}
