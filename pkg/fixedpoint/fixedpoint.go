// Package fixedpoint converts human-readable decimal amount strings to and
// from unsigned integers scaled to the smallest native currency unit.
//
// Parsing sits on a trust boundary (allocation tables come from operators),
// so it is a strict parser, not a lenient coercion: the only accepted forms
// are "digits" and "digits.digits". Fractional digits beyond the scale are
// truncated, never rounded.
package fixedpoint

import (
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidAmountFormat is returned for input that is not a plain
	// decimal number: signs, exponents, grouping, whitespace, a bare or
	// trailing dot, or non-ASCII digits all reject.
	ErrInvalidAmountFormat = errors.New("invalid decimal amount format")

	// ErrAmountOverflow is returned when the scaled amount does not fit
	// in an unsigned 256-bit integer.
	ErrAmountOverflow = errors.New("scaled amount overflows uint256")
)

// MaxDecimals bounds the supported scale. 18 is the native scale; anything
// beyond 77 cannot be represented in uint256 even for a value of 1.
const MaxDecimals = 77

// ParseDecimal converts a decimal string to an integer scaled by
// 10^decimals. "1.5" at 18 decimals becomes 1500000000000000000.
//
// Fractional digits past the scale are truncated: "0.0025" at 2 decimals
// parses as 0, not 1.
func ParseDecimal(s string, decimals uint8) (*uint256.Int, error) {
	if decimals > MaxDecimals {
		return nil, errors.Wrapf(ErrInvalidAmountFormat, "unsupported scale %d", decimals)
	}

	intPart, fracPart, err := splitDecimal(s)
	if err != nil {
		return nil, err
	}

	// Truncate, not round, past the scale
	if len(fracPart) > int(decimals) {
		fracPart = fracPart[:decimals]
	}
	// Right-pad the fraction up to the scale
	fracPart += strings.Repeat("0", int(decimals)-len(fracPart))

	// Both parts are digit-only strings, so SetString cannot fail here
	value := new(big.Int)
	value.SetString(intPart+fracPart, 10)

	scaled, overflow := uint256.FromBig(value)
	if overflow {
		return nil, errors.Wrapf(ErrAmountOverflow, "amount %q at scale %d", s, decimals)
	}
	return scaled, nil
}

// FormatUnits renders a scaled amount back as a decimal string, trimming
// trailing fractional zeros. The inverse of ParseDecimal up to truncation.
func FormatUnits(amount *uint256.Int, decimals uint8) string {
	digits := amount.ToBig().String()
	if decimals == 0 {
		return digits
	}

	if len(digits) <= int(decimals) {
		digits = strings.Repeat("0", int(decimals)-len(digits)+1) + digits
	}

	split := len(digits) - int(decimals)
	intPart, fracPart := digits[:split], digits[split:]

	fracPart = strings.TrimRight(fracPart, "0")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}

// splitDecimal validates the strict decimal grammar and returns the integer
// and fractional digit runs.
func splitDecimal(s string) (string, string, error) {
	if s == "" {
		return "", "", errors.Wrap(ErrInvalidAmountFormat, "empty amount")
	}

	intPart := s
	fracPart := ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart, fracPart = s[:dot], s[dot+1:]
		if intPart == "" || fracPart == "" {
			return "", "", errors.Wrapf(ErrInvalidAmountFormat, "amount %q", s)
		}
	}

	if !isDigits(intPart) || (fracPart != "" && !isDigits(fracPart)) {
		return "", "", errors.Wrapf(ErrInvalidAmountFormat, "amount %q", s)
	}

	return intPart, fracPart, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
