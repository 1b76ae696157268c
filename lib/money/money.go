package money

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var firstDecimal = regexp.MustCompile(`\d*\.?\d+`)

// ParsePrice extracts the first decimal number from a formatted price
// string, e.g. "$1,234.56" -> 1234.56.
func ParsePrice(value string) (decimal.Decimal, error) {
	stripped := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, value)

	match := firstDecimal.FindString(stripped)
	if match == "" {
		return decimal.Zero, fmt.Errorf("no decimal number in %q", value)
	}
	return decimal.NewFromString(match)
}

// ParsePriceOrNil is ParsePrice for optional fields, empty or
// unparseable input yields nil.
func ParsePriceOrNil(value string) *decimal.Decimal {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	d, err := ParsePrice(value)
	if err != nil {
		return nil
	}
	return &d
}

// FromCents converts an integer amount of minor units to a decimal,
// e.g. 21995 -> 219.95.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ParseCents parses a string holding an integer amount of minor units.
func ParseCents(value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsInteger() {
		return decimal.Zero, fmt.Errorf("minor-unit amount %q is not an integer", value)
	}
	return d.Shift(-2), nil
}

// ParseCentsOrNil is ParseCents for optional fields.
func ParseCentsOrNil(value string) *decimal.Decimal {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	d, err := ParseCents(value)
	if err != nil {
		return nil
	}
	return &d
}
