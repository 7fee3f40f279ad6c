package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// maxAmountDigits bounds both the integer digits and the scale of an amount.
const maxAmountDigits = 20

// ParseAmount converts a decimal string to an exact amount.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted.
// Negative values are allowed; bills carry no sign constraint.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,34")  -> 12.34
//	ParseAmount("-5")     -> -5
//	ParseAmount("abc")    -> ErrInvalidAmount
//	ParseAmount("1e999")  -> ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	exp := int(d.Exponent())
	if exp > maxAmountDigits || exp < -maxAmountDigits || d.NumDigits()+exp > maxAmountDigits {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatAmount renders an amount with two decimals for display.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
