// Package core provides the debt domain types and input parsing.
//
// This file contains functions for parsing monetary amounts and interest
// rates from form strings into decimals.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseAmount converts a user-entered decimal string into a decimal value.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Signs are
// rejected; zero is accepted and left to the validators.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("-1")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsDigit(r) {
				return decimal.Zero, ErrInvalidAmount
			}
		}
	}
	if parts[0] == "" {
		s = "0" + s
	}
	if strings.HasSuffix(s, ".") {
		s = strings.TrimSuffix(s, ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParsePercentRate parses an annual rate entered as a percentage ("18" or
// "18.5") and returns it as a fraction (0.18, 0.185).
func ParsePercentRate(s string) (decimal.NullDecimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.NullDecimal{}, ErrMissingInterestRate
	}
	v, err := ParseAmount(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(v.Div(hundred)), nil
}

// FormatAmount renders an amount with two decimals, clamping negatives to 0.
func FormatAmount(d decimal.Decimal) string {
	if d.IsNegative() {
		d = decimal.Zero
	}
	return d.StringFixed(2)
}

// FormatMoney renders an amount as a dollar string for the UI.
func FormatMoney(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}
