// Package money holds currency precision rules shared by policy evaluation,
// persistence and provider adapters. Amounts are shopspring decimals
// throughout; minor units only appear at provider boundaries.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ISO 4217 exponents that differ from the usual two decimal places.
var exponents = map[string]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0, "KRW": 0,
	"PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

var hundred = decimal.NewFromInt(100)

// Exponent returns the number of minor-unit digits for currency.
func Exponent(currency string) int32 {
	if exp, ok := exponents[strings.ToUpper(currency)]; ok {
		return exp
	}
	return 2
}

// Round rounds amount half-up (away from zero on ties) to the currency's
// minor-unit precision.
func Round(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(Exponent(currency))
}

// Percent returns amount * pct / 100 rounded to the currency's precision.
func Percent(amount, pct decimal.Decimal, currency string) decimal.Decimal {
	return Round(amount.Mul(pct).Div(hundred), currency)
}

// ToMinor converts a major-unit amount into integer minor units.
func ToMinor(amount decimal.Decimal, currency string) int64 {
	exp := Exponent(currency)
	return Round(amount, currency).Shift(exp).IntPart()
}

// FromMinor converts integer minor units back into a major-unit amount.
func FromMinor(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -Exponent(currency))
}

// ValidCurrency reports whether code looks like an ISO 4217 alphabetic code.
func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
