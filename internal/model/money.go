package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// minorPerMajor is the number of minor units (paise) in one rupee.
var minorPerMajor = decimal.NewFromInt(100)

// ParseMinor converts a decimal amount in major units to minor units.
// The commerce API reports prices as rupees ("499.50"); the engine works in paise.
// Half-paise are rounded away from zero. Invalid input yields 0.
// Examples: "499.50" → 49950, "100" → 10000, "" → 0
func ParseMinor(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return MinorFromDecimal(d)
}

// MinorFromDecimal converts a major-unit decimal to minor units.
func MinorFromDecimal(d decimal.Decimal) int64 {
	return d.Mul(minorPerMajor).Round(0).IntPart()
}

// DecimalFromMinor converts minor units back to a major-unit decimal for the wire.
func DecimalFromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// FormatMinor renders minor units as a fixed two-place major amount ("499.50").
func FormatMinor(minor int64) string {
	return DecimalFromMinor(minor).StringFixed(2)
}

// ParseMinorUnits converts string amounts already in minor units to int64.
// Used for gateway amounts, which are always integral paise ("49950").
// Fractional input is truncated. Invalid input yields 0.
func ParseMinorUnits(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.IntPart()
}
