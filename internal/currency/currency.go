// Package currency wraps ISO 4217 metadata (minor units) used for cash rounding
package currency

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultFraction is used for codes go-money does not know
const DefaultFraction = 2

// Known reports whether code is an ISO 4217 currency
func Known(code string) bool {
	return money.GetCurrency(code) != nil
}

// Fraction returns the number of minor-unit digits of a currency
func Fraction(code string) int32 {
	cur := money.GetCurrency(code)
	if cur == nil {
		return DefaultFraction
	}
	return int32(cur.Fraction)
}

// Round rounds an amount to the currency's minor unit (half away from zero)
func Round(amount decimal.Decimal, code string) decimal.Decimal {
	return amount.Round(Fraction(code))
}

// RoundUp rounds a positive amount up to the next minor unit
// FX 매수 금액: 부족분을 확실히 메우도록 올림
func RoundUp(amount decimal.Decimal, code string) decimal.Decimal {
	return amount.RoundCeil(Fraction(code))
}

// RoundDown truncates toward zero at the currency's minor unit
func RoundDown(amount decimal.Decimal, code string) decimal.Decimal {
	return amount.Truncate(Fraction(code))
}

// Display formats an amount with the currency symbol (CLI output only)
func Display(amount decimal.Decimal, code string) string {
	if !Known(code) {
		return amount.StringFixed(DefaultFraction) + " " + code
	}
	factor := decimal.New(1, Fraction(code))
	return money.New(amount.Mul(factor).Round(0).IntPart(), code).Display()
}
