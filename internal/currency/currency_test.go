package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFraction(t *testing.T) {
	tests := []struct {
		code string
		want int32
	}{
		{"USD", 2},
		{"EUR", 2},
		{"JPY", 0},
		{"KRW", 0},
		{"BHD", 3},
		{"XYZ", DefaultFraction},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, Fraction(tt.code))
		})
	}
}

func TestKnown(t *testing.T) {
	assert.True(t, Known("USD"))
	assert.False(t, Known("XYZ"))
}

func TestRounding(t *testing.T) {
	amount := decimal.RequireFromString("100.123")

	assert.Equal(t, "100.12", Round(amount, "USD").String())
	assert.Equal(t, "100.13", RoundUp(amount, "USD").String())
	assert.Equal(t, "100.12", RoundDown(amount, "USD").String())
	assert.Equal(t, "101", RoundUp(amount, "JPY").String())
	assert.Equal(t, "-100.12", RoundDown(amount.Neg(), "USD").String())
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "$1,234.50", Display(decimal.RequireFromString("1234.5"), "USD"))
	assert.Equal(t, "10.00 XYZ", Display(decimal.NewFromInt(10), "XYZ"))
}
