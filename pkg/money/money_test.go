package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     string
	}{
		{"33.335", "USD", "33.34"},
		{"33.334", "USD", "33.33"},
		{"1.005", "EUR", "1.01"},
		{"1500.5", "JPY", "1501"},
		{"1.2345", "KWD", "1.235"},
		{"10", "usd", "10"},
	}

	for _, tt := range tests {
		t.Run(tt.amount+tt.currency, func(t *testing.T) {
			got := Round(decimal.RequireFromString(tt.amount), tt.currency)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestPercent(t *testing.T) {
	got := Percent(decimal.RequireFromString("99.99"), decimal.NewFromInt(50), "USD")
	assert.Equal(t, "50.00", got.StringFixed(2))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(5000), ToMinor(decimal.RequireFromString("50"), "USD"))
	assert.Equal(t, int64(1235), ToMinor(decimal.RequireFromString("1.2345"), "KWD"))
	assert.Equal(t, int64(1501), ToMinor(decimal.RequireFromString("1500.5"), "JPY"))

	assert.True(t, decimal.RequireFromString("12.34").Equal(FromMinor(1234, "USD")))
	assert.True(t, decimal.NewFromInt(1234).Equal(FromMinor(1234, "JPY")))
}

func TestValidCurrency(t *testing.T) {
	assert.True(t, ValidCurrency("USD"))
	assert.False(t, ValidCurrency("usd"))
	assert.False(t, ValidCurrency("US"))
}
