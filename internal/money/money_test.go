package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCompareAmounts(t *testing.T) {
	tests := []struct {
		name     string
		a        string
		b        string
		currency string
		want     int
	}{
		{name: "equal usd", a: "100.00", b: "100", currency: "USD", want: 0},
		{name: "rounding hides noise", a: "100.004", b: "100", currency: "USD", want: 0},
		{name: "less", a: "99.99", b: "100", currency: "USD", want: -1},
		{name: "greater", a: "100.01", b: "100", currency: "USD", want: 1},
		{name: "vnd zero decimals", a: "150000.4", b: "150000", currency: "VND", want: 0},
		{name: "vnd differs", a: "150001", b: "150000", currency: "vnd", want: 1},
		{name: "unknown currency uses two decimals", a: "1.001", b: "1.00", currency: "XYZ", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompareAmounts(decimal.RequireFromString(tt.a), decimal.RequireFromString(tt.b), tt.currency)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestMinorUnits(t *testing.T) {
	t.Run("claimed minor amount matches expected", func(t *testing.T) {
		// Arrange
		expected := decimal.RequireFromString("100.00")

		// Act
		ok := CompareAmounts(FromMinor(decimal.NewFromInt(10000), 100), expected, "USD")
		mismatch := CompareAmounts(FromMinor(decimal.NewFromInt(9999), 100), expected, "USD")

		// Assert
		require.Zero(t, ok)
		require.NotZero(t, mismatch)
	})

	t.Run("to minor", func(t *testing.T) {
		require.Equal(t, int64(15000000), ToMinor(decimal.NewFromInt(150000), 100))
		require.Equal(t, int64(10001), ToMinor(decimal.RequireFromString("100.005"), 100))
	})

	t.Run("scale one is identity", func(t *testing.T) {
		require.True(t, FromMinor(decimal.NewFromInt(7), 1).Equal(decimal.NewFromInt(7)))
	})
}

func TestParse(t *testing.T) {
	d, err := Parse(" 10000 ")
	require.NoError(t, err)
	require.True(t, d.Equal(decimal.NewFromInt(10000)))

	_, err = Parse("ten")
	require.Error(t, err)
}

func TestRepresentable(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		want     bool
	}{
		{name: "whole dong", amount: "100", currency: "VND", want: true},
		{name: "fractional dong", amount: "99.99", currency: "VND", want: false},
		{name: "cents", amount: "99.99", currency: "USD", want: true},
		{name: "sub cent", amount: "99.995", currency: "USD", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Representable(decimal.RequireFromString(tt.amount), tt.currency))
		})
	}
}
