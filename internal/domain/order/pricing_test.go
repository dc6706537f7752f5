package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPrice(t *testing.T) {
	tests := []struct {
		name     string
		lines    []Line
		percent  decimal.Decimal
		shipping decimal.Decimal
		want     Totals
	}{
		{
			name:    "ten percent of 19.99 rounds half up",
			lines:   []Line{{UnitPrice: dec("19.99"), Quantity: 1}},
			percent: dec("10"),
			want:    Totals{Subtotal: dec("19.99"), DiscountAmount: dec("2.00"), ShippingCost: dec("0"), Total: dec("17.99")},
		},
		{
			name:  "no coupon",
			lines: []Line{{UnitPrice: dec("10.00"), Quantity: 2}, {UnitPrice: dec("0.10"), Quantity: 3}},
			want:  Totals{Subtotal: dec("20.30"), DiscountAmount: dec("0"), ShippingCost: dec("0"), Total: dec("20.30")},
		},
		{
			name:    "half cent discount rounds up",
			lines:   []Line{{UnitPrice: dec("0.05"), Quantity: 1}},
			percent: dec("50"),
			want:    Totals{Subtotal: dec("0.05"), DiscountAmount: dec("0.03"), ShippingCost: dec("0"), Total: dec("0.02")},
		},
		{
			name:     "shipping added after discount",
			lines:    []Line{{UnitPrice: dec("100"), Quantity: 1}},
			percent:  dec("25"),
			shipping: dec("9.99"),
			want:     Totals{Subtotal: dec("100"), DiscountAmount: dec("25"), ShippingCost: dec("9.99"), Total: dec("84.99")},
		},
		{
			name:    "full discount",
			lines:   []Line{{UnitPrice: dec("33.33"), Quantity: 3}},
			percent: dec("100"),
			want:    Totals{Subtotal: dec("99.99"), DiscountAmount: dec("99.99"), ShippingCost: dec("0"), Total: dec("0")},
		},
		{
			name:     "negative shipping is ignored",
			lines:    []Line{{UnitPrice: dec("5"), Quantity: 1}},
			shipping: dec("-3"),
			want:     Totals{Subtotal: dec("5"), DiscountAmount: dec("0"), ShippingCost: dec("0"), Total: dec("5")},
		},
		{
			name: "empty",
			want: Totals{Subtotal: dec("0"), DiscountAmount: dec("0"), ShippingCost: dec("0"), Total: dec("0")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Price(tt.lines, tt.percent, tt.shipping)
			assert.True(t, tt.want.Subtotal.Equal(got.Subtotal), "subtotal: want %s, got %s", tt.want.Subtotal, got.Subtotal)
			assert.True(t, tt.want.DiscountAmount.Equal(got.DiscountAmount), "discount: want %s, got %s", tt.want.DiscountAmount, got.DiscountAmount)
			assert.True(t, tt.want.ShippingCost.Equal(got.ShippingCost), "shipping: want %s, got %s", tt.want.ShippingCost, got.ShippingCost)
			assert.True(t, tt.want.Total.Equal(got.Total), "total: want %s, got %s", tt.want.Total, got.Total)
		})
	}
}

func TestPrice_SubtotalIndependentOfOrder(t *testing.T) {
	lines := []Line{
		{UnitPrice: dec("19.99"), Quantity: 3},
		{UnitPrice: dec("0.01"), Quantity: 7},
		{UnitPrice: dec("1234.56"), Quantity: 1},
		{UnitPrice: dec("0.10"), Quantity: 10},
	}
	want := Price(lines, dec("15"), decimal.Zero)

	reversed := make([]Line, len(lines))
	for i, l := range lines {
		reversed[len(lines)-1-i] = l
	}
	got := Price(reversed, dec("15"), decimal.Zero)

	assert.True(t, want.Subtotal.Equal(got.Subtotal))
	assert.True(t, want.Total.Equal(got.Total))
	assert.True(t, dec("1295.60").Equal(got.Subtotal), got.Subtotal.String())
}

func TestPrice_TotalIdentity(t *testing.T) {
	got := Price([]Line{{UnitPrice: dec("12.345"), Quantity: 3}}, dec("12.5"), dec("4.5"))
	assert.True(t, got.Total.Equal(got.Subtotal.Sub(got.DiscountAmount).Add(got.ShippingCost)))
	assert.True(t, dec("37.04").Equal(got.Subtotal), got.Subtotal.String())
	assert.True(t, dec("36.91").Equal(got.Total), got.Total.String())
	assert.True(t, got.Total.Equal(got.Total.Round(2)))
}

func TestFlatShipping(t *testing.T) {
	policy := FlatShipping(dec("99"), dec("1000"))
	assert.True(t, dec("99").Equal(policy(dec("999.99"))))
	assert.True(t, policy(dec("1000")).IsZero())

	always := FlatShipping(dec("50"), decimal.Zero)
	assert.True(t, dec("50").Equal(always(dec("100000"))))

	assert.True(t, FreeShipping(dec("10")).IsZero())
}
