package order

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Line is the pricing input for one order line.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Totals holds the monetary fields of an order.
type Totals struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	ShippingCost   decimal.Decimal
	Total          decimal.Decimal
}

// ShippingPolicy returns the shipping cost for an order subtotal.
type ShippingPolicy func(subtotal decimal.Decimal) decimal.Decimal

// FreeShipping charges nothing for shipping.
func FreeShipping(decimal.Decimal) decimal.Decimal { return decimal.Zero }

// FlatShipping charges amount unless the subtotal reaches freeOver. A zero
// freeOver never waives the charge.
func FlatShipping(amount, freeOver decimal.Decimal) ShippingPolicy {
	return func(subtotal decimal.Decimal) decimal.Decimal {
		if freeOver.IsPositive() && subtotal.GreaterThanOrEqual(freeOver) {
			return decimal.Zero
		}
		return amount
	}
}

// Price computes order totals. Every derived field is rounded half-up to two
// decimal places on its own, and the total is never negative.
func Price(lines []Line, discountPercent, shipping decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	subtotal = round2(subtotal)

	discount := round2(subtotal.Mul(discountPercent).Div(hundred))
	if discount.IsNegative() {
		discount = decimal.Zero
	}

	shipping = round2(shipping)
	if shipping.IsNegative() {
		shipping = decimal.Zero
	}

	total := round2(subtotal.Sub(discount).Add(shipping))
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		ShippingCost:   shipping,
		Total:          total,
	}
}

// round2 rounds half-up; amounts here are non-negative, where decimal's
// half-away-from-zero rounding is the same thing.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
