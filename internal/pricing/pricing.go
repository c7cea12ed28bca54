// Package pricing derives checkout totals from a cart total and a discount.
// The client uses it for display; the server runs the same rule and is
// authoritative.
package pricing

import (
	"github.com/shopspring/decimal"
)

var (
	// TaxRate applied to the discounted subtotal
	TaxRate = decimal.RequireFromString("0.08")

	// FreeShippingThreshold: carts strictly above it ship free
	FreeShippingThreshold = decimal.NewFromInt(100)

	// FlatShipping charged at or below the threshold
	FlatShipping = decimal.NewFromInt(10)
)

// Quote is the full price breakdown for an order
type Quote struct {
	ItemsPrice    decimal.Decimal `json:"itemsPrice"`
	DiscountPrice decimal.Decimal `json:"discountPrice"`
	TaxablePrice  decimal.Decimal `json:"taxablePrice"`
	TaxPrice      decimal.Decimal `json:"taxPrice"`
	ShippingPrice decimal.Decimal `json:"shippingPrice"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
}

// Derive computes the quote for cartTotal with discount applied.
//
//	taxable  = max(0, cartTotal - discount)
//	tax      = round2(taxable * TaxRate)
//	shipping = 0 if cartTotal > FreeShippingThreshold else FlatShipping
//	total    = round2(taxable + tax + shipping)
//
// The shipping threshold is checked against the pre-discount cart total.
func Derive(cartTotal, discount decimal.Decimal) Quote {
	if discount.IsNegative() {
		discount = decimal.Zero
	}

	taxable := cartTotal.Sub(discount)
	if taxable.IsNegative() {
		taxable = decimal.Zero
	}

	tax := taxable.Mul(TaxRate).Round(2)

	shipping := FlatShipping
	if cartTotal.GreaterThan(FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	return Quote{
		ItemsPrice:    cartTotal,
		DiscountPrice: discount,
		TaxablePrice:  taxable,
		TaxPrice:      tax,
		ShippingPrice: shipping,
		TotalPrice:    taxable.Add(tax).Add(shipping).Round(2),
	}
}

// Matches reports whether two quotes agree to the cent on every charged field
func (q Quote) Matches(other Quote) bool {
	return sameCents(q.ItemsPrice, other.ItemsPrice) &&
		sameCents(q.DiscountPrice, other.DiscountPrice) &&
		sameCents(q.TaxPrice, other.TaxPrice) &&
		sameCents(q.ShippingPrice, other.ShippingPrice) &&
		sameCents(q.TotalPrice, other.TotalPrice)
}

func sameCents(a, b decimal.Decimal) bool {
	return a.Round(2).Equal(b.Round(2))
}
