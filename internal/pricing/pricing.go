package pricing

import (
	"github.com/shopspring/decimal"
)

// Policy holds the checkout charges. Amounts are in the store currency.
type Policy struct {
	ShippingFee           decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	TaxRate               decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		ShippingFee:           decimal.NewFromInt(10),
		FreeShippingThreshold: decimal.NewFromInt(100000),
		TaxRate:               decimal.RequireFromString("0.06"),
	}
}

type Line struct {
	Price    decimal.Decimal
	Quantity int
}

type Breakdown struct {
	ItemsPrice      decimal.Decimal `json:"itemsPrice"`
	ShippingPrice   decimal.Decimal `json:"shippingPrice"`
	TaxPrice        decimal.Decimal `json:"taxPrice"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	DiscountAmount  decimal.Decimal `json:"discountAmount"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
}

type discountTier struct {
	min     decimal.Decimal
	percent decimal.Decimal
}

// Ordered from the highest threshold down; the first match wins.
var discountTiers = []discountTier{
	{decimal.NewFromInt(600000), decimal.NewFromInt(10)},
	{decimal.NewFromInt(300000), decimal.NewFromInt(7)},
	{decimal.NewFromInt(200000), decimal.NewFromInt(5)},
	{decimal.NewFromInt(100000), decimal.NewFromInt(4)},
	{decimal.NewFromInt(50000), decimal.RequireFromString("2.5")},
}

var (
	baseDiscount = decimal.NewFromInt(1)
	hundred      = decimal.NewFromInt(100)
)

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// DiscountPercent returns the tiered discount percentage for an items subtotal.
func DiscountPercent(itemsPrice decimal.Decimal) decimal.Decimal {
	for _, tier := range discountTiers {
		if itemsPrice.GreaterThanOrEqual(tier.min) {
			return tier.percent
		}
	}
	return baseDiscount
}

// Discount applies the tiered percentage to the items subtotal only.
func Discount(itemsPrice decimal.Decimal) decimal.Decimal {
	return round2(itemsPrice.Mul(DiscountPercent(itemsPrice)).Div(hundred))
}

// Shipping charges the flat fee unless the subtotal is strictly above the threshold.
func (p Policy) Shipping(itemsPrice decimal.Decimal) decimal.Decimal {
	if itemsPrice.GreaterThan(p.FreeShippingThreshold) {
		return decimal.Zero
	}
	return round2(p.ShippingFee)
}

func (p Policy) Tax(itemsPrice decimal.Decimal) decimal.Decimal {
	return round2(itemsPrice.Mul(p.TaxRate))
}

func ItemsPrice(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return round2(total)
}

func (p Policy) Compute(lines []Line) Breakdown {
	items := ItemsPrice(lines)
	shipping := p.Shipping(items)
	tax := p.Tax(items)
	discount := Discount(items)

	return Breakdown{
		ItemsPrice:      items,
		ShippingPrice:   shipping,
		TaxPrice:        tax,
		DiscountPercent: DiscountPercent(items),
		DiscountAmount:  discount,
		TotalPrice:      items.Add(shipping).Add(tax).Sub(discount),
	}
}
