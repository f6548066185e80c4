package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "want %s, got %s", want, got.String())
}

func TestDiscountTiers(t *testing.T) {
	cases := []struct {
		items    string
		percent  string
		discount string
	}{
		{"600000", "10", "60000"},
		{"750000", "10", "75000"},
		{"599999.99", "7", "41999.9993"},
		{"300000", "7", "21000"},
		{"250000", "5", "12500"},
		{"200000", "5", "10000"},
		{"100000", "4", "4000"},
		{"99999", "2.5", "2499.98"},
		{"50000", "2.5", "1250"},
		{"49999", "1", "499.99"},
		{"49999.99", "1", "500"},
		{"0", "1", "0"},
	}

	for _, tc := range cases {
		t.Run(tc.items, func(t *testing.T) {
			assertDecimal(t, tc.percent, DiscountPercent(d(tc.items)))
			assertDecimal(t, d(tc.discount).Round(2).String(), Discount(d(tc.items)))
		})
	}
}

func TestDiscountIsMonotonic(t *testing.T) {
	prev := decimal.Zero
	for _, items := range []string{"1000", "50000", "100000", "200000", "300000", "600000", "900000"} {
		got := Discount(d(items))
		assert.True(t, got.GreaterThanOrEqual(prev), "discount for %s dropped to %s", items, got)
		prev = got
	}
}

func TestShippingThreshold(t *testing.T) {
	p := DefaultPolicy()

	assertDecimal(t, "10", p.Shipping(d("100000")))
	assertDecimal(t, "10", p.Shipping(d("99.5")))
	assertDecimal(t, "0", p.Shipping(d("100000.01")))
	assertDecimal(t, "0", p.Shipping(d("150000")))
}

func TestComputeBreakdown(t *testing.T) {
	p := DefaultPolicy()

	b := p.Compute([]Line{
		{Price: d("120000"), Quantity: 2},
		{Price: d("5000"), Quantity: 2},
	})

	assertDecimal(t, "250000", b.ItemsPrice)
	assertDecimal(t, "0", b.ShippingPrice)
	assertDecimal(t, "15000", b.TaxPrice)
	assertDecimal(t, "5", b.DiscountPercent)
	assertDecimal(t, "12500", b.DiscountAmount)
	assertDecimal(t, "252500", b.TotalPrice)
}

func TestComputeSmallCart(t *testing.T) {
	p := DefaultPolicy()

	b := p.Compute([]Line{{Price: d("33.333"), Quantity: 3}})

	assertDecimal(t, "100", b.ItemsPrice)
	assertDecimal(t, "10", b.ShippingPrice)
	assertDecimal(t, "6", b.TaxPrice)
	assertDecimal(t, "1", b.DiscountAmount)
	assertDecimal(t, "115", b.TotalPrice)
}

func TestComputeEmptyCart(t *testing.T) {
	b := DefaultPolicy().Compute(nil)

	assertDecimal(t, "0", b.ItemsPrice)
	assertDecimal(t, "10", b.ShippingPrice)
	assertDecimal(t, "10", b.TotalPrice)
}
