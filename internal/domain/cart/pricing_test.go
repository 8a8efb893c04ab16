package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func line(id, price string, qty int, disc Discount) LineItem {
	return LineItem{ID: id, Name: id, UnitPrice: d(price), Quantity: qty, Discount: disc}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, d(want).Equal(got), append([]any{"expected %s, got %s", want, got}, msgAndArgs...)...)
}

func TestLineDiscountAmount(t *testing.T) {
	tests := []struct {
		name string
		item LineItem
		want string
	}{
		{
			name: "none ignores amount",
			item: line("p1", "10", 2, Discount{Kind: DiscountNone, Amount: d("99")}),
			want: "0",
		},
		{
			name: "percentage of line subtotal",
			item: line("p1", "100", 2, Discount{Kind: DiscountPercentage, Amount: d("10")}),
			want: "20",
		},
		{
			name: "fixed scales with quantity",
			item: line("p1", "50", 3, Discount{Kind: DiscountFixed, Amount: d("5")}),
			want: "15",
		},
		{
			name: "fractional percentage",
			item: line("p1", "9.99", 3, Discount{Kind: DiscountPercentage, Amount: d("15")}),
			want: "4.4955",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertDecimal(t, tt.want, LineDiscountAmount(tt.item))
		})
	}
}

func TestLineTotal_NotFlooredAtZero(t *testing.T) {
	item := line("p1", "10", 1, Discount{Kind: DiscountFixed, Amount: d("15")})

	assertDecimal(t, "-5", LineTotal(item))
}

func TestTotals_CompositionOrder(t *testing.T) {
	s := NewState()
	s.Items = []LineItem{
		line("p1", "100", 2, Discount{Kind: DiscountPercentage, Amount: d("10")}),
	}
	s.OrderDiscount = Discount{Kind: DiscountPercentage, Amount: d("5")}

	got := DefaultPricer().Totals(s)

	assertDecimal(t, "180", got.Subtotal)
	assertDecimal(t, "32.4", got.Tax)
	assertDecimal(t, "9", got.OrderDiscount)
	assertDecimal(t, "203.4", got.GrandTotal)
}

func TestTotals_FixedOrderDiscountDoesNotScale(t *testing.T) {
	tests := []struct {
		name  string
		items []LineItem
	}{
		{name: "empty cart", items: nil},
		{name: "one line", items: []LineItem{line("p1", "10", 1, NoDiscount())}},
		{
			name: "many lines",
			items: []LineItem{
				line("p1", "10", 4, NoDiscount()),
				line("p2", "3.50", 7, NoDiscount()),
				line("p3", "1", 1, NoDiscount()),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState()
			s.Items = tt.items
			s.OrderDiscount = Discount{Kind: DiscountFixed, Amount: d("20")}

			assertDecimal(t, "20", DefaultPricer().Totals(s).OrderDiscount)
		})
	}
}

func TestTotals_TaxIgnoresOrderDiscount(t *testing.T) {
	s := NewState()
	s.Items = []LineItem{line("p1", "100", 1, NoDiscount())}
	s.OrderDiscount = Discount{Kind: DiscountFixed, Amount: d("50")}

	got := DefaultPricer().Totals(s)

	assertDecimal(t, "18", got.Tax)
	assertDecimal(t, "68", got.GrandTotal)
}

func TestTotals_CustomTaxRate(t *testing.T) {
	s := NewState()
	s.Items = []LineItem{line("p1", "200", 1, NoDiscount())}

	assertDecimal(t, "10", NewPricer(d("0.05")).Totals(s).Tax)
	assertDecimal(t, "0", Pricer{}.Totals(s).Tax)
}

func TestTotals_Idempotent(t *testing.T) {
	s := NewState()
	s.Items = []LineItem{
		line("p1", "12.34", 3, Discount{Kind: DiscountPercentage, Amount: d("7.5")}),
		line("p2", "0.99", 11, Discount{Kind: DiscountFixed, Amount: d("0.1")}),
	}
	s.OrderDiscount = Discount{Kind: DiscountPercentage, Amount: d("3")}
	p := DefaultPricer()

	first := p.Totals(s)
	second := p.Totals(s)

	assert.True(t, first.Subtotal.Equal(second.Subtotal))
	assert.True(t, first.Tax.Equal(second.Tax))
	assert.True(t, first.OrderDiscount.Equal(second.OrderDiscount))
	assert.True(t, first.GrandTotal.Equal(second.GrandTotal))
}

func TestTotals_Rounded(t *testing.T) {
	got := Totals{
		Subtotal:      d("29.9700"),
		Tax:           d("5.3946"),
		OrderDiscount: d("4.4955"),
		GrandTotal:    d("30.8691"),
	}.Rounded()

	assertDecimal(t, "29.97", got.Subtotal)
	assertDecimal(t, "5.39", got.Tax)
	assertDecimal(t, "4.50", got.OrderDiscount)
	assertDecimal(t, "30.87", got.GrandTotal)
}
