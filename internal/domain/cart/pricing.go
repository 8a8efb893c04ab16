package cart

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// DefaultTaxRate is the flat GST applied to the cart subtotal.
var DefaultTaxRate = decimal.RequireFromString("0.18")

// Totals holds the derived amounts of a cart.
type Totals struct {
	// Subtotal is the sum of line totals, net of line discounts.
	Subtotal decimal.Decimal
	// Tax is levied on Subtotal, before the order discount.
	Tax decimal.Decimal
	// OrderDiscount is the amount taken off by the order-level discount.
	OrderDiscount decimal.Decimal
	// GrandTotal is Subtotal + Tax - OrderDiscount.
	GrandTotal decimal.Decimal
}

// Rounded returns t with every amount rounded to 2 decimal places.
func (t Totals) Rounded() Totals {
	return Totals{
		Subtotal:      t.Subtotal.Round(2),
		Tax:           t.Tax.Round(2),
		OrderDiscount: t.OrderDiscount.Round(2),
		GrandTotal:    t.GrandTotal.Round(2),
	}
}

// Pricer derives totals from cart state. The zero value charges no tax.
type Pricer struct {
	TaxRate decimal.Decimal
}

// NewPricer returns a Pricer with the given tax rate.
func NewPricer(taxRate decimal.Decimal) Pricer {
	return Pricer{TaxRate: taxRate}
}

// DefaultPricer returns a Pricer charging DefaultTaxRate.
func DefaultPricer() Pricer {
	return Pricer{TaxRate: DefaultTaxRate}
}

// LineSubtotal is unit price times quantity.
func LineSubtotal(item LineItem) decimal.Decimal {
	return item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
}

// LineDiscountAmount is the reduction the line's own discount yields.
// Fixed line discounts apply per unit.
func LineDiscountAmount(item LineItem) decimal.Decimal {
	switch item.Discount.Kind {
	case DiscountPercentage:
		return LineSubtotal(item).Mul(item.Discount.Amount).Div(hundred)
	case DiscountFixed:
		return item.Discount.Amount.Mul(decimal.NewFromInt(int64(item.Quantity)))
	default:
		return decimal.Zero
	}
}

// LineTotal is the line subtotal minus its discount. It is not floored and
// goes negative when the discount exceeds the subtotal.
func LineTotal(item LineItem) decimal.Decimal {
	return LineSubtotal(item).Sub(LineDiscountAmount(item))
}

// Subtotal sums the line totals of items.
func Subtotal(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(LineTotal(it))
	}
	return sum
}

// OrderDiscountAmount is the reduction of d on subtotal. Fixed order
// discounts apply once.
func OrderDiscountAmount(d Discount, subtotal decimal.Decimal) decimal.Decimal {
	switch d.Kind {
	case DiscountPercentage:
		return subtotal.Mul(d.Amount).Div(hundred)
	case DiscountFixed:
		return d.Amount
	default:
		return decimal.Zero
	}
}

// Tax is the levy on subtotal.
func (p Pricer) Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(p.TaxRate)
}

// Totals computes all derived amounts of s. It reads s only.
func (p Pricer) Totals(s State) Totals {
	subtotal := Subtotal(s.Items)
	tax := p.Tax(subtotal)
	discount := OrderDiscountAmount(s.OrderDiscount, subtotal)
	return Totals{
		Subtotal:      subtotal,
		Tax:           tax,
		OrderDiscount: discount,
		GrandTotal:    subtotal.Add(tax).Sub(discount),
	}
}
