package cart

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DiscountKind enumerates how a discount amount is interpreted.
type DiscountKind string

const (
	// DiscountNone contributes nothing regardless of the amount.
	DiscountNone DiscountKind = "none"
	// DiscountPercentage treats the amount as a percentage of the base.
	DiscountPercentage DiscountKind = "percentage"
	// DiscountFixed treats the amount as currency. Line discounts scale it by
	// quantity, the order discount subtracts it once.
	DiscountFixed DiscountKind = "fixed"
)

// Discount is a line-level or order-level price reduction.
type Discount struct {
	Kind   DiscountKind    `json:"kind"`
	Amount decimal.Decimal `json:"amount"`
}

// NoDiscount is the discount of a freshly added line.
func NoDiscount() Discount {
	return Discount{Kind: DiscountNone, Amount: decimal.Zero}
}

// DefaultOrderDiscount is the order discount of an empty cart: 0%.
func DefaultOrderDiscount() Discount {
	return Discount{Kind: DiscountPercentage, Amount: decimal.Zero}
}

// IsZero reports whether the discount cannot change a price.
func (d Discount) IsZero() bool {
	return d.Kind == DiscountNone || d.Amount.IsZero()
}

// Equal compares two discounts by kind and numeric amount.
func (d Discount) Equal(o Discount) bool {
	return d.Kind == o.Kind && d.Amount.Equal(o.Amount)
}

// ParseDiscountKind maps user or backend spellings to a DiscountKind.
// Anything unrecognised becomes DiscountNone.
func ParseDiscountKind(s string) DiscountKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "percentage", "percent", "%":
		return DiscountPercentage
	case "fixed", "fixed_amount", "amount":
		return DiscountFixed
	default:
		return DiscountNone
	}
}

// ParseAmount parses a decimal amount, coercing anything non-numeric or
// negative to zero.
func ParseAmount(s string) decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// ParseDiscount builds a Discount from loosely typed input without failing.
func ParseDiscount(kind, amount string) Discount {
	return Discount{
		Kind:   ParseDiscountKind(kind),
		Amount: ParseAmount(amount),
	}
}

// normalize coerces a programmatically built discount the same way
// ParseDiscount coerces text.
func (d Discount) normalize() Discount {
	switch d.Kind {
	case DiscountPercentage, DiscountFixed:
	default:
		d.Kind = DiscountNone
	}
	if d.Amount.IsNegative() {
		d.Amount = decimal.Zero
	}
	return d
}
