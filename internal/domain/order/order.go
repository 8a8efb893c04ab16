package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/till/internal/domain/cart"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// DiscountType is the discount enum understood by the order records.
type DiscountType string

const (
	DiscountNone        DiscountType = "NONE"
	DiscountPercentage  DiscountType = "PERCENTAGE"
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
)

// DiscountTypeOf maps a cart discount kind to the order enum.
func DiscountTypeOf(k cart.DiscountKind) DiscountType {
	switch k {
	case cart.DiscountPercentage:
		return DiscountPercentage
	case cart.DiscountFixed:
		return DiscountFixedAmount
	default:
		return DiscountNone
	}
}

// Order is a finalized sale.
type Order struct {
	ID             string
	TerminalID     string
	BranchID       string
	CashierID      string
	CustomerID     string
	PaymentType    cart.PaymentMethod
	Note           string
	DiscountType   DiscountType
	DiscountValue  decimal.Decimal
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	TotalAmount    decimal.Decimal
	Lines          []Line
	CreatedAt      time.Time
}

// Line is a single product entry of an order.
type Line struct {
	ProductID     string          `json:"productId"`
	Name          string          `json:"name"`
	Quantity      int             `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	ProductType   string          `json:"productType"`
	DiscountType  DiscountType    `json:"discountType"`
	DiscountValue decimal.Decimal `json:"discountValue"`
	Total         decimal.Decimal `json:"total"`
}

// Ref returns the reference the cart keeps to this order.
func (o *Order) Ref() *cart.OrderRef {
	return &cart.OrderRef{
		ID:       o.ID,
		Total:    o.TotalAmount,
		PlacedAt: o.CreatedAt,
	}
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
}
