package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/till/internal/domain/cart"
	"github.com/xenking/till/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (
		id, terminal_id, branch_id, cashier_id, customer_id, payment_type, note,
		discount_type, discount_value, subtotal, discount_amount, tax_amount,
		total_amount, lines, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	getOrderSQL = `SELECT
		id, terminal_id, branch_id, cashier_id, customer_id, payment_type, note,
		discount_type, discount_value, subtotal, discount_amount, tax_amount,
		total_amount, lines, created_at
	FROM orders WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The order lines are serialized to JSON for
// storage in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return errors.Wrap(err, "marshal order lines")
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.TerminalID, o.BranchID, o.CashierID, o.CustomerID,
		string(o.PaymentType), o.Note, string(o.DiscountType), o.DiscountValue,
		o.Subtotal, o.DiscountAmount, o.TaxAmount, o.TotalAmount,
		linesJSON, o.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "create order %q", o.ID)
	}

	return nil
}

// GetByID returns an order or order.ErrNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	var (
		o            order.Order
		paymentType  string
		discountType string
		linesJSON    []byte
	)
	err := r.pool.QueryRow(ctx, getOrderSQL, id).Scan(
		&o.ID, &o.TerminalID, &o.BranchID, &o.CashierID, &o.CustomerID,
		&paymentType, &o.Note, &discountType, &o.DiscountValue,
		&o.Subtotal, &o.DiscountAmount, &o.TaxAmount, &o.TotalAmount,
		&linesJSON, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}

	if err := json.Unmarshal(linesJSON, &o.Lines); err != nil {
		return nil, errors.Wrapf(err, "unmarshal lines of order %q", id)
	}
	o.PaymentType = cart.PaymentMethod(paymentType)
	o.DiscountType = order.DiscountType(discountType)

	return &o, nil
}
