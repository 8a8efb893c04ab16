package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/till/internal/domain/customer"
)

const (
	getCustomerSQL = `SELECT id, full_name, phone, email FROM customers WHERE id = $1`

	searchCustomersSQL = `SELECT id, full_name, phone, email FROM customers
	WHERE full_name ILIKE $1 OR phone ILIKE $1 OR email ILIKE $1
	ORDER BY full_name LIMIT $2`

	upsertCustomerSQL = `INSERT INTO customers (id, full_name, phone, email)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO UPDATE SET
		full_name = EXCLUDED.full_name,
		phone = EXCLUDED.phone,
		email = EXCLUDED.email`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// GetByID returns a customer or customer.ErrNotFound.
func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*customer.Customer, error) {
	var c customer.Customer
	err := r.pool.QueryRow(ctx, getCustomerSQL, id).Scan(&c.ID, &c.FullName, &c.Phone, &c.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get customer %q", id)
	}
	return &c, nil
}

// Search matches customers by name, phone or email substring.
func (r *CustomerRepository) Search(ctx context.Context, query string, limit int) ([]customer.Customer, error) {
	rows, err := r.pool.Query(ctx, searchCustomersSQL, searchPattern(query), limit)
	if err != nil {
		return nil, errors.Wrap(err, "search customers")
	}
	customers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (customer.Customer, error) {
		var c customer.Customer
		err := row.Scan(&c.ID, &c.FullName, &c.Phone, &c.Email)
		return c, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan customers")
	}
	return customers, nil
}

// UpsertCustomers inserts or updates customers in a single batch.
func (r *CustomerRepository) UpsertCustomers(ctx context.Context, customers []customer.Customer) error {
	if len(customers) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range customers {
		batch.Queue(upsertCustomerSQL, c.ID, c.FullName, c.Phone, c.Email)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrapf(err, "upsert %d customers", len(customers))
	}
	return nil
}
