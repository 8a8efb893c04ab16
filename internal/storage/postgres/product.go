package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/till/internal/domain/product"
)

const productColumns = `id, name, sku, category, product_type, selling_price, mrp, image`

const (
	listProductsSQL = `SELECT ` + productColumns + ` FROM products WHERE active ORDER BY name`

	getProductSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1 AND active`

	searchProductsSQL = `SELECT ` + productColumns + ` FROM products
	WHERE active AND (name ILIKE $1 OR sku ILIKE $1 OR id = $2)
	ORDER BY name LIMIT $3`

	upsertProductSQL = `INSERT INTO products (` + productColumns + `, active, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, now())
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		sku = EXCLUDED.sku,
		category = EXCLUDED.category,
		product_type = EXCLUDED.product_type,
		selling_price = EXCLUDED.selling_price,
		mrp = EXCLUDED.mrp,
		image = EXCLUDED.image,
		active = TRUE,
		updated_at = now()`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all active products ordered by name.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return collectProducts(rows)
}

// GetByID returns a single active product or product.ErrNotFound.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	return &p, nil
}

// Search matches products by name or SKU substring, or by exact id.
func (r *ProductRepository) Search(ctx context.Context, query string, limit int) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, searchProductsSQL, searchPattern(query), query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "search products")
	}
	return collectProducts(rows)
}

// UpsertProducts inserts or updates products in a single batch.
func (r *ProductRepository) UpsertProducts(ctx context.Context, products []product.Product) error {
	if len(products) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range products {
		productType := p.ProductType
		if productType == "" {
			productType = product.TypeRetail
		}
		batch.Queue(upsertProductSQL,
			p.ID, p.Name, p.SKU, p.Category, productType, p.SellingPrice, p.MRP, p.Image,
		)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrapf(err, "upsert %d products", len(products))
	}
	return nil
}

func collectProducts(rows pgx.Rows) ([]product.Product, error) {
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(err, "scan products")
	}
	return products, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.SKU, &p.Category, &p.ProductType,
		&p.SellingPrice, &p.MRP, &p.Image,
	)
	return p, err
}
