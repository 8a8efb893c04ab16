package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// TypeRetail is the product type assumed when the catalog leaves it empty.
const TypeRetail = "RETAIL"

// Product represents a catalog item a cashier can add to a cart.
type Product struct {
	ID           string
	Name         string
	SKU          string
	Category     string
	ProductType  string
	SellingPrice decimal.Decimal
	MRP          decimal.Decimal
	Image        string
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	Search(ctx context.Context, query string, limit int) ([]Product, error)
}
