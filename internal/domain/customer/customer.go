package customer

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested customer does not exist.
var ErrNotFound = errors.New("customer not found")

// Customer is a record from the customer directory. The cart stores it as an
// opaque reference and never mutates it.
type Customer struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Repository defines read operations for the customer directory.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Customer, error)
	Search(ctx context.Context, query string, limit int) ([]Customer, error)
}
