// Package handler exposes the terminal carts, catalog lookups and checkout
// over HTTP.
package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/till/internal/domain/cart"
	"github.com/xenking/till/internal/domain/customer"
	"github.com/xenking/till/internal/domain/order"
	"github.com/xenking/till/internal/domain/product"
	"github.com/xenking/till/internal/terminal"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// Handler serves the /api routes.
type Handler struct {
	registry  *terminal.Registry
	products  product.Repository
	customers customer.Repository
	orders    *order.Service
	pricer    cart.Pricer
}

// NewHandler constructs a Handler. pricer must match the one used by orders
// so that the cart view and the placed order agree.
func NewHandler(
	registry *terminal.Registry,
	products product.Repository,
	customers customer.Repository,
	orders *order.Service,
	pricer cart.Pricer,
) *Handler {
	return &Handler{
		registry:  registry,
		products:  products,
		customers: customers,
		orders:    orders,
		pricer:    pricer,
	}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/customers", h.searchCustomers)

	mux.HandleFunc("DELETE /api/terminals/{terminal}", h.closeTerminal)
	mux.HandleFunc("GET /api/terminals/{terminal}/cart", h.getCart)
	mux.HandleFunc("POST /api/terminals/{terminal}/cart/items", h.addItem)
	mux.HandleFunc("PUT /api/terminals/{terminal}/cart/items/{id}", h.setItemQuantity)
	mux.HandleFunc("DELETE /api/terminals/{terminal}/cart/items/{id}", h.removeItem)
	mux.HandleFunc("PUT /api/terminals/{terminal}/cart/items/{id}/discount", h.setItemDiscount)
	mux.HandleFunc("PUT /api/terminals/{terminal}/cart/discount", h.setOrderDiscount)
	mux.HandleFunc("PUT /api/terminals/{terminal}/cart/customer", h.setCustomer)
	mux.HandleFunc("PUT /api/terminals/{terminal}/cart/note", h.setNote)
	mux.HandleFunc("PUT /api/terminals/{terminal}/cart/payment-method", h.setPaymentMethod)
	mux.HandleFunc("POST /api/terminals/{terminal}/cart/hold", h.holdOrder)
	mux.HandleFunc("POST /api/terminals/{terminal}/cart/clear", h.clearCart)
	mux.HandleFunc("POST /api/terminals/{terminal}/cart/reset", h.resetOrder)
	mux.HandleFunc("GET /api/terminals/{terminal}/held", h.listHeld)
	mux.HandleFunc("POST /api/terminals/{terminal}/held/{id}/resume", h.resumeOrder)
	mux.HandleFunc("POST /api/terminals/{terminal}/checkout", h.checkout)

	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
}

// fail maps domain errors to HTTP statuses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, customer.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, cart.ErrHeldOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrCustomerRequired),
		errors.Is(err, cart.ErrEmptyCart):
		status = http.StatusUnprocessableEntity
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func searchLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultSearchLimit
	}
	return min(n, maxSearchLimit)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	var (
		products []product.Product
		err      error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		products, err = h.products.Search(r.Context(), q, searchLimit(r))
	} else {
		products, err = h.products.List(r.Context())
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, p := range products {
				encodeProduct(e, p)
			}
		})
	})
}

func (h *Handler) searchCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.customers.Search(r.Context(), r.URL.Query().Get("q"), searchLimit(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range customers {
				encodeCustomer(e, &customers[i])
			}
		})
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}
