package handler

import (
	"math"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/till/internal/domain/cart"
	"github.com/xenking/till/internal/domain/order"
)

// maxQuantity bounds a line quantity so it fits an int on every platform.
var maxQuantity = decimal.NewFromInt(math.MaxInt32)

// apply runs cmd on the terminal of the request and writes the cart view.
func (h *Handler) apply(w http.ResponseWriter, r *http.Request, cmd cart.Command) {
	id := r.PathValue("terminal")
	s, err := h.registry.Apply(r.Context(), id, cmd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCart(w, id, s)
}

func (h *Handler) writeCart(w http.ResponseWriter, terminalID string, s cart.State) {
	totals := h.pricer.Totals(s)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, terminalID, s, totals) })
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("terminal")
	s, err := h.registry.Snapshot(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCart(w, id, s)
}

// closeTerminal signs a terminal off, discarding its cart and held orders.
func (h *Handler) closeTerminal(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Forget(r.Context(), r.PathValue("terminal")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var productID string
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key == "productId" {
			v, err := decodeString(d)
			productID = v
			return err
		}
		return d.Skip()
	}); err != nil {
		h.fail(w, r, err)
		return
	}
	if productID == "" {
		h.fail(w, r, errors.Wrap(errBadRequest, "productId is required"))
		return
	}

	p, err := h.products.GetByID(r.Context(), productID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.apply(w, r, cart.AddItem{Product: *p})
}

func (h *Handler) setItemQuantity(w http.ResponseWriter, r *http.Request) {
	var (
		quantity int
		seen     bool
	)
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		if d.Next() != jx.Number {
			return errors.New("quantity must be a number")
		}
		n, err := d.Num()
		if err != nil {
			return err
		}
		v, err := decimal.NewFromString(n.String())
		if err != nil {
			return err
		}
		if !v.IsInteger() {
			return errors.Errorf("quantity %s is not a whole number", v)
		}
		switch {
		case v.GreaterThan(maxQuantity):
			return errors.Errorf("quantity %s exceeds %s", v, maxQuantity)
		case v.IsPositive():
			quantity = int(v.IntPart())
		default:
			// Any non-positive quantity removes the line.
			quantity = 0
		}
		seen = true
		return nil
	}); err != nil {
		h.fail(w, r, err)
		return
	}
	if !seen {
		h.fail(w, r, errors.Wrap(errBadRequest, "quantity is required"))
		return
	}
	h.apply(w, r, cart.SetItemQuantity{ProductID: r.PathValue("id"), Quantity: quantity})
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, cart.RemoveItem{ProductID: r.PathValue("id")})
}

func (h *Handler) setItemDiscount(w http.ResponseWriter, r *http.Request) {
	d, err := decodeDiscount(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.apply(w, r, cart.SetItemDiscount{ProductID: r.PathValue("id"), Discount: d})
}

func (h *Handler) setOrderDiscount(w http.ResponseWriter, r *http.Request) {
	d, err := decodeDiscount(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.apply(w, r, cart.SetOrderDiscount{Discount: d})
}

func (h *Handler) setCustomer(w http.ResponseWriter, r *http.Request) {
	var customerID string
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key == "customerId" {
			v, err := decodeString(d)
			customerID = v
			return err
		}
		return d.Skip()
	}); err != nil {
		h.fail(w, r, err)
		return
	}
	if customerID == "" {
		h.apply(w, r, cart.SetCustomer{})
		return
	}

	c, err := h.customers.GetByID(r.Context(), customerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.apply(w, r, cart.SetCustomer{Customer: c})
}

func (h *Handler) setNote(w http.ResponseWriter, r *http.Request) {
	var note string
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key == "note" {
			v, err := decodeString(d)
			note = v
			return err
		}
		return d.Skip()
	}); err != nil {
		h.fail(w, r, err)
		return
	}
	h.apply(w, r, cart.SetNote{Note: note})
}

func (h *Handler) setPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var method string
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key == "method" || key == "paymentMethod" {
			v, err := decodeString(d)
			method = v
			return err
		}
		return d.Skip()
	}); err != nil {
		h.fail(w, r, err)
		return
	}
	h.apply(w, r, cart.SetPaymentMethod{Method: cart.ParsePaymentMethod(method)})
}

func (h *Handler) holdOrder(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, cart.HoldOrder{})
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, cart.ClearCart{})
}

func (h *Handler) resetOrder(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, cart.ResetOrder{})
}

func (h *Handler) listHeld(w http.ResponseWriter, r *http.Request) {
	s, err := h.registry.Snapshot(r.Context(), r.PathValue("terminal"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeHeldOrders(e, s.HeldOrders) })
}

// resumeOrder restores a held order by id. The lookup and the restore run
// as one command, so only one of several concurrent resumes succeeds.
func (h *Handler) resumeOrder(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, cart.ResumeHeld{ID: r.PathValue("id")})
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var branchID, cashierID string
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "branchId":
			branchID, err = decodeString(d)
		case "cashierId":
			cashierID, err = decodeString(d)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		h.fail(w, r, err)
		return
	}

	id := r.PathValue("terminal")
	s, err := h.registry.Snapshot(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.orders.Checkout(r.Context(), order.CheckoutRequest{
		TerminalID: id,
		BranchID:   branchID,
		CashierID:  cashierID,
		Cart:       s,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.registry.Apply(r.Context(), id, cart.SetCurrentOrder{Order: o.Ref()}); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}
