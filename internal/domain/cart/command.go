package cart

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/till/internal/domain/customer"
	"github.com/xenking/till/internal/domain/product"
)

// Errors reported by an Engine in strict mode. A permissive engine treats
// the same inputs as no-ops.
var (
	ErrLineNotFound      = errors.New("cart line not found")
	ErrHeldOrderNotFound = errors.New("held order not found")
	ErrEmptyCart         = errors.New("cart is empty")
)

// LineNotFoundError names the product id that has no line in the cart.
type LineNotFoundError struct {
	ProductID string
}

func (e *LineNotFoundError) Error() string {
	return fmt.Sprintf("no cart line for product %s", e.ProductID)
}

// Unwrap allows errors.Is(err, ErrLineNotFound).
func (e *LineNotFoundError) Unwrap() error { return ErrLineNotFound }

// env carries what a command may need besides the state.
type env struct {
	now    func() time.Time
	nextID func() string
}

// Command is a single cart transition. Implementations are the exported
// command structs of this package.
//
// apply always performs the permissive transition and returns an error only
// to describe an input that a strict engine must reject.
type Command interface {
	// Name identifies the command in logs and metrics.
	Name() string
	apply(s *State, e env) error
}

// resolver marks commands that have no transition to apply when their
// lookup fails.
type resolver interface {
	resolves()
}

type (
	// AddItem adds one unit of Product.
	AddItem struct{ Product product.Product }
	// SetItemQuantity sets a line's quantity; <= 0 removes it.
	SetItemQuantity struct {
		ProductID string
		Quantity  int
	}
	// RemoveItem deletes a line.
	RemoveItem struct{ ProductID string }
	// SetItemDiscount replaces a line's discount.
	SetItemDiscount struct {
		ProductID string
		Discount  Discount
	}
	// SetOrderDiscount replaces the order discount.
	SetOrderDiscount struct{ Discount Discount }
	// SetCustomer selects a customer; nil clears the selection.
	SetCustomer struct{ Customer *customer.Customer }
	// SetNote replaces the note.
	SetNote struct{ Note string }
	// SetPaymentMethod replaces the payment method.
	SetPaymentMethod struct{ Method PaymentMethod }
	// HoldOrder parks the current sale.
	HoldOrder struct{}
	// ResumeOrder restores a held sale from its snapshot.
	ResumeOrder struct{ Order HeldOrder }
	// ResumeHeld restores the held order with ID. Unlike ResumeOrder it
	// carries no snapshot, so an unknown id is an error in every mode.
	ResumeHeld struct{ ID string }
	// ClearCart empties the sale, keeping held orders.
	ClearCart struct{}
	// ResetOrder starts a new sale after checkout.
	ResetOrder struct{}
	// SetCurrentOrder records the last placed order.
	SetCurrentOrder struct{ Order *OrderRef }
)

func (AddItem) Name() string          { return "add_item" }
func (SetItemQuantity) Name() string  { return "set_item_quantity" }
func (RemoveItem) Name() string       { return "remove_item" }
func (SetItemDiscount) Name() string  { return "set_item_discount" }
func (SetOrderDiscount) Name() string { return "set_order_discount" }
func (SetCustomer) Name() string      { return "set_customer" }
func (SetNote) Name() string          { return "set_note" }
func (SetPaymentMethod) Name() string { return "set_payment_method" }
func (HoldOrder) Name() string        { return "hold_order" }
func (ResumeOrder) Name() string      { return "resume_order" }
func (ResumeHeld) Name() string       { return "resume_held" }
func (ClearCart) Name() string        { return "clear_cart" }
func (ResetOrder) Name() string       { return "reset_order" }
func (SetCurrentOrder) Name() string  { return "set_current_order" }

func (c AddItem) apply(s *State, _ env) error {
	s.AddItem(c.Product)
	return nil
}

func (c SetItemQuantity) apply(s *State, _ env) error {
	if !s.SetItemQuantity(c.ProductID, c.Quantity) {
		return &LineNotFoundError{ProductID: c.ProductID}
	}
	return nil
}

func (c RemoveItem) apply(s *State, _ env) error {
	if !s.RemoveItem(c.ProductID) {
		return &LineNotFoundError{ProductID: c.ProductID}
	}
	return nil
}

func (c SetItemDiscount) apply(s *State, _ env) error {
	if !s.SetItemDiscount(c.ProductID, c.Discount) {
		return &LineNotFoundError{ProductID: c.ProductID}
	}
	return nil
}

func (c SetOrderDiscount) apply(s *State, _ env) error {
	s.SetOrderDiscount(c.Discount)
	return nil
}

func (c SetCustomer) apply(s *State, _ env) error {
	s.SetSelectedCustomer(c.Customer)
	return nil
}

func (c SetNote) apply(s *State, _ env) error {
	s.SetNote(c.Note)
	return nil
}

func (c SetPaymentMethod) apply(s *State, _ env) error {
	s.SetPaymentMethod(c.Method)
	return nil
}

func (HoldOrder) apply(s *State, e env) error {
	if _, ok := s.Hold(e.nextID(), e.now()); !ok {
		return ErrEmptyCart
	}
	return nil
}

func (c ResumeOrder) apply(s *State, _ env) error {
	if !s.Resume(c.Order) {
		return errors.Wrapf(ErrHeldOrderNotFound, "resume %s", c.Order.ID)
	}
	return nil
}

func (c ResumeHeld) apply(s *State, _ env) error {
	h, ok := s.HeldOrder(c.ID)
	if !ok {
		return errors.Wrapf(ErrHeldOrderNotFound, "resume %s", c.ID)
	}
	s.Resume(h)
	return nil
}

func (ResumeHeld) resolves() {}

func (ClearCart) apply(s *State, _ env) error {
	s.Clear()
	return nil
}

func (ResetOrder) apply(s *State, _ env) error {
	s.ResetOrder()
	return nil
}

func (c SetCurrentOrder) apply(s *State, _ env) error {
	s.SetCurrentOrder(c.Order)
	return nil
}
