// Package cart implements the cashier cart: line items, discounts, the
// selected customer, payment method and a list of held orders, together with
// the pricing rules that derive subtotal, tax and grand total from them.
//
// State transitions never fail. Unknown ids are ignored, invalid discounts
// are coerced and a non-positive quantity removes the line. Engine wraps a
// State for concurrent callers and can optionally report no-op inputs as
// errors.
package cart

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/till/internal/domain/customer"
	"github.com/xenking/till/internal/domain/product"
)

// PaymentMethod is the tender the cashier selected for the sale.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "CASH"
	PaymentCard PaymentMethod = "CARD"
	PaymentUPI  PaymentMethod = "UPI"
)

// ParsePaymentMethod maps input to a known method, defaulting to cash.
func ParsePaymentMethod(s string) PaymentMethod {
	switch PaymentMethod(strings.ToUpper(strings.TrimSpace(s))) {
	case PaymentCard:
		return PaymentCard
	case PaymentUPI:
		return PaymentUPI
	default:
		return PaymentCash
	}
}

// LineItem is one product entry in the cart.
type LineItem struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	SKU         string          `json:"sku,omitempty"`
	ProductType string          `json:"productType,omitempty"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
	Discount    Discount        `json:"discount"`
}

// OrderRef points at the order record produced by the last checkout.
type OrderRef struct {
	ID       string          `json:"id"`
	Total    decimal.Decimal `json:"total"`
	PlacedAt time.Time       `json:"placedAt"`
}

// HeldOrder is a paused sale set aside for later. Its items never alias the
// live cart.
type HeldOrder struct {
	ID            string             `json:"id"`
	Items         []LineItem         `json:"items"`
	Customer      *customer.Customer `json:"customer,omitempty"`
	Note          string             `json:"note"`
	OrderDiscount Discount           `json:"orderDiscount"`
	Timestamp     time.Time          `json:"timestamp"`
}

// State is the in-progress sale of one terminal.
//
// Methods replace the Items and HeldOrders slices instead of writing into
// them, so a slice obtained before a call keeps its contents.
type State struct {
	Items            []LineItem         `json:"items"`
	SelectedCustomer *customer.Customer `json:"selectedCustomer,omitempty"`
	Note             string             `json:"note"`
	OrderDiscount    Discount           `json:"orderDiscount"`
	PaymentMethod    PaymentMethod      `json:"paymentMethod"`
	HeldOrders       []HeldOrder        `json:"heldOrders"`
	CurrentOrder     *OrderRef          `json:"currentOrder,omitempty"`
}

// NewState returns an empty cart.
func NewState() State {
	return State{
		Items:         []LineItem{},
		OrderDiscount: DefaultOrderDiscount(),
		PaymentMethod: PaymentCash,
		HeldOrders:    []HeldOrder{},
	}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	c := s
	c.Items = cloneItems(s.Items)
	c.HeldOrders = make([]HeldOrder, len(s.HeldOrders))
	for i, h := range s.HeldOrders {
		c.HeldOrders[i] = h.clone()
	}
	c.SelectedCustomer = cloneCustomer(s.SelectedCustomer)
	if s.CurrentOrder != nil {
		ref := *s.CurrentOrder
		c.CurrentOrder = &ref
	}
	return c
}

// ItemCount is the number of distinct lines.
func (s State) ItemCount() int {
	return len(s.Items)
}

// Item returns the line for the product id.
func (s State) Item(id string) (LineItem, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.Items[i], true
	}
	return LineItem{}, false
}

// HeldOrder returns the held order with the given id.
func (s State) HeldOrder(id string) (HeldOrder, bool) {
	for _, h := range s.HeldOrders {
		if h.ID == id {
			return h.clone(), true
		}
	}
	return HeldOrder{}, false
}

// AddItem increments the quantity of an existing line for p or appends a
// new line with quantity 1 and no discount.
func (s *State) AddItem(p product.Product) {
	items := cloneItems(s.Items)
	if i := s.indexOf(p.ID); i >= 0 {
		items[i].Quantity++
		s.Items = items
		return
	}
	s.Items = append(items, LineItem{
		ID:          p.ID,
		Name:        p.Name,
		SKU:         p.SKU,
		ProductType: p.ProductType,
		UnitPrice:   p.SellingPrice,
		Quantity:    1,
		Discount:    NoDiscount(),
	})
}

// SetItemQuantity sets the quantity of a line. A quantity of zero or less
// removes the line. It reports whether the line existed.
func (s *State) SetItemQuantity(id string, quantity int) bool {
	if quantity <= 0 {
		return s.RemoveItem(id)
	}
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	items := cloneItems(s.Items)
	items[i].Quantity = quantity
	s.Items = items
	return true
}

// RemoveItem deletes the line with the id and reports whether it existed.
func (s *State) RemoveItem(id string) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.Items = slices.Delete(cloneItems(s.Items), i, i+1)
	return true
}

// SetItemDiscount replaces the discount of a line and reports whether the
// line existed.
func (s *State) SetItemDiscount(id string, d Discount) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	items := cloneItems(s.Items)
	items[i].Discount = d.normalize()
	s.Items = items
	return true
}

// SetOrderDiscount replaces the order-level discount.
func (s *State) SetOrderDiscount(d Discount) {
	s.OrderDiscount = d.normalize()
}

// SetSelectedCustomer replaces the selected customer; nil clears it.
func (s *State) SetSelectedCustomer(c *customer.Customer) {
	s.SelectedCustomer = cloneCustomer(c)
}

// SetNote replaces the free-text note.
func (s *State) SetNote(note string) {
	s.Note = note
}

// SetPaymentMethod replaces the payment method.
func (s *State) SetPaymentMethod(m PaymentMethod) {
	s.PaymentMethod = m
}

// Hold snapshots the current sale under id, appends it to the held orders
// and empties the sale. The payment method is kept. Holding an empty cart
// does nothing and reports false.
func (s *State) Hold(id string, now time.Time) (HeldOrder, bool) {
	if len(s.Items) == 0 {
		return HeldOrder{}, false
	}
	h := HeldOrder{
		ID:            id,
		Items:         cloneItems(s.Items),
		Customer:      cloneCustomer(s.SelectedCustomer),
		Note:          s.Note,
		OrderDiscount: s.OrderDiscount,
		Timestamp:     now,
	}
	held := make([]HeldOrder, 0, len(s.HeldOrders)+1)
	held = append(held, s.HeldOrders...)
	s.HeldOrders = append(held, h)

	s.Items = []LineItem{}
	s.SelectedCustomer = nil
	s.Note = ""
	s.OrderDiscount = DefaultOrderDiscount()
	return h.clone(), true
}

// Resume restores a held order into the live sale and drops it from the
// held list. The snapshot's contents are restored even when its id is no
// longer held; the return value reports whether it was.
func (s *State) Resume(h HeldOrder) bool {
	s.Items = cloneItems(h.Items)
	s.SelectedCustomer = cloneCustomer(h.Customer)
	s.Note = h.Note
	s.OrderDiscount = h.OrderDiscount

	held := make([]HeldOrder, 0, len(s.HeldOrders))
	found := false
	for _, o := range s.HeldOrders {
		if o.ID == h.ID {
			found = true
			continue
		}
		held = append(held, o)
	}
	s.HeldOrders = held
	return found
}

// Clear resets the sale to its defaults. Held orders survive.
func (s *State) Clear() {
	s.Items = []LineItem{}
	s.SelectedCustomer = nil
	s.Note = ""
	s.OrderDiscount = DefaultOrderDiscount()
	s.PaymentMethod = PaymentCash
	s.CurrentOrder = nil
}

// ResetOrder starts a new sale after checkout. It is the same transition as
// Clear.
func (s *State) ResetOrder() {
	s.Clear()
}

// SetCurrentOrder records the order produced by checkout.
func (s *State) SetCurrentOrder(ref *OrderRef) {
	if ref == nil {
		s.CurrentOrder = nil
		return
	}
	r := *ref
	s.CurrentOrder = &r
}

func (s State) indexOf(id string) int {
	return slices.IndexFunc(s.Items, func(it LineItem) bool { return it.ID == id })
}

func (h HeldOrder) clone() HeldOrder {
	h.Items = cloneItems(h.Items)
	h.Customer = cloneCustomer(h.Customer)
	return h
}

func cloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}

func cloneCustomer(c *customer.Customer) *customer.Customer {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
