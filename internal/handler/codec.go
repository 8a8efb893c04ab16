package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/till/internal/domain/cart"
	"github.com/xenking/till/internal/domain/customer"
	"github.com/xenking/till/internal/domain/order"
	"github.com/xenking/till/internal/domain/product"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks request decoding failures.
var errBadRequest = errors.New("bad request")

// writeJSON encodes a response body with fn and writes it with status.
func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError writes the {"code":..,"message":..} error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

// decodeBody walks the top-level fields of a JSON object body. An empty
// body is treated as an empty object.
func decodeBody(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	if len(data) == 0 {
		return nil
	}
	d := jx.DecodeBytes(data)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	}); err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	return nil
}

// decodeString reads a string, treating null as empty.
func decodeString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// decodeLooseAmount reads a number or numeric string. Anything else decodes
// to zero rather than failing.
func decodeLooseAmount(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return cart.ParseAmount(n.String()), nil
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return cart.ParseAmount(s), nil
	default:
		return decimal.Zero, d.Skip()
	}
}

// decodeDiscount reads {"type": "...", "value": ...}.
func decodeDiscount(r *http.Request) (cart.Discount, error) {
	var (
		kind   string
		amount = decimal.Zero
	)
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "type", "kind":
			kind, err = decodeString(d)
		case "value", "amount":
			amount, err = decodeLooseAmount(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return cart.Discount{}, err
	}
	return cart.Discount{Kind: cart.ParseDiscountKind(kind), Amount: amount}, nil
}

func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func encodeDiscount(e *jx.Encoder, v cart.Discount) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str(string(v.Kind)) })
		e.Field("value", func(e *jx.Encoder) { encodeDecimal(e, v.Amount) })
	})
}

func encodeCustomer(e *jx.Encoder, c *customer.Customer) {
	if c == nil {
		e.Null()
		return
	}
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(c.ID) })
		e.Field("fullName", func(e *jx.Encoder) { e.Str(c.FullName) })
		e.Field("phone", func(e *jx.Encoder) { e.Str(c.Phone) })
		e.Field("email", func(e *jx.Encoder) { e.Str(c.Email) })
	})
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("sku", func(e *jx.Encoder) { e.Str(p.SKU) })
		e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
		e.Field("productType", func(e *jx.Encoder) { e.Str(p.ProductType) })
		e.Field("sellingPrice", func(e *jx.Encoder) { encodeDecimal(e, p.SellingPrice) })
		e.Field("mrp", func(e *jx.Encoder) { encodeDecimal(e, p.MRP) })
		e.Field("image", func(e *jx.Encoder) { e.Str(p.Image) })
	})
}

func encodeLine(e *jx.Encoder, it cart.LineItem) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(it.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
		e.Field("sku", func(e *jx.Encoder) { e.Str(it.SKU) })
		e.Field("productType", func(e *jx.Encoder) { e.Str(it.ProductType) })
		e.Field("unitPrice", func(e *jx.Encoder) { encodeDecimal(e, it.UnitPrice) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
		e.Field("discount", func(e *jx.Encoder) { encodeDiscount(e, it.Discount) })
		e.Field("subtotal", func(e *jx.Encoder) { encodeDecimal(e, cart.LineSubtotal(it)) })
		e.Field("discountAmount", func(e *jx.Encoder) { encodeDecimal(e, cart.LineDiscountAmount(it)) })
		e.Field("total", func(e *jx.Encoder) { encodeDecimal(e, cart.LineTotal(it)) })
	})
}

func encodeHeldOrder(e *jx.Encoder, h cart.HeldOrder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(h.ID) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range h.Items {
					encodeLine(e, it)
				}
			})
		})
		e.Field("customer", func(e *jx.Encoder) { encodeCustomer(e, h.Customer) })
		e.Field("note", func(e *jx.Encoder) { e.Str(h.Note) })
		e.Field("orderDiscount", func(e *jx.Encoder) { encodeDiscount(e, h.OrderDiscount) })
		e.Field("timestamp", func(e *jx.Encoder) { encodeTime(e, h.Timestamp) })
	})
}

func encodeHeldOrders(e *jx.Encoder, held []cart.HeldOrder) {
	e.Arr(func(e *jx.Encoder) {
		for _, h := range held {
			encodeHeldOrder(e, h)
		}
	})
}

func encodeTotals(e *jx.Encoder, t cart.Totals) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("subtotal", func(e *jx.Encoder) { encodeDecimal(e, t.Subtotal) })
		e.Field("tax", func(e *jx.Encoder) { encodeDecimal(e, t.Tax) })
		e.Field("discountAmount", func(e *jx.Encoder) { encodeDecimal(e, t.OrderDiscount) })
		e.Field("total", func(e *jx.Encoder) { encodeDecimal(e, t.GrandTotal) })
	})
}

func encodeCart(e *jx.Encoder, terminalID string, s cart.State, t cart.Totals) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("terminalId", func(e *jx.Encoder) { e.Str(terminalID) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range s.Items {
					encodeLine(e, it)
				}
			})
		})
		e.Field("itemCount", func(e *jx.Encoder) { e.Int(s.ItemCount()) })
		e.Field("selectedCustomer", func(e *jx.Encoder) { encodeCustomer(e, s.SelectedCustomer) })
		e.Field("note", func(e *jx.Encoder) { e.Str(s.Note) })
		e.Field("orderDiscount", func(e *jx.Encoder) { encodeDiscount(e, s.OrderDiscount) })
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(string(s.PaymentMethod)) })
		e.Field("heldOrders", func(e *jx.Encoder) { encodeHeldOrders(e, s.HeldOrders) })
		e.Field("currentOrder", func(e *jx.Encoder) {
			if s.CurrentOrder == nil {
				e.Null()
				return
			}
			ref := s.CurrentOrder
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Str(ref.ID) })
				e.Field("total", func(e *jx.Encoder) { encodeDecimal(e, ref.Total) })
				e.Field("placedAt", func(e *jx.Encoder) { encodeTime(e, ref.PlacedAt) })
			})
		})
		e.Field("totals", func(e *jx.Encoder) { encodeTotals(e, t) })
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("terminalId", func(e *jx.Encoder) { e.Str(o.TerminalID) })
		e.Field("branchId", func(e *jx.Encoder) { e.Str(o.BranchID) })
		e.Field("cashierId", func(e *jx.Encoder) { e.Str(o.CashierID) })
		e.Field("customerId", func(e *jx.Encoder) { e.Str(o.CustomerID) })
		e.Field("paymentType", func(e *jx.Encoder) { e.Str(string(o.PaymentType)) })
		e.Field("note", func(e *jx.Encoder) { e.Str(o.Note) })
		e.Field("discountType", func(e *jx.Encoder) { e.Str(string(o.DiscountType)) })
		e.Field("discountValue", func(e *jx.Encoder) { encodeDecimal(e, o.DiscountValue) })
		e.Field("subtotal", func(e *jx.Encoder) { encodeDecimal(e, o.Subtotal) })
		e.Field("discountAmount", func(e *jx.Encoder) { encodeDecimal(e, o.DiscountAmount) })
		e.Field("taxAmount", func(e *jx.Encoder) { encodeDecimal(e, o.TaxAmount) })
		e.Field("totalAmount", func(e *jx.Encoder) { encodeDecimal(e, o.TotalAmount) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range o.Lines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Str(l.ProductID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
						e.Field("price", func(e *jx.Encoder) { encodeDecimal(e, l.Price) })
						e.Field("productType", func(e *jx.Encoder) { e.Str(l.ProductType) })
						e.Field("discountType", func(e *jx.Encoder) { e.Str(string(l.DiscountType)) })
						e.Field("discountValue", func(e *jx.Encoder) { encodeDecimal(e, l.DiscountValue) })
						e.Field("total", func(e *jx.Encoder) { encodeDecimal(e, l.Total) })
					})
				}
			})
		})
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
	})
}
