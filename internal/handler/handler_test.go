package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/till/internal/domain/cart"
	"github.com/xenking/till/internal/domain/customer"
	"github.com/xenking/till/internal/domain/order"
	"github.com/xenking/till/internal/domain/product"
	"github.com/xenking/till/internal/terminal"
)

// --- Fakes ---

type memProducts map[string]product.Product

func (m memProducts) List(context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	return out, nil
}

func (m memProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m memProducts) Search(_ context.Context, q string, limit int) ([]product.Product, error) {
	var out []product.Product
	for _, p := range m {
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(q)) && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

type memCustomers map[string]customer.Customer

func (m memCustomers) GetByID(_ context.Context, id string) (*customer.Customer, error) {
	c, ok := m[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return &c, nil
}

func (m memCustomers) Search(_ context.Context, q string, limit int) ([]customer.Customer, error) {
	var out []customer.Customer
	for _, c := range m {
		if strings.Contains(c.Phone, q) && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

type memOrders struct {
	mu   sync.Mutex
	byID map[string]*order.Order
	err  error
}

func (m *memOrders) Create(_ context.Context, o *order.Order) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[o.ID] = o
	return nil
}

func (m *memOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

// --- Helpers ---

type env struct {
	mux    *http.ServeMux
	orders *memOrders
}

func setup(t *testing.T, opts terminal.Options) *env {
	t.Helper()
	products := memProducts{
		"p1": {ID: "p1", Name: "Masala Chai", SKU: "CH-1", SellingPrice: decimal.RequireFromString("100")},
		"p2": {ID: "p2", Name: "Samosa", SKU: "SM-1", SellingPrice: decimal.RequireFromString("25.50")},
	}
	customers := memCustomers{
		"c1": {ID: "c1", FullName: "Asha Rao", Phone: "9800011111"},
	}
	orders := &memOrders{byID: map[string]*order.Order{}}
	pricer := cart.DefaultPricer()
	svc := order.NewService(orders, pricer, order.WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}))

	h := NewHandler(terminal.NewRegistry(nil, opts), products, customers, svc, pricer)
	mux := http.NewServeMux()
	h.Register(mux)
	return &env{mux: mux, orders: orders}
}

func (e *env) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(w.Body.String()), "{") {
		dec := json.NewDecoder(w.Body)
		dec.UseNumber()
		require.NoError(t, dec.Decode(&out))
	}
	return w, out
}

func num(t *testing.T, v any) decimal.Decimal {
	t.Helper()
	n, ok := v.(json.Number)
	require.True(t, ok, "expected number, got %T", v)
	return decimal.RequireFromString(n.String())
}

func assertNum(t *testing.T, want string, v any) {
	t.Helper()
	got := num(t, v)
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func items(t *testing.T, body map[string]any) []map[string]any {
	t.Helper()
	raw, ok := body["items"].([]any)
	require.True(t, ok)
	out := make([]map[string]any, len(raw))
	for i, v := range raw {
		out[i] = v.(map[string]any)
	}
	return out
}

// --- Tests ---

func TestCart_AddItemAndTotals(t *testing.T) {
	e := setup(t, terminal.Options{})
	const base = "/api/terminals/t1/cart"

	e.do(t, http.MethodPost, base+"/items", `{"productId":"p1"}`)
	w, body := e.do(t, http.MethodPost, base+"/items", `{"productId":"p1"}`)

	require.Equal(t, http.StatusOK, w.Code)
	lines := items(t, body)
	require.Len(t, lines, 1)
	assertNum(t, "2", lines[0]["quantity"])
	assertNum(t, "200", lines[0]["total"])
	assertNum(t, "1", body["itemCount"])

	totals := body["totals"].(map[string]any)
	assertNum(t, "200", totals["subtotal"])
	assertNum(t, "36", totals["tax"])
	assertNum(t, "0", totals["discountAmount"])
	assertNum(t, "236", totals["total"])
	assert.Equal(t, "CASH", body["paymentMethod"])
}

func TestCart_DiscountsCompose(t *testing.T) {
	e := setup(t, terminal.Options{})
	const base = "/api/terminals/t1/cart"
	e.do(t, http.MethodPost, base+"/items", `{"productId":"p1"}`)
	e.do(t, http.MethodPut, base+"/items/p1", `{"quantity":2}`)
	e.do(t, http.MethodPut, base+"/items/p1/discount", `{"type":"percentage","value":10}`)

	w, body := e.do(t, http.MethodPut, base+"/discount", `{"type":"percentage","value":"5"}`)

	require.Equal(t, http.StatusOK, w.Code)
	totals := body["totals"].(map[string]any)
	assertNum(t, "180", totals["subtotal"])
	assertNum(t, "32.4", totals["tax"])
	assertNum(t, "9", totals["discountAmount"])
	assertNum(t, "203.4", totals["total"])
}

func TestCart_DiscountCoercion(t *testing.T) {
	e := setup(t, terminal.Options{})
	const base = "/api/terminals/t1/cart"
	e.do(t, http.MethodPost, base+"/items", `{"productId":"p1"}`)

	_, body := e.do(t, http.MethodPut, base+"/items/p1/discount", `{"type":"fixed","value":"abc"}`)
	d := items(t, body)[0]["discount"].(map[string]any)
	assert.Equal(t, "fixed", d["type"])
	assertNum(t, "0", d["value"])

	_, body = e.do(t, http.MethodPut, base+"/discount", `{"type":"bogus","value":-4}`)
	od := body["orderDiscount"].(map[string]any)
	assert.Equal(t, "none", od["type"])
	assertNum(t, "0", od["value"])
}

func TestCart_QuantityZeroRemovesLine(t *testing.T) {
	e := setup(t, terminal.Options{})
	const base = "/api/terminals/t1/cart"
	e.do(t, http.MethodPost, base+"/items", `{"productId":"p1"}`)
	e.do(t, http.MethodPost, base+"/items", `{"productId":"p2"}`)

	_, body := e.do(t, http.MethodPut, base+"/items/p1", `{"quantity":0}`)
	lines := items(t, body)
	require.Len(t, lines, 1)
	assert.Equal(t, "p2", lines[0]["id"])

	_, body = e.do(t, http.MethodDelete, base+"/items/p2", "")
	assert.Empty(t, items(t, body))
}

func TestCart_QuantityBounds(t *testing.T) {
	const line = "/api/terminals/t1/cart/items/p1"

	for _, tt := range []struct {
		quantity string
		status   int
		want     string // expected quantity of p1, empty when the line is gone
	}{
		{"9223372036854775808", http.StatusBadRequest, "1"},
		{"18446744073709551615", http.StatusBadRequest, "1"},
		{"1e19", http.StatusBadRequest, "1"},
		{"2147483648", http.StatusBadRequest, "1"},
		{"0.5", http.StatusBadRequest, "1"},
		{"2.5", http.StatusBadRequest, "1"},
		{"2147483647", http.StatusOK, "2147483647"},
		{"1e2", http.StatusOK, "100"},
		{"3.0", http.StatusOK, "3"},
		{"-1", http.StatusOK, ""},
		{"-9223372036854775809", http.StatusOK, ""},
	} {
		t.Run(tt.quantity, func(t *testing.T) {
			e := setup(t, terminal.Options{})
			e.do(t, http.MethodPost, "/api/terminals/t1/cart/items", `{"productId":"p1"}`)

			w, _ := e.do(t, http.MethodPut, line, `{"quantity":`+tt.quantity+`}`)
			require.Equal(t, tt.status, w.Code)

			_, body := e.do(t, http.MethodGet, "/api/terminals/t1/cart", "")
			lines := items(t, body)
			if tt.want == "" {
				assert.Empty(t, lines)
				return
			}
			require.Len(t, lines, 1)
			assertNum(t, tt.want, lines[0]["quantity"])
		})
	}
}

func TestCart_Errors(t *testing.T) {
	e := setup(t, terminal.Options{})
	const base = "/api/terminals/t1/cart"

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"UnknownProduct", http.MethodPost, base + "/items", `{"productId":"nope"}`, http.StatusNotFound},
		{"MissingProductID", http.MethodPost, base + "/items", `{}`, http.StatusBadRequest},
		{"MalformedBody", http.MethodPost, base + "/items", `{"productId":`, http.StatusBadRequest},
		{"QuantityNotNumber", http.MethodPut, base + "/items/p1", `{"quantity":"two"}`, http.StatusBadRequest},
		{"QuantityMissing", http.MethodPut, base + "/items/p1", `{}`, http.StatusBadRequest},
		{"UnknownCustomer", http.MethodPut, base + "/customer", `{"customerId":"ghost"}`, http.StatusNotFound},
		{"UnknownHeldOrder", http.MethodPost, "/api/terminals/t1/held/ghost/resume", "", http.StatusNotFound},
		{"UnknownOrder", http.MethodGet, "/api/orders/ghost", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := e.do(t, tt.method, tt.path, tt.body)

			assert.Equal(t, tt.status, w.Code)
			assertNum(t, decimal.NewFromInt(int64(tt.status)).String(), body["code"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestCart_PermissiveIgnoresUnknownLine(t *testing.T) {
	e := setup(t, terminal.Options{})

	w, body := e.do(t, http.MethodDelete, "/api/terminals/t1/cart/items/missing", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, items(t, body))
}

func TestCart_StrictRejectsUnknownLine(t *testing.T) {
	e := setup(t, terminal.Options{Strict: true})

	w, _ := e.do(t, http.MethodDelete, "/api/terminals/t1/cart/items/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = e.do(t, http.MethodPost, "/api/terminals/t1/cart/hold", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCart_CustomerNoteAndPayment(t *testing.T) {
	e := setup(t, terminal.Options{})
	const base = "/api/terminals/t1/cart"

	_, body := e.do(t, http.MethodPut, base+"/customer", `{"customerId":"c1"}`)
	assert.Equal(t, "Asha Rao", body["selectedCustomer"].(map[string]any)["fullName"])

	_, body = e.do(t, http.MethodPut, base+"/customer", `{"customerId":null}`)
	assert.Nil(t, body["selectedCustomer"])

	_, body = e.do(t, http.MethodPut, base+"/note", `{"note":"no sugar"}`)
	assert.Equal(t, "no sugar", body["note"])

	_, body = e.do(t, http.MethodPut, base+"/payment-method", `{"method":"upi"}`)
	assert.Equal(t, "UPI", body["paymentMethod"])
}

func TestCart_HoldAndResume(t *testing.T) {
	e := setup(t, terminal.Options{})
	const base = "/api/terminals/t1"
	e.do(t, http.MethodPost, base+"/cart/items", `{"productId":"p2"}`)
	e.do(t, http.MethodPut, base+"/cart/customer", `{"customerId":"c1"}`)
	e.do(t, http.MethodPut, base+"/cart/note", `{"note":"table 4"}`)

	_, body := e.do(t, http.MethodPost, base+"/cart/hold", "")
	assert.Empty(t, items(t, body))
	assert.Nil(t, body["selectedCustomer"])
	held := body["heldOrders"].([]any)
	require.Len(t, held, 1)
	heldID := held[0].(map[string]any)["id"].(string)

	// Another sale in between.
	e.do(t, http.MethodPost, base+"/cart/items", `{"productId":"p1"}`)

	w, body := e.do(t, http.MethodPost, base+"/held/"+heldID+"/resume", "")
	require.Equal(t, http.StatusOK, w.Code)
	lines := items(t, body)
	require.Len(t, lines, 1)
	assert.Equal(t, "p2", lines[0]["id"])
	assert.Equal(t, "table 4", body["note"])
	assert.Equal(t, "c1", body["selectedCustomer"].(map[string]any)["id"])
	assert.Empty(t, body["heldOrders"])
}

func TestCart_ConcurrentResumeSucceedsOnce(t *testing.T) {
	e := setup(t, terminal.Options{})
	const base = "/api/terminals/t1"
	e.do(t, http.MethodPost, base+"/cart/items", `{"productId":"p2"}`)
	_, body := e.do(t, http.MethodPost, base+"/cart/hold", "")
	heldID := body["heldOrders"].([]any)[0].(map[string]any)["id"].(string)

	codes := make(chan int, 20)
	var wg sync.WaitGroup
	for range cap(codes) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			e.mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, base+"/held/"+heldID+"/resume", nil))
			codes <- w.Code
		}()
	}
	wg.Wait()
	close(codes)

	counts := map[int]int{}
	for c := range codes {
		counts[c]++
	}
	assert.Equal(t, 1, counts[http.StatusOK])
	assert.Equal(t, cap(codes)-1, counts[http.StatusNotFound])

	// A sale started after the resume is not overwritten by a late retry.
	e.do(t, http.MethodPost, base+"/cart/clear", "")
	e.do(t, http.MethodPost, base+"/cart/items", `{"productId":"p1"}`)
	w, _ := e.do(t, http.MethodPost, base+"/held/"+heldID+"/resume", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	_, body = e.do(t, http.MethodGet, base+"/cart", "")
	lines := items(t, body)
	require.Len(t, lines, 1)
	assert.Equal(t, "p1", lines[0]["id"])
}

func TestCart_ListHeld(t *testing.T) {
	e := setup(t, terminal.Options{})
	e.do(t, http.MethodPost, "/api/terminals/t1/cart/items", `{"productId":"p1"}`)
	e.do(t, http.MethodPost, "/api/terminals/t1/cart/hold", "")

	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/terminals/t1/held", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var held []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &held))
	require.Len(t, held, 1)
	assert.NotEmpty(t, held[0]["id"])
	assert.NotEmpty(t, held[0]["timestamp"])
}

func TestCart_ClearKeepsHeldOrders(t *testing.T) {
	e := setup(t, terminal.Options{})
	const base = "/api/terminals/t1/cart"
	e.do(t, http.MethodPost, base+"/items", `{"productId":"p1"}`)
	e.do(t, http.MethodPost, base+"/hold", "")
	e.do(t, http.MethodPost, base+"/items", `{"productId":"p2"}`)

	for _, path := range []string{base + "/clear", base + "/reset"} {
		_, body := e.do(t, http.MethodPost, path, "")
		assert.Empty(t, items(t, body))
		assert.Len(t, body["heldOrders"], 1)
		assert.Equal(t, "CASH", body["paymentMethod"])
	}
}

func TestCheckout(t *testing.T) {
	e := setup(t, terminal.Options{})
	const base = "/api/terminals/t1"

	w, _ := e.do(t, http.MethodPost, base+"/checkout", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "empty cart")

	e.do(t, http.MethodPost, base+"/cart/items", `{"productId":"p1"}`)
	w, _ = e.do(t, http.MethodPost, base+"/checkout", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "no customer")

	e.do(t, http.MethodPut, base+"/cart/customer", `{"customerId":"c1"}`)
	e.do(t, http.MethodPut, base+"/cart/payment-method", `{"method":"CARD"}`)
	w, body := e.do(t, http.MethodPost, base+"/checkout", `{"branchId":"b1","cashierId":"u7"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	orderID := body["id"].(string)
	assert.NotEmpty(t, orderID)
	assert.Equal(t, "b1", body["branchId"])
	assert.Equal(t, "u7", body["cashierId"])
	assert.Equal(t, "c1", body["customerId"])
	assert.Equal(t, "CARD", body["paymentType"])
	assert.Equal(t, "PERCENTAGE", body["discountType"])
	assertNum(t, "118", body["totalAmount"])
	assertNum(t, "18", body["taxAmount"])
	require.Len(t, body["items"], 1)
	assert.Contains(t, e.orders.byID, orderID)

	// The cart now points at the placed order.
	_, cartBody := e.do(t, http.MethodGet, base+"/cart", "")
	ref := cartBody["currentOrder"].(map[string]any)
	assert.Equal(t, orderID, ref["id"])
	assertNum(t, "118", ref["total"])

	w, got := e.do(t, http.MethodGet, "/api/orders/"+orderID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, orderID, got["id"])
}

func TestCheckout_StorageFailure(t *testing.T) {
	e := setup(t, terminal.Options{})
	e.orders.err = errors.New("connection reset")
	const base = "/api/terminals/t1"
	e.do(t, http.MethodPost, base+"/cart/items", `{"productId":"p1"}`)
	e.do(t, http.MethodPut, base+"/cart/customer", `{"customerId":"c1"}`)

	w, body := e.do(t, http.MethodPost, base+"/checkout", `{}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", body["message"])

	_, cartBody := e.do(t, http.MethodGet, base+"/cart", "")
	assert.Nil(t, cartBody["currentOrder"])
	assert.Len(t, items(t, cartBody), 1)
}

func TestCatalogRoutes(t *testing.T) {
	e := setup(t, terminal.Options{})

	for _, tt := range []struct {
		path string
		want int
	}{
		{"/api/products", 2},
		{"/api/products?q=chai", 1},
		{"/api/products?q=chai&limit=0", 1},
		{"/api/customers?q=98000", 1},
		{"/api/customers?q=12345", 0},
	} {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			e.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			require.Equal(t, http.StatusOK, w.Code)
			var list []map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
			assert.Len(t, list, tt.want)
		})
	}
}

func TestTerminalsAreIsolated(t *testing.T) {
	e := setup(t, terminal.Options{})
	e.do(t, http.MethodPost, "/api/terminals/t1/cart/items", `{"productId":"p1"}`)

	_, body := e.do(t, http.MethodGet, "/api/terminals/t2/cart", "")

	assert.Equal(t, "t2", body["terminalId"])
	assert.Empty(t, items(t, body))
}

func TestCloseTerminal(t *testing.T) {
	e := setup(t, terminal.Options{})
	e.do(t, http.MethodPost, "/api/terminals/t1/cart/items", `{"productId":"p1"}`)
	e.do(t, http.MethodPost, "/api/terminals/t1/cart/hold", "")

	w, _ := e.do(t, http.MethodDelete, "/api/terminals/t1", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	_, body := e.do(t, http.MethodGet, "/api/terminals/t1/cart", "")
	assert.Empty(t, items(t, body))
	assert.Empty(t, body["heldOrders"])
}

func TestSearchLimit(t *testing.T) {
	for q, want := range map[string]int{
		"":          defaultSearchLimit,
		"limit=5":   5,
		"limit=-1":  defaultSearchLimit,
		"limit=abc": defaultSearchLimit,
		"limit=900": maxSearchLimit,
	} {
		r := httptest.NewRequest(http.MethodGet, "/api/products?"+q, nil)
		assert.Equal(t, want, searchLimit(r), q)
	}
}
