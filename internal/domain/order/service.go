package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/till/internal/domain/cart"
	"github.com/xenking/till/internal/domain/product"
)

// Checkout preconditions.
var (
	ErrEmptyCart        = errors.New("cart is empty")
	ErrCustomerRequired = errors.New("customer is required")
)

// CheckoutRequest holds the input for finalizing a terminal's cart.
type CheckoutRequest struct {
	TerminalID string
	BranchID   string
	CashierID  string
	Cart       cart.State
}

// Service turns staged carts into persisted orders.
type Service struct {
	orders Repository
	pricer cart.Pricer
	now    func() time.Time

	tracer  trace.Tracer
	placed  metric.Int64Counter
	revenue metric.Float64Counter
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTracerProvider sets the tracer used for checkout spans.
func WithTracerProvider(tp trace.TracerProvider) ServiceOption {
	return func(s *Service) { s.tracer = tp.Tracer("github.com/xenking/till/internal/domain/order") }
}

// WithMeterProvider sets the meter used for order counters.
func WithMeterProvider(mp metric.MeterProvider) ServiceOption {
	return func(s *Service) { s.initMetrics(mp) }
}

// WithClock overrides the order timestamp source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates an order Service.
func NewService(orders Repository, pricer cart.Pricer, opts ...ServiceOption) *Service {
	s := &Service{
		orders: orders,
		pricer: pricer,
		now:    time.Now,
		tracer: tracenoop.NewTracerProvider().Tracer(""),
	}
	s.initMetrics(metricnoop.NewMeterProvider())
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) initMetrics(mp metric.MeterProvider) {
	m := mp.Meter("github.com/xenking/till/internal/domain/order")
	// Instrument creation only fails on invalid names; fall back to no-ops.
	placed, err := m.Int64Counter("till.orders.placed",
		metric.WithDescription("Number of orders placed"))
	if err != nil {
		placed, _ = metricnoop.Meter{}.Int64Counter("")
	}
	revenue, err := m.Float64Counter("till.orders.revenue",
		metric.WithDescription("Sum of order totals"))
	if err != nil {
		revenue, _ = metricnoop.Meter{}.Float64Counter("")
	}
	s.placed, s.revenue = placed, revenue
}

// Checkout validates the cart, computes its totals, persists the order and
// returns it. The cart itself is not modified.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Checkout",
		trace.WithAttributes(
			attribute.String("till.terminal", req.TerminalID),
			attribute.Int("till.cart.lines", len(req.Cart.Items)),
		))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if len(req.Cart.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if req.Cart.SelectedCustomer == nil {
		return nil, ErrCustomerRequired
	}

	o := s.build(req)
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	attrs := metric.WithAttributes(attribute.String("payment_type", string(o.PaymentType)))
	s.placed.Add(ctx, 1, attrs)
	s.revenue.Add(ctx, o.TotalAmount.InexactFloat64(), attrs)
	span.SetAttributes(attribute.String("till.order.id", o.ID))

	return o, nil
}

// Get returns a persisted order.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	return o, nil
}

func (s *Service) build(req CheckoutRequest) *Order {
	c := req.Cart
	totals := s.pricer.Totals(c).Rounded()

	lines := make([]Line, len(c.Items))
	for i, it := range c.Items {
		productType := it.ProductType
		if productType == "" {
			productType = product.TypeRetail
		}
		lines[i] = Line{
			ProductID:     it.ID,
			Name:          it.Name,
			Quantity:      it.Quantity,
			Price:         it.UnitPrice,
			ProductType:   productType,
			DiscountType:  DiscountTypeOf(it.Discount.Kind),
			DiscountValue: it.Discount.Amount,
			Total:         cart.LineTotal(it).Round(2),
		}
	}

	return &Order{
		ID:             uuid.New().String(),
		TerminalID:     req.TerminalID,
		BranchID:       req.BranchID,
		CashierID:      req.CashierID,
		CustomerID:     c.SelectedCustomer.ID,
		PaymentType:    c.PaymentMethod,
		Note:           c.Note,
		DiscountType:   DiscountTypeOf(c.OrderDiscount.Kind),
		DiscountValue:  c.OrderDiscount.Amount,
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.OrderDiscount,
		TaxAmount:      totals.Tax,
		TotalAmount:    totals.GrandTotal,
		Lines:          lines,
		CreatedAt:      s.now().UTC(),
	}
}
