package cart

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Engine owns the State of one terminal and applies commands to it one at a
// time.
type Engine struct {
	mu     sync.Mutex
	state  State
	strict bool
	env    env
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for held order timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.env.now = now }
}

// WithIDGenerator overrides the held order id generator.
func WithIDGenerator(next func() string) Option {
	return func(e *Engine) { e.env.nextID = next }
}

// WithStrict makes Apply reject commands that would be no-ops: unknown line
// ids, unknown held orders and holding an empty cart.
func WithStrict(strict bool) Option {
	return func(e *Engine) { e.strict = strict }
}

// NewEngine returns an Engine holding an empty cart.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		state: NewState(),
		env: env{
			now:    time.Now,
			nextID: newHeldOrderID,
		},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Strict reports whether the engine rejects no-op commands.
func (e *Engine) Strict() bool {
	return e.strict
}

// Apply runs cmd against the cart. A permissive engine returns nil for
// commands that only describe a no-op input. A strict engine returns the
// command's error and leaves the cart untouched. Commands that must resolve
// a held order by id fail in both modes.
func (e *Engine) Apply(cmd Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply(cmd)
}

// ApplySnapshot is Apply followed by Snapshot under the same lock, so the
// returned cart is exactly the result of cmd.
func (e *Engine) ApplySnapshot(cmd Command) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.apply(cmd); err != nil {
		return State{}, err
	}
	return e.state.Clone(), nil
}

func (e *Engine) apply(cmd Command) error {
	// State methods never write into shared slices, so a shallow copy is an
	// independent working state.
	next := e.state
	if err := cmd.apply(&next, e.env); err != nil {
		if _, ok := cmd.(resolver); ok || e.strict {
			return err
		}
	}
	e.state = next
	return nil
}

// Snapshot returns a deep copy of the current cart.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Restore replaces the cart with a copy of s.
func (e *Engine) Restore(s State) {
	s = s.Clone()
	if s.Items == nil {
		s.Items = []LineItem{}
	}
	if s.HeldOrders == nil {
		s.HeldOrders = []HeldOrder{}
	}
	if s.PaymentMethod == "" {
		s.PaymentMethod = PaymentCash
	}
	if s.OrderDiscount.Kind == "" {
		s.OrderDiscount = DefaultOrderDiscount()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
}

func newHeldOrderID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
