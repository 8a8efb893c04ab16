// Package terminal keeps one cart engine per cashier terminal and, when a
// Store is configured, mirrors every change into it so that a terminal can
// pick its sale up again after a restart.
package terminal

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/till/internal/domain/cart"
)

// ErrNotFound is returned by a Store that has no snapshot for a terminal.
var ErrNotFound = errors.New("terminal snapshot not found")

// Store persists cart snapshots keyed by terminal id.
type Store interface {
	Load(ctx context.Context, terminalID string) (*cart.State, error)
	Save(ctx context.Context, terminalID string, s cart.State) error
	Delete(ctx context.Context, terminalID string) error
}

// NopStore keeps nothing.
type NopStore struct{}

func (NopStore) Load(context.Context, string) (*cart.State, error) { return nil, ErrNotFound }
func (NopStore) Save(context.Context, string, cart.State) error    { return nil }
func (NopStore) Delete(context.Context, string) error              { return nil }

// Options configures the engines a Registry creates.
type Options struct {
	Strict bool
	// Clock stamps held orders. Defaults to time.Now.
	Clock func() time.Time
	// SaveTimeout bounds a single snapshot write.
	SaveTimeout time.Duration
}

// Registry maps terminal ids to cart engines.
type Registry struct {
	store Store
	opts  Options

	mu      sync.RWMutex
	engines map[string]*cart.Engine
	sfg     singleflight.Group
}

// NewRegistry creates a Registry. A nil store disables persistence.
func NewRegistry(store Store, opts Options) *Registry {
	if store == nil {
		store = NopStore{}
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Registry{
		store:   store,
		opts:    opts,
		engines: make(map[string]*cart.Engine),
	}
}

// Engine returns the engine of a terminal, loading its last snapshot on
// first use. Concurrent first uses share one load.
func (r *Registry) Engine(ctx context.Context, terminalID string) (*cart.Engine, error) {
	r.mu.RLock()
	e, ok := r.engines[terminalID]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	v, err, _ := r.sfg.Do(terminalID, func() (any, error) {
		r.mu.RLock()
		e, ok := r.engines[terminalID]
		r.mu.RUnlock()
		if ok {
			return e, nil
		}

		e = cart.NewEngine(cart.WithStrict(r.opts.Strict), cart.WithClock(r.opts.Clock))
		s, err := r.store.Load(ctx, terminalID)
		switch {
		case err == nil:
			e.Restore(*s)
		case errors.Is(err, ErrNotFound):
		default:
			return nil, errors.Wrapf(err, "load terminal %s", terminalID)
		}

		r.mu.Lock()
		r.engines[terminalID] = e
		r.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*cart.Engine), nil
}

// Apply runs cmd on the terminal's engine and returns the resulting cart.
// Snapshot persistence is best effort: failures are logged, not returned.
func (r *Registry) Apply(ctx context.Context, terminalID string, cmd cart.Command) (cart.State, error) {
	e, err := r.Engine(ctx, terminalID)
	if err != nil {
		return cart.State{}, err
	}
	s, err := e.ApplySnapshot(cmd)
	if err != nil {
		return cart.State{}, err
	}
	r.save(ctx, terminalID, cmd.Name(), s)
	return s, nil
}

// Snapshot returns the current cart of a terminal.
func (r *Registry) Snapshot(ctx context.Context, terminalID string) (cart.State, error) {
	e, err := r.Engine(ctx, terminalID)
	if err != nil {
		return cart.State{}, err
	}
	return e.Snapshot(), nil
}

// Forget drops a terminal's engine and its stored snapshot.
func (r *Registry) Forget(ctx context.Context, terminalID string) error {
	r.mu.Lock()
	delete(r.engines, terminalID)
	r.mu.Unlock()

	if err := r.store.Delete(ctx, terminalID); err != nil {
		return errors.Wrapf(err, "delete terminal %s", terminalID)
	}
	return nil
}

// Len returns the number of terminals with a live engine.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}

func (r *Registry) save(ctx context.Context, terminalID, command string, s cart.State) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.SaveTimeout)
	defer cancel()

	if err := r.store.Save(ctx, terminalID, s); err != nil {
		zctx.From(ctx).Warn("Save terminal snapshot",
			zap.String("terminal", terminalID),
			zap.String("command", command),
			zap.Error(err),
		)
	}
}
