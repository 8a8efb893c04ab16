// Package redis stores terminal cart snapshots in Redis.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/till/internal/domain/cart"
	"github.com/xenking/till/internal/terminal"
)

var _ terminal.Store = (*SnapshotStore)(nil)

// DefaultTTL is how long an untouched terminal snapshot is kept.
const DefaultTTL = 12 * time.Hour

// SnapshotStore implements terminal.Store on top of a Redis client.
type SnapshotStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewSnapshotStore returns a SnapshotStore. A non-positive ttl uses DefaultTTL.
func NewSnapshotStore(client redis.UniversalClient, ttl time.Duration) *SnapshotStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SnapshotStore{client: client, ttl: ttl}
}

// Load returns the stored cart of a terminal or terminal.ErrNotFound.
func (s *SnapshotStore) Load(ctx context.Context, terminalID string) (*cart.State, error) {
	data, err := s.client.Get(ctx, key(terminalID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, terminal.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}

	var st cart.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, errors.Wrap(err, "unmarshal snapshot")
	}
	return &st, nil
}

// Save writes the cart of a terminal and refreshes its TTL.
func (s *SnapshotStore) Save(ctx context.Context, terminalID string, st cart.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	if err := s.client.Set(ctx, key(terminalID), data, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

// Delete removes the stored cart of a terminal.
func (s *SnapshotStore) Delete(ctx context.Context, terminalID string) error {
	if err := s.client.Del(ctx, key(terminalID)).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

// Ping checks connectivity for the readiness check.
func (s *SnapshotStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func key(terminalID string) string {
	return "till:terminal:" + terminalID
}
