// Package memo is the stage cache for the audit pipeline.
//
// Each pipeline stage is memoized under a content-addressed key (see ckey):
// GetOrCompute returns the stored result when one exists, otherwise runs the
// compute function at most once per key, no matter how many callers arrive
// concurrently. Results are persisted in a Store and served verbatim until
// the store is explicitly cleared; there is no TTL here. Failed computations
// are never stored; the error propagates to every waiting caller and the
// next caller retries.
//
// A caller abandoning its wait (context cancelled) does not cancel the
// in-flight computation: the flight runs on a detached context and still
// populates the store for subsequent callers.
package memo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/hazyhaar/storeaudit/ckey"
)

// Store persists computed stage results by namespace and key.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
	Put(ctx context.Context, namespace, key string, value []byte) error
	Clear(ctx context.Context, namespace string) error
}

// Cache deduplicates and persists stage computations.
type Cache struct {
	store  Store
	group  singleflight.Group
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates a Cache over the given store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{store: store, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Clear drops every stored result in the namespace. This is the only
// eviction path; use it for explicit invalidation in tools and tests.
func (c *Cache) Clear(ctx context.Context, namespace string) error {
	return c.store.Clear(ctx, namespace)
}

type flightResult struct {
	raw       []byte
	fromStore bool
}

// GetOrCompute returns the cached value for key, or computes it via fn.
//
// The returned bool reports whether the value came from the cache (a store
// hit, or another caller's in-flight computation) rather than from this
// caller's own fn invocation. It is observability only; the value is the
// same either way.
func GetOrCompute[T any](ctx context.Context, c *Cache, namespace string, key ckey.Key, fn func(context.Context) (T, error)) (T, bool, error) {
	var zero T

	raw, ok, err := c.store.Get(ctx, namespace, key.String())
	if err != nil {
		return zero, false, fmt.Errorf("memo: store get: %w", err)
	}
	if ok {
		v, err := decode[T](raw)
		if err != nil {
			return zero, false, fmt.Errorf("memo: decode %s/%s: %w", namespace, key.Short(), err)
		}
		return v, true, nil
	}

	flightKey := namespace + "\x00" + key.String()
	ch := c.group.DoChan(flightKey, func() (any, error) {
		// Detached from the triggering caller: a timed-out caller must not
		// kill the computation for everyone behind it.
		inner := context.WithoutCancel(ctx)

		// Re-check under the flight: another flight may have stored the
		// value between our miss and this call.
		raw, ok, err := c.store.Get(inner, namespace, key.String())
		if err != nil {
			return nil, fmt.Errorf("memo: store get: %w", err)
		}
		if ok {
			return flightResult{raw: raw, fromStore: true}, nil
		}

		v, err := fn(inner)
		if err != nil {
			return nil, err
		}
		raw, err = json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("memo: encode %s/%s: %w", namespace, key.Short(), err)
		}
		if err := c.store.Put(inner, namespace, key.String(), raw); err != nil {
			// The value is good; losing the write only costs a recompute
			// on the next cold call.
			c.logger.Warn("memo: store put failed", "namespace", namespace, "key", key.Short(), "error", err)
		}
		return flightResult{raw: raw}, nil
	})

	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		fr := res.Val.(flightResult)
		v, err := decode[T](fr.raw)
		if err != nil {
			return zero, false, fmt.Errorf("memo: decode %s/%s: %w", namespace, key.Short(), err)
		}
		return v, res.Shared || fr.fromStore, nil
	}
}

func decode[T any](raw []byte) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}
