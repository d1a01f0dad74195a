// Package promise provides decorators for context-aware async functions:
// Reuse shares one in-flight call between callers passing equal arguments,
// Sequential runs calls one at a time in arrival order. They compose.
package promise

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Func is the shape every decorator accepts and returns.
type Func[A, R any] func(ctx context.Context, arg A) (R, error)

// ErrArgumentsNotSerializable is returned when the reuse key cannot be built.
// It signals a programming error; fn is not called.
var ErrArgumentsNotSerializable = errors.New("arguments are not serializable")

type reuseConfig[A any] struct {
	serialize func(A) (string, error)
	onShared  func(key string)
}

// ReuseOption configures Reuse.
type ReuseOption[A any] func(*reuseConfig[A])

// WithSerializer replaces the JSON key builder.
func WithSerializer[A any](fn func(A) (string, error)) ReuseOption[A] {
	return func(c *reuseConfig[A]) { c.serialize = fn }
}

// WithSharedHook is called whenever a caller joins an in-flight call.
func WithSharedHook[A any](fn func(key string)) ReuseOption[A] {
	return func(c *reuseConfig[A]) { c.onShared = fn }
}

func jsonKey[A any](arg A) (string, error) {
	b, err := json.Marshal(arg)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// flight is the context of one shared call. It is cancelled once every
// caller waiting on the call has returned.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Reuse wraps fn so concurrent calls with equal serialized arguments share a
// single invocation. The entry is dropped as soon as the call settles, so a
// later call runs fn again. The shared call keeps the first caller's values
// but is cancelled only when all of its callers have given up; each caller
// returns on its own ctx.
func Reuse[A, R any](fn Func[A, R], opts ...ReuseOption[A]) Func[A, R] {
	cfg := reuseConfig[A]{serialize: jsonKey[A]}
	for _, opt := range opts {
		opt(&cfg)
	}

	var (
		group   singleflight.Group
		mu      sync.Mutex
		flights = map[string]*flight{}
	)

	join := func(ctx context.Context, key string) *flight {
		mu.Lock()
		defer mu.Unlock()
		f, ok := flights[key]
		if !ok {
			fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			f = &flight{ctx: fctx, cancel: cancel}
			flights[key] = f
		}
		f.waiters++
		return f
	}
	leave := func(key string, f *flight) {
		mu.Lock()
		defer mu.Unlock()
		f.waiters--
		if f.waiters > 0 {
			return
		}
		f.cancel()
		if flights[key] == f {
			delete(flights, key)
			group.Forget(key)
		}
	}
	settle := func(key string, f *flight) {
		mu.Lock()
		defer mu.Unlock()
		if flights[key] == f {
			delete(flights, key)
		}
	}

	return func(ctx context.Context, arg A) (R, error) {
		var zero R
		key, err := cfg.serialize(arg)
		if err != nil {
			return zero, fmt.Errorf("%w: %w", ErrArgumentsNotSerializable, err)
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		f := join(ctx, key)
		defer leave(key, f)

		ch := group.DoChan(key, func() (any, error) {
			defer settle(key, f)
			return fn(f.ctx, arg)
		})
		select {
		case res := <-ch:
			if res.Shared && cfg.onShared != nil {
				cfg.onShared(key)
			}
			r, _ := res.Val.(R)
			return r, res.Err
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}
