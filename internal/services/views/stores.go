package views

import (
	"context"
	"net/url"
	"time"

	"govconsole/internal/urlstate"
)

// Stores creates and removes the addressable state of view sessions
type Stores interface {
	Open(ctx context.Context, id string, initial url.Values) (urlstate.Store, error)
	// Resume loads the state of a session opened earlier, possibly by another
	// process. It returns ErrNotFound when nothing is stored under id.
	Resume(ctx context.Context, id string) (urlstate.Store, error)
	Drop(ctx context.Context, id string) error
}

// MemoryStores keeps session state in process
type MemoryStores struct{}

func (MemoryStores) Open(_ context.Context, _ string, initial url.Values) (urlstate.Store, error) {
	return urlstate.NewMemoryStore(initial), nil
}

// Resume always fails: memory state ends with the view.
func (MemoryStores) Resume(context.Context, string) (urlstate.Store, error) {
	return nil, ErrNotFound
}

func (MemoryStores) Drop(context.Context, string) error { return nil }

// RedisStores keeps each session in its own Redis hash
type RedisStores struct {
	Client urlstate.RedisClient
	TTL    time.Duration
}

// Open marks the session hash and writes initial over it. An existing
// session keeps the parameters initial does not name.
func (s RedisStores) Open(ctx context.Context, id string, initial url.Values) (urlstate.Store, error) {
	store, err := urlstate.OpenRedisStore(ctx, s.Client, id, s.TTL)
	if err != nil {
		return nil, err
	}
	if err := store.Mark(ctx); err != nil {
		return nil, err
	}
	if len(initial) == 0 {
		return store, nil
	}
	patch := make(map[string]string, len(initial))
	for k := range initial {
		patch[k] = initial.Get(k)
	}
	if err := store.Write(ctx, patch); err != nil {
		return nil, err
	}
	return store, nil
}

// Resume loads a marked session hash and refreshes its TTL.
func (s RedisStores) Resume(ctx context.Context, id string) (urlstate.Store, error) {
	store, err := urlstate.OpenRedisStore(ctx, s.Client, id, s.TTL)
	if err != nil {
		return nil, err
	}
	if !store.Exists() {
		return nil, ErrNotFound
	}
	if err := store.Mark(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s RedisStores) Drop(ctx context.Context, id string) error {
	return s.Client.Del(ctx, urlstate.KeyPrefix+id).Err()
}
