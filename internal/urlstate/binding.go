package urlstate

import (
	"context"
	"net/url"
)

// SerializeFunc renders state relative to the initial state. Keys are
// unprefixed; an empty value removes the parameter.
type SerializeFunc[T any] func(state T, initial T) map[string]string

// DeserializeFunc reads state from the full query.
type DeserializeFunc[T any] func(query url.Values, initial T, prefix string) T

// Binding ties a typed state to the parameters under prefix in a Store.
type Binding[T any] struct {
	store       Store
	initial     T
	prefix      string
	serialize   SerializeFunc[T]
	deserialize DeserializeFunc[T]
}

// NewBinding creates a binding. The store is not written.
func NewBinding[T any](store Store, initial T, prefix string, serialize SerializeFunc[T], deserialize DeserializeFunc[T]) *Binding[T] {
	return &Binding[T]{
		store:       store,
		initial:     initial,
		prefix:      prefix,
		serialize:   serialize,
		deserialize: deserialize,
	}
}

// Prefix returns the parameter prefix.
func (b *Binding[T]) Prefix() string { return b.prefix }

// Initial returns the state used for absent parameters.
func (b *Binding[T]) Initial() T { return b.initial }

// State decodes the current store content.
func (b *Binding[T]) State() T {
	return b.Decode(b.store.Read())
}

// Decode reads state from query under this binding's prefix.
func (b *Binding[T]) Decode(query url.Values) T {
	return b.deserialize(query, b.initial, b.prefix)
}

// Update computes the next state from the current one and writes it.
func (b *Binding[T]) Update(ctx context.Context, fn func(current T) T) error {
	return b.Set(ctx, fn(b.State()))
}

// Set writes state, removing parameters that equal the initial state.
func (b *Binding[T]) Set(ctx context.Context, state T) error {
	params := b.serialize(state, b.initial)
	patch := make(map[string]string, len(params))
	for k, v := range params {
		patch[b.prefix+k] = v
	}
	return b.store.Write(ctx, patch)
}

// Clear resets to the initial state.
func (b *Binding[T]) Clear(ctx context.Context) error {
	return b.Set(ctx, b.initial)
}

// Subscribe calls fn with the decoded state after every store change.
func (b *Binding[T]) Subscribe(fn func(T)) func() {
	return b.store.Subscribe(func(q url.Values) {
		fn(b.Decode(q))
	})
}
