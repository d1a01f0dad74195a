// Package urlstate keeps addressable view state as a flat query string.
// Controllers never reach a global location; they get a Store.
package urlstate

import (
	"context"
	"net/url"
	"sync"
)

// Store is the addressable query state shared by the lists of one view.
type Store interface {
	// Read returns a copy of the current parameters.
	Read() url.Values
	// Write applies patch; an empty value removes the key.
	Write(ctx context.Context, patch map[string]string) error
	// Subscribe registers fn for changes. Listeners must not call Write
	// synchronously.
	Subscribe(fn func(url.Values)) (unsubscribe func())
}

// apply patches values in place and reports whether anything changed.
func apply(values url.Values, patch map[string]string) bool {
	changed := false
	for k, v := range patch {
		cur, ok := values[k]
		if v == "" {
			if ok {
				delete(values, k)
				changed = true
			}
			continue
		}
		if ok && len(cur) == 1 && cur[0] == v {
			continue
		}
		values[k] = []string{v}
		changed = true
	}
	return changed
}

func clone(values url.Values) url.Values {
	out := make(url.Values, len(values))
	for k, vs := range values {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// listeners is the subscriber set embedded by stores.
type listeners struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(url.Values)
}

func (l *listeners) add(fn func(url.Values)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.subs == nil {
		l.subs = map[int]func(url.Values){}
	}
	id := l.nextID
	l.nextID++
	l.subs[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs, id)
	}
}

func (l *listeners) notify(values url.Values) {
	l.mu.Lock()
	fns := make([]func(url.Values), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(clone(values))
	}
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	// writeMu orders writes with their notifications.
	writeMu sync.Mutex
	mu      sync.RWMutex
	values  url.Values
	subs    listeners
}

// NewMemoryStore starts from a copy of initial.
func NewMemoryStore(initial url.Values) *MemoryStore {
	if initial == nil {
		initial = url.Values{}
	}
	return &MemoryStore{values: clone(initial)}
}

// ParseMemoryStore starts from a raw query string.
func ParseMemoryStore(rawQuery string) (*MemoryStore, error) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, err
	}
	return NewMemoryStore(values), nil
}

func (s *MemoryStore) Read() url.Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.values)
}

func (s *MemoryStore) Write(_ context.Context, patch map[string]string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	changed := apply(s.values, patch)
	snapshot := clone(s.values)
	s.mu.Unlock()

	if changed {
		s.subs.notify(snapshot)
	}
	return nil
}

func (s *MemoryStore) Subscribe(fn func(url.Values)) func() {
	return s.subs.add(fn)
}

// Encode renders the query with sorted keys.
func (s *MemoryStore) Encode() string {
	return s.Read().Encode()
}
