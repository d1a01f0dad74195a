package logger

import (
	"encoding/json"
	"sync"
	"time"
)

// Entry is one captured log line.
type Entry struct {
	UID     uint64          `json:"uid"`
	Level   string          `json:"level"`
	Time    time.Time       `json:"time"`
	Message string          `json:"message"`
	Raw     json.RawMessage `json:"raw"`
}

// Listener receives every captured entry.
type Listener func(Entry)

// Ring keeps the newest capacity log lines written by zerolog. It is an
// io.Writer so it can sit next to the console writer in a MultiLevelWriter.
type Ring struct {
	mu        sync.Mutex
	entries   []Entry
	head      int
	nextUID   uint64
	capacity  int
	listeners map[int]Listener
	nextLID   int
}

// NewRing creates a ring holding at most capacity entries.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Ring{capacity: capacity, nextUID: 1, listeners: map[int]Listener{}}
}

// Write parses one zerolog JSON line. Lines that are not JSON are kept as the
// message with an empty level.
func (r *Ring) Write(p []byte) (int, error) {
	raw := make([]byte, len(p))
	copy(raw, p)

	var fields struct {
		Level   string    `json:"level"`
		Time    time.Time `json:"time"`
		Message string    `json:"message"`
	}
	e := Entry{Raw: raw}
	if err := json.Unmarshal(raw, &fields); err == nil {
		e.Level, e.Time, e.Message = fields.Level, fields.Time, fields.Message
	} else {
		e.Message = string(raw)
		e.Raw = nil
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	r.add(e)
	return len(p), nil
}

func (r *Ring) add(e Entry) {
	r.mu.Lock()
	e.UID = r.nextUID
	r.nextUID++
	if len(r.entries) < r.capacity {
		r.entries = append(r.entries, e)
	} else {
		r.entries[r.head] = e
		r.head = (r.head + 1) % r.capacity
	}
	ls := make([]Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		ls = append(ls, l)
	}
	r.mu.Unlock()

	for _, l := range ls {
		notify(l, e)
	}
}

// notify swallows listener panics; logging them would re-enter the ring.
func notify(l Listener, e Entry) {
	defer func() { _ = recover() }()
	l(e)
}

// Entries returns the kept entries, oldest first.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	if len(r.entries) < r.capacity {
		return append(out, r.entries...)
	}
	out = append(out, r.entries[r.head:]...)
	return append(out, r.entries[:r.head]...)
}

// Len reports the number of kept entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear drops every entry and restarts uids at 1.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	r.head = 0
	r.nextUID = 1
}

// Listen registers l and returns a function removing it.
func (r *Ring) Listen(l Listener) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextLID
	r.nextLID++
	r.listeners[id] = l
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, id)
	}
}
