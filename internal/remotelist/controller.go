// Package remotelist drives the fetch lifecycle of one paginated, sortable and
// filterable remote collection whose position lives in a urlstate.Store.
package remotelist

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"govconsole/internal/feature"
	"govconsole/internal/liststate"
	"govconsole/internal/metrics"
	"govconsole/internal/promise"
	"govconsole/internal/urlstate"
)

// Page is one provider result. A nil Total means the size is unknown.
type Page[T any] struct {
	Data  []T  `json:"data"`
	Total *int `json:"total,omitempty"`
}

// Provider performs the remote call for a state. Returning a nil page means
// no data and an unknown total.
type Provider[T any] func(ctx context.Context, state liststate.State) (*Page[T], error)

// Options configure a Controller. The zero value is usable.
type Options struct {
	// InitialState is used for every parameter absent from the store.
	// Nil means liststate.Default().
	InitialState *liststate.State
	// QueryParametersPrefix namespaces this list's keys in the store.
	QueryParametersPrefix string
	// Codec carries the hooks for list specific parameters.
	Codec liststate.Codec
	// Context labels log lines and metrics.
	Context string
}

// Result is a copy of the controller's observable state.
type Result[T any] struct {
	ListState        liststate.State `json:"listState"`
	InitialListState liststate.State `json:"initialListState"`
	Feature          feature.Feature `json:"-"`
	RemoteData       []T             `json:"remoteData"`
	ListTotalSize    *int            `json:"listTotalSize,omitempty"`
}

// Controller keeps a remote list consistent with its addressable state.
// Fetch results are applied only while their generation is the newest one
// started, so a slow early response never overwrites a later one.
type Controller[T any] struct {
	binding *urlstate.Binding[liststate.State]
	fetch   promise.Func[liststate.State, *Page[T]]
	label   string
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	state     liststate.State
	feature   feature.Feature
	data      []T
	total     *int
	gen       uint64
	started   bool
	closed    bool
	baseCtx   context.Context
	cancel    context.CancelFunc
	listeners map[int]func(Result[T])
	nextID    int

	// writeMu serializes read-merge-write cycles against the store.
	writeMu     sync.Mutex
	unsubscribe func()
	inflight    sync.WaitGroup
}

// New derives the state from the store once and subscribes to it. Nothing is
// fetched until Start.
func New[T any](provider Provider[T], store urlstate.Store, opts Options, logger zerolog.Logger, m *metrics.Metrics) *Controller[T] {
	initial := liststate.Default()
	if opts.InitialState != nil {
		initial = opts.InitialState.Clone()
	}
	label := opts.Context
	if label == "" {
		label = "remote-list"
	}
	codec := opts.Codec

	c := &Controller[T]{
		label:     label,
		log:       logger.With().Str("list", label).Logger(),
		metrics:   m,
		listeners: map[int]func(Result[T]){},
	}
	c.binding = urlstate.NewBinding(store, initial, opts.QueryParametersPrefix,
		func(s, def liststate.State) map[string]string { return codec.Serialize(s, def) },
		codec.Deserialize)
	c.fetch = promise.Reuse(promise.Func[liststate.State, *Page[T]](provider),
		promise.WithSerializer(stateKey),
		promise.WithSharedHook[liststate.State](func(key string) {
			c.log.Debug().Str("state", key).Msg("joined in-flight fetch")
		}))
	c.state = c.binding.State()
	c.unsubscribe = c.binding.Subscribe(c.onStateChange)
	return c
}

func stateKey(s liststate.State) (string, error) {
	b, err := json.Marshal(s.Normalize())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Start performs the initial fetch and blocks until it settles. Later fetches
// triggered by store changes run under ctx until Close.
func (c *Controller[T]) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.baseCtx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.FetchRemoteData(ctx)
}

// Close unsubscribes from the store, cancels background fetches and waits for
// them to return.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	c.unsubscribe()
	if cancel != nil {
		cancel()
	}
	c.inflight.Wait()
}

// Wait blocks until no fetch is in flight.
func (c *Controller[T]) Wait() {
	c.inflight.Wait()
}

// Snapshot returns a copy of the current result.
func (c *Controller[T]) Snapshot() Result[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller[T]) snapshotLocked() Result[T] {
	var total *int
	if c.total != nil {
		n := *c.total
		total = &n
	}
	return Result[T]{
		ListState:        c.state.Clone(),
		InitialListState: c.binding.Initial().Clone(),
		Feature:          c.feature,
		RemoteData:       slices.Clone(c.data),
		ListTotalSize:    total,
	}
}

// OnChange registers fn for every observable change and returns a function
// removing it. fn runs without the controller lock held.
func (c *Controller[T]) OnChange(fn func(Result[T])) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// UpdateListState merges p over the current state and writes it to the store.
// The store notification starts the fetch.
func (c *Controller[T]) UpdateListState(ctx context.Context, p liststate.Partial) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	next := c.binding.State().Merge(p)
	return c.binding.Set(ctx, next)
}

// ClearListState resets to the initial state, removing this list's keys.
func (c *Controller[T]) ClearListState(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.binding.Clear(ctx)
}

// FetchRemoteData refetches the current state and blocks until the result is
// applied or discarded. Provider failures end up in the Feature error and are
// never returned. Concurrent calls for an unchanged state share one call.
func (c *Controller[T]) FetchRemoteData(ctx context.Context) {
	state, gen, ok := c.begin()
	if !ok {
		return
	}
	c.run(ctx, state, gen)
}

func (c *Controller[T]) onStateChange(next liststate.State) {
	c.mu.Lock()
	if c.closed || liststate.Equal(c.state, next) {
		c.mu.Unlock()
		return
	}
	c.state = next
	started := c.started
	ctx := c.baseCtx
	c.mu.Unlock()

	if !started {
		c.emit()
		return
	}
	state, gen, ok := c.begin()
	if !ok {
		return
	}
	go c.run(ctx, state, gen)
}

// begin opens a new generation and flips the in-progress flag before the
// provider is called.
func (c *Controller[T]) begin() (liststate.State, uint64, bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return liststate.State{}, 0, false
	}
	c.gen++
	gen := c.gen
	state := c.state.Clone()
	c.feature = c.feature.InProgress()
	c.inflight.Add(1)
	c.mu.Unlock()

	c.emit()
	return state, gen, true
}

func (c *Controller[T]) run(ctx context.Context, state liststate.State, gen uint64) {
	defer c.inflight.Done()

	start := time.Now()
	page, err := c.call(ctx, state)
	elapsed := time.Since(start)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.log.Debug().Uint64("generation", gen).Msg("discarding stale fetch result")
		c.metrics.ObserveFetch(c.label, metrics.OutcomeStale, elapsed)
		return
	}
	if abandoned(ctx, err) {
		// Only this caller gave up; the list keeps its last result.
		c.feature = c.feature.Apply(feature.Patch{
			Status: &feature.Status{InProgress: false, Loaded: c.feature.Status.Loaded},
		})
		c.mu.Unlock()
		c.log.Debug().Uint64("generation", gen).Msg("fetch abandoned by caller")
		c.metrics.ObserveFetch(c.label, metrics.OutcomeStale, elapsed)
		c.emit()
		return
	}
	if err != nil {
		c.feature = c.feature.Failed(err)
	} else {
		c.feature = c.feature.Succeeded()
		c.data, c.total = nil, nil
		if page != nil {
			c.data = slices.Clone(page.Data)
			if page.Total != nil {
				n := *page.Total
				c.total = &n
			}
		}
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Error().Err(err).Msgf("%s:", c.label)
		c.metrics.ObserveFetch(c.label, metrics.OutcomeFailed, elapsed)
	} else {
		c.metrics.ObserveFetch(c.label, metrics.OutcomeLoaded, elapsed)
	}
	c.emit()
}

// abandoned reports whether err only reflects the caller's own ctx ending.
func abandoned(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err())
}

// call invokes the provider and turns a panic into an error.
func (c *Controller[T]) call(ctx context.Context, state liststate.State) (page *Page[T], err error) {
	defer func() {
		if rec := recover(); rec != nil {
			page, err = nil, feature.ToError(rec)
		}
	}()
	return c.fetch(ctx, state)
}

func (c *Controller[T]) emit() {
	c.mu.Lock()
	if len(c.listeners) == 0 {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	fns := make([]func(Result[T]), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
