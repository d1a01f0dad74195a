// Package views hosts console list sessions. Each session owns an
// addressable state store and a remote list controller bound to it.
package views

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"govconsole/internal/domain/proposal"
	"govconsole/internal/feature"
	"govconsole/internal/liststate"
	"govconsole/internal/logger"
	"govconsole/internal/metrics"
	"govconsole/internal/remotelist"
	"govconsole/internal/urlstate"
)

// ErrNotFound is returned for unknown or closed sessions
var ErrNotFound = errors.New("view not found")

// View is one open list session
type View struct {
	ID string

	store urlstate.Store
	list  *remotelist.Controller[proposal.Proposal]

	mu       sync.Mutex
	lastUsed time.Time
}

// Snapshot is the transport shape of a view
type Snapshot struct {
	ID               string              `json:"id"`
	Query            string              `json:"query"`
	ListState        liststate.State     `json:"listState"`
	InitialListState liststate.State     `json:"initialListState"`
	Feature          feature.View        `json:"feature"`
	RemoteData       []proposal.Proposal `json:"remoteData"`
	ListTotalSize    *int                `json:"listTotalSize,omitempty"`
}

// Snapshot returns the current list result and the store's query string
func (v *View) Snapshot() Snapshot {
	res := v.list.Snapshot()
	data := res.RemoteData
	if data == nil {
		data = []proposal.Proposal{}
	}
	return Snapshot{
		ID:               v.ID,
		Query:            v.store.Read().Encode(),
		ListState:        res.ListState,
		InitialListState: res.InitialListState,
		Feature:          res.Feature.View(),
		RemoteData:       data,
		ListTotalSize:    res.ListTotalSize,
	}
}

// Update merges p into the list state and waits for the resulting fetch
func (v *View) Update(ctx context.Context, p liststate.Partial) error {
	if err := v.list.UpdateListState(ctx, p); err != nil {
		return err
	}
	v.list.Wait()
	return nil
}

// Clear resets the list to its initial state and waits for the fetch
func (v *View) Clear(ctx context.Context) error {
	if err := v.list.ClearListState(ctx); err != nil {
		return err
	}
	v.list.Wait()
	return nil
}

// Refresh refetches the current state
func (v *View) Refresh(ctx context.Context) {
	v.list.FetchRemoteData(ctx)
}

func (v *View) touch(now time.Time) {
	v.mu.Lock()
	v.lastUsed = now
	v.mu.Unlock()
}

func (v *View) idleSince() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastUsed
}

// Registry maps session ids to views
type Registry struct {
	provider remotelist.Provider[proposal.Proposal]
	stores   Stores
	opts     remotelist.Options
	log      zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	resumes singleflight.Group

	mu    sync.Mutex
	views map[string]*View
}

// NewRegistry creates a registry whose views list proposals from provider
func NewRegistry(provider remotelist.Provider[proposal.Proposal], stores Stores, opts remotelist.Options, m *metrics.Metrics) *Registry {
	if stores == nil {
		stores = MemoryStores{}
	}
	if opts.Context == "" {
		opts.Context = "proposals"
	}
	return &Registry{
		provider: provider,
		stores:   stores,
		opts:     opts,
		log:      logger.Component("views"),
		metrics:  m,
		now:      time.Now,
		views:    map[string]*View{},
	}
}

// Open starts a session from rawQuery and returns it after the first fetch.
// Background fetches outlive ctx and stop when the view is closed.
func (r *Registry) Open(ctx context.Context, rawQuery string) (*View, error) {
	initial, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	store, err := r.stores.Open(ctx, id, initial)
	if err != nil {
		return nil, err
	}
	v := r.start(ctx, id, store)
	r.log.Debug().Str("view", id).Msg("view opened")
	return v, nil
}

// start binds a list to store, performs the first fetch and registers it.
func (r *Registry) start(ctx context.Context, id string, store urlstate.Store) *View {
	v := &View{
		ID:    id,
		store: store,
		list:  remotelist.New(r.provider, store, r.opts, r.log.With().Str("view", id).Logger(), r.metrics),
	}
	v.touch(r.now())
	v.list.Start(context.WithoutCancel(ctx))

	r.mu.Lock()
	r.views[id] = v
	n := len(r.views)
	r.mu.Unlock()
	r.metrics.SetActiveViews(n)
	return v
}

// Get returns a view and marks it used. A session that is not loaded in this
// process is resumed from its stored state.
func (r *Registry) Get(ctx context.Context, id string) (*View, error) {
	if v, ok := r.loaded(id); ok {
		v.touch(r.now())
		return v, nil
	}

	res, err, _ := r.resumes.Do(id, func() (any, error) {
		if v, ok := r.loaded(id); ok {
			return v, nil
		}
		store, err := r.stores.Resume(ctx, id)
		if err != nil {
			return nil, err
		}
		v := r.start(ctx, id, store)
		r.log.Debug().Str("view", id).Msg("view resumed")
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	v := res.(*View)
	v.touch(r.now())
	return v, nil
}

func (r *Registry) loaded(id string) (*View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[id]
	return v, ok
}

// Len returns the number of open views
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Close stops the view and drops its stored state. A stored session that is
// not loaded is dropped as well.
func (r *Registry) Close(ctx context.Context, id string) error {
	if _, ok := r.loaded(id); !ok {
		if _, err := r.stores.Resume(ctx, id); err != nil {
			return err
		}
		return r.stores.Drop(ctx, id)
	}

	r.mu.Lock()
	v, ok := r.views[id]
	delete(r.views, id)
	n := len(r.views)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	r.metrics.SetActiveViews(n)

	v.list.Close()
	if err := r.stores.Drop(ctx, id); err != nil {
		return err
	}
	r.log.Debug().Str("view", id).Msg("view closed")
	return nil
}

// Sweep closes views unused for longer than maxIdle and returns how many
// were closed
func (r *Registry) Sweep(ctx context.Context, maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	var idle []string
	for id, v := range r.views {
		if v.idleSince().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	r.mu.Unlock()

	closed := 0
	for _, id := range idle {
		if err := r.Close(ctx, id); err != nil {
			if !errors.Is(err, ErrNotFound) {
				r.log.Warn().Err(err).Str("view", id).Msg("failed to drop idle view")
			}
			continue
		}
		closed++
	}
	return closed
}

// RunSweeper sweeps every interval until ctx is cancelled
func (r *Registry) RunSweeper(ctx context.Context, every, maxIdle time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Sweep(ctx, maxIdle); n > 0 {
				r.log.Info().Int("closed", n).Msg("idle views closed")
			}
		}
	}
}

// CloseAll stops every view. Stored state is kept so Get can resume the
// sessions later.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	views := r.views
	r.views = map[string]*View{}
	r.mu.Unlock()

	for _, v := range views {
		v.list.Close()
	}
	r.metrics.SetActiveViews(0)
}
