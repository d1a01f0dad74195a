package remotelist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"govconsole/internal/feature"
	"govconsole/internal/liststate"
	"govconsole/internal/metrics"
	"govconsole/internal/urlstate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func intPtr(n int) *int { return &n }

type recorder struct {
	mu    sync.Mutex
	calls []liststate.State
}

func (r *recorder) add(s liststate.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) all() []liststate.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]liststate.State(nil), r.calls...)
}

func items(n int, prefix string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s-%d", prefix, i)
	}
	return out
}

func TestUpdateListStateEndToEnd(t *testing.T) {
	store := urlstate.NewMemoryStore(nil)
	rec := &recorder{}
	provider := func(_ context.Context, s liststate.State) (*Page[string], error) {
		rec.add(s)
		return &Page[string]{Data: items(9, "p"), Total: intPtr(37)}, nil
	}
	c := New[string](provider, store, Options{QueryParametersPrefix: "proposals.", Context: "proposals"}, zerolog.Nop(), nil)
	defer c.Close()

	c.Start(context.Background())
	require.NoError(t, c.UpdateListState(context.Background(), liststate.Page(2, 25)))
	c.Wait()

	q := store.Read()
	assert.Equal(t, "25", q.Get("proposals.pageSize"))
	assert.Equal(t, "2", q.Get("proposals.currentPage"))

	calls := rec.all()
	require.Len(t, calls, 2)
	want := liststate.State{CurrentPage: 2, PageSize: 25}
	if diff := cmp.Diff(want, calls[1]); diff != "" {
		t.Fatalf("provider state mismatch (-want +got):\n%s", diff)
	}

	snap := c.Snapshot()
	require.NotNil(t, snap.ListTotalSize)
	assert.Equal(t, 37, *snap.ListTotalSize)
	assert.Len(t, snap.RemoteData, 9)
	assert.False(t, snap.Feature.Status.InProgress)
	assert.True(t, snap.Feature.Status.Loaded)
	assert.False(t, snap.Feature.Error.IsError)
}

func TestStateDerivedFromStoreOnConstruction(t *testing.T) {
	store, err := urlstate.ParseMemoryStore("p.currentPage=3&p.sort=-id&other=1")
	require.NoError(t, err)
	var calls atomic.Int32
	provider := func(context.Context, liststate.State) (*Page[string], error) {
		calls.Add(1)
		return nil, nil
	}
	c := New[string](provider, store, Options{QueryParametersPrefix: "p."}, zerolog.Nop(), nil)
	defer c.Close()

	snap := c.Snapshot()
	assert.Equal(t, 3, snap.ListState.CurrentPage)
	assert.Equal(t, []liststate.SortItem{{Field: "id", Order: liststate.Descend}}, snap.ListState.Sort)
	assert.Equal(t, liststate.Default(), snap.InitialListState)
	assert.Equal(t, int32(0), calls.Load(), "no fetch before Start")
	assert.False(t, snap.Feature.Status.Loaded)
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	store := urlstate.NewMemoryStore(nil)
	started := make(chan int, 2)
	gates := map[int]chan struct{}{1: make(chan struct{}), 2: make(chan struct{})}
	provider := func(_ context.Context, s liststate.State) (*Page[string], error) {
		started <- s.CurrentPage
		<-gates[s.CurrentPage]
		return &Page[string]{Data: []string{fmt.Sprintf("page-%d", s.CurrentPage)}, Total: intPtr(s.CurrentPage)}, nil
	}
	reg := prometheus.NewRegistry()
	c := New[string](provider, store, Options{QueryParametersPrefix: "x.", Context: "stale"}, zerolog.Nop(), metrics.New(reg))
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Start(context.Background())
	}()
	require.Equal(t, 1, <-started)

	require.NoError(t, c.UpdateListState(context.Background(), liststate.Partial{CurrentPage: intPtr(2)}))
	require.Equal(t, 2, <-started)

	close(gates[2])
	require.Eventually(t, func() bool {
		s := c.Snapshot()
		return len(s.RemoteData) == 1 && s.RemoteData[0] == "page-2"
	}, time.Second, 5*time.Millisecond)

	close(gates[1])
	<-done
	c.Wait()

	snap := c.Snapshot()
	assert.Equal(t, []string{"page-2"}, snap.RemoteData)
	assert.Equal(t, 2, *snap.ListTotalSize)
	assert.False(t, snap.Feature.Status.InProgress)

	families, err := reg.Gather()
	require.NoError(t, err)
	var stale float64
	for _, f := range families {
		if f.GetName() == "govconsole_list_stale_discards_total" {
			stale = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, stale)
}

func TestFailureKeepsPreviousData(t *testing.T) {
	store := urlstate.NewMemoryStore(nil)
	var fail atomic.Bool
	boom := errors.New("canister unavailable")
	provider := func(context.Context, liststate.State) (*Page[string], error) {
		if fail.Load() {
			return nil, boom
		}
		return &Page[string]{Data: []string{"a", "b"}, Total: intPtr(2)}, nil
	}
	c := New[string](provider, store, Options{}, zerolog.Nop(), nil)
	defer c.Close()

	c.Start(context.Background())
	fail.Store(true)
	c.FetchRemoteData(context.Background())

	snap := c.Snapshot()
	assert.Equal(t, []string{"a", "b"}, snap.RemoteData)
	assert.Equal(t, 2, *snap.ListTotalSize)
	assert.True(t, snap.Feature.Error.IsError)
	assert.ErrorIs(t, snap.Feature.Error.Err, boom)
	assert.True(t, snap.Feature.Status.Loaded)
	assert.False(t, snap.Feature.Status.InProgress)

	fail.Store(false)
	c.FetchRemoteData(context.Background())
	assert.False(t, c.Snapshot().Feature.Error.IsError)
}

func TestProviderPanicBecomesError(t *testing.T) {
	provider := func(context.Context, liststate.State) (*Page[string], error) {
		panic("provider exploded")
	}
	c := New[string](provider, urlstate.NewMemoryStore(nil), Options{}, zerolog.Nop(), nil)
	defer c.Close()

	c.FetchRemoteData(context.Background())
	snap := c.Snapshot()
	assert.True(t, snap.Feature.Error.IsError)
	assert.Contains(t, snap.Feature.Error.Message(), "provider exploded")
}

func TestNilPageMeansUnknownTotal(t *testing.T) {
	provider := func(context.Context, liststate.State) (*Page[string], error) {
		return nil, nil
	}
	c := New[string](provider, urlstate.NewMemoryStore(nil), Options{}, zerolog.Nop(), nil)
	defer c.Close()

	c.Start(context.Background())
	snap := c.Snapshot()
	assert.Nil(t, snap.RemoteData)
	assert.Nil(t, snap.ListTotalSize)
	assert.True(t, snap.Feature.Status.Loaded)
	assert.False(t, snap.Feature.Error.IsError)
}

func TestConcurrentFetchesShareOneCall(t *testing.T) {
	var calls atomic.Int32
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	provider := func(context.Context, liststate.State) (*Page[string], error) {
		calls.Add(1)
		entered <- struct{}{}
		<-release
		return &Page[string]{Data: []string{"x"}}, nil
	}
	c := New[string](provider, urlstate.NewMemoryStore(nil), Options{}, zerolog.Nop(), nil)
	defer c.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.FetchRemoteData(context.Background()) }()
	<-entered
	go func() { defer wg.Done(); c.FetchRemoteData(context.Background()) }()
	// Let the second caller join the in-flight call.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []string{"x"}, c.Snapshot().RemoteData)

	c.FetchRemoteData(context.Background())
	assert.Equal(t, int32(2), calls.Load())
}

func TestCancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	provider := func(ctx context.Context, _ liststate.State) (*Page[string], error) {
		entered <- struct{}{}
		select {
		case <-release:
			return &Page[string]{Data: []string{"live"}, Total: intPtr(1)}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c := New[string](provider, urlstate.NewMemoryStore(nil), Options{}, zerolog.Nop(), nil)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.FetchRemoteData(ctx) }()
	<-entered
	go func() { defer wg.Done(); c.FetchRemoteData(context.Background()) }()
	// Let the second caller join the in-flight call.
	time.Sleep(20 * time.Millisecond)

	cancel()
	close(release)
	wg.Wait()

	snap := c.Snapshot()
	assert.Equal(t, []string{"live"}, snap.RemoteData)
	assert.False(t, snap.Feature.Error.IsError)
	assert.Equal(t, feature.Status{InProgress: false, Loaded: true}, snap.Feature.Status)
}

func TestAbandonedFetchKeepsLastResult(t *testing.T) {
	var calls atomic.Int32
	provider := func(ctx context.Context, _ liststate.State) (*Page[string], error) {
		if calls.Add(1) == 1 {
			return &Page[string]{Data: []string{"first"}}, nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	c := New[string](provider, urlstate.NewMemoryStore(nil), Options{}, zerolog.Nop(), nil)
	defer c.Close()
	c.FetchRemoteData(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	c.FetchRemoteData(ctx)

	snap := c.Snapshot()
	assert.Equal(t, []string{"first"}, snap.RemoteData)
	assert.False(t, snap.Feature.Error.IsError)
	assert.False(t, snap.Feature.Status.InProgress)
}

func TestConcurrentUpdatesKeepEachOthersFields(t *testing.T) {
	provider := func(context.Context, liststate.State) (*Page[string], error) {
		return &Page[string]{}, nil
	}
	store := urlstate.NewMemoryStore(nil)
	c := New[string](provider, store, Options{QueryParametersPrefix: "p."}, zerolog.Nop(), nil)
	defer c.Close()
	c.Start(context.Background())

	for i := 0; i < 50; i++ {
		require.NoError(t, c.ClearListState(context.Background()))
		sort := []liststate.SortItem{{Field: "id", Order: liststate.Descend}}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.UpdateListState(context.Background(), liststate.Partial{PageSize: intPtr(20)}))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, c.UpdateListState(context.Background(), liststate.Partial{Sort: &sort}))
		}()
		wg.Wait()

		q := store.Read()
		require.Equal(t, "20", q.Get("p.pageSize"), "iteration %d", i)
		require.Equal(t, "-id", q.Get("p.sort"), "iteration %d", i)
	}
	c.Wait()
}

func TestInProgressIsSetBeforeProviderRuns(t *testing.T) {
	var seen atomic.Bool
	var c *Controller[string]
	provider := func(context.Context, liststate.State) (*Page[string], error) {
		seen.Store(c.Snapshot().Feature.Status.InProgress)
		return nil, nil
	}
	c = New[string](provider, urlstate.NewMemoryStore(nil), Options{}, zerolog.Nop(), nil)
	defer c.Close()

	var changes []bool
	var mu sync.Mutex
	c.OnChange(func(r Result[string]) {
		mu.Lock()
		changes = append(changes, r.Feature.Status.InProgress)
		mu.Unlock()
	})
	c.FetchRemoteData(context.Background())

	assert.True(t, seen.Load())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, changes)
}

func TestClearListStateRemovesPrefixedKeys(t *testing.T) {
	store, err := urlstate.ParseMemoryStore("keep=1")
	require.NoError(t, err)
	initial := liststate.State{CurrentPage: 1, PageSize: 20}
	rec := &recorder{}
	provider := func(_ context.Context, s liststate.State) (*Page[string], error) {
		rec.add(s)
		return nil, nil
	}
	c := New[string](provider, store, Options{InitialState: &initial, QueryParametersPrefix: "v."}, zerolog.Nop(), nil)
	defer c.Close()
	c.Start(context.Background())

	filters := liststate.Filters{{Key: "state", Values: []string{"Voting"}}}
	require.NoError(t, c.UpdateListState(context.Background(), liststate.Partial{Filters: &filters}))
	c.Wait()
	assert.Equal(t, "state:Voting", store.Read().Get("v.filters"))

	require.NoError(t, c.ClearListState(context.Background()))
	c.Wait()
	assert.Equal(t, "keep=1", store.Encode())
	assert.True(t, liststate.Equal(initial, c.Snapshot().ListState))

	calls := rec.all()
	require.Len(t, calls, 3)
	assert.True(t, liststate.Equal(initial, calls[2]))
}

func TestUnchangedStateDoesNotRefetch(t *testing.T) {
	store := urlstate.NewMemoryStore(nil)
	var calls atomic.Int32
	provider := func(context.Context, liststate.State) (*Page[string], error) {
		calls.Add(1)
		return nil, nil
	}
	c := New[string](provider, store, Options{QueryParametersPrefix: "p."}, zerolog.Nop(), nil)
	defer c.Close()
	c.Start(context.Background())

	// Unrelated keys change the store but not this list.
	require.NoError(t, store.Write(context.Background(), map[string]string{"q.currentPage": "5"}))
	require.NoError(t, c.UpdateListState(context.Background(), liststate.Page(1, 10)))
	c.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestCloseStopsFetching(t *testing.T) {
	store := urlstate.NewMemoryStore(nil)
	var calls atomic.Int32
	provider := func(context.Context, liststate.State) (*Page[string], error) {
		calls.Add(1)
		return nil, nil
	}
	c := New[string](provider, store, Options{QueryParametersPrefix: "p."}, zerolog.Nop(), nil)
	c.Start(context.Background())
	c.Close()
	c.Close()

	require.NoError(t, store.Write(context.Background(), map[string]string{"p.currentPage": "4"}))
	c.FetchRemoteData(context.Background())
	assert.Equal(t, int32(1), calls.Load())
}
