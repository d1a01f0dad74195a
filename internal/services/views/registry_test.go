package views

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"govconsole/internal/domain/proposal"
	"govconsole/internal/liststate"
	"govconsole/internal/metrics"
	"govconsole/internal/remotelist"
	"govconsole/internal/urlstate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingProvider struct {
	mu     sync.Mutex
	states []liststate.State
	err    error
}

func (p *recordingProvider) fetch(_ context.Context, s liststate.State) (*remotelist.Page[proposal.Proposal], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, s)
	if p.err != nil {
		return nil, p.err
	}
	total := 42
	items := make([]proposal.Proposal, s.PageSize)
	for i := range items {
		items[i].ID = proposal.ID(s.Offset() + i)
	}
	return &remotelist.Page[proposal.Proposal]{Data: items, Total: &total}, nil
}

func (p *recordingProvider) last() liststate.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.states[len(p.states)-1]
}

func newRegistry(p *recordingProvider, reg *prometheus.Registry) *Registry {
	return NewRegistry(p.fetch, MemoryStores{}, remotelist.Options{QueryParametersPrefix: "proposals."}, metrics.New(reg))
}

func TestOpenFetchesFromQuery(t *testing.T) {
	p := &recordingProvider{}
	reg := prometheus.NewRegistry()
	r := newRegistry(p, reg)
	defer r.CloseAll()

	v, err := r.Open(context.Background(), "proposals.currentPage=3&proposals.pageSize=5&other=kept")
	require.NoError(t, err)

	snap := v.Snapshot()
	assert.Equal(t, 3, snap.ListState.CurrentPage)
	assert.Equal(t, 5, snap.ListState.PageSize)
	assert.True(t, snap.Feature.Status.Loaded)
	assert.False(t, snap.Feature.Status.InProgress)
	require.Len(t, snap.RemoteData, 5)
	assert.Equal(t, proposal.ID(10), snap.RemoteData[0].ID)
	require.NotNil(t, snap.ListTotalSize)
	assert.Equal(t, 42, *snap.ListTotalSize)
	assert.Contains(t, snap.Query, "other=kept")

	expected := `
# HELP govconsole_active_views Open view sessions
# TYPE govconsole_active_views gauge
govconsole_active_views 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "govconsole_active_views"))
}

func TestUpdateWritesQueryAndRefetches(t *testing.T) {
	p := &recordingProvider{}
	r := newRegistry(p, prometheus.NewRegistry())
	defer r.CloseAll()

	v, err := r.Open(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, v.Update(context.Background(), liststate.Page(2, 20)))
	assert.Equal(t, 2, p.last().CurrentPage)
	assert.Equal(t, 20, p.last().PageSize)

	snap := v.Snapshot()
	assert.Equal(t, "proposals.currentPage=2&proposals.pageSize=20", snap.Query)
	assert.Len(t, snap.RemoteData, 20)

	require.NoError(t, v.Clear(context.Background()))
	assert.Empty(t, v.Snapshot().Query)
	assert.True(t, liststate.Equal(liststate.Default(), p.last()))
}

func TestFailureIsReportedInFeature(t *testing.T) {
	p := &recordingProvider{err: errors.New("mirror down")}
	r := newRegistry(p, prometheus.NewRegistry())
	defer r.CloseAll()

	v, err := r.Open(context.Background(), "")
	require.NoError(t, err)
	snap := v.Snapshot()
	assert.True(t, snap.Feature.Error.IsError)
	assert.Equal(t, "mirror down", snap.Feature.Error.Message)
	assert.Empty(t, snap.RemoteData)
}

func TestCloseAndSweep(t *testing.T) {
	p := &recordingProvider{}
	r := newRegistry(p, prometheus.NewRegistry())
	defer r.CloseAll()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	a, err := r.Open(context.Background(), "")
	require.NoError(t, err)
	b, err := r.Open(context.Background(), "")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	now = now.Add(20 * time.Minute)
	_, err = r.Get(context.Background(), b.ID)
	require.NoError(t, err)

	now = now.Add(20 * time.Minute)
	assert.Equal(t, 1, r.Sweep(context.Background(), 30*time.Minute))
	_, err = r.Get(context.Background(), a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.Close(context.Background(), b.ID))
	assert.ErrorIs(t, r.Close(context.Background(), b.ID), ErrNotFound)
	assert.Zero(t, r.Len())
}

func TestOpenRejectsMalformedQuery(t *testing.T) {
	r := newRegistry(&recordingProvider{}, prometheus.NewRegistry())
	_, err := r.Open(context.Background(), "%zz")
	assert.Error(t, err)
	assert.Zero(t, r.Len())
}

type fakeRedis struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{hashes: map[string]map[string]string{}}
}

func (f *fakeRedis) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, nil)
}

func (f *fakeRedis) HSet(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.hashes[key]
	if h == nil {
		h = map[string]string{}
		f.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[values[i].(string)] = values[i+1].(string)
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeRedis) HDel(_ context.Context, key string, fields ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, field := range fields {
		delete(f.hashes[key], field)
	}
	return redis.NewIntResult(int64(len(fields)), nil)
}

func (f *fakeRedis) Expire(context.Context, string, time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.hashes, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestRedisSessionsResumeAfterRestart(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	stores := RedisStores{Client: fake, TTL: time.Hour}
	opts := remotelist.Options{QueryParametersPrefix: "proposals."}

	p := &recordingProvider{}
	before := NewRegistry(p.fetch, stores, opts, nil)
	paged, err := before.Open(ctx, "proposals.currentPage=3&proposals.pageSize=5")
	require.NoError(t, err)
	require.NoError(t, paged.Update(ctx, liststate.Page(4, 5)))
	plain, err := before.Open(ctx, "")
	require.NoError(t, err)
	before.CloseAll()

	after := NewRegistry(p.fetch, stores, opts, nil)
	defer after.CloseAll()

	v, err := after.Get(ctx, paged.ID)
	require.NoError(t, err)
	snap := v.Snapshot()
	assert.Equal(t, 4, snap.ListState.CurrentPage)
	assert.Equal(t, 5, snap.ListState.PageSize)
	assert.Equal(t, "proposals.currentPage=4&proposals.pageSize=5", snap.Query)
	require.Len(t, snap.RemoteData, 5)
	assert.Equal(t, proposal.ID(15), snap.RemoteData[0].ID)

	again, err := after.Get(ctx, paged.ID)
	require.NoError(t, err)
	assert.Same(t, v, again)

	resumed, err := after.Get(ctx, plain.ID)
	require.NoError(t, err)
	assert.Empty(t, resumed.Snapshot().Query)
	assert.Equal(t, 2, after.Len())

	_, err = after.Get(ctx, "never-opened")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, after.Close(ctx, paged.ID))
	_, stored := fake.hashes[urlstate.KeyPrefix+paged.ID]
	assert.False(t, stored)
}

func TestCloseDropsStoredSessionNotLoaded(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	stores := RedisStores{Client: fake, TTL: time.Hour}
	p := &recordingProvider{}

	before := NewRegistry(p.fetch, stores, remotelist.Options{}, nil)
	v, err := before.Open(ctx, "")
	require.NoError(t, err)
	before.CloseAll()

	after := NewRegistry(p.fetch, stores, remotelist.Options{}, nil)
	defer after.CloseAll()
	require.NoError(t, after.Close(ctx, v.ID))
	_, err = after.Get(ctx, v.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, after.Len())
}
