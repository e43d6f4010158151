package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/n3tuk/redis-console/internal/apperr"
	"github.com/n3tuk/redis-console/internal/health"
	"github.com/n3tuk/redis-console/internal/metrics"
	"github.com/n3tuk/redis-console/internal/model"
	"github.com/n3tuk/redis-console/internal/session"
)

// fakeSession is an in-memory session.Session for registry tests.
type fakeSession struct {
	mu      sync.Mutex
	state   model.ConnectionState
	subs    map[int]func(model.ConnectionState)
	nextSub int
	quitErr error
	quits   int
	closes  int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		state: model.StateConnecting,
		subs:  make(map[int]func(model.ConnectionState)),
	}
}

func (f *fakeSession) Client() redis.UniversalClient { return nil }

func (f *fakeSession) State() model.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) Subscribe(fn func(model.ConnectionState)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeSession) Ping(ctx context.Context) error { return nil }

func (f *fakeSession) Quit(ctx context.Context) error {
	f.mu.Lock()
	f.quits++
	err := f.quitErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Close()
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.set(model.StateClosed)
	return nil
}

// set moves the session to state and notifies subscribers.
func (f *fakeSession) set(state model.ConnectionState) {
	f.mu.Lock()
	f.state = state
	subs := make([]func(model.ConnectionState), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

func (f *fakeSession) counts() (quits, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quits, f.closes
}

// fakeFactory records every session it builds.
type fakeFactory struct {
	mu       sync.Mutex
	built    []*fakeSession
	calls    atomic.Int32
	delay    time.Duration
	err      error
	onCreate func(*fakeSession)
}

func (f *fakeFactory) build(cfg model.ConnectionConfig) (session.Session, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	s := newFakeSession()
	if f.onCreate != nil {
		f.onCreate(s)
	}
	f.mu.Lock()
	f.built = append(f.built, s)
	f.mu.Unlock()
	return s, nil
}

func (f *fakeFactory) last() *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.built[len(f.built)-1]
}

// entryCount returns the number of per-id entries held by r.
func entryCount(r *Registry) int {
	n := 0
	r.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func testConfig(id string) model.ConnectionConfig {
	return model.ConnectionConfig{ID: id, Name: id, Host: "127.0.0.1", Port: 6379, Source: model.SourceUser}
}

func TestAcquireReusesLiveHandle(t *testing.T) {
	factory := &fakeFactory{}
	r := New(factory.build, WithLogger(zap.NewNop()))
	ctx := context.Background()

	h1, err := r.Acquire(ctx, testConfig("a"))
	require.NoError(t, err)

	factory.last().set(model.StateReady)

	h2, err := r.Acquire(ctx, testConfig("a"))
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, int32(1), factory.calls.Load())
	assert.Equal(t, 1, r.Len())
}

func TestConcurrentAcquireConstructsOnce(t *testing.T) {
	factory := &fakeFactory{delay: 20 * time.Millisecond}
	r := New(factory.build)
	ctx := context.Background()

	const callers = 32
	handles := make([]*Handle, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			handles[i], errs[i] = r.Acquire(ctx, testConfig("shared"))
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), factory.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, handles[0], handles[i])
	}
}

func TestAcquireDistinctIDsDoNotShareHandles(t *testing.T) {
	factory := &fakeFactory{}
	r := New(factory.build)
	ctx := context.Background()

	a, err := r.Acquire(ctx, testConfig("a"))
	require.NoError(t, err)
	b, err := r.Acquire(ctx, testConfig("b"))
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, r.Len())
}

func TestAcquireRebuildsFailedHandle(t *testing.T) {
	factory := &fakeFactory{}
	r := New(factory.build)
	ctx := context.Background()

	h1, err := r.Acquire(ctx, testConfig("a"))
	require.NoError(t, err)
	old := factory.last()
	old.set(model.StateError)

	h2, err := r.Acquire(ctx, testConfig("a"))
	require.NoError(t, err)

	assert.NotSame(t, h1, h2)
	assert.Equal(t, int32(2), factory.calls.Load())

	quits, _ := old.counts()
	assert.Equal(t, 1, quits, "stale session should be torn down")
	assert.Equal(t, 1, r.Len())
}

func TestAcquireRebuildsOnConfigChange(t *testing.T) {
	factory := &fakeFactory{}
	r := New(factory.build)
	ctx := context.Background()

	h1, err := r.Acquire(ctx, testConfig("a"))
	require.NoError(t, err)

	changed := testConfig("a")
	changed.Port = 6380

	h2, err := r.Acquire(ctx, changed)
	require.NoError(t, err)

	assert.NotSame(t, h1, h2)
	assert.Equal(t, 6380, h2.Config().Port)
}

func TestAcquireInvalidConfig(t *testing.T) {
	factory := &fakeFactory{}
	r := New(factory.build)

	cfg := testConfig("a")
	cfg.Port = 0

	_, err := r.Acquire(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfig))
	assert.Equal(t, int32(0), factory.calls.Load())
}

func TestAcquireFactoryFailureLeavesNoEntry(t *testing.T) {
	m := metrics.NewMetrics("test", map[string]string{})
	factory := &fakeFactory{err: errors.New("dial tcp: connection refused")}
	r := New(factory.build, WithMetrics(m))

	_, err := r.Acquire(context.Background(), testConfig("a"))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))

	_, ok := r.Lookup("a")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, entryCount(r))
	assert.Empty(t, r.Connections())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionConstructionsTotal.WithLabelValues("failure")))
}

func TestLookupNeverCreates(t *testing.T) {
	factory := &fakeFactory{}
	r := New(factory.build)

	_, ok := r.Lookup("missing")
	assert.False(t, ok)
	assert.Equal(t, int32(0), factory.calls.Load())
}

func TestReleaseIsIdempotent(t *testing.T) {
	factory := &fakeFactory{}
	r := New(factory.build)
	ctx := context.Background()

	_, err := r.Acquire(ctx, testConfig("a"))
	require.NoError(t, err)
	s := factory.last()

	require.NoError(t, r.Release(ctx, "a"))
	require.NoError(t, r.Release(ctx, "a"))
	require.NoError(t, r.Release(ctx, "never-seen"))

	quits, closes := s.counts()
	assert.Equal(t, 1, quits)
	assert.Equal(t, 1, closes)

	_, ok := r.Lookup("a")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestEntriesDoNotAccumulate(t *testing.T) {
	factory := &fakeFactory{}
	r := New(factory.build)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("conn-%d", i)
		_, err := r.Acquire(ctx, testConfig(id))
		require.NoError(t, err)
		require.NoError(t, r.Release(ctx, id))
	}
	assert.Equal(t, 0, entryCount(r))

	// A released id can be acquired again on a fresh entry.
	h, err := r.Acquire(ctx, testConfig("conn-0"))
	require.NoError(t, err)
	assert.Equal(t, 1, entryCount(r))
	got, ok := r.Lookup("conn-0")
	require.True(t, ok)
	assert.Same(t, h, got)
}

func TestConcurrentAcquireAndRelease(t *testing.T) {
	factory := &fakeFactory{}
	r := New(factory.build)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := r.Acquire(ctx, testConfig("a"))
				assert.NoError(t, err)
				assert.NoError(t, r.Release(ctx, "a"))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, entryCount(r))
}

func TestReleaseForcesCloseWhenQuitFails(t *testing.T) {
	factory := &fakeFactory{
		onCreate: func(s *fakeSession) { s.quitErr = errors.New("i/o timeout") },
	}
	r := New(factory.build, WithQuitTimeout(10*time.Millisecond))
	ctx := context.Background()

	_, err := r.Acquire(ctx, testConfig("a"))
	require.NoError(t, err)

	require.NoError(t, r.Release(ctx, "a"))

	quits, closes := factory.last().counts()
	assert.Equal(t, 1, quits)
	assert.Equal(t, 1, closes)

	_, ok := r.Lookup("a")
	assert.False(t, ok)
}

func TestSpontaneousEndForgetsHandle(t *testing.T) {
	factory := &fakeFactory{}
	r := New(factory.build)
	ctx := context.Background()

	h1, err := r.Acquire(ctx, testConfig("a"))
	require.NoError(t, err)

	factory.last().set(model.StateClosed)

	_, ok := r.Lookup("a")
	assert.False(t, ok, "ended session should be forgotten")
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, entryCount(r))

	h2, err := r.Acquire(ctx, testConfig("a"))
	require.NoError(t, err)
	assert.NotSame(t, h1, h2)
	assert.Equal(t, int32(2), factory.calls.Load())
}

func TestEndOfReplacedSessionKeepsNewHandle(t *testing.T) {
	factory := &fakeFactory{}
	r := New(factory.build)
	ctx := context.Background()

	_, err := r.Acquire(ctx, testConfig("a"))
	require.NoError(t, err)
	old := factory.last()
	old.set(model.StateError)

	h2, err := r.Acquire(ctx, testConfig("a"))
	require.NoError(t, err)

	// A late end notification from the old session must not evict the new one.
	r.onStateChange("a", &Handle{config: testConfig("a"), session: old}, model.StateClosed)

	got, ok := r.Lookup("a")
	require.True(t, ok)
	assert.Same(t, h2, got)
}

func TestSessionClosedDuringConstruction(t *testing.T) {
	factory := &fakeFactory{
		onCreate: func(s *fakeSession) { s.state = model.StateClosed },
	}
	r := New(factory.build)

	_, err := r.Acquire(context.Background(), testConfig("a"))
	require.NoError(t, err)

	_, ok := r.Lookup("a")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestReleaseAll(t *testing.T) {
	factory := &fakeFactory{}
	r := New(factory.build)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := r.Acquire(ctx, testConfig(id))
		require.NoError(t, err)
	}

	require.NoError(t, r.ReleaseAll(ctx))
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, entryCount(r))
	assert.Empty(t, r.Connections())

	for _, s := range factory.built {
		_, closes := s.counts()
		assert.Equal(t, 1, closes)
	}
}

func TestConnectionsSortedByID(t *testing.T) {
	factory := &fakeFactory{}
	r := New(factory.build)
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		_, err := r.Acquire(ctx, testConfig(id))
		require.NoError(t, err)
	}

	got := r.Connections()
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "c", got[2].ID)
	assert.Equal(t, model.StateConnecting, got[0].State)
	assert.Equal(t, "127.0.0.1:6379", got[0].Addr)
}

func TestRegistryHandleGauge(t *testing.T) {
	m := metrics.NewMetrics("test", map[string]string{})
	factory := &fakeFactory{}
	r := New(factory.build, WithMetrics(m))
	ctx := context.Background()

	_, err := r.Acquire(ctx, testConfig("a"))
	require.NoError(t, err)
	_, err = r.Acquire(ctx, testConfig("b"))
	require.NoError(t, err)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RegistryHandles))

	require.NoError(t, r.Release(ctx, "a"))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RegistryHandles))
}

func TestHealthChecker(t *testing.T) {
	factory := &fakeFactory{}
	r := New(factory.build)
	ctx := context.Background()

	checker := NewHealthChecker(zap.NewNop(), r)
	assert.Equal(t, "connections", checker.Name())

	result := checker.Check(ctx)
	assert.Equal(t, health.StatusOK, result.Status)
	assert.Equal(t, "0 connections tracked", result.Message)

	_, err := r.Acquire(ctx, testConfig("a"))
	require.NoError(t, err)
	factory.last().set(model.StateError)

	result = checker.Check(ctx)
	assert.Equal(t, health.StatusOK, result.Status)
	assert.Equal(t, "1 of 1 connections failing: a", result.Message)
}
