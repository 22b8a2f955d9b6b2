package stampcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stamppicker/stamp-gateway/internal/traq"
)

const ttl = 3600000 * time.Millisecond

// fakeFetcher counts upstream calls and returns a configurable result.
type fakeFetcher struct {
	calls  atomic.Int32
	mu     sync.Mutex
	stamps []traq.StampSummary
	err    error
	gate   chan struct{} // when set, GetStamps blocks until closed
}

func (f *fakeFetcher) GetStamps(ctx context.Context) ([]traq.StampSummary, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.stamps, nil
}

func (f *fakeFetcher) set(stamps []traq.StampSummary, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stamps = stamps
	f.err = err
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

var kusa = []traq.StampSummary{{Name: "kusa", ID: "1a"}}

// =============================================================================
// TTL
// =============================================================================

func TestGet_FirstCallRefreshes(t *testing.T) {
	f := &fakeFetcher{stamps: kusa}
	c := New(f, ttl, WithClock(newClock().Now))

	stamps, res, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, kusa, stamps)
	assert.Equal(t, Miss, res)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestGet_TTLBoundary(t *testing.T) {
	clock := newClock()
	f := &fakeFetcher{stamps: kusa}
	c := New(f, ttl, WithClock(clock.Now))

	_, _, err := c.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), f.calls.Load())

	// Exactly T+TTL is still fresh.
	clock.Advance(ttl)
	_, res, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Hit, res)
	assert.Equal(t, int32(1), f.calls.Load())

	// T+TTL+1ms triggers exactly one refresh.
	clock.Advance(time.Millisecond)
	_, res, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Miss, res)
	assert.Equal(t, int32(2), f.calls.Load())

	// And the refreshed entry is fresh again.
	_, res, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Hit, res)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestGet_RefreshReplacesListWhole(t *testing.T) {
	clock := newClock()
	f := &fakeFetcher{stamps: kusa}
	c := New(f, ttl, WithClock(clock.Now))

	first, _, err := c.Get(context.Background())
	require.NoError(t, err)

	next := []traq.StampSummary{{Name: "iine", ID: "2b"}, {Name: "sushi", ID: "3c"}}
	f.set(next, nil)
	clock.Advance(ttl + time.Millisecond)

	second, _, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, next, second)
	assert.Equal(t, kusa, first, "earlier readers keep their slice")

	snap := c.Snapshot()
	assert.Equal(t, 2, snap.Count)
	assert.Equal(t, clock.Now(), snap.FetchedAt)
	assert.False(t, snap.Stale)
}

// =============================================================================
// SINGLE FLIGHT
// =============================================================================

func TestGet_ConcurrentStaleReadersShareOneRefresh(t *testing.T) {
	f := &fakeFetcher{stamps: kusa, gate: make(chan struct{})}
	c := New(f, ttl, WithClock(newClock().Now))

	const readers = 20
	var wg sync.WaitGroup
	results := make([][]traq.StampSummary, readers)
	errs := make([]error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = c.Get(context.Background())
		}(i)
	}

	// Let readers pile up on the in-flight refresh, then release it.
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	for i := 0; i < readers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, kusa, results[i])
	}
}

func TestGet_CallerCancellationDoesNotAbortRefresh(t *testing.T) {
	f := &fakeFetcher{stamps: kusa, gate: make(chan struct{})}
	c := New(f, ttl, WithClock(newClock().Now))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := c.Get(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(f.gate)
	require.Eventually(t, func() bool { return c.Snapshot().Count == 1 }, time.Second, time.Millisecond)
}

// =============================================================================
// FAILURE POLICY
// =============================================================================

func TestGet_FailureWithoutDataPropagates(t *testing.T) {
	upstreamErr := &traq.FetchError{Op: "stamp list", Status: 503}
	f := &fakeFetcher{err: upstreamErr}
	c := New(f, ttl, WithClock(newClock().Now), WithServeStale(true))

	_, _, err := c.Get(context.Background())
	var fetchErr *traq.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, 503, fetchErr.Status)

	snap := c.Snapshot()
	assert.Equal(t, 0, snap.Count)
	assert.True(t, snap.FetchedAt.IsZero())
}

func TestGet_FailureServesStaleWhenEnabled(t *testing.T) {
	clock := newClock()
	f := &fakeFetcher{stamps: kusa}
	c := New(f, ttl, WithClock(clock.Now), WithServeStale(true))

	_, _, err := c.Get(context.Background())
	require.NoError(t, err)
	fetchedAt := c.Snapshot().FetchedAt

	f.set(nil, errors.New("connection refused"))
	clock.Advance(ttl + time.Millisecond)

	stamps, res, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stale, res)
	assert.Equal(t, kusa, stamps)
	assert.Equal(t, fetchedAt, c.Snapshot().FetchedAt, "failed refresh leaves state untouched")

	// The next request retries upstream.
	_, _, _ = c.Get(context.Background())
	assert.Equal(t, int32(3), f.calls.Load())
}

func TestGet_FailurePropagatesWhenStaleDisabled(t *testing.T) {
	clock := newClock()
	f := &fakeFetcher{stamps: kusa}
	c := New(f, ttl, WithClock(clock.Now), WithServeStale(false))

	_, _, err := c.Get(context.Background())
	require.NoError(t, err)

	f.set(nil, errors.New("connection refused"))
	clock.Advance(ttl + time.Millisecond)

	_, _, err = c.Get(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, c.Snapshot().Count, "stale list kept for later")
}

func TestGet_RefreshHookSeesEveryAttempt(t *testing.T) {
	var ok, failed int
	f := &fakeFetcher{err: errors.New("boom")}
	c := New(f, ttl, WithClock(newClock().Now), WithRefreshHook(func(err error) {
		if err != nil {
			failed++
		} else {
			ok++
		}
	}))

	_, _, _ = c.Get(context.Background())
	f.set(kusa, nil)
	_, _, _ = c.Get(context.Background())

	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "HIT", Hit.String())
	assert.Equal(t, "MISS", Miss.String())
	assert.Equal(t, "STALE", Stale.String())
}
