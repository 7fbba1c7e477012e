package query_test

import (
	"context"
	"github.com/chatscope/chatscope/internal/errors"
	"github.com/chatscope/chatscope/internal/query"
	"github.com/chatscope/chatscope/internal/testhelpers"
	"github.com/stretchr/testify/require"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const testInterval = 20 * time.Millisecond

var errBackend = errors.NewSentinel("backend unavailable")

// counter is a fetch function that tracks how often and how concurrently it is called.
type counter struct {
	calls     atomic.Int64
	inFlight  atomic.Int64
	maxFlight atomic.Int64
	mu        sync.Mutex
	// errs maps 1-based call numbers to the error they return. Other calls return their call number.
	errs    map[int64]error
	release chan struct{}
	started chan struct{}
}

func newCounter() *counter {
	return &counter{errs: map[int64]error{}} //nolint:exhaustruct // zero values are fine
}

func (c *counter) failOn(call int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[call] = err
}

func (c *counter) fetch(ctx context.Context) (any, error) {
	n := c.calls.Add(1)
	cur := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		prev := c.maxFlight.Load()
		if cur <= prev || c.maxFlight.CompareAndSwap(prev, cur) {
			break
		}
	}
	if c.started != nil {
		c.started <- struct{}{}
	}
	if c.release != nil {
		select {
		case <-c.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.mu.Lock()
	err := c.errs[n]
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return int(n), nil
}

func pollWhileBelow(limit int) func(any) bool {
	return func(v any) bool {
		n, ok := v.(int)
		return ok && n < limit
	}
}

func newCache(t *testing.T, staleTime time.Duration) *query.Cache {
	t.Helper()
	cache := query.NewCache(query.Options{PollInterval: testInterval, StaleTime: staleTime},
		testhelpers.NewLogger(io.Discard))
	t.Cleanup(cache.Close)
	return cache
}

// waitFor receives snapshots until one satisfies cond.
func waitFor(t *testing.T, sub *query.Subscription, cond func(query.Snapshot) bool) query.Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s, ok := <-sub.C():
			require.True(t, ok, "subscription closed")
			if cond(s) {
				return s
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func atLeast(n int) func(query.Snapshot) bool {
	return func(s query.Snapshot) bool {
		v, ok := s.Value.(int)
		return ok && v >= n
	}
}

func hasValue(want int) func(query.Snapshot) bool {
	return func(s query.Snapshot) bool {
		return !s.Fetching && s.Value == want
	}
}

func TestCache_Fetch_coalescesConcurrentReads(t *testing.T) {
	cache := newCache(t, time.Hour)
	c := newCounter()
	c.release = make(chan struct{})
	c.started = make(chan struct{}, 1)
	def := query.Definition{Fetch: c.fetch, ShouldPoll: nil}
	key := query.GroupsKey()

	var wg sync.WaitGroup
	results := make([]any, 10)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := cache.Fetch(context.Background(), key, def)
			if err == nil {
				results[i] = v
			}
		}()
	}
	<-c.started
	// Give the remaining readers time to join the flight.
	time.Sleep(50 * time.Millisecond)
	close(c.release)
	wg.Wait()

	require.Equal(t, int64(1), c.calls.Load())
	for _, v := range results {
		require.Equal(t, 1, v)
	}

	// Fresh values are served from the cache.
	v, err := cache.Fetch(context.Background(), key, def)
	require.NoError(t, err)
	require.Equal(t, 1, v)
	require.Equal(t, int64(1), c.calls.Load())
}

func TestCache_Fetch_refetchesAfterStaleTime(t *testing.T) {
	cache := newCache(t, 0)
	c := newCounter()
	def := query.Definition{Fetch: c.fetch, ShouldPoll: nil}

	for want := 1; want <= 3; want++ {
		v, err := cache.Fetch(context.Background(), query.BusinessesKey(), def)
		require.NoError(t, err)
		require.Equal(t, want, v)
	}
}

func TestCache_Subscribe_pollsUntilPredicateFails(t *testing.T) {
	cache := newCache(t, 0)
	c := newCounter()
	sub := cache.Subscribe(query.GroupChatsKey("g1"), query.Definition{Fetch: c.fetch, ShouldPoll: pollWhileBelow(3)})
	defer sub.Close()

	waitFor(t, sub, hasValue(3))
	time.Sleep(5 * testInterval)
	require.Equal(t, int64(3), c.calls.Load(), "no fetch after the predicate stops holding")
	require.Equal(t, int64(1), c.maxFlight.Load(), "polls never overlap")
}

func TestCache_Subscribe_sharesPollingBetweenSubscribers(t *testing.T) {
	cache := newCache(t, 0)
	c := newCounter()
	def := query.Definition{Fetch: c.fetch, ShouldPoll: pollWhileBelow(4)}
	key := query.GroupChatsKey("g1")

	first := cache.Subscribe(key, def)
	defer first.Close()
	waitFor(t, first, atLeast(1))
	second := cache.Subscribe(key, def)
	defer second.Close()

	// The second subscriber starts from the retained snapshot instead of triggering its own fetch.
	waitFor(t, first, hasValue(4))
	waitFor(t, second, hasValue(4))
	time.Sleep(3 * testInterval)
	require.Equal(t, int64(4), c.calls.Load())
	require.Equal(t, int64(1), c.maxFlight.Load())
}

func TestCache_Subscribe_errorKeepsLastValueAndInterval(t *testing.T) {
	cache := newCache(t, 0)
	c := newCounter()
	c.failOn(2, errBackend)
	sub := cache.Subscribe(query.GroupChatsKey("g1"), query.Definition{Fetch: c.fetch, ShouldPoll: pollWhileBelow(3)})
	defer sub.Close()

	failed := waitFor(t, sub, func(s query.Snapshot) bool { return s.Err != nil })
	require.ErrorIs(t, failed.Err, errBackend)
	require.Equal(t, 1, failed.Value, "last successful value is kept")
	require.True(t, failed.HasValue())

	recovered := waitFor(t, sub, hasValue(3))
	require.NoError(t, recovered.Err)
	time.Sleep(3 * testInterval)
	require.Equal(t, int64(3), c.calls.Load())
}

func TestCache_Subscribe_noPollingBeforeFirstSuccess(t *testing.T) {
	cache := newCache(t, 0)
	c := newCounter()
	c.failOn(1, errBackend)
	sub := cache.Subscribe(query.GroupChatsKey("g1"), query.Definition{
		Fetch:      c.fetch,
		ShouldPoll: func(any) bool { return true },
	})
	defer sub.Close()

	waitFor(t, sub, func(s query.Snapshot) bool { return s.Err != nil })
	time.Sleep(5 * testInterval)
	require.Equal(t, int64(1), c.calls.Load())
}

func TestCache_Subscription_Close_stopsPolling(t *testing.T) {
	cache := newCache(t, 0)
	c := newCounter()
	sub := cache.Subscribe(query.GroupChatsKey("g1"), query.Definition{
		Fetch:      c.fetch,
		ShouldPoll: func(any) bool { return true },
	})
	waitFor(t, sub, atLeast(2))
	sub.Close()
	sub.Close()

	// Let a fetch that may still be in flight resolve.
	time.Sleep(2 * testInterval)
	calls := c.calls.Load()
	time.Sleep(5 * testInterval)
	require.Equal(t, calls, c.calls.Load())
}

func TestCache_Invalidate(t *testing.T) {
	t.Run("unsubscribed key refetches on next read", func(t *testing.T) {
		cache := newCache(t, time.Hour)
		c := newCounter()
		def := query.Definition{Fetch: c.fetch, ShouldPoll: nil}
		key := query.GroupChatsKey("g1")

		_, err := cache.Fetch(context.Background(), key, def)
		require.NoError(t, err)
		cache.Invalidate(key)
		require.Equal(t, int64(1), c.calls.Load(), "nothing fetched until read")

		v, err := cache.Fetch(context.Background(), key, def)
		require.NoError(t, err)
		require.Equal(t, 2, v)
	})

	t.Run("subscribed key refetches immediately", func(t *testing.T) {
		cache := newCache(t, 0)
		c := newCounter()
		key := query.GroupsKey()
		sub := cache.Subscribe(key, query.Definition{Fetch: c.fetch, ShouldPoll: nil})
		defer sub.Close()
		waitFor(t, sub, hasValue(1))

		cache.Invalidate(key)
		waitFor(t, sub, hasValue(2))
	})

	t.Run("key invalidated during a fetch is fetched again", func(t *testing.T) {
		cache := newCache(t, time.Hour)
		c := newCounter()
		c.release = make(chan struct{})
		c.started = make(chan struct{}, 2)
		def := query.Definition{Fetch: c.fetch, ShouldPoll: nil}
		key := query.ChatDetailKey("g1", "c1")

		done := make(chan any, 1)
		go func() {
			v, _ := cache.Fetch(context.Background(), key, def)
			done <- v
		}()
		<-c.started
		cache.Invalidate(key)
		close(c.release)

		select {
		case v := <-done:
			require.Equal(t, 2, v)
		case <-time.After(2 * time.Second):
			t.Fatal("fetch did not resolve")
		}
	})

	t.Run("invalidating right after a fetch resolves fetches again", func(t *testing.T) {
		cache := newCache(t, time.Hour)
		c := newCounter()
		key := query.GroupChatsKey("g1")
		sub := cache.Subscribe(key, query.Definition{Fetch: c.fetch, ShouldPoll: nil})
		defer sub.Close()
		waitFor(t, sub, hasValue(1))

		// The snapshot is published before the flight returns, so each invalidation lands while it is finishing.
		for want := 2; want <= 200; want++ {
			cache.Invalidate(key)
			waitFor(t, sub, hasValue(want))
		}
		require.Equal(t, int64(1), c.maxFlight.Load())
	})

	t.Run("unknown key is ignored", func(t *testing.T) {
		cache := newCache(t, 0)
		cache.Invalidate(query.GroupChatsKey("missing"))
		_, ok := cache.Peek(query.GroupChatsKey("missing"))
		require.False(t, ok)
	})
}

func TestCache_Fetch_contextCancelled(t *testing.T) {
	cache := newCache(t, time.Hour)
	c := newCounter()
	c.release = make(chan struct{})
	def := query.Definition{Fetch: c.fetch, ShouldPoll: nil}
	key := query.GroupsKey()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := cache.Fetch(ctx, key, def)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The abandoned fetch still lands in the cache.
	close(c.release)
	require.Eventually(t, func() bool {
		s, ok := cache.Peek(key)
		return ok && s.Value == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCache_Close(t *testing.T) {
	cache := query.NewCache(query.Options{PollInterval: testInterval, StaleTime: 0}, testhelpers.NewLogger(io.Discard))
	c := newCounter()
	sub := cache.Subscribe(query.GroupsKey(), query.Definition{Fetch: c.fetch, ShouldPoll: func(any) bool { return true }})
	waitFor(t, sub, atLeast(1))

	cache.Close()
	cache.Close()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.C():
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	sub.Close()

	_, err := cache.Fetch(context.Background(), query.GroupsKey(), query.Definition{Fetch: c.fetch, ShouldPoll: nil})
	require.ErrorIs(t, err, query.ErrClosed)
}

func TestKey_String(t *testing.T) {
	require.Equal(t, `["businesses"]`, query.BusinessesKey().String())
	require.Equal(t, `["groups"]`, query.GroupsKey().String())
	require.Equal(t, `["group","g\"1","chats"]`, query.GroupChatsKey(`g"1`).String())
	require.Equal(t, []string{"group", "g1", "chats", "c1"}, query.ChatDetailKey("g1", "c1").Parts())
	require.NotEqual(t, query.GroupChatsKey("g1"), query.ChatDetailKey("g1", ""))
}
