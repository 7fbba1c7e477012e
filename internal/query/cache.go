// Package query caches backend reads by key, keeps subscribed keys fresh by polling while their data is still
// changing, and marks keys stale after mutations.
package query

import (
	"context"
	"github.com/chatscope/chatscope/internal/broker"
	"github.com/chatscope/chatscope/internal/errors"
	"golang.org/x/sync/singleflight"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is the delay between a fetch resolving and the next poll.
const DefaultPollInterval = 3 * time.Second

var ErrClosed = errors.NewSentinel("query cache closed")

// Snapshot is the cached state of a key.
type Snapshot struct {
	Key Key
	// Value is the last successfully fetched value. It is nil until the first success.
	Value any
	// Err is the error of the most recent fetch or nil if it succeeded.
	Err error
	// UpdatedAt is when Value was fetched.
	UpdatedAt time.Time
	// Fetching reports whether a fetch is in flight.
	Fetching bool
}

// HasValue reports whether at least one fetch succeeded.
func (s Snapshot) HasValue() bool {
	return !s.UpdatedAt.IsZero()
}

// Definition tells the cache how to fetch a key and whether to keep polling it.
type Definition struct {
	Fetch func(ctx context.Context) (any, error)
	// ShouldPoll is evaluated against the last successful value after every fetch. Nil never polls.
	ShouldPoll func(value any) bool
}

// Options configure a [Cache].
type Options struct {
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
	// StaleTime is how long a value may be served to one-shot reads without refetching.
	StaleTime time.Duration
}

type entry struct {
	def         Definition
	snapshot    Snapshot
	stale       bool
	refetch     bool
	subscribers int
	timer       *time.Timer
	timerGen    uint64
}

func (e *entry) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.timerGen++
}

// Cache is a keyed snapshot cache. At most one fetch per key is in flight at any time, and concurrent reads of
// the same key share it.
type Cache struct {
	logger       *slog.Logger
	staleTime    time.Duration
	pollInterval time.Duration
	ctx          context.Context //nolint:containedctx // fetches outlive the requests that start them
	cancel       context.CancelFunc
	flights      singleflight.Group
	broker       *broker.ChannelBroker[Key, Snapshot]

	mu      sync.Mutex
	entries map[Key]*entry
	closed  bool
}

// NewCache creates a cache. Close it to stop polling and cancel in-flight fetches.
func NewCache(opts Options, logger *slog.Logger) *Cache {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		logger:       logger,
		staleTime:    opts.StaleTime,
		pollInterval: interval,
		ctx:          ctx,
		cancel:       cancel,
		flights:      singleflight.Group{},
		broker:       broker.NewChannelBroker[Key, Snapshot](),
		mu:           sync.Mutex{},
		entries:      map[Key]*entry{},
		closed:       false,
	}
	go c.broker.Start()
	return c
}

// Close stops all polling, cancels in-flight fetches and closes every subscription.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, e := range c.entries {
		e.stopTimer()
	}
	c.mu.Unlock()
	c.cancel()
	c.broker.Stop()
}

// entryLocked returns the entry for key, creating it if needed. Callers hold c.mu.
func (c *Cache) entryLocked(key Key, def Definition) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{def: def, snapshot: Snapshot{Key: key}} //nolint:exhaustruct // zero values are meaningful
		c.entries[key] = e
	}
	if def.Fetch != nil {
		e.def = def
	}
	return e
}

// freshLocked reports whether one-shot reads may be served from the cache.
func (c *Cache) freshLocked(e *entry) bool {
	if !e.snapshot.HasValue() || e.stale || e.snapshot.Err != nil {
		return false
	}
	// A polled key is kept fresh by its subscribers.
	if e.subscribers > 0 && e.timer != nil {
		return true
	}
	return time.Since(e.snapshot.UpdatedAt) < c.staleTime
}

// load starts a fetch of key or joins the one in flight.
func (c *Cache) load(key Key, def Definition) <-chan singleflight.Result {
	return c.flights.DoChan(key.String(), func() (any, error) {
		for {
			if !c.begin(key, def) {
				return nil, ErrClosed
			}
			value, err := def.Fetch(c.ctx)
			if again := c.resolve(key, value, err); !again {
				return value, err
			}
			c.logger.LogAttrs(c.ctx, slog.LevelDebug, "refetching key invalidated during fetch",
				slog.String("key", key.String()))
		}
	})
}

func (c *Cache) begin(key Key, def Definition) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	e := c.entryLocked(key, def)
	e.stopTimer()
	e.refetch = false
	e.snapshot.Fetching = true
	c.broker.Publish(key, e.snapshot)
	return true
}

// resolve stores the outcome of a fetch and schedules the next poll. It returns true when the key was
// invalidated while the fetch was in flight and must be fetched again.
//
// Once the outcome is stored the flight is forgotten, so a load that follows starts a new fetch instead of
// joining the one that is returning.
func (c *Cache) resolve(key Key, value any, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	e := c.entries[key]
	if e.refetch && !errors.Is(err, context.Canceled) {
		return true
	}
	c.flights.Forget(key.String())
	e.snapshot.Fetching = false
	if err != nil {
		e.snapshot.Err = err
		e.stale = true
		c.logger.LogAttrs(c.ctx, slog.LevelWarn, "fetch failed",
			slog.String("key", key.String()), errors.SlogError(err))
	} else {
		e.snapshot.Value = value
		e.snapshot.Err = nil
		e.snapshot.UpdatedAt = time.Now()
		e.stale = false
	}
	c.broker.Publish(key, e.snapshot)
	c.scheduleLocked(key, e)
	return false
}

// scheduleLocked arms exactly one poll if the key is subscribed and its last successful value asks for it.
func (c *Cache) scheduleLocked(key Key, e *entry) {
	e.stopTimer()
	if c.closed || e.subscribers == 0 || !e.snapshot.HasValue() || e.def.ShouldPoll == nil ||
		!e.def.ShouldPoll(e.snapshot.Value) {
		return
	}
	gen := e.timerGen
	e.timer = time.AfterFunc(c.pollInterval, func() {
		c.poll(key, gen)
	})
}

func (c *Cache) poll(key Key, gen uint64) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if c.closed || !ok || e.timerGen != gen || e.subscribers == 0 {
		c.mu.Unlock()
		return
	}
	e.timer = nil
	def := e.def
	c.mu.Unlock()
	c.load(key, def)
}

// Fetch returns the value of key, fetching it unless the cached value is fresh.
//
// ctx only bounds the wait: the fetch itself continues and lands in the cache if ctx is cancelled.
func (c *Cache) Fetch(ctx context.Context, key Key, def Definition) (any, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	e := c.entryLocked(key, def)
	if c.freshLocked(e) {
		value := e.snapshot.Value
		c.mu.Unlock()
		return value, nil
	}
	c.mu.Unlock()

	select {
	case res := <-c.load(key, def):
		if res.Err != nil {
			return nil, res.Err //nolint:wrapcheck // the fetch already annotates its errors
		}
		return res.Val, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "wait for fetch", slog.String("key", key.String()))
	}
}

// Peek returns the cached snapshot of key without fetching.
func (c *Cache) Peek(key Key) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Snapshot{Key: key}, false //nolint:exhaustruct // empty snapshot
	}
	return e.snapshot, true
}

// Invalidate marks keys stale. Subscribed keys are refetched immediately, others on their next read.
// A key that is being fetched is fetched once more after the current fetch resolves.
func (c *Cache) Invalidate(keys ...Key) {
	for _, key := range keys {
		c.mu.Lock()
		e, ok := c.entries[key]
		if c.closed || !ok {
			c.mu.Unlock()
			continue
		}
		e.stale = true
		if e.snapshot.Fetching {
			e.refetch = true
			c.mu.Unlock()
			continue
		}
		subscribed := e.subscribers > 0
		def := e.def
		c.mu.Unlock()
		if subscribed {
			c.load(key, def)
		}
	}
}

// Subscription delivers snapshots of one key. Close it when the consumer goes away.
type Subscription struct {
	cache *Cache
	key   Key
	sub   *broker.Subscription[Key, Snapshot]
	once  sync.Once
}

// C receives the current snapshot, if any, and every later one. Intermediate snapshots may be skipped when the
// consumer is slow. It is closed by Close or when the cache closes.
func (s *Subscription) C() <-chan Snapshot {
	return s.sub.C()
}

// Close unsubscribes. When the last subscriber of a key leaves, its poll timer is cancelled.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.sub.Close()
		s.cache.mu.Lock()
		defer s.cache.mu.Unlock()
		if e, ok := s.cache.entries[s.key]; ok {
			e.subscribers--
			if e.subscribers == 0 {
				e.stopTimer()
			}
		}
	})
}

// Subscribe keeps key fresh while the subscription is open: the key is fetched unless a fresh value is cached,
// and polled at the poll interval while def.ShouldPoll holds for the last successful value.
func (c *Cache) Subscribe(key Key, def Definition) *Subscription {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return &Subscription{cache: c, key: key, sub: c.broker.Subscribe(key), once: sync.Once{}}
	}
	e := c.entryLocked(key, def)
	e.subscribers++
	first := e.subscribers == 1
	needFetch := !e.snapshot.Fetching &&
		(e.stale || !e.snapshot.HasValue() || (first && time.Since(e.snapshot.UpdatedAt) >= c.staleTime))
	if first && !needFetch && !e.snapshot.Fetching {
		c.scheduleLocked(key, e)
	}
	c.mu.Unlock()

	s := &Subscription{cache: c, key: key, sub: c.broker.Subscribe(key), once: sync.Once{}}
	if needFetch {
		c.load(key, def)
	}
	return s
}
