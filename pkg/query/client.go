package query

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultStaleTime treats data as stale as soon as it arrives.
	DefaultStaleTime = 0

	// DefaultGCTime is how long an unobserved entry is retained.
	DefaultGCTime = 5 * time.Minute

	// Forever disables staleness when used as StaleTime and eviction when
	// used as GCTime.
	Forever time.Duration = math.MaxInt64
)

// ErrClosed is returned by fetches started after Close.
var ErrClosed = errors.New("query client closed")

// Fetcher loads the data of one entry.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Options configures a read of one entry. Zero durations fall back to the
// client defaults.
type Options[T any] struct {
	Key Key
	Fn  Fetcher[T]

	// StaleTime is how long fetched data counts as fresh.
	StaleTime time.Duration

	// GCTime is how long the entry survives without observers.
	GCTime time.Duration

	// RefetchInterval makes an Observer poll. Ignored by one-shot reads.
	RefetchInterval time.Duration

	// KeepPreviousData makes an Observer show the previous key's data as
	// placeholder while a new key has nothing yet.
	KeepPreviousData bool
}

// Config holds the client defaults.
type Config struct {
	StaleTime time.Duration
	GCTime    time.Duration

	// Now is the clock used for staleness. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		StaleTime: DefaultStaleTime,
		GCTime:    DefaultGCTime,
		Now:       time.Now,
	}
}

type fetchFunc func(ctx context.Context) (any, error)

type entry struct {
	key Key
	id  string

	// flight names the entry's singleflight slot. A removed entry keeps its
	// own slot, so a recreated key never joins a fetch of the orphan.
	flight string

	data      any
	hasData   bool
	err       error
	updatedAt time.Time
	errorAt   time.Time

	fetching bool
	// queued marks a background revalidation that has not begun fetching.
	queued      bool
	invalidated bool

	observers int
	gcTime    time.Duration
	gcTimer   *time.Timer

	// fn is the most recent fetch function, used by polling and invalidation.
	fn        fetchFunc
	listeners map[uint64]func()
}

// Client is the query cache. It is safe for concurrent use.
type Client struct {
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	nextID  uint64
	closed  bool
	done    chan struct{}

	group singleflight.Group
	wg    sync.WaitGroup
}

// NewClient creates a query client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.GCTime <= 0 {
		cfg.GCTime = DefaultGCTime
	}
	if cfg.StaleTime < 0 {
		cfg.StaleTime = DefaultStaleTime
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Client{
		cfg:     cfg,
		logger:  logger.With().Str("component", "query-client").Logger(),
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}
}

// Close stops timers and pollers and waits for in-flight fetches.
// Reads after Close still serve cached data but never fetch.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	for _, e := range c.entries {
		if e.gcTimer != nil {
			e.gcTimer.Stop()
		}
	}
	c.mu.Unlock()

	c.wg.Wait()
}

// Len returns the number of entries held.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Query reads an entry the way a mounted view does: fresh data is returned
// as-is, stale data is returned while a background revalidation starts, and
// a missing entry blocks on the fetch.
func Query[T any](ctx context.Context, c *Client, opts Options[T]) Result[T] {
	fn := erase(opts.Fn)
	staleTime := c.staleTime(opts.StaleTime)

	c.mu.Lock()
	e := c.lookup(opts.Key, opts.GCTime, fn)
	hasData := e.hasData
	stale := c.isStale(e, staleTime)
	c.scheduleGC(e)
	c.mu.Unlock()

	var fetchErr error
	switch {
	case hasData && !stale:
		queryHits.Inc()
		c.logger.Debug().Str("key", e.id).Msg("Query cache hit")
	case hasData:
		queryHits.Inc()
		c.logger.Debug().Str("key", e.id).Msg("Query cache hit (stale), revalidating")
		c.revalidate(e, fn)
	default:
		queryMisses.Inc()
		c.logger.Debug().Str("key", e.id).Msg("Query cache miss")
		_, fetchErr = c.fetch(ctx, e, fn)
	}

	c.mu.Lock()
	r := project[T](c, e, staleTime)
	c.mu.Unlock()

	if fetchErr != nil && r.Err == nil {
		r.Status = StatusError
		r.Err = fetchErr
	}
	return r
}

// Peek returns the current projection of an entry without fetching.
func Peek[T any](c *Client, key Key, staleTime time.Duration) Result[T] {
	staleTime = c.staleTime(staleTime)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.String()]
	if !ok {
		return Result[T]{Meta: Meta{Status: StatusPending, IsStale: true}}
	}
	return project[T](c, e, staleTime)
}

// Prefetch loads an entry unless it already holds fresh data.
func Prefetch[T any](ctx context.Context, c *Client, opts Options[T]) error {
	fn := erase(opts.Fn)
	staleTime := c.staleTime(opts.StaleTime)

	c.mu.Lock()
	e := c.lookup(opts.Key, opts.GCTime, fn)
	fresh := e.hasData && !c.isStale(e, staleTime)
	c.scheduleGC(e)
	c.mu.Unlock()

	if fresh {
		return nil
	}
	_, err := c.fetch(ctx, e, fn)
	return err
}

// PrefetchAsync is Prefetch in the background. Errors are logged.
func PrefetchAsync[T any](c *Client, opts Options[T]) {
	fn := erase(opts.Fn)
	staleTime := c.staleTime(opts.StaleTime)

	c.mu.Lock()
	e := c.lookup(opts.Key, opts.GCTime, fn)
	fresh := e.hasData && !c.isStale(e, staleTime)
	c.scheduleGC(e)
	c.mu.Unlock()

	if !fresh {
		c.revalidate(e, fn)
	}
}

// GetQueryData returns the cached data of key, if any.
func GetQueryData[T any](c *Client, key Key) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.entries[key.String()]
	if !ok || !e.hasData {
		return zero, false
	}
	v, ok := e.data.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// SetQueryData stores data for key as if it had just been fetched.
func SetQueryData[T any](c *Client, key Key, data T) {
	c.mu.Lock()
	e := c.lookup(key, 0, nil)
	e.data = data
	e.hasData = true
	e.err = nil
	e.invalidated = false
	e.updatedAt = c.cfg.Now()
	c.scheduleGC(e)
	listeners := e.listenerFuncs()
	c.mu.Unlock()

	notifyAll(listeners)
}

// Invalidate marks every entry whose key starts with prefix as stale.
// Entries with observers are revalidated immediately. It returns the number
// of matched entries.
func (c *Client) Invalidate(prefix Key) int {
	var active []*entry

	c.mu.Lock()
	n := 0
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		n++
		e.invalidated = true
		if e.observers > 0 && e.fn != nil {
			active = append(active, e)
		}
	}
	c.mu.Unlock()

	for _, e := range active {
		c.revalidate(e, e.fn)
	}

	c.logger.Debug().Str("prefix", prefix.String()).Int("entries", n).Msg("Invalidated queries")
	return n
}

// Remove drops an entry regardless of observers.
func (c *Client) Remove(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := key.String()
	if e, ok := c.entries[id]; ok {
		if e.gcTimer != nil {
			e.gcTimer.Stop()
		}
		delete(c.entries, id)
		queryEntries.Dec()
	}
}

func erase[T any](fn Fetcher[T]) fetchFunc {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context) (any, error) {
		return fn(ctx)
	}
}

func (c *Client) staleTime(d time.Duration) time.Duration {
	if d <= 0 {
		return c.cfg.StaleTime
	}
	return d
}

// lookup returns the entry for key, creating it if needed. Must be called
// with mu held.
func (c *Client) lookup(key Key, gcTime time.Duration, fn fetchFunc) *entry {
	id := key.String()
	e, ok := c.entries[id]
	if !ok {
		c.nextID++
		e = &entry{
			key:       append(Key(nil), key...),
			id:        id,
			flight:    id + "#" + strconv.FormatUint(c.nextID, 10),
			gcTime:    c.cfg.GCTime,
			listeners: make(map[uint64]func()),
		}
		c.entries[id] = e
		queryEntries.Inc()
	}
	if gcTime > 0 {
		e.gcTime = gcTime
	}
	if fn != nil {
		e.fn = fn
	}
	return e
}

// isStale must be called with mu held.
func (c *Client) isStale(e *entry, staleTime time.Duration) bool {
	if !e.hasData || e.invalidated {
		return true
	}
	if staleTime == Forever {
		return false
	}
	return c.cfg.Now().Sub(e.updatedAt) >= staleTime
}

// scheduleGC (re)arms the eviction timer of an unobserved entry. Must be
// called with mu held.
func (c *Client) scheduleGC(e *entry) {
	if e.gcTimer != nil {
		e.gcTimer.Stop()
		e.gcTimer = nil
	}
	if e.observers > 0 || e.gcTime == Forever || c.closed {
		return
	}
	e.gcTimer = time.AfterFunc(e.gcTime, func() { c.collect(e) })
}

func (c *Client) collect(e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Entries being fetched are re-armed by store once the fetch completes.
	if c.entries[e.id] != e || e.observers > 0 || e.fetching || e.queued {
		return
	}
	delete(c.entries, e.id)
	queryEntries.Dec()
	queryEvictions.Inc()
	c.logger.Debug().Str("key", e.id).Dur("gc_time", e.gcTime).Msg("Evicted unused query")
}

// track registers a background goroutine. It fails once the client is closed.
func (c *Client) track() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.wg.Add(1)
	return true
}

// fetch runs fn for e with at most one request in flight per key. The
// request runs detached from ctx so a caller that gives up does not fail
// the other callers waiting on the same fetch.
func (c *Client) fetch(ctx context.Context, e *entry, fn fetchFunc) (any, error) {
	if fn == nil {
		return nil, errors.New("query has no fetch function")
	}

	ch := c.group.DoChan(e.flight, func() (any, error) {
		if !c.begin(e) {
			return nil, ErrClosed
		}
		defer c.wg.Done()

		start := time.Now()
		v, err := fn(context.WithoutCancel(ctx))
		queryFetchDuration.Observe(time.Since(start).Seconds())

		c.store(e, v, err)
		return v, err
	})

	select {
	case res := <-ch:
		if res.Shared {
			querySharedFetches.Inc()
		}
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) begin(e *entry) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.wg.Add(1)
	e.fetching = true
	e.queued = false
	listeners := e.listenerFuncs()
	c.mu.Unlock()

	notifyAll(listeners)
	return true
}

func (c *Client) store(e *entry, v any, err error) {
	c.mu.Lock()
	e.fetching = false
	now := c.cfg.Now()
	if err != nil {
		e.err = err
		e.errorAt = now
	} else {
		e.data = v
		e.hasData = true
		e.err = nil
		e.invalidated = false
		e.updatedAt = now
	}
	c.scheduleGC(e)
	listeners := e.listenerFuncs()
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn().Err(err).Str("key", e.id).Msg("Query fetch failed")
	}
	notifyAll(listeners)
}

// revalidate starts a background fetch unless one is already running or
// queued. The entry reports IsFetching from this call on.
func (c *Client) revalidate(e *entry, fn fetchFunc) {
	if fn == nil {
		return
	}

	c.mu.Lock()
	if c.closed || e.fetching || e.queued {
		c.mu.Unlock()
		return
	}
	e.queued = true
	c.wg.Add(1)
	listeners := e.listenerFuncs()
	c.mu.Unlock()

	notifyAll(listeners)

	go func() {
		defer c.wg.Done()
		_, err := c.fetch(context.Background(), e, fn)

		// Joined or refused fetches never reach begin.
		c.mu.Lock()
		var listeners []func()
		if e.queued {
			e.queued = false
			c.scheduleGC(e)
			listeners = e.listenerFuncs()
		}
		c.mu.Unlock()
		notifyAll(listeners)

		if err != nil && !errors.Is(err, ErrClosed) {
			c.logger.Debug().Err(err).Str("key", e.id).Msg("Background revalidation failed")
		}
	}()
}

// updateFunc derives the next data of an entry from its current data. It
// reports whether the data changed.
type updateFunc func(ctx context.Context, cur any, ok bool) (next any, changed bool, err error)

// extend runs fn against the data of key in the entry's flight, so it never
// overlaps a fetch of the same entry. ran is false when the call joined a
// flight started by someone else and fn did not run. An error from fn
// leaves the entry's error state alone.
func (c *Client) extend(ctx context.Context, key Key, gcTime time.Duration, fn updateFunc) (ran bool, err error) {
	c.mu.Lock()
	e := c.lookup(key, gcTime, nil)
	c.mu.Unlock()

	var own bool
	ch := c.group.DoChan(e.flight, func() (any, error) {
		own = true
		if !c.begin(e) {
			return nil, ErrClosed
		}
		defer c.wg.Done()

		c.mu.Lock()
		cur, ok := e.data, e.hasData
		c.mu.Unlock()

		next, changed, err := fn(context.WithoutCancel(ctx), cur, ok)

		c.mu.Lock()
		e.fetching = false
		if changed && err == nil {
			e.data = next
			e.hasData = true
			e.err = nil
			e.updatedAt = c.cfg.Now()
		}
		c.scheduleGC(e)
		listeners := e.listenerFuncs()
		c.mu.Unlock()

		notifyAll(listeners)
		return next, err
	})

	select {
	case res := <-ch:
		return own, res.Err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// listenerFuncs must be called with mu held.
func (e *entry) listenerFuncs() []func() {
	if len(e.listeners) == 0 {
		return nil
	}
	out := make([]func(), 0, len(e.listeners))
	for _, l := range e.listeners {
		out = append(out, l)
	}
	return out
}

func notifyAll(listeners []func()) {
	for _, l := range listeners {
		l()
	}
}

// project must be called with mu held.
func project[T any](c *Client, e *entry, staleTime time.Duration) Result[T] {
	var r Result[T]
	if e.hasData {
		if v, ok := e.data.(T); ok {
			r.Data = v
		}
	}

	switch {
	case e.err != nil:
		r.Status = StatusError
	case e.hasData:
		r.Status = StatusSuccess
	default:
		r.Status = StatusPending
	}
	r.Err = e.err
	r.IsFetching = e.fetching || e.queued
	r.IsStale = c.isStale(e, staleTime)
	r.DataUpdatedAt = e.updatedAt
	r.ErrorUpdatedAt = e.errorAt
	return r
}
