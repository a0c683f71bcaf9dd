package query

import (
	"context"
	"errors"
	"sync"
	"time"
)

// InfiniteData is the accumulated state of an infinite query.
type InfiniteData[T any, P any] struct {
	Pages      []T
	PageParams []P
}

// InfiniteOptions configures an infinite query.
type InfiniteOptions[T any, P any] struct {
	Key Key

	// Fn fetches the page identified by param.
	Fn func(ctx context.Context, param P) (T, error)

	InitialPageParam P

	// NextPageParam returns the param of the page after last, or false when
	// last was the final page.
	NextPageParam func(last T, pages []T, lastParam P) (P, bool)

	StaleTime time.Duration
	GCTime    time.Duration
}

// InfiniteResult is the projection of an infinite query.
type InfiniteResult[T any, P any] struct {
	Result[InfiniteData[T, P]]

	HasNextPage        bool
	IsFetchingNextPage bool
}

// Infinite accumulates pages of one key. At most one next-page fetch runs
// at a time. From its first Load until Close it observes the key, so loaded
// pages are not garbage collected while the listing is on screen.
type Infinite[T any, P any] struct {
	c    *Client
	opts InfiniteOptions[T, P]

	mu           sync.Mutex
	fetchingNext bool
	e            *entry
	closed       bool
}

// NewInfinite creates an infinite query bound to c.
func NewInfinite[T any, P any](c *Client, opts InfiniteOptions[T, P]) *Infinite[T, P] {
	return &Infinite[T, P]{c: c, opts: opts}
}

// Key returns the cache key the pages are stored under.
func (q *Infinite[T, P]) Key() Key {
	return q.opts.Key
}

// Load reads the query like Query does. The first load fetches the initial
// page; revalidating stale data refetches every loaded page in order.
func (q *Infinite[T, P]) Load(ctx context.Context) InfiniteResult[T, P] {
	q.hold()
	Query(ctx, q.c, q.options())
	return q.Result()
}

// Close releases the key. Its pages are collected after GCTime unless
// another reader holds them.
func (q *Infinite[T, P]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	if q.e == nil {
		return
	}

	c := q.c
	c.mu.Lock()
	q.e.observers--
	c.scheduleGC(q.e)
	c.mu.Unlock()
	q.e = nil
}

// hold registers q as an observer of its key. A key that was removed and
// recreated is held anew.
func (q *Infinite[T, P]) hold() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}

	c := q.c
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.lookup(q.opts.Key, q.opts.GCTime, nil)
	if e == q.e {
		return
	}
	if q.e != nil {
		q.e.observers--
	}
	e.observers++
	if e.gcTimer != nil {
		e.gcTimer.Stop()
		e.gcTimer = nil
	}
	q.e = e
}

// Result returns the current projection without fetching.
func (q *Infinite[T, P]) Result() InfiniteResult[T, P] {
	r := Peek[InfiniteData[T, P]](q.c, q.opts.Key, q.opts.StaleTime)

	q.mu.Lock()
	fetchingNext := q.fetchingNext
	q.mu.Unlock()

	_, hasNext := q.nextParam(r.Data)
	return InfiniteResult[T, P]{
		Result:             r,
		HasNextPage:        r.IsSuccess() && hasNext,
		IsFetchingNextPage: fetchingNext,
	}
}

// HasNextPage reports whether another page can be fetched.
func (q *Infinite[T, P]) HasNextPage() bool {
	return q.Result().HasNextPage
}

// IsFetchingNextPage reports whether a next-page fetch is in flight.
func (q *Infinite[T, P]) IsFetchingNextPage() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fetchingNext
}

// FetchNextPage fetches and appends the next page. It returns false without
// fetching when there is no next page or another next-page fetch is running.
func (q *Infinite[T, P]) FetchNextPage(ctx context.Context) (bool, error) {
	if !q.beginNext() {
		return false, nil
	}
	defer q.endNext()
	return q.fetchNext(ctx)
}

// OnIntersect is called each time the sentinel below the last item becomes
// visible. It starts one next-page fetch in the background and reports
// whether it did; while that fetch is pending further calls do nothing.
// done, if non-nil, runs after the fetch finishes.
func (q *Infinite[T, P]) OnIntersect(ctx context.Context, done func(error)) bool {
	if !q.HasNextPage() || !q.beginNext() {
		return false
	}
	if !q.c.track() {
		q.endNext()
		return false
	}

	go func() {
		defer q.c.wg.Done()

		_, err := q.fetchNext(context.WithoutCancel(ctx))
		q.endNext()
		if err != nil {
			q.c.logger.Warn().Err(err).Str("key", q.opts.Key.String()).Msg("Next page fetch failed")
		}
		if done != nil {
			done(err)
		}
	}()
	return true
}

func (q *Infinite[T, P]) beginNext() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fetchingNext {
		return false
	}
	q.fetchingNext = true
	return true
}

func (q *Infinite[T, P]) endNext() {
	q.mu.Lock()
	q.fetchingNext = false
	q.mu.Unlock()
}

// fetchNext appends one page. It runs in the key's flight, so a
// revalidation that refetches the loaded pages either finishes first and the
// page is appended to its result, or starts after the append and refetches
// it too.
func (q *Infinite[T, P]) fetchNext(ctx context.Context) (bool, error) {
	q.hold()

	data, ok := GetQueryData[InfiniteData[T, P]](q.c, q.opts.Key)
	if !ok || len(data.Pages) == 0 {
		r := q.Load(ctx)
		return r.IsSuccess(), r.Err
	}
	want := len(data.Pages) + 1

	for {
		var appended bool
		ran, err := q.c.extend(ctx, q.opts.Key, q.opts.GCTime, func(ctx context.Context, cur any, ok bool) (any, bool, error) {
			data, _ := cur.(InfiniteData[T, P])
			if !ok || len(data.Pages) == 0 || len(data.Pages) >= want {
				return nil, false, nil
			}
			param, hasNext := q.nextParam(data)
			if !hasNext {
				return nil, false, nil
			}

			page, err := q.opts.Fn(ctx, param)
			if err != nil {
				return nil, false, err
			}
			appended = true
			return InfiniteData[T, P]{
				Pages:      append(append([]T(nil), data.Pages...), page),
				PageParams: append(append([]P(nil), data.PageParams...), param),
			}, true, nil
		})
		switch {
		case ran:
			return appended, err
		case ctx.Err() != nil:
			return false, ctx.Err()
		case errors.Is(err, ErrClosed):
			return false, err
		}
		// Joined a revalidation; append to what it stored.
	}
}

func (q *Infinite[T, P]) nextParam(data InfiniteData[T, P]) (P, bool) {
	var zero P
	n := len(data.Pages)
	if n == 0 || len(data.PageParams) != n || q.opts.NextPageParam == nil {
		return zero, false
	}
	return q.opts.NextPageParam(data.Pages[n-1], data.Pages, data.PageParams[n-1])
}

func (q *Infinite[T, P]) options() Options[InfiniteData[T, P]] {
	return Options[InfiniteData[T, P]]{
		Key:       q.opts.Key,
		Fn:        q.loadPages,
		StaleTime: q.opts.StaleTime,
		GCTime:    q.opts.GCTime,
	}
}

// loadPages fetches the initial page, or refetches as many pages as are
// currently loaded so a revalidation keeps the scroll position.
func (q *Infinite[T, P]) loadPages(ctx context.Context) (InfiniteData[T, P], error) {
	var out InfiniteData[T, P]
	if q.opts.Fn == nil {
		return out, errors.New("infinite query has no fetch function")
	}

	want := 1
	if cur, ok := GetQueryData[InfiniteData[T, P]](q.c, q.opts.Key); ok && len(cur.Pages) > 1 {
		want = len(cur.Pages)
	}

	param := q.opts.InitialPageParam
	for i := 0; i < want; i++ {
		page, err := q.opts.Fn(ctx, param)
		if err != nil {
			return InfiniteData[T, P]{}, err
		}
		out.Pages = append(out.Pages, page)
		out.PageParams = append(out.PageParams, param)

		next, ok := q.nextParam(out)
		if !ok {
			break
		}
		param = next
	}
	return out, nil
}
