package query

import (
	"context"
	"sync"
	"time"
)

// Observer keeps one entry alive and reports every change of its state.
// It is the long-lived counterpart of Query, used by views that stay on
// screen: it polls when RefetchInterval is set and can switch keys while
// keeping the previous data visible.
type Observer[T any] struct {
	c        *Client
	onChange func(Result[T])

	mu          sync.Mutex
	opts        Options[T]
	e           *entry
	listenerID  uint64
	placeholder *Result[T]
	stopPoll    chan struct{}
	closed      bool
}

// Observe subscribes to opts.Key and starts a fetch when the entry is stale.
// onChange may be nil. It runs on the goroutine that changed the entry.
func Observe[T any](c *Client, opts Options[T], onChange func(Result[T])) *Observer[T] {
	o := &Observer[T]{c: c, onChange: onChange}

	o.mu.Lock()
	fetch := o.attach(opts, nil)
	e := o.e
	o.mu.Unlock()

	if fetch {
		c.revalidate(e, erase(opts.Fn))
	}
	return o
}

// Result returns the current state projection.
func (o *Observer[T]) Result() Result[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resultLocked()
}

// SetOptions reconfigures the observer. A different key moves the
// subscription; with KeepPreviousData the last data of the old key is shown
// as placeholder until the new key has data of its own.
func (o *Observer[T]) SetOptions(opts Options[T]) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}

	if opts.Key.Equal(o.opts.Key) {
		restart := opts.RefetchInterval != o.opts.RefetchInterval
		o.opts = opts
		o.c.mu.Lock()
		o.c.lookup(opts.Key, opts.GCTime, erase(opts.Fn))
		o.c.mu.Unlock()
		if restart {
			o.stopPolling()
			o.startPolling()
		}
		o.mu.Unlock()
		return
	}

	prev := o.resultLocked()
	o.stopPolling()
	o.detach()
	fetch := o.attach(opts, &prev)
	e := o.e
	o.mu.Unlock()

	if fetch {
		o.c.revalidate(e, erase(opts.Fn))
	}
	o.notify()
}

// Refetch fetches the entry now, even when its data is fresh.
func (o *Observer[T]) Refetch(ctx context.Context) (Result[T], error) {
	o.mu.Lock()
	e, fn := o.e, erase(o.opts.Fn)
	o.mu.Unlock()

	_, err := o.c.fetch(ctx, e, fn)
	return o.Result(), err
}

// Close unsubscribes. The entry becomes eligible for garbage collection.
func (o *Observer[T]) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true
	o.stopPolling()
	o.detach()
}

// attach must be called with o.mu held. It reports whether the new entry
// needs a fetch.
func (o *Observer[T]) attach(opts Options[T], prev *Result[T]) bool {
	c := o.c
	staleTime := c.staleTime(opts.StaleTime)

	c.mu.Lock()
	e := c.lookup(opts.Key, opts.GCTime, erase(opts.Fn))
	e.observers++
	if e.gcTimer != nil {
		e.gcTimer.Stop()
		e.gcTimer = nil
	}
	c.nextID++
	id := c.nextID
	e.listeners[id] = o.notify
	needsFetch := c.isStale(e, staleTime)
	hasData := e.hasData
	c.mu.Unlock()

	o.opts = opts
	o.e = e
	o.listenerID = id
	o.placeholder = nil
	if opts.KeepPreviousData && prev != nil && !hasData && prev.Status == StatusSuccess {
		ph := *prev
		o.placeholder = &ph
	}
	o.startPolling()
	return needsFetch
}

// detach must be called with o.mu held.
func (o *Observer[T]) detach() {
	c := o.c
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(o.e.listeners, o.listenerID)
	o.e.observers--
	c.scheduleGC(o.e)
}

// startPolling must be called with o.mu held.
func (o *Observer[T]) startPolling() {
	interval := o.opts.RefetchInterval
	if interval <= 0 || !o.c.track() {
		return
	}

	stop := make(chan struct{})
	o.stopPoll = stop
	e, fn := o.e, erase(o.opts.Fn)

	go func() {
		defer o.c.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-o.c.done:
				return
			case <-ticker.C:
				o.c.revalidate(e, fn)
			}
		}
	}()
}

// stopPolling must be called with o.mu held.
func (o *Observer[T]) stopPolling() {
	if o.stopPoll != nil {
		close(o.stopPoll)
		o.stopPoll = nil
	}
}

func (o *Observer[T]) notify() {
	if o.onChange == nil {
		return
	}
	o.onChange(o.Result())
}

// resultLocked must be called with o.mu held.
func (o *Observer[T]) resultLocked() Result[T] {
	staleTime := o.c.staleTime(o.opts.StaleTime)

	o.c.mu.Lock()
	r := project[T](o.c, o.e, staleTime)
	o.c.mu.Unlock()

	if o.placeholder != nil {
		if r.Status != StatusPending {
			o.placeholder = nil
		} else {
			r.Data = o.placeholder.Data
			r.Status = StatusSuccess
			r.IsPlaceholderData = true
		}
	}
	return r
}
