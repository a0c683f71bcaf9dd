package query

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestObserver_FetchesAndNotifies(t *testing.T) {
	c := newTestClient(t, nil)
	var calls atomic.Int32
	var changes atomic.Int32
	var lastData atomic.Value

	o := Observe(c, Options[string]{
		Key: NewKey("product", 1),
		Fn:  countingFetcher(&calls, "phone"),
	}, func(r Result[string]) {
		changes.Add(1)
		if r.IsSuccess() {
			lastData.Store(r.Data)
		}
	})
	defer o.Close()

	eventually(t, "observer saw data", func() bool {
		v, _ := lastData.Load().(string)
		return v == "phone"
	})
	if changes.Load() < 2 {
		t.Errorf("expected notifications for fetch start and completion, got %d", changes.Load())
	}
	if r := o.Result(); !r.IsSuccess() || r.Data != "phone" {
		t.Errorf("Result() = %+v", r)
	}
}

func TestObserver_KeepsEntryAlive(t *testing.T) {
	c := newTestClient(t, nil)
	var calls atomic.Int32

	o := Observe(c, Options[string]{
		Key:       NewKey("detail", 3),
		Fn:        countingFetcher(&calls, "x"),
		StaleTime: Forever,
		GCTime:    10 * time.Millisecond,
	}, nil)

	eventually(t, "data loaded", func() bool { return o.Result().IsSuccess() })
	time.Sleep(50 * time.Millisecond)
	if c.Len() != 1 {
		t.Fatalf("observed entry was evicted")
	}

	o.Close()
	o.Close()
	eventually(t, "entry evicted after last observer left", func() bool { return c.Len() == 0 })
}

func TestObserver_PlaceholderWhileNextKeyLoads(t *testing.T) {
	c := newTestClient(t, nil)
	release := make(chan struct{})

	page := func(n int) Options[string] {
		return Options[string]{
			Key: NewKey("products", "page", n),
			Fn: func(ctx context.Context) (string, error) {
				if n > 0 {
					<-release
				}
				return fmt.Sprintf("page-%d", n), nil
			},
			StaleTime:        time.Minute,
			KeepPreviousData: true,
		}
	}

	o := Observe(c, page(0), nil)
	defer o.Close()
	eventually(t, "first page loaded", func() bool { return o.Result().Data == "page-0" })

	o.SetOptions(page(1))

	r := o.Result()
	if !r.IsSuccess() || !r.IsPlaceholderData || r.Data != "page-0" {
		t.Fatalf("expected previous page as placeholder, got %+v", r)
	}

	close(release)
	eventually(t, "second page replaced placeholder", func() bool {
		r := o.Result()
		return r.Data == "page-1" && !r.IsPlaceholderData
	})

	// Returning to a cached key shows its own data without placeholder.
	o.SetOptions(page(0))
	if r := o.Result(); r.Data != "page-0" || r.IsPlaceholderData {
		t.Errorf("cached key result = %+v", r)
	}
}

func TestObserver_WithoutKeepPreviousData(t *testing.T) {
	c := newTestClient(t, nil)
	release := make(chan struct{})
	defer close(release)

	o := Observe(c, Options[string]{
		Key: NewKey("a"),
		Fn:  func(ctx context.Context) (string, error) { return "a", nil },
	}, nil)
	defer o.Close()
	eventually(t, "loaded", func() bool { return o.Result().IsSuccess() })

	o.SetOptions(Options[string]{
		Key: NewKey("b"),
		Fn: func(ctx context.Context) (string, error) {
			<-release
			return "b", nil
		},
	})
	if r := o.Result(); !r.IsPending() || r.IsPlaceholderData {
		t.Errorf("expected pending without placeholder, got %+v", r)
	}
}

func TestObserver_Polling(t *testing.T) {
	c := newTestClient(t, nil)
	var calls atomic.Int32

	o := Observe(c, Options[string]{
		Key:             NewKey("polled"),
		Fn:              countingFetcher(&calls, "tick"),
		StaleTime:       Forever,
		RefetchInterval: 10 * time.Millisecond,
	}, nil)

	eventually(t, "polled several times", func() bool { return calls.Load() >= 3 })
	o.Close()

	n := calls.Load()
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got > n+1 {
		t.Errorf("polling continued after Close: %d -> %d", n, got)
	}
}

func TestObserver_SetOptionsChangesInterval(t *testing.T) {
	c := newTestClient(t, nil)
	var calls atomic.Int32

	opts := Options[string]{
		Key:       NewKey("interval"),
		Fn:        countingFetcher(&calls, "v"),
		StaleTime: Forever,
	}
	o := Observe(c, opts, nil)
	defer o.Close()
	eventually(t, "loaded", func() bool { return o.Result().IsSuccess() })

	time.Sleep(30 * time.Millisecond)
	if calls.Load() != 1 {
		t.Fatalf("unexpected refetch without interval: %d", calls.Load())
	}

	opts.RefetchInterval = 10 * time.Millisecond
	o.SetOptions(opts)
	eventually(t, "polling started", func() bool { return calls.Load() >= 3 })
}

func TestObserver_Refetch(t *testing.T) {
	c := newTestClient(t, nil)
	var calls atomic.Int32

	o := Observe(c, Options[int32]{
		Key: NewKey("refetch"),
		Fn: func(ctx context.Context) (int32, error) {
			return calls.Add(1), nil
		},
		StaleTime: Forever,
	}, nil)
	defer o.Close()
	eventually(t, "loaded", func() bool { return o.Result().Data == 1 })

	r, err := o.Refetch(context.Background())
	if err != nil {
		t.Fatalf("Refetch: %v", err)
	}
	if r.Data != 2 {
		t.Errorf("Refetch data = %d, want 2", r.Data)
	}
}

func TestObserver_InvalidateRevalidates(t *testing.T) {
	c := newTestClient(t, nil)
	var calls atomic.Int32

	o := Observe(c, Options[string]{
		Key:       NewKey("products", "asc"),
		Fn:        countingFetcher(&calls, "v"),
		StaleTime: Forever,
	}, nil)
	defer o.Close()
	eventually(t, "loaded", func() bool { return o.Result().IsSuccess() })

	c.Invalidate(NewKey("products"))
	eventually(t, "observed entry refetched", func() bool { return calls.Load() == 2 })
}
