package routes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func startDispatcher(t *testing.T, registry *Registry, workers, queue int) *Dispatcher {
	t.Helper()
	dispatcher := NewDispatcher(registry, workers, queue, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = dispatcher.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return dispatcher
}

func TestDispatcherCallWaitsForResult(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterOnce("slow", func(ctx context.Context, payload map[string]any, _ Call) (any, error) {
		time.Sleep(10 * time.Millisecond)
		return payload["n"], nil
	}, "", "")
	dispatcher := startDispatcher(t, registry, 2, 4)

	got, err := dispatcher.Call(context.Background(), "slow", map[string]any{"n": 7}, Call{})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != 7 {
		t.Fatalf("Call() = %v, want 7", got)
	}
}

func TestDispatcherPropagatesErrors(t *testing.T) {
	registry := NewRegistry()
	failure := errors.New("backend down")
	registry.RegisterOnce("fail", func(context.Context, map[string]any, Call) (any, error) {
		return nil, failure
	}, "", "")
	dispatcher := startDispatcher(t, registry, 1, 1)

	if _, err := dispatcher.Call(context.Background(), "fail", nil, Call{}); !errors.Is(err, failure) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if _, err := dispatcher.Call(context.Background(), "missing", nil, Call{}); !errors.Is(err, ErrUnknownRoute) {
		t.Fatalf("expected ErrUnknownRoute, got %v", err)
	}
}

func TestDispatcherConcurrentCalls(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterOnce("double", func(_ context.Context, payload map[string]any, _ Call) (any, error) {
		return payload["n"].(int) * 2, nil
	}, "", "")
	dispatcher := startDispatcher(t, registry, 3, 2)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			got, err := dispatcher.Call(context.Background(), "double", map[string]any{"n": n}, Call{})
			if err != nil {
				errs <- err
				return
			}
			if got != n*2 {
				errs <- errors.New("wrong result")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}
}

func TestDispatcherCallHonorsContext(t *testing.T) {
	registry := NewRegistry()
	release := make(chan struct{})
	registry.RegisterOnce("block", func(context.Context, map[string]any, Call) (any, error) {
		<-release
		return nil, nil
	}, "", "")
	dispatcher := startDispatcher(t, registry, 1, 1)
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := dispatcher.Call(ctx, "block", nil, Call{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNilDispatcherIsDegraded(t *testing.T) {
	var dispatcher *Dispatcher
	if dispatcher.Available() {
		t.Fatal("nil dispatcher reported available")
	}
	if _, err := dispatcher.Call(context.Background(), "list_proposals", nil, Call{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if dispatcher.Routes() != nil {
		t.Fatal("expected no routes in degraded mode")
	}
}

func TestStoppedDispatcherRejectsCalls(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterOnce("noop", constant("ok"), "", "")
	dispatcher := NewDispatcher(registry, 1, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = dispatcher.Run(ctx)

	// Fill the queue so the send cannot succeed either.
	dispatcher.queue <- request{ctx: context.Background(), reply: make(chan response, 1)}
	if _, err := dispatcher.Call(context.Background(), "noop", nil, Call{}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}
