package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDo_ReturnsResult(t *testing.T) {
	p := New(DefaultConfig(), nil)

	got, err := Do(context.Background(), p, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want ok", got)
	}
}

func TestDo_PropagatesError(t *testing.T) {
	p := New(DefaultConfig(), nil)
	want := errors.New("provider down")

	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		return 0, want
	})
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

func TestDo_BoundsConcurrency(t *testing.T) {
	p := New(Config{Workers: 2, QueueTimeout: 5 * time.Second}, nil)

	var running, peak atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Do(context.Background(), p, func(ctx context.Context) (struct{}, error) {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				running.Add(-1)
				return struct{}{}, nil
			})
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestDo_ExhaustedPool(t *testing.T) {
	p := New(Config{Workers: 1, QueueTimeout: 20 * time.Millisecond}, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	go Do(context.Background(), p, func(ctx context.Context) (int, error) {
		close(started)
		<-release
		return 1, nil
	})
	<-started
	defer close(release)

	start := time.Now()
	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		return 2, nil
	})
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("err = %v, want ErrPoolExhausted", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("rejection took %v, want near QueueTimeout", elapsed)
	}
	if got := p.Stats().Rejected; got != 1 {
		t.Errorf("Rejected = %d, want 1", got)
	}
}

func TestDo_ZeroQueueTimeoutFailsImmediately(t *testing.T) {
	p := New(Config{Workers: 1}, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	go Do(context.Background(), p, func(ctx context.Context) (int, error) {
		close(started)
		<-release
		return 1, nil
	})
	<-started
	defer close(release)

	if _, err := Do(context.Background(), p, func(ctx context.Context) (int, error) { return 0, nil }); !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("err = %v, want ErrPoolExhausted", err)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	p := New(DefaultConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	release := make(chan struct{})
	defer close(release)

	_, err := Do(ctx, p, func(ctx context.Context) (int, error) {
		<-release
		return 1, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestDo_RecoversPanic(t *testing.T) {
	p := New(Config{Workers: 1, QueueTimeout: time.Second}, nil)

	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		panic("bad row")
	})
	if err == nil {
		t.Fatal("expected error from panicking worker")
	}

	// The slot must have been released.
	got, err := Do(context.Background(), p, func(ctx context.Context) (int, error) { return 7, nil })
	if err != nil || got != 7 {
		t.Errorf("Do after panic = %d, %v; want 7, nil", got, err)
	}
}
