package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPool(t *testing.T) {
	pool := NewPool(Config{Workers: 4, QueueSize: 4})
	defer pool.Close()

	if pool.workers != 4 {
		t.Errorf("workers = %d, want 4", pool.workers)
	}
	if pool.queueSize != 4 {
		t.Errorf("queueSize = %d, want 4", pool.queueSize)
	}
}

func TestNewPool_Defaults(t *testing.T) {
	pool := NewPool(Config{})
	defer pool.Close()

	if pool.workers == 0 {
		t.Error("should have a default worker count")
	}
	if pool.queueSize == 0 {
		t.Error("should have a default queue size")
	}
}

func TestSubmit_Success(t *testing.T) {
	pool := NewPool(Config{Workers: 2, QueueSize: 2})
	defer pool.Close()

	var executed atomic.Bool
	job := JobFunc(func(ctx context.Context) error {
		executed.Store(true)
		return nil
	})

	if err := pool.Submit(context.Background(), job); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if !executed.Load() {
		t.Error("job was not executed")
	}
}

func TestSubmit_PropagatesError(t *testing.T) {
	pool := NewPool(Config{Workers: 1, QueueSize: 1})
	defer pool.Close()

	wantErr := errors.New("boom")
	err := pool.Submit(context.Background(), JobFunc(func(ctx context.Context) error {
		return wantErr
	}))
	if err != wantErr {
		t.Errorf("Submit() error = %v, want %v", err, wantErr)
	}
}

func TestSubmit_PanicRecovered(t *testing.T) {
	var recovered interface{}
	pool := NewPool(Config{
		Workers:   1,
		QueueSize: 1,
		PanicHandler: func(r interface{}) {
			recovered = r
		},
	})
	defer pool.Close()

	err := pool.Submit(context.Background(), JobFunc(func(ctx context.Context) error {
		panic("worker exploded")
	}))
	if err == nil {
		t.Fatal("Submit() error = nil, want a panic-wrapped error")
	}
	if recovered == nil {
		t.Error("PanicHandler was not invoked")
	}

	stats := pool.GetStats()
	if stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}
}

func TestSubmit_AfterClose(t *testing.T) {
	pool := NewPool(Config{Workers: 1, QueueSize: 1})
	pool.Close()

	err := pool.Submit(context.Background(), JobFunc(func(ctx context.Context) error {
		return nil
	}))
	if err != ErrPoolClosed {
		t.Errorf("Submit() error = %v, want ErrPoolClosed", err)
	}
}

func TestConcurrency(t *testing.T) {
	const threads = 4
	pool := NewPool(Config{Workers: threads, QueueSize: threads})
	defer pool.Close()

	var completed atomic.Uint64
	var wg sync.WaitGroup
	wg.Add(threads)

	for i := 0; i < threads; i++ {
		go func() {
			defer wg.Done()
			err := pool.Submit(context.Background(), JobFunc(func(ctx context.Context) error {
				time.Sleep(time.Millisecond)
				completed.Add(1)
				return nil
			}))
			if err != nil {
				t.Errorf("Submit() error: %v", err)
			}
		}()
	}
	wg.Wait()

	if completed.Load() != threads {
		t.Errorf("completed = %d, want %d", completed.Load(), threads)
	}

	stats := pool.GetStats()
	if stats.Submitted != threads {
		t.Errorf("Submitted = %d, want %d", stats.Submitted, threads)
	}
	if stats.Completed != threads {
		t.Errorf("Completed = %d, want %d", stats.Completed, threads)
	}
}

func TestGetStats_TracksFailures(t *testing.T) {
	pool := NewPool(Config{Workers: 2, QueueSize: 2})
	defer pool.Close()

	pool.Submit(context.Background(), JobFunc(func(ctx context.Context) error {
		return nil
	}))
	pool.Submit(context.Background(), JobFunc(func(ctx context.Context) error {
		return errors.New("fail")
	}))

	stats := pool.GetStats()
	if stats.Submitted != 2 {
		t.Errorf("Submitted = %d, want 2", stats.Submitted)
	}
	if stats.Completed != 1 {
		t.Errorf("Completed = %d, want 1", stats.Completed)
	}
	if stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}
}
