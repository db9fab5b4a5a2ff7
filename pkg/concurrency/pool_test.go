package concurrency

import (
	"gridbot/internal/core"
	"sync"
	"sync/atomic"
	"testing"
)

type noopLogger struct{}

func (l *noopLogger) Debug(msg string, fields ...interface{})               {}
func (l *noopLogger) Info(msg string, fields ...interface{})                {}
func (l *noopLogger) Warn(msg string, fields ...interface{})                {}
func (l *noopLogger) Error(msg string, fields ...interface{})               {}
func (l *noopLogger) Fatal(msg string, fields ...interface{})               {}
func (l *noopLogger) WithField(key string, value interface{}) core.ILogger  { return l }
func (l *noopLogger) WithFields(fields map[string]interface{}) core.ILogger { return l }

func TestWorkerPool_SubmitRunsTasks(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{
		Name:        "test",
		MaxWorkers:  4,
		MaxCapacity: 100,
	}, &noopLogger{})

	var counter int64
	for i := 0; i < 50; i++ {
		if err := pool.Submit(func() {
			atomic.AddInt64(&counter, 1)
		}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}
	pool.Stop()

	if counter != 50 {
		t.Errorf("ran %d tasks, want 50", counter)
	}
}

func TestWorkerPool_NonBlockingFull(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{
		Name:        "tiny",
		MaxWorkers:  1,
		MaxCapacity: 1,
		NonBlocking: true,
	}, &noopLogger{})
	defer pool.Stop()

	block := make(chan struct{})
	defer close(block)

	// Occupy the single worker, then fill the queue.
	_ = pool.Submit(func() { <-block })

	sawFull := false
	for i := 0; i < 10; i++ {
		if err := pool.Submit(func() {}); err != nil {
			sawFull = true
			break
		}
	}
	if !sawFull {
		t.Error("expected a full-pool error from non-blocking submit")
	}
}

func BenchmarkWorkerPool_Submit(b *testing.B) {
	pool := NewWorkerPool(PoolConfig{
		Name:        "bench",
		MaxWorkers:  10,
		MaxCapacity: 1000,
	}, &noopLogger{})
	defer pool.Stop()

	b.ResetTimer()
	var counter int64
	for i := 0; i < b.N; i++ {
		_ = pool.Submit(func() {
			atomic.AddInt64(&counter, 1)
		})
	}
}

func BenchmarkGoroutine_Spawn(b *testing.B) {
	var wg sync.WaitGroup
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wg.Add(1)
		go func() {
			wg.Done()
		}()
	}
	wg.Wait()
}
