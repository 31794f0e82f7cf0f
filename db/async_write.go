package db

import (
	"context"
	"sync"
	"time"
)

// DefaultQueueCapacity bounds pending history writes.
const DefaultQueueCapacity = 100

// AsyncWriter applies writes on a background goroutine so callers never
// block on the database. When the queue is full, Write drops the item and
// returns false.
type AsyncWriter[T any] struct {
	queue   chan T
	handler func(context.Context, T) error
	onError func(T, error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

// NewAsyncWriter starts a writer. onError may be nil.
func NewAsyncWriter[T any](capacity int, handler func(context.Context, T) error, onError func(T, error)) *AsyncWriter[T] {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &AsyncWriter[T]{
		queue:   make(chan T, capacity),
		handler: handler,
		onError: onError,
		ctx:     ctx,
		cancel:  cancel,
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *AsyncWriter[T]) run() {
	defer w.wg.Done()
	for item := range w.queue {
		w.apply(item)
	}
}

func (w *AsyncWriter[T]) apply(item T) {
	if err := w.handler(w.ctx, item); err != nil && w.onError != nil {
		w.onError(item, err)
	}
}

// Write queues item without blocking.
func (w *AsyncWriter[T]) Write(item T) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.queue <- item:
		return true
	default:
		return false
	}
}

// Pending returns the number of queued items.
func (w *AsyncWriter[T]) Pending() int {
	return len(w.queue)
}

// Close stops accepting writes and drains the queue. If ctx expires first
// the in-flight write is cancelled and ctx.Err() is returned.
func (w *AsyncWriter[T]) Close(ctx context.Context) error {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.queue)
		w.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.cancel()
		return nil
	case <-ctx.Done():
		w.cancel()
		return ctx.Err()
	}
}

// CloseTimeout is Close with a deadline.
func (w *AsyncWriter[T]) CloseTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return w.Close(ctx)
}
