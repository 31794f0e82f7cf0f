package shutdown

import (
	"context"
	"errors"
	"sync"
)

// ErrShuttingDown is returned when work is submitted after shutdown began.
var ErrShuttingDown = errors.New("shutting down, not accepting new work")

// Tracker counts in-flight operations so shutdown can wait for them.
type Tracker struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	active int
	closed bool
}

// NewTracker returns an open tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Start registers an operation. It returns false once the tracker is closed.
func (t *Tracker) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.active++
	t.wg.Add(1)
	return true
}

// Done ends an operation started with Start.
func (t *Tracker) Done() {
	t.mu.Lock()
	t.active--
	t.mu.Unlock()
	t.wg.Done()
}

// Close rejects further Start calls.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// Closed reports whether Close was called.
func (t *Tracker) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Active returns the number of running operations.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Wait blocks until every operation finished or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
