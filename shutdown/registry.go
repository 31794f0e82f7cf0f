// Package shutdown coordinates graceful termination: it stops accepting
// work, drains in-flight predictions and runs cleanup in priority order.
package shutdown

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Func releases one resource during shutdown.
type Func func(ctx context.Context) error

// Cleanup priorities used by the serve command. Lower runs first.
const (
	PriorityHTTPServer = 10
	PriorityScheduler  = 20
	PriorityHistory    = 30
	PrioritySession    = 40
	PriorityDatabase   = 50
	PriorityScratch    = 60
)

type entry struct {
	name     string
	priority int
	seq      int
	fn       Func
}

// Registry runs registered functions once, lowest priority first. Entries
// with equal priority keep registration order.
type Registry struct {
	mu      sync.Mutex
	entries []entry
	closed  bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds fn. Registrations after Run are ignored.
func (r *Registry) Register(name string, priority int, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || fn == nil {
		return
	}
	r.entries = append(r.entries, entry{name: name, priority: priority, seq: len(r.entries), fn: fn})
}

// Run executes every function and returns their errors, each prefixed with
// its name. A panicking function is reported as an error. Later calls do nothing.
func (r *Registry) Run(ctx context.Context) []error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	entries := r.sorted()
	r.mu.Unlock()

	var errs []error
	for _, e := range entries {
		if err := runEntry(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func runEntry(ctx context.Context, e entry) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s: panic: %v", e.name, p)
		}
	}()
	if err := e.fn(ctx); err != nil {
		return fmt.Errorf("%s: %w", e.name, err)
	}
	return nil
}

// Names lists registered functions in execution order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.sorted()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// Len returns the number of registered functions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// sorted must be called with r.mu held.
func (r *Registry) sorted() []entry {
	out := make([]entry, len(r.entries))
	copy(out, r.entries)
	sort.Slice(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority < out[j].priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}
