package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Manager ties together the operation tracker, the cleanup registry and
// signal handling. Its context is canceled on the first SIGINT or SIGTERM;
// a second signal forces exit.
//
//	mgr := shutdown.NewManager(logger, shutdown.WithTimeout(cfg.ShutdownTimeout))
//	mgr.Register("database", shutdown.PriorityDatabase, func(context.Context) error { return db.Close() })
//	mgr.Start()
//	<-mgr.Context().Done()
//	err := mgr.Shutdown()
type Manager struct {
	logger    *zap.Logger
	timeout   time.Duration
	forceExit func(code int)

	mu       sync.Mutex
	started  bool
	shutdown bool
	result   error
	done     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *Tracker
	registry *Registry
	signals  *SignalCounter
	sigChan  chan os.Signal
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout bounds draining plus cleanup. Default 30s.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithForceExit replaces os.Exit for the second-signal path.
func WithForceExit(fn func(code int)) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.forceExit = fn
		}
	}
}

// NewManager creates a manager. A nil logger discards output.
func NewManager(logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:    logger,
		timeout:   30 * time.Second,
		forceExit: os.Exit,
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		tracker:   NewTracker(),
		registry:  NewRegistry(),
		sigChan:   make(chan os.Signal, 2),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.signals = NewSignalCounter(2, func() {
		m.logger.Warn("Received second signal, forcing exit")
		m.forceExit(1)
	})
	return m
}

// Context is canceled when shutdown begins.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup function. Lower priority runs first.
func (m *Manager) Register(name string, priority int, fn Func) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("Registered shutdown handler",
		zap.String("name", name),
		zap.Int("priority", priority),
	)
}

// RegisteredHandlers lists cleanup functions in execution order.
func (m *Manager) RegisteredHandlers() []string {
	return m.registry.Names()
}

// Start listens for SIGINT and SIGTERM. Calling it again does nothing.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range m.sigChan {
			m.handleSignal(sig)
		}
	}()
	m.logger.Debug("Shutdown manager listening for signals")
}

func (m *Manager) handleSignal(sig os.Signal) {
	if m.signals.Increment() == 1 {
		m.logger.Info("Received shutdown signal, draining",
			zap.String("signal", sig.String()),
		)
		m.cancel()
	}
}

// Trigger begins shutdown without a signal.
func (m *Manager) Trigger() {
	m.cancel()
}

// Track runs fn as an in-flight operation. It fails with ErrShuttingDown
// once shutdown has begun.
func (m *Manager) Track(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if !m.tracker.Start() {
		m.logger.Debug("Rejected operation during shutdown", zap.String("operation", name))
		return ErrShuttingDown
	}
	defer m.tracker.Done()
	return fn(ctx)
}

// ActiveOperations returns the number of tracked operations in flight.
func (m *Manager) ActiveOperations() int {
	return m.tracker.Active()
}

// IsShuttingDown reports whether new operations are rejected.
func (m *Manager) IsShuttingDown() bool {
	return m.tracker.Closed()
}

// Shutdown stops accepting operations, waits for in-flight ones and runs
// the cleanup functions. Everything shares one timeout. Repeated calls
// return the first result.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		<-m.done
		return m.result
	}
	m.shutdown = true
	m.mu.Unlock()

	start := time.Now()
	m.cancel()
	m.tracker.Close()
	m.logger.Info("Shutting down",
		zap.Duration("timeout", m.timeout),
		zap.Int("in_flight", m.tracker.Active()),
		zap.Int("handlers", m.registry.Len()),
	)

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var errs []error
	if err := m.tracker.Wait(ctx); err != nil {
		m.logger.Warn("In-flight operations did not finish in time",
			zap.Int("remaining", m.tracker.Active()),
		)
		errs = append(errs, fmt.Errorf("drain operations: %w", err))
	}

	for _, err := range m.registry.Run(ctx) {
		m.logger.Error("Shutdown handler failed", zap.Error(err))
		errs = append(errs, err)
	}

	m.stopSignals()
	m.result = errors.Join(errs...)

	m.logger.Info("Shutdown complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("errors", len(errs)),
	)
	close(m.done)
	return m.result
}

// Wait blocks until Shutdown has finished.
func (m *Manager) Wait() {
	<-m.done
}

func (m *Manager) stopSignals() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		signal.Stop(m.sigChan)
		close(m.sigChan)
		m.started = false
	}
}
