package stylize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Loader acquires a Generator for a style preset bound to a device.
// Loaders own every network or disk access involved in producing the model.
type Loader interface {
	Load(ctx context.Context, device ExecutionDevice, style string) (Generator, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, device ExecutionDevice, style string) (Generator, error)

func (f LoaderFunc) Load(ctx context.Context, device ExecutionDevice, style string) (Generator, error) {
	return f(ctx, device, style)
}

// Session holds a ready-to-infer generator and its projector for the life of
// the process. It is read-only after Initialize; Stylize calls are serialized.
type Session struct {
	mu        sync.Mutex
	device    ExecutionDevice
	style     string
	size      int
	gen       Generator
	transform StyleTransform
	closed    bool
	logger    *zap.Logger
	loadTime  time.Duration
}

type sessionOptions struct {
	renderSize int
	warmup     bool
	logger     *zap.Logger
}

// SessionOption configures Initialize.
type SessionOption func(*sessionOptions)

// WithRenderSize sets the projector's square render size (default 512).
func WithRenderSize(size int) SessionOption {
	return func(o *sessionOptions) {
		o.renderSize = size
	}
}

// WithWarmup enables or disables the warm-up render run during Initialize.
func WithWarmup(enabled bool) SessionOption {
	return func(o *sessionOptions) {
		o.warmup = enabled
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) SessionOption {
	return func(o *sessionOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Initialize builds the session: load the generator for style on device, wrap it
// in a projector and, unless disabled, run one warm-up render.
//
// Construction is all-or-nothing. Any failure releases what was acquired and
// returns a nil session with a KindModelLoad error.
func Initialize(ctx context.Context, device ExecutionDevice, style string, loader Loader, opts ...SessionOption) (*Session, error) {
	o := sessionOptions{
		renderSize: DefaultRenderSize,
		warmup:     true,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	style = strings.TrimSpace(style)
	if style == "" {
		return nil, newError(KindModelLoad, "resolve style", fmt.Errorf("%w: empty style identifier", ErrUnknownStyle))
	}
	if loader == nil {
		return nil, newError(KindModelLoad, "resolve loader", ErrNoLoader)
	}

	logger := o.logger.With(zap.String("style", style), zap.String("device", device.String()))
	start := time.Now()
	logger.Info("Loading style generator", zap.Int("render_size", o.renderSize))

	gen, err := loadGenerator(ctx, loader, device, style)
	if err != nil {
		return nil, newError(KindModelLoad, "load", err)
	}
	if gen == nil {
		return nil, newError(KindModelLoad, "load", errors.New("loader returned nil generator"))
	}

	projector, err := NewProjector(gen, o.renderSize)
	if err != nil {
		closeQuietly(gen, logger)
		return nil, newError(KindModelLoad, "projector", err)
	}

	s := &Session{
		device:    device,
		style:     style,
		size:      o.renderSize,
		gen:       gen,
		transform: projector,
		logger:    logger,
	}

	if o.warmup {
		if err := s.warmup(ctx); err != nil {
			closeQuietly(gen, logger)
			return nil, newError(KindModelLoad, "warmup", err)
		}
	}

	s.loadTime = time.Since(start)
	logger.Info("Style generator ready", zap.Duration("load_time", s.loadTime))
	return s, nil
}

// loadGenerator shields Initialize from loader panics.
func loadGenerator(ctx context.Context, loader Loader, device ExecutionDevice, style string) (gen Generator, err error) {
	defer func() {
		if r := recover(); r != nil {
			gen = nil
			err = fmt.Errorf("loader panicked: %v", r)
		}
	}()
	return loader.Load(ctx, device, style)
}

// warmup renders a small mid-gray frame to surface device or weight problems at
// setup instead of on the first request.
func (s *Session) warmup(ctx context.Context) error {
	frame := image.NewRGBA(image.Rect(0, 0, MinRenderSize, MinRenderSize))
	for i := range frame.Pix {
		frame.Pix[i] = 0x80
	}
	start := time.Now()
	out, err := s.apply(ctx, frame)
	if err != nil {
		return err
	}
	if b := out.Bounds(); b.Dx() != s.size || b.Dy() != s.size {
		return fmt.Errorf("%w: warm-up render is %dx%d, want %dx%d", ErrMalformedOutput, b.Dx(), b.Dy(), s.size, s.size)
	}
	s.logger.Debug("Warm-up render complete", zap.Duration("duration", time.Since(start)))
	return nil
}

// apply invokes the transform and converts panics into errors so a failed call
// leaves the session usable.
func (s *Session) apply(ctx context.Context, img *image.RGBA) (out *image.RGBA, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("generator panicked: %v", r)
		}
	}()
	return s.transform.Apply(ctx, img)
}

// Device returns the device the generator is bound to.
func (s *Session) Device() ExecutionDevice { return s.device }

// Style returns the preset the session was built for.
func (s *Session) Style() string { return s.style }

// RenderSize returns the projector's square output size.
func (s *Session) RenderSize() int { return s.size }

// LoadTime returns how long Initialize took, warm-up included.
func (s *Session) LoadTime() time.Duration { return s.loadTime }

// Close releases the generator. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.gen.Close()
}

func closeQuietly(gen Generator, logger *zap.Logger) {
	if err := gen.Close(); err != nil {
		logger.Warn("Failed to release generator after setup failure", zap.Error(err))
	}
}
