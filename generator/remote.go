package generator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"paprika/stylize"
)

// imageEditor sends a PNG and an instruction to a hosted image model and
// returns the edited image bytes.
type imageEditor interface {
	Edit(ctx context.Context, png []byte, prompt string) ([]byte, error)
	Name() string
	Close() error
}

// remoteGenerator adapts an imageEditor to the tensor contract of
// stylize.Generator: tensor -> PNG -> remote edit -> decoded image -> tensor.
// The returned tensor always has the input's spatial size.
type remoteGenerator struct {
	editor  imageEditor
	prompt  string
	timeout time.Duration
	logger  *zap.Logger
	closed  atomic.Bool
}

func newRemoteGenerator(editor imageEditor, prompt string, timeout time.Duration, logger *zap.Logger) *remoteGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &remoteGenerator{
		editor:  editor,
		prompt:  prompt,
		timeout: timeout,
		logger:  logger,
	}
}

func (g *remoteGenerator) Forward(ctx context.Context, in *stylize.Tensor) (*stylize.Tensor, error) {
	if g.closed.Load() {
		return nil, ErrClosed
	}

	frame, err := stylize.ImageFromTensor(in)
	if err != nil {
		return nil, fmt.Errorf("decode input tensor: %w", err)
	}
	payload, err := stylize.EncodePNG(frame)
	if err != nil {
		return nil, fmt.Errorf("encode request image: %w", err)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	data, err := g.editor.Edit(ctx, payload, g.prompt)
	if err != nil {
		return nil, fmt.Errorf("%s edit: %w", g.editor.Name(), err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s edit: %w", g.editor.Name(), ErrNoImageReturned)
	}

	edited, format, err := stylize.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%s edit: %w", g.editor.Name(), err)
	}

	g.logger.Debug("Remote edit complete",
		zap.String("editor", g.editor.Name()),
		zap.String("format", format),
		zap.Int("request_bytes", len(payload)),
		zap.Int("response_bytes", len(data)),
		zap.Duration("duration", time.Since(start)),
	)

	rgb := stylize.Fit(stylize.ToRGB(edited), in.Width(), in.Height())
	return stylize.TensorFromImage(rgb), nil
}

func (g *remoteGenerator) Close() error {
	if g.closed.Swap(true) {
		return nil
	}
	return g.editor.Close()
}

var _ stylize.Generator = (*remoteGenerator)(nil)
