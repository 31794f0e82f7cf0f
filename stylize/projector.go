package stylize

import (
	"context"
	"fmt"
	"image"
)

// DefaultRenderSize is the square side length of every projector render.
const DefaultRenderSize = 512

// Render size bounds accepted by NewProjector.
const (
	MinRenderSize = 64
	MaxRenderSize = 2048
)

// Generator is the opaque pretrained style network. Forward receives a
// 1x3xHxW tensor in [-1, 1] and returns one in the same range. Implementations
// must not retain the input tensor after returning.
type Generator interface {
	Forward(ctx context.Context, in *Tensor) (*Tensor, error)
	Close() error
}

// StyleTransform maps an RGB image to its fully stylized rendering.
// The pipeline depends only on this capability.
type StyleTransform interface {
	Apply(ctx context.Context, img *image.RGBA) (*image.RGBA, error)
}

// Projector is the paint projector: it frames the input as a centered square,
// resamples it to the render size, runs the generator and maps the result back
// to 8-bit color. Output is always Size x Size.
type Projector struct {
	gen  Generator
	size int
}

// NewProjector wraps gen with the given square render size.
func NewProjector(gen Generator, size int) (*Projector, error) {
	if gen == nil {
		return nil, fmt.Errorf("projector: nil generator")
	}
	if size < MinRenderSize || size > MaxRenderSize {
		return nil, fmt.Errorf("projector: render size %d outside [%d, %d]", size, MinRenderSize, MaxRenderSize)
	}
	return &Projector{gen: gen, size: size}, nil
}

// Size returns the render size.
func (p *Projector) Size() int {
	return p.size
}

// Apply implements StyleTransform.
func (p *Projector) Apply(ctx context.Context, img *image.RGBA) (*image.RGBA, error) {
	framed := Fit(img, p.size, p.size)

	out, err := p.gen.Forward(ctx, TensorFromImage(framed))
	if err != nil {
		return nil, err
	}

	rendered, err := ImageFromTensor(out)
	if err != nil {
		return nil, err
	}
	return Fit(rendered, p.size, p.size), nil
}
