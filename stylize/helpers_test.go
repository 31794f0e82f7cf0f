package stylize

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync/atomic"
	"time"
)

// invertGenerator negates every value, which inverts the colors of the frame.
type invertGenerator struct {
	calls    atomic.Int32
	closes   atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (g *invertGenerator) Forward(ctx context.Context, in *Tensor) (*Tensor, error) {
	g.calls.Add(1)
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		m := g.maxSeen.Load()
		if n <= m || g.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	out := &Tensor{Shape: in.Shape, Data: make([]float32, len(in.Data))}
	for i, v := range in.Data {
		out.Data[i] = -v
	}
	return out, nil
}

func (g *invertGenerator) Close() error {
	g.closes.Add(1)
	return nil
}

// funcGenerator delegates Forward to fn.
type funcGenerator struct {
	fn     func(ctx context.Context, in *Tensor) (*Tensor, error)
	closes atomic.Int32
}

func (g *funcGenerator) Forward(ctx context.Context, in *Tensor) (*Tensor, error) {
	return g.fn(ctx, in)
}

func (g *funcGenerator) Close() error {
	g.closes.Add(1)
	return nil
}

var errDeviceFault = errors.New("device fault")

func staticLoader(gen Generator) Loader {
	return LoaderFunc(func(ctx context.Context, device ExecutionDevice, style string) (Generator, error) {
		return gen, nil
	})
}

// solidImage returns a w x h RGBA image filled with c.
func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

// gradientImage returns a deterministic w x h image with varied channels.
func gradientImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8((x * 255) / max(w-1, 1)),
				G: uint8((y * 255) / max(h-1, 1)),
				B: uint8(((x + y) * 7) % 256),
				A: 0xff,
			})
		}
	}
	return img
}

// newTestSession builds a session over gen with warm-up disabled.
func newTestSession(gen Generator, size int) (*Session, error) {
	return Initialize(context.Background(), CPUDevice(), "paprika", staticLoader(gen),
		WithRenderSize(size), WithWarmup(false))
}
