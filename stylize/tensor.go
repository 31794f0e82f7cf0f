package stylize

import (
	"fmt"
	"image"
	"math"
)

// Tensor is a dense float32 tensor in NCHW layout with batch size 1.
// Generators exchange pixel data scaled to [-1, 1].
type Tensor struct {
	Shape [4]int64
	Data  []float32
}

// NewTensor allocates a zeroed 1x3xHxW tensor.
func NewTensor(height, width int) *Tensor {
	return &Tensor{
		Shape: [4]int64{1, 3, int64(height), int64(width)},
		Data:  make([]float32, 3*height*width),
	}
}

// Height returns the H dimension.
func (t *Tensor) Height() int { return int(t.Shape[2]) }

// Width returns the W dimension.
func (t *Tensor) Width() int { return int(t.Shape[3]) }

// Validate checks that the tensor is a single RGB frame whose data matches its shape.
func (t *Tensor) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: nil tensor", ErrMalformedOutput)
	}
	if t.Shape[0] != 1 || t.Shape[1] != 3 {
		return fmt.Errorf("%w: shape %v, want [1 3 H W]", ErrMalformedOutput, t.Shape)
	}
	if t.Shape[2] <= 0 || t.Shape[3] <= 0 {
		return fmt.Errorf("%w: empty spatial dims %v", ErrMalformedOutput, t.Shape)
	}
	if want := 3 * t.Shape[2] * t.Shape[3]; int64(len(t.Data)) != want {
		return fmt.Errorf("%w: %d values for shape %v, want %d", ErrMalformedOutput, len(t.Data), t.Shape, want)
	}
	return nil
}

// TensorFromImage converts RGB pixels to a [-1, 1] NCHW tensor (to_tensor*2-1).
func TensorFromImage(img *image.RGBA) *Tensor {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	t := NewTensor(h, w)
	plane := w * h
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			i := y*w + x
			p := row[x*4:]
			t.Data[i] = float32(p[0])/255*2 - 1
			t.Data[plane+i] = float32(p[1])/255*2 - 1
			t.Data[2*plane+i] = float32(p[2])/255*2 - 1
		}
	}
	return t
}

// ImageFromTensor maps generator output back to pixels: x*0.5+0.5, clipped to
// [0, 1], scaled by 255 and truncated. NaN values become 0.
func ImageFromTensor(t *Tensor) (*image.RGBA, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	w, h := t.Width(), t.Height()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	plane := w * h
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			i := y*w + x
			p := row[x*4:]
			p[0] = denormalize(t.Data[i])
			p[1] = denormalize(t.Data[plane+i])
			p[2] = denormalize(t.Data[2*plane+i])
			p[3] = 0xff
		}
	}
	return img, nil
}

func denormalize(v float32) uint8 {
	f := float64(v)*0.5 + 0.5
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= 1 {
		return 255
	}
	return uint8(f * 255)
}
