package stylize

import (
	"context"
	"fmt"
	"image"
	"math"
	"time"

	"go.uber.org/zap"
)

// Strength bounds. DefaultStrength returns the full projector render.
const (
	MinStrength     = 0.1
	MaxStrength     = 2.0
	DefaultStrength = 1.0
)

// ValidateStrength rejects NaN, infinities and values outside [0.1, 2.0].
func ValidateStrength(strength float64) error {
	if math.IsNaN(strength) || math.IsInf(strength, 0) {
		return fmt.Errorf("%w: %v is not a finite number", ErrStrengthOutOfRange, strength)
	}
	if strength < MinStrength || strength > MaxStrength {
		return fmt.Errorf("%w: %v not in [%.1f, %.1f]", ErrStrengthOutOfRange, strength, MinStrength, MaxStrength)
	}
	return nil
}

// Stylize renders img through the session's projector and blends the result
// with the original according to strength.
//
// Validation happens before the model is touched. The whole call holds the
// session lock; there is no mid-call abort, ctx is only forwarded to the
// generator so callers can bound remote backends.
func (s *Session) Stylize(ctx context.Context, img image.Image, strength float64) (*image.RGBA, error) {
	if err := ValidateStrength(strength); err != nil {
		return nil, newError(KindValidation, "strength", err)
	}
	if err := ValidateImage(img); err != nil {
		return nil, newError(KindValidation, "image", err)
	}

	input := ToRGB(img)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, newError(KindInference, "stylize", ErrSessionClosed)
	}

	start := time.Now()
	styled, err := s.apply(ctx, input)
	if err != nil {
		return nil, newError(KindInference, "generate", err)
	}
	if err := ValidateImage(styled); err != nil {
		return nil, newError(KindInference, "generate", fmt.Errorf("%w: %v", ErrMalformedOutput, err))
	}
	s.logger.Debug("Projector render complete",
		zap.Duration("duration", time.Since(start)),
		zap.Int("width", styled.Bounds().Dx()),
		zap.Int("height", styled.Bounds().Dy()),
	)

	if strength == DefaultStrength {
		return styled, nil
	}

	sb := styled.Bounds()
	base := Fit(input, sb.Dx(), sb.Dy())
	return Blend(base, styled, strength), nil
}

// Blend computes a + strength*(b-a) per color channel, clamps to [0, 255] and
// truncates toward zero. a and b must have the same dimensions; the result has
// b's dimensions and is fully opaque.
func Blend(a, b *image.RGBA, strength float64) *image.RGBA {
	ab, bb := a.Bounds(), b.Bounds()
	w, h := bb.Dx(), bb.Dy()
	if ab.Dx() != w || ab.Dy() != h {
		panic(fmt.Sprintf("stylize: blend size mismatch %dx%d vs %dx%d", ab.Dx(), ab.Dy(), w, h))
	}

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		ar := a.Pix[y*a.Stride:]
		br := b.Pix[y*b.Stride:]
		or := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			or[i+0] = lerp(ar[i+0], br[i+0], strength)
			or[i+1] = lerp(ar[i+1], br[i+1], strength)
			or[i+2] = lerp(ar[i+2], br[i+2], strength)
			or[i+3] = 0xff
		}
	}
	return out
}

func lerp(a, b uint8, t float64) uint8 {
	v := float64(a) + t*(float64(b)-float64(a))
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}
