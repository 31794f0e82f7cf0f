package stylize

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels bounds the area of an accepted input, 25 megapixels.
const DefaultMaxPixels = 25_000_000

var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// Image decoding errors.
var (
	ErrImageEmpty      = errors.New("stylize: image data is empty")
	ErrImageDecodeFail = errors.New("stylize: failed to decode image")
)

// IsPNG reports whether data starts with the PNG signature.
func IsPNG(data []byte) bool {
	return len(data) >= len(pngMagic) && bytes.Equal(data[:len(pngMagic)], pngMagic)
}

// DecodeImage decodes PNG, JPEG, GIF, WebP, BMP or TIFF bytes.
// The returned format is the name registered by the codec ("png", "jpeg", ...).
func DecodeImage(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrImageEmpty
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrImageDecodeFail, err)
	}
	return img, format, nil
}

// DecodeImageConfig reads the dimensions and format from the image header
// without decoding pixels.
func DecodeImageConfig(data []byte) (image.Config, string, error) {
	if len(data) == 0 {
		return image.Config{}, "", ErrImageEmpty
	}
	conf, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, "", fmt.Errorf("%w: %v", ErrImageDecodeFail, err)
	}
	return conf, format, nil
}

// ValidateImage rejects nil and zero-area images.
func ValidateImage(img image.Image) error {
	if img == nil {
		return fmt.Errorf("%w: nil image", ErrInvalidImage)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return fmt.Errorf("%w: empty bounds %v", ErrInvalidImage, b)
	}
	return nil
}

// ToRGB returns a fresh, zero-origin, fully opaque copy of img.
// Alpha is discarded rather than composited, matching a plain RGB conversion.
func ToRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			s := src.Pix[(y+b.Min.Y-src.Rect.Min.Y)*src.Stride+(b.Min.X-src.Rect.Min.X)*4:]
			d := dst.Pix[y*dst.Stride:]
			for x := 0; x < b.Dx(); x++ {
				d[x*4+0] = s[x*4+0]
				d[x*4+1] = s[x*4+1]
				d[x*4+2] = s[x*4+2]
				d[x*4+3] = 0xff
			}
		}
		return dst
	}

	for y := 0; y < b.Dy(); y++ {
		d := dst.Pix[y*dst.Stride:]
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			d[x*4+0] = c.R
			d[x*4+1] = c.G
			d[x*4+2] = c.B
			d[x*4+3] = 0xff
		}
	}
	return dst
}

// centerCropRect returns the largest rectangle centered in b whose aspect ratio is w:h.
func centerCropRect(b image.Rectangle, w, h int) image.Rectangle {
	bw, bh := b.Dx(), b.Dy()
	cw, ch := bw, bh
	// Compare bw/bh against w/h without floating point.
	if bw*h > bh*w {
		cw = bh * w / h
	} else {
		ch = bw * h / w
	}
	if cw < 1 {
		cw = 1
	}
	if ch < 1 {
		ch = 1
	}
	x0 := b.Min.X + (bw-cw)/2
	y0 := b.Min.Y + (bh-ch)/2
	return image.Rect(x0, y0, x0+cw, y0+ch)
}

// Fit crops the centered region of src with the aspect ratio of w:h and scales it
// to exactly w x h with Catmull-Rom. A src already w x h is returned as-is.
func Fit(src *image.RGBA, w, h int) *image.RGBA {
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return src
	}
	crop := centerCropRect(b, w, h)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return dst
}

// EncodePNG encodes img as PNG in memory.
func EncodePNG(img image.Image) ([]byte, error) {
	if err := ValidateImage(img); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
