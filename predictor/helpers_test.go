package predictor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"paprika/core"
	"paprika/stylize"
)

// invertGenerator negates the frame, which inverts its colors.
type invertGenerator struct {
	calls  atomic.Int32
	closed atomic.Bool
}

func (g *invertGenerator) Forward(ctx context.Context, in *stylize.Tensor) (*stylize.Tensor, error) {
	g.calls.Add(1)
	out := &stylize.Tensor{Shape: in.Shape, Data: make([]float32, len(in.Data))}
	for i, v := range in.Data {
		out.Data[i] = -v
	}
	return out, nil
}

func (g *invertGenerator) Close() error {
	g.closed.Store(true)
	return nil
}

// noProbe reports no accelerators.
type noProbe struct{}

func (noProbe) Name() string { return "none" }

func (noProbe) Probe(context.Context) ([]stylize.ExecutionDevice, error) { return nil, nil }

func testConfig(t *testing.T) *core.Config {
	t.Helper()
	dir := t.TempDir()
	return &core.Config{
		Style:           "paprika",
		RenderSize:      stylize.MinRenderSize,
		ScratchDir:      filepath.Join(dir, "scratch"),
		Device:          "auto",
		Warmup:          true,
		Backend:         "onnx",
		ModelDir:        filepath.Join(dir, "models"),
		DownloadRetries: 1,
		MaxUploadBytes:  core.BytesPerMB,
		MaxPixels:       stylize.DefaultMaxPixels,
		AllowURLInputs:  true,
	}
}

func loaderFor(gen stylize.Generator) stylize.Loader {
	return stylize.LoaderFunc(func(context.Context, stylize.ExecutionDevice, string) (stylize.Generator, error) {
		return gen, nil
	})
}

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writePNG(t *testing.T, dir string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, "input.png")
	if err := os.WriteFile(path, pngBytes(t, img), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
