package stylize

import (
	"context"
	"errors"
	"image/color"
	"testing"
)

func TestInitialize(t *testing.T) {
	gen := &invertGenerator{}
	device := ExecutionDevice{Kind: DeviceCUDA, Index: 0, Name: "T4"}

	var gotDevice ExecutionDevice
	var gotStyle string
	loader := LoaderFunc(func(ctx context.Context, d ExecutionDevice, style string) (Generator, error) {
		gotDevice, gotStyle = d, style
		return gen, nil
	})

	s, err := Initialize(context.Background(), device, " paprika ", loader, WithRenderSize(64))
	if err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	defer s.Close()

	if gotDevice != device {
		t.Errorf("loader device = %v, want %v", gotDevice, device)
	}
	if gotStyle != "paprika" {
		t.Errorf("loader style = %q, want paprika", gotStyle)
	}
	if s.Style() != "paprika" || s.Device() != device || s.RenderSize() != 64 {
		t.Errorf("session = (%q, %v, %d), want (paprika, %v, 64)", s.Style(), s.Device(), s.RenderSize(), device)
	}
	if gen.calls.Load() != 1 {
		t.Errorf("generator calls after warm-up = %d, want 1", gen.calls.Load())
	}
}

func TestInitializeWithoutWarmup(t *testing.T) {
	gen := &invertGenerator{}
	s, err := newTestSession(gen, 64)
	if err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	defer s.Close()

	if gen.calls.Load() != 0 {
		t.Errorf("generator calls = %d, want 0 with warm-up disabled", gen.calls.Load())
	}
}

func TestInitializeFailures(t *testing.T) {
	errNetwork := errors.New("hub unreachable")

	tests := []struct {
		name      string
		style     string
		loader    Loader
		size      int
		wantCause error
	}{
		{
			name:      "empty style",
			style:     "  ",
			loader:    staticLoader(&invertGenerator{}),
			size:      64,
			wantCause: ErrUnknownStyle,
		},
		{
			name:      "nil loader",
			style:     "paprika",
			loader:    nil,
			size:      64,
			wantCause: ErrNoLoader,
		},
		{
			name:  "loader error",
			style: "paprika",
			loader: LoaderFunc(func(ctx context.Context, d ExecutionDevice, style string) (Generator, error) {
				return nil, errNetwork
			}),
			size:      64,
			wantCause: errNetwork,
		},
		{
			name:  "loader panic",
			style: "paprika",
			loader: LoaderFunc(func(ctx context.Context, d ExecutionDevice, style string) (Generator, error) {
				panic("corrupt weights")
			}),
			size: 64,
		},
		{
			name:  "nil generator",
			style: "paprika",
			loader: LoaderFunc(func(ctx context.Context, d ExecutionDevice, style string) (Generator, error) {
				return nil, nil
			}),
			size: 64,
		},
		{
			name:   "invalid render size",
			style:  "paprika",
			loader: staticLoader(&invertGenerator{}),
			size:   7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Initialize(context.Background(), CPUDevice(), tt.style, tt.loader, WithRenderSize(tt.size))
			if s != nil {
				t.Error("Initialize() returned a session on failure")
			}
			if !errors.Is(err, ErrModelLoad) {
				t.Fatalf("Initialize() error = %v, want ErrModelLoad", err)
			}
			if KindOf(err) != KindModelLoad {
				t.Errorf("KindOf() = %s, want model_load", KindOf(err))
			}
			if tt.wantCause != nil && !errors.Is(err, tt.wantCause) {
				t.Errorf("Initialize() error = %v, want cause %v", err, tt.wantCause)
			}
		})
	}
}

func TestInitializeWarmupFailureReleasesGenerator(t *testing.T) {
	gen := &funcGenerator{fn: func(ctx context.Context, in *Tensor) (*Tensor, error) {
		return nil, errDeviceFault
	}}

	s, err := Initialize(context.Background(), CPUDevice(), "paprika", staticLoader(gen), WithRenderSize(64))
	if s != nil || !errors.Is(err, ErrModelLoad) {
		t.Fatalf("Initialize() = (%v, %v), want (nil, ModelLoad)", s, err)
	}
	if !errors.Is(err, errDeviceFault) {
		t.Errorf("Initialize() error = %v, want wrapped device fault", err)
	}
	if gen.closes.Load() != 1 {
		t.Errorf("generator closed %d times, want 1", gen.closes.Load())
	}
}

func TestSessionClose(t *testing.T) {
	gen := &invertGenerator{}
	s, err := newTestSession(gen, 64)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
	if gen.closes.Load() != 1 {
		t.Errorf("generator closed %d times, want 1", gen.closes.Load())
	}

	_, err = s.Stylize(context.Background(), solidImage(8, 8, color.RGBA{A: 255}), 1.0)
	if !errors.Is(err, ErrSessionClosed) || KindOf(err) != KindInference {
		t.Errorf("Stylize() after Close = %v, want inference error wrapping ErrSessionClosed", err)
	}
}
