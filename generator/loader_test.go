package generator

import (
	"context"
	"errors"
	"testing"

	"paprika/stylize"
)

type fakeResolver struct {
	path      string
	err       error
	requested []string
}

func (r *fakeResolver) ResolveModel(ctx context.Context, filename string) (string, error) {
	r.requested = append(r.requested, filename)
	return r.path, r.err
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{"", BackendONNX, false},
		{"onnx", BackendONNX, false},
		{" Gemini ", BackendGemini, false},
		{"OPENAI", BackendOpenAI, false},
		{"torch", "", true},
	}

	for _, tt := range tests {
		got, err := ParseBackend(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownBackend) {
				t.Errorf("ParseBackend(%q) = %v, want ErrUnknownBackend", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseBackend(%q) = (%q, %v), want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestNewLoaderValidation(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr error
	}{
		{"onnx without resolver", Options{Backend: BackendONNX}, ErrNoResolver},
		{"gemini without key", Options{Backend: BackendGemini}, ErrMissingAPIKey},
		{"openai without key", Options{Backend: BackendOpenAI}, ErrMissingAPIKey},
		{"unknown backend", Options{Backend: "torch"}, ErrUnknownBackend},
		{"onnx ok", Options{Backend: BackendONNX, Resolver: &fakeResolver{}}, nil},
		{"openai ok", Options{Backend: BackendOpenAI, OpenAIAPIKey: "sk-test"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLoader(tt.opts)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewLoader() = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLoader() error: %v", err)
			}
			if l.Backend() != tt.opts.Backend {
				t.Errorf("Backend() = %q, want %q", l.Backend(), tt.opts.Backend)
			}
		})
	}
}

func TestLoaderUnknownStyle(t *testing.T) {
	resolver := &fakeResolver{path: "/models/x.onnx"}
	l, err := NewLoader(Options{Backend: BackendONNX, Resolver: resolver})
	if err != nil {
		t.Fatal(err)
	}

	_, err = l.Load(context.Background(), stylize.CPUDevice(), "hayao")
	if !errors.Is(err, stylize.ErrUnknownStyle) {
		t.Errorf("Load() = %v, want ErrUnknownStyle", err)
	}
	if len(resolver.requested) != 0 {
		t.Errorf("resolver called for unknown style: %v", resolver.requested)
	}
}

func TestLoaderResolverFailure(t *testing.T) {
	errOffline := errors.New("hub offline")
	resolver := &fakeResolver{err: errOffline}
	l, _ := NewLoader(Options{Backend: BackendONNX, Resolver: resolver})

	_, err := l.Load(context.Background(), stylize.CPUDevice(), "face_paint_512_v1")
	if !errors.Is(err, errOffline) {
		t.Errorf("Load() = %v, want resolver error", err)
	}
	if len(resolver.requested) != 1 || resolver.requested[0] != "face_paint_512_v1.onnx" {
		t.Errorf("resolver requested %v, want [face_paint_512_v1.onnx]", resolver.requested)
	}
}

func TestLoaderFailureBecomesModelLoadError(t *testing.T) {
	l, _ := NewLoader(Options{Backend: BackendONNX, Resolver: &fakeResolver{err: errors.New("no weights")}})

	s, err := stylize.Initialize(context.Background(), stylize.CPUDevice(), DefaultStyle, l)
	if s != nil {
		t.Fatal("Initialize() returned a session")
	}
	if stylize.KindOf(err) != stylize.KindModelLoad {
		t.Errorf("KindOf() = %s, want model_load", stylize.KindOf(err))
	}
}
