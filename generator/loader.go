package generator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"paprika/stylize"
)

// Backend selects the implementation behind stylize.Generator.
type Backend string

const (
	// BackendONNX runs the AnimeGANv2 generator locally through ONNX Runtime.
	BackendONNX Backend = "onnx"
	// BackendGemini sends each frame to a Gemini image model as an edit request.
	BackendGemini Backend = "gemini"
	// BackendOpenAI sends each frame to the OpenAI image edit endpoint.
	BackendOpenAI Backend = "openai"
)

// ParseBackend validates a backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendONNX, BackendGemini, BackendOpenAI:
		return b, nil
	case "":
		return BackendONNX, nil
	default:
		return "", fmt.Errorf("%w: %q (want onnx, gemini or openai)", ErrUnknownBackend, s)
	}
}

// ModelResolver returns a local path for a model file, fetching it if needed.
// core.ModelManager implements it.
type ModelResolver interface {
	ResolveModel(ctx context.Context, filename string) (string, error)
}

// Options configures NewLoader.
type Options struct {
	Backend Backend

	// ONNX backend
	Resolver        ModelResolver
	ONNXLibraryPath string

	// Remote backends
	GeminiAPIKey  string
	GeminiModel   string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	RemoteTimeout time.Duration
	HTTPClient    *http.Client
	// ScratchDir holds upload staging files; empty means the OS temp dir.
	ScratchDir string

	Logger *zap.Logger
}

// Loader implements stylize.Loader for the configured backend.
type Loader struct {
	opts   Options
	logger *zap.Logger
}

// NewLoader validates opts and returns a Loader. Credentials are checked here
// so misconfiguration surfaces before any model is touched.
func NewLoader(opts Options) (*Loader, error) {
	backend, err := ParseBackend(string(opts.Backend))
	if err != nil {
		return nil, err
	}
	opts.Backend = backend

	switch backend {
	case BackendONNX:
		if opts.Resolver == nil {
			return nil, ErrNoResolver
		}
	case BackendGemini:
		if opts.GeminiAPIKey == "" {
			return nil, fmt.Errorf("%w: set GEMINI_API_KEY for the gemini backend", ErrMissingAPIKey)
		}
	case BackendOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: set OPENAI_API_KEY for the openai backend", ErrMissingAPIKey)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{opts: opts, logger: logger.Named("generator")}, nil
}

// Backend returns the configured backend.
func (l *Loader) Backend() Backend {
	return l.opts.Backend
}

// Load resolves the style preset and builds the generator for device.
func (l *Loader) Load(ctx context.Context, device stylize.ExecutionDevice, style string) (stylize.Generator, error) {
	preset, err := LookupPreset(style)
	if err != nil {
		return nil, err
	}

	logger := l.logger.With(zap.String("backend", string(l.opts.Backend)), zap.String("style", preset.Name))

	switch l.opts.Backend {
	case BackendONNX:
		path, err := l.opts.Resolver.ResolveModel(ctx, preset.ModelFile)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", preset.ModelFile, err)
		}
		logger.Debug("Opening ONNX model", zap.String("path", path), zap.String("device", device.String()))
		return newONNXGenerator(path, device, l.opts.ONNXLibraryPath)

	case BackendGemini:
		if device.IsAccelerator() {
			logger.Info("Remote backend ignores the local accelerator", zap.String("device", device.String()))
		}
		editor, err := newGeminiEditor(ctx, l.opts.GeminiAPIKey, l.opts.GeminiModel, l.opts.HTTPClient)
		if err != nil {
			return nil, err
		}
		return newRemoteGenerator(editor, preset.Prompt, l.opts.RemoteTimeout, logger), nil

	case BackendOpenAI:
		if device.IsAccelerator() {
			logger.Info("Remote backend ignores the local accelerator", zap.String("device", device.String()))
		}
		editor := newOpenAIEditor(l.opts.OpenAIAPIKey, l.opts.OpenAIBaseURL, l.opts.ScratchDir, l.opts.HTTPClient)
		return newRemoteGenerator(editor, preset.Prompt, l.opts.RemoteTimeout, logger), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, l.opts.Backend)
}

var _ stylize.Loader = (*Loader)(nil)
