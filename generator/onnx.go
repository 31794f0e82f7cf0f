//go:build onnx && cgo

// Local AnimeGANv2 inference through ONNX Runtime.
// Build with: CGO_ENABLED=1 go build -tags onnx
//
// The onnxruntime shared library is loaded at runtime from ONNXRUNTIME_LIB_PATH
// (or the platform default search path when unset).

package generator

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"paprika/stylize"
)

var (
	envMu      sync.Mutex
	envReady   bool
	envLibPath string
	envInitErr error
)

// initEnvironment initializes the process-wide ONNX Runtime environment once.
// A failed initialization is retried on the next call.
func initEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envReady {
		if libPath != "" && envLibPath != "" && libPath != envLibPath {
			return fmt.Errorf("onnxruntime already initialized from %s", envLibPath)
		}
		return nil
	}

	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		envInitErr = fmt.Errorf("initialize onnxruntime: %w", err)
		return envInitErr
	}
	envReady = true
	envLibPath = libPath
	envInitErr = nil
	return nil
}

// onnxGenerator runs a fully convolutional NCHW generator. Tensors are
// allocated per call because the spatial size follows the input.
type onnxGenerator struct {
	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	closed     bool
}

func newONNXGenerator(modelPath string, device stylize.ExecutionDevice, libPath string) (stylize.Generator, error) {
	if err := initEnvironment(libPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("inspect model %s: %w", modelPath, err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("model %s has %d inputs and %d outputs, want 1 and 1", modelPath, len(inputs), len(outputs))
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer options.Destroy()

	if device.IsAccelerator() {
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("create CUDA provider options: %w", err)
		}
		defer cuda.Destroy()
		if err := cuda.Update(map[string]string{"device_id": strconv.Itoa(device.Index)}); err != nil {
			return nil, fmt.Errorf("configure CUDA provider: %w", err)
		}
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return nil, fmt.Errorf("enable CUDA provider on %s: %w", device, err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, options)
	if err != nil {
		return nil, fmt.Errorf("create session for %s: %w", modelPath, err)
	}

	return &onnxGenerator{
		session:    session,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
	}, nil
}

func (g *onnxGenerator) Forward(ctx context.Context, in *stylize.Tensor) (*stylize.Tensor, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, ErrClosed
	}

	shape := ort.NewShape(in.Shape[0], in.Shape[1], in.Shape[2], in.Shape[3])

	input, err := ort.NewTensor(shape, in.Data)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](shape)
	if err != nil {
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := g.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("run %s: %w", g.outputName, err)
	}

	out := stylize.NewTensor(in.Height(), in.Width())
	data := output.GetData()
	if len(data) != len(out.Data) {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrShapeMismatch, len(data), len(out.Data))
	}
	copy(out.Data, data)
	return out, nil
}

func (g *onnxGenerator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	return g.session.Destroy()
}
