//go:build !onnx || !cgo

package generator

import (
	"fmt"

	"paprika/stylize"
)

// newONNXGenerator reports that local inference was not compiled in.
// Rebuild with CGO_ENABLED=1 and -tags onnx, or use a remote backend.
func newONNXGenerator(modelPath string, device stylize.ExecutionDevice, libPath string) (stylize.Generator, error) {
	return nil, fmt.Errorf("%w: onnx (model %s on %s); rebuild with -tags onnx or set PAPRIKA_BACKEND=gemini|openai",
		ErrBackendUnavailable, modelPath, device)
}
