//go:build !linux || !cgo

package stylize

import (
	"context"
	"errors"
)

// nvmlProbe is unavailable without cgo on linux; nvidia-smi still runs.
type nvmlProbe struct{}

func (nvmlProbe) Name() string { return "nvml" }

func (nvmlProbe) Probe(context.Context) ([]ExecutionDevice, error) {
	return nil, errors.New("nvml not compiled into this binary")
}
