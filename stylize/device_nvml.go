//go:build linux && cgo

package stylize

import (
	"context"
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// nvmlProbe enumerates GPUs through libnvidia-ml. Hosts without the driver
// report ERROR_LIBRARY_NOT_FOUND, which the selector treats as "no devices".
type nvmlProbe struct{}

func (nvmlProbe) Name() string { return "nvml" }

func (nvmlProbe) Probe(ctx context.Context) ([]ExecutionDevice, error) {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, fmt.Errorf("nvml init: %s", nvml.ErrorString(ret))
	}
	defer nvml.Shutdown()

	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("nvml device count: %s", nvml.ErrorString(ret))
	}

	devices := make([]ExecutionDevice, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		handle, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			continue
		}
		d := ExecutionDevice{Kind: DeviceCUDA, Index: i}
		if name, ret := handle.GetName(); ret == nvml.SUCCESS {
			d.Name = name
		}
		if mem, ret := handle.GetMemoryInfo(); ret == nvml.SUCCESS {
			d.MemoryTotalMB = int64(mem.Total / (1024 * 1024))
		}
		devices = append(devices, d)
	}
	return devices, nil
}
