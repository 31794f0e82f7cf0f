package stylize

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// DeviceKind identifies the class of hardware a generator runs on.
type DeviceKind string

const (
	DeviceCPU  DeviceKind = "cpu"
	DeviceCUDA DeviceKind = "cuda"
)

// ExecutionDevice is an immutable handle naming where tensor computation runs.
// It is chosen once at setup and is not bound to any model until a Loader uses it.
type ExecutionDevice struct {
	Kind          DeviceKind
	Index         int
	Name          string
	MemoryTotalMB int64
}

// CPUDevice returns the general-purpose fallback device.
func CPUDevice() ExecutionDevice {
	return ExecutionDevice{Kind: DeviceCPU, Name: "cpu"}
}

// IsAccelerator reports whether d is a GPU.
func (d ExecutionDevice) IsAccelerator() bool {
	return d.Kind == DeviceCUDA
}

// String renders the device the way torch does: "cuda:0" or "cpu".
func (d ExecutionDevice) String() string {
	if d.IsAccelerator() {
		return fmt.Sprintf("cuda:%d", d.Index)
	}
	return string(DeviceCPU)
}

// DeviceProbe discovers accelerators on the host.
// A probe that finds nothing returns an empty slice; errors mean the probe itself
// could not run and are treated the same as finding nothing.
type DeviceProbe interface {
	Name() string
	Probe(ctx context.Context) ([]ExecutionDevice, error)
}

// DeviceSelector picks the execution device once at session start.
// Select never fails: the absence of an accelerator is a normal outcome.
type DeviceSelector struct {
	probes     []DeviceProbe
	preference string
	logger     *zap.Logger
}

// SelectorOption configures a DeviceSelector.
type SelectorOption func(*DeviceSelector)

// WithProbes replaces the default probe chain.
func WithProbes(probes ...DeviceProbe) SelectorOption {
	return func(s *DeviceSelector) {
		s.probes = probes
	}
}

// WithPreference sets the device preference: "auto", "cpu", "cuda" or "cuda:N".
func WithPreference(pref string) SelectorOption {
	return func(s *DeviceSelector) {
		s.preference = strings.ToLower(strings.TrimSpace(pref))
	}
}

// WithSelectorLogger sets the logger used to report probe results.
func WithSelectorLogger(logger *zap.Logger) SelectorOption {
	return func(s *DeviceSelector) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewDeviceSelector creates a selector that probes NVML first and nvidia-smi second.
func NewDeviceSelector(opts ...SelectorOption) *DeviceSelector {
	s := &DeviceSelector{
		probes:     []DeviceProbe{nvmlProbe{}, NewSMIProbe("")},
		preference: "auto",
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns the preferred accelerator if one is present, otherwise the CPU.
func (s *DeviceSelector) Select(ctx context.Context) ExecutionDevice {
	if s.preference == string(DeviceCPU) {
		s.logger.Info("Device forced to CPU by preference")
		return CPUDevice()
	}

	devices := s.Discover(ctx)
	if len(devices) == 0 {
		s.logger.Info("No accelerator found, using CPU")
		return CPUDevice()
	}

	if idx, ok := preferredIndex(s.preference); ok {
		for _, d := range devices {
			if d.Index == idx {
				s.logger.Info("Selected preferred accelerator", zap.String("device", d.String()), zap.String("name", d.Name))
				return d
			}
		}
		s.logger.Warn("Preferred accelerator not present, falling back to auto selection",
			zap.String("preference", s.preference),
			zap.Int("available", len(devices)),
		)
	}

	d := devices[0]
	s.logger.Info("Selected accelerator",
		zap.String("device", d.String()),
		zap.String("name", d.Name),
		zap.Int64("memory_total_mb", d.MemoryTotalMB),
	)
	return d
}

// Discover runs the probe chain and returns the devices of the first probe that
// finds any, sorted by index.
func (s *DeviceSelector) Discover(ctx context.Context) []ExecutionDevice {
	for _, p := range s.probes {
		devices, err := runProbe(ctx, p)
		if err != nil {
			s.logger.Debug("Device probe unavailable", zap.String("probe", p.Name()), zap.Error(err))
			continue
		}
		if len(devices) == 0 {
			continue
		}
		sort.Slice(devices, func(i, j int) bool { return devices[i].Index < devices[j].Index })
		return devices
	}
	return nil
}

// runProbe converts probe panics into errors so Select stays total.
func runProbe(ctx context.Context, p DeviceProbe) (devices []ExecutionDevice, err error) {
	defer func() {
		if r := recover(); r != nil {
			devices = nil
			err = fmt.Errorf("probe %s panicked: %v", p.Name(), r)
		}
	}()
	return p.Probe(ctx)
}

// preferredIndex parses "cuda" (index 0) or "cuda:N". "auto" and anything
// unparseable report false.
func preferredIndex(pref string) (int, bool) {
	switch {
	case pref == string(DeviceCUDA):
		return 0, true
	case strings.HasPrefix(pref, "cuda:"):
		n, err := strconv.Atoi(strings.TrimPrefix(pref, "cuda:"))
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// SelectDevice is a convenience wrapper around NewDeviceSelector().Select.
func SelectDevice(ctx context.Context) ExecutionDevice {
	return NewDeviceSelector().Select(ctx)
}
