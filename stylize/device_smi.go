package stylize

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const smiTimeout = 5 * time.Second

// SMIProbe discovers NVIDIA GPUs by shelling out to nvidia-smi.
type SMIProbe struct {
	path string
}

// NewSMIProbe creates a probe for the given nvidia-smi path ("" uses PATH).
func NewSMIProbe(path string) SMIProbe {
	if path == "" {
		path = "nvidia-smi"
	}
	return SMIProbe{path: path}
}

func (p SMIProbe) Name() string { return "nvidia-smi" }

func (p SMIProbe) Probe(ctx context.Context) ([]ExecutionDevice, error) {
	bin, err := exec.LookPath(p.path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, smiTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin,
		"--query-gpu=index,name,memory.total",
		"--format=csv,noheader,nounits",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("nvidia-smi failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return parseSMIDevices(stdout.String())
}

// parseSMIDevices parses "index, name, memory.total" CSV rows.
func parseSMIDevices(output string) ([]ExecutionDevice, error) {
	output = strings.TrimSpace(output)
	if output == "" {
		return nil, nil
	}

	reader := csv.NewReader(strings.NewReader(output))
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}

	devices := make([]ExecutionDevice, 0, len(records))
	for _, record := range records {
		if len(record) < 3 {
			return nil, fmt.Errorf("unexpected field count: got %d, expected 3", len(record))
		}
		idx, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("failed to parse index: %w", err)
		}
		memMiB, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse memory total: %w", err)
		}
		devices = append(devices, ExecutionDevice{
			Kind:          DeviceCUDA,
			Index:         idx,
			Name:          strings.TrimSpace(record[1]),
			MemoryTotalMB: int64(memMiB),
		})
	}
	return devices, nil
}
