package metrics

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// GPUReader reads one utilization sample.
type GPUReader interface {
	ReadGPUMetrics(ctx context.Context) (GPUMetrics, error)
}

// SMIReader samples one device through nvidia-smi.
type SMIReader struct {
	Path  string
	Index int
}

// ReadGPUMetrics implements GPUReader.
func (r SMIReader) ReadGPUMetrics(ctx context.Context) (GPUMetrics, error) {
	path := r.Path
	if path == "" {
		path = "nvidia-smi"
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, path,
		"--id="+strconv.Itoa(r.Index),
		"--query-gpu=utilization.gpu,temperature.gpu,memory.used,memory.total",
		"--format=csv,noheader,nounits")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return GPUMetrics{}, fmt.Errorf("nvidia-smi failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	g, err := parseSMISample(stdout.String())
	if err != nil {
		return GPUMetrics{}, err
	}
	g.Index = r.Index
	return g, nil
}

// parseSMISample parses "util, temp, used MiB, total MiB".
func parseSMISample(output string) (GPUMetrics, error) {
	output = strings.TrimSpace(output)
	if output == "" {
		return GPUMetrics{}, fmt.Errorf("empty nvidia-smi output")
	}
	record, err := csv.NewReader(strings.NewReader(output)).Read()
	if err != nil {
		return GPUMetrics{}, fmt.Errorf("parse nvidia-smi output: %w", err)
	}
	if len(record) < 4 {
		return GPUMetrics{}, fmt.Errorf("unexpected field count: got %d, expected 4", len(record))
	}

	var v [4]float64
	names := [4]string{"utilization", "temperature", "memory used", "memory total"}
	for i := range v {
		v[i], err = strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
		if err != nil {
			return GPUMetrics{}, fmt.Errorf("parse %s: %w", names[i], err)
		}
	}

	const mib = 1024 * 1024
	total := int64(v[3] * mib)
	used := int64(v[2] * mib)
	return GPUMetrics{
		Utilization: v[0],
		Temperature: v[1],
		MemoryTotal: total,
		MemoryUsed:  used,
		MemoryFree:  total - used,
	}, nil
}

// GPUCollector samples a GPU periodically and hands each sample to a
// callback, typically Store.UpdateGPU. Failed reads keep the last sample.
type GPUCollector struct {
	mu sync.RWMutex

	reader    GPUReader
	interval  time.Duration
	onMetrics func(GPUMetrics)
	now       func() time.Time

	last      GPUMetrics
	available bool
	lastErr   error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGPUCollector creates a collector. Intervals under one second are raised
// to five seconds.
func NewGPUCollector(reader GPUReader, interval time.Duration, onMetrics func(GPUMetrics)) *GPUCollector {
	if interval < time.Second {
		interval = 5 * time.Second
	}
	return &GPUCollector{
		reader:    reader,
		interval:  interval,
		onMetrics: onMetrics,
		now:       time.Now,
	}
}

// Start samples immediately and then every interval until ctx is done or
// Stop is called.
func (c *GPUCollector) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.collectOnce(ctx)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.collectOnce(ctx)
			}
		}
	}()
}

// Stop halts collection and waits for the sampling goroutine.
func (c *GPUCollector) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// Available reports whether the last read succeeded.
func (c *GPUCollector) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

// LastError returns the error of the last failed read.
func (c *GPUCollector) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Current returns the last successful sample.
func (c *GPUCollector) Current() GPUMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *GPUCollector) collectOnce(ctx context.Context) {
	g, err := c.reader.ReadGPUMetrics(ctx)

	c.mu.Lock()
	if err != nil {
		c.available = false
		c.lastErr = err
		c.mu.Unlock()
		return
	}
	g.SampledAt = c.now()
	c.available = true
	c.lastErr = nil
	c.last = g
	c.mu.Unlock()

	if c.onMetrics != nil {
		c.onMetrics(g)
	}
}
