// Package metrics keeps in-memory prediction statistics and GPU telemetry
// for the /metrics endpoint. Nothing here is persisted; prediction history
// lives in the db package.
package metrics

import "time"

// Prediction outcome values, matching logging.StatusSucceeded and
// logging.StatusFailed.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// PredictionRecord is one finished prediction.
type PredictionRecord struct {
	ID        string        `json:"id"`
	Style     string        `json:"style"`
	Device    string        `json:"device"`
	Strength  float64       `json:"strength"`
	Status    string        `json:"status"`
	ErrorKind string        `json:"error_kind,omitempty"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration_ns"`
}

// GPUMetrics is one utilization sample of the execution device.
type GPUMetrics struct {
	Index       int       `json:"index"`
	Utilization float64   `json:"utilization"`
	Temperature float64   `json:"temperature"`
	MemoryTotal int64     `json:"memory_total"`
	MemoryUsed  int64     `json:"memory_used"`
	MemoryFree  int64     `json:"memory_free"`
	SampledAt   time.Time `json:"sampled_at"`
}

// StyleMetrics aggregates the predictions of one style.
type StyleMetrics struct {
	Count         int64   `json:"count"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// Snapshot is a consistent view of the store.
type Snapshot struct {
	Version       string                   `json:"version"`
	UptimeSeconds float64                  `json:"uptime_seconds"`
	Total         int64                    `json:"total"`
	Succeeded     int64                    `json:"succeeded"`
	Failed        int64                    `json:"failed"`
	SuccessRate   float64                  `json:"success_rate"`
	AvgDurationMS float64                  `json:"avg_duration_ms"`
	MaxDurationMS float64                  `json:"max_duration_ms"`
	ByStyle       map[string]*StyleMetrics `json:"by_style"`
	FailuresBy    map[string]int64         `json:"failures_by_kind"`
	GPU           *GPUMetrics              `json:"gpu,omitempty"`
	Recent        []PredictionRecord       `json:"recent"`
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
