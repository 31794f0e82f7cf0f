package logging

import (
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Prediction outcomes recorded in metrics and history.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// StylizationMetrics describes one prediction. It is logged once per call as
// a nested "stylization" object.
type StylizationMetrics struct {
	PredictionID string
	Style        string
	Backend      string
	Device       string
	Strength     float64

	InputWidth   int
	InputHeight  int
	OutputWidth  int
	OutputHeight int

	// Duration covers input decoding through artifact write;
	// StylizeDuration only the generator and blend.
	Duration        time.Duration
	StylizeDuration time.Duration
	ArtifactBytes   int64

	Status    string
	ErrorKind string
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (m StylizationMetrics) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	if m.PredictionID != "" {
		enc.AddString("prediction_id", m.PredictionID)
	}
	enc.AddString("style", m.Style)
	enc.AddString("backend", m.Backend)
	enc.AddString("device", m.Device)
	enc.AddFloat64("strength", m.Strength)
	if m.InputWidth > 0 {
		enc.AddString("input_size", sizeString(m.InputWidth, m.InputHeight))
	}
	if m.OutputWidth > 0 {
		enc.AddString("output_size", sizeString(m.OutputWidth, m.OutputHeight))
	}
	enc.AddInt64("duration_ms", m.Duration.Milliseconds())
	enc.AddInt64("stylize_ms", m.StylizeDuration.Milliseconds())
	if m.ArtifactBytes > 0 {
		enc.AddInt64("artifact_bytes", m.ArtifactBytes)
	}
	enc.AddString("status", m.Status)
	if m.ErrorKind != "" {
		enc.AddString("error_kind", m.ErrorKind)
	}
	return nil
}

// MegapixelsPerSecond is the generator throughput, or 0 when unknown.
func (m StylizationMetrics) MegapixelsPerSecond() float64 {
	if m.StylizeDuration <= 0 || m.OutputWidth <= 0 {
		return 0
	}
	mp := float64(m.OutputWidth*m.OutputHeight) / 1e6
	return mp / m.StylizeDuration.Seconds()
}

// StylizationFields wraps m as a single zap field.
func StylizationFields(m StylizationMetrics) zap.Field {
	return zap.Object("stylization", m)
}

// TimingFields returns start, end and duration fields for a timed step.
func TimingFields(start, end time.Time) []zap.Field {
	return []zap.Field{
		zap.Time("start_time", start),
		zap.Time("end_time", end),
		zap.Duration("duration", end.Sub(start)),
	}
}

func sizeString(w, h int) string {
	return strconv.Itoa(w) + "x" + strconv.Itoa(h)
}
