package server

import (
	"encoding/json"
	"net/http"
	"time"

	"paprika/db"
)

// Setup and prediction states reported by the API.
const (
	StatusStarting    = "STARTING"
	StatusReady       = "READY"
	StatusBusy        = "BUSY"
	StatusSetupFailed = "SETUP_FAILED"

	PredictionSucceeded = "succeeded"
	PredictionFailed    = "failed"
)

// PredictionInput is the "input" object of a prediction request.
type PredictionInput struct {
	Image         string   `json:"image"`
	StyleStrength *float64 `json:"style_strength,omitempty"`
}

// PredictionRequest is the body of POST /predictions.
type PredictionRequest struct {
	ID    string          `json:"id,omitempty"`
	Input PredictionInput `json:"input"`
}

// PredictionMetrics reports timing for a finished prediction.
type PredictionMetrics struct {
	PredictTime float64 `json:"predict_time"`
}

// PredictionResponse is returned for both finished and failed predictions.
type PredictionResponse struct {
	ID          string             `json:"id"`
	Status      string             `json:"status"`
	Output      string             `json:"output,omitempty"`
	Error       string             `json:"error,omitempty"`
	ErrorKind   string             `json:"error_kind,omitempty"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	Metrics     *PredictionMetrics `json:"metrics,omitempty"`
}

// SetupInfo describes the setup phase in health responses.
type SetupInfo struct {
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
}

// HealthResponse is the body of GET /health-check.
type HealthResponse struct {
	Status     string    `json:"status"`
	Setup      SetupInfo `json:"setup"`
	Version    string    `json:"version"`
	Style      string    `json:"style,omitempty"`
	Backend    string    `json:"backend,omitempty"`
	Device     string    `json:"device,omitempty"`
	RenderSize int       `json:"render_size,omitempty"`
	InFlight   int64     `json:"in_flight"`
}

// HistoryRecord is the body of GET /predictions/{id}.
type HistoryRecord struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	Style        string    `json:"style"`
	Backend      string    `json:"backend"`
	Device       string    `json:"device"`
	Strength     float64   `json:"style_strength"`
	Input        string    `json:"input"`
	InputWidth   int       `json:"input_width,omitempty"`
	InputHeight  int       `json:"input_height,omitempty"`
	OutputWidth  int       `json:"output_width,omitempty"`
	OutputHeight int       `json:"output_height,omitempty"`
	OutputBytes  int64     `json:"output_bytes,omitempty"`
	PredictTime  float64   `json:"predict_time"`
	Error        string    `json:"error,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
}

func historyRecord(p *db.Prediction) HistoryRecord {
	return HistoryRecord{
		ID:           p.ID,
		Status:       p.Status,
		CreatedAt:    p.CreatedAt.UTC(),
		Style:        p.Style,
		Backend:      p.Backend,
		Device:       p.Device,
		Strength:     p.Strength,
		Input:        p.InputRef,
		InputWidth:   p.InputWidth,
		InputHeight:  p.InputHeight,
		OutputWidth:  p.OutputWidth,
		OutputHeight: p.OutputHeight,
		OutputBytes:  p.OutputBytes,
		PredictTime:  p.Duration.Seconds(),
		Error:        p.ErrorMessage,
		ErrorKind:    p.ErrorKind,
	}
}

// ErrorResponse is the body of non-prediction errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: http.StatusText(status), Message: message})
}
