package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"paprika/core"
	"paprika/db"
	"paprika/logging"
	"paprika/metrics"
	"paprika/predictor"
	"paprika/shutdown"
	"paprika/stylize"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// fakePredictor writes a fixed artifact or fails with err.
type fakePredictor struct {
	dir string
	err error

	mu        sync.Mutex
	requests  []predictor.Request
	artifacts []*stylize.Artifact
}

func (f *fakePredictor) Predict(ctx context.Context, req predictor.Request) (*predictor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	path := filepath.Join(f.dir, fmt.Sprintf("%s%d.png", stylize.ArtifactPrefix, len(f.requests)))
	if err := os.WriteFile(path, pngHeader, 0o644); err != nil {
		return nil, err
	}
	a := &stylize.Artifact{Path: path, Size: int64(len(pngHeader)), Width: 1, Height: 1}
	f.artifacts = append(f.artifacts, a)
	return &predictor.Result{
		ID:       req.ID,
		Artifact: a,
		Metrics:  logging.StylizationMetrics{Duration: 1500 * time.Millisecond},
	}, nil
}

func (f *fakePredictor) Info() predictor.Info {
	return predictor.Info{Style: "paprika", Backend: "onnx", Device: stylize.CPUDevice(), RenderSize: 512}
}

type fakeHistory map[string]*db.Prediction

func (h fakeHistory) GetPrediction(ctx context.Context, id string) (*db.Prediction, error) {
	if p, ok := h[id]; ok {
		return p, nil
	}
	return nil, db.ErrNotFound
}

func newTestServer(t *testing.T, cfg Config, opts ...Option) *Server {
	t.Helper()
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 1 << 20
	}
	s, err := New(cfg, zaptest.NewLogger(t), opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return s
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthCheckLifecycle(t *testing.T) {
	s := newTestServer(t, Config{})
	h := s.Handler()

	resp := decode[HealthResponse](t, doJSON(t, h, http.MethodGet, "/health-check", nil, nil))
	if resp.Status != StatusStarting {
		t.Errorf("status = %s, want STARTING", resp.Status)
	}

	s.MarkReady(&fakePredictor{dir: t.TempDir()})
	resp = decode[HealthResponse](t, doJSON(t, h, http.MethodGet, "/health-check", nil, nil))
	if resp.Status != StatusReady || resp.Device != "cpu" || resp.Style != "paprika" {
		t.Errorf("health = %+v", resp)
	}
	if resp.Setup.CompletedAt == nil || resp.Setup.Status != PredictionSucceeded {
		t.Errorf("setup = %+v", resp.Setup)
	}
}

func TestHealthCheckSetupFailed(t *testing.T) {
	s := newTestServer(t, Config{})
	s.MarkSetupFailed(errors.New("model missing"))

	resp := decode[HealthResponse](t, doJSON(t, s.Handler(), http.MethodGet, "/health-check", nil, nil))
	if resp.Status != StatusSetupFailed || resp.Setup.Error != "model missing" {
		t.Errorf("health = %+v", resp)
	}

	rec := doJSON(t, s.Handler(), http.MethodPost, "/predictions", PredictionRequest{Input: PredictionInput{Image: "x"}}, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("predict during failed setup = %d, want 503", rec.Code)
	}
}

func TestPredictBeforeReady(t *testing.T) {
	s := newTestServer(t, Config{})
	rec := doJSON(t, s.Handler(), http.MethodPost, "/predictions", PredictionRequest{Input: PredictionInput{Image: "x"}}, nil)
	if rec.Code != http.StatusServiceUnavailable || rec.Header().Get("Retry-After") == "" {
		t.Errorf("code = %d, Retry-After = %q", rec.Code, rec.Header().Get("Retry-After"))
	}
}

func TestPredictSuccess(t *testing.T) {
	fp := &fakePredictor{dir: t.TempDir()}
	s := newTestServer(t, Config{})
	s.MarkReady(fp)

	strength := 0.5
	rec := doJSON(t, s.Handler(), http.MethodPost, "/predictions",
		PredictionRequest{ID: "abc", Input: PredictionInput{Image: "/in.png", StyleStrength: &strength}}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, body = %s", rec.Code, rec.Body)
	}

	resp := decode[PredictionResponse](t, rec)
	want := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader)
	if resp.ID != "abc" || resp.Status != PredictionSucceeded || resp.Output != want {
		t.Errorf("response = %+v", resp)
	}
	if resp.Metrics == nil || resp.Metrics.PredictTime != 1.5 {
		t.Errorf("metrics = %+v", resp.Metrics)
	}
	if got := fp.requests[0]; got.Strength != 0.5 || got.Image != "/in.png" {
		t.Errorf("predictor request = %+v", got)
	}
	if _, err := os.Stat(fp.artifacts[0].Path); !os.IsNotExist(err) {
		t.Error("artifact should be released after the response")
	}
}

func TestPredictDefaultsAndIDs(t *testing.T) {
	fp := &fakePredictor{dir: t.TempDir()}
	s := newTestServer(t, Config{})
	s.MarkReady(fp)
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/predictions", PredictionRequest{Input: PredictionInput{Image: "a"}}, nil)
	resp := decode[PredictionResponse](t, rec)
	if resp.ID == "" || resp.ID != rec.Header().Get(RequestIDHeader) {
		t.Errorf("ID = %q, request ID = %q", resp.ID, rec.Header().Get(RequestIDHeader))
	}
	if fp.requests[0].Strength != stylize.DefaultStrength {
		t.Errorf("default strength = %v", fp.requests[0].Strength)
	}

	rec = doJSON(t, h, http.MethodPut, "/predictions/from-path", PredictionRequest{Input: PredictionInput{Image: "a"}}, nil)
	if resp := decode[PredictionResponse](t, rec); resp.ID != "from-path" {
		t.Errorf("PUT id = %q", resp.ID)
	}

	rec = doJSON(t, h, http.MethodPut, "/predictions/one", PredictionRequest{ID: "two", Input: PredictionInput{Image: "a"}}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("mismatched ids = %d, want 400", rec.Code)
	}
}

func TestPredictFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
	}{
		{"validation", &stylize.Error{Kind: stylize.KindValidation, Op: "strength", Err: stylize.ErrStrengthOutOfRange}, http.StatusUnprocessableEntity, "validation"},
		{"inference", &stylize.Error{Kind: stylize.KindInference, Op: "apply", Err: errors.New("oom")}, http.StatusInternalServerError, "inference"},
		{"artifact", &stylize.Error{Kind: stylize.KindArtifactWrite, Op: "write", Err: errors.New("disk full")}, http.StatusInternalServerError, "artifact_write"},
		{"shutting down", shutdown.ErrShuttingDown, http.StatusServiceUnavailable, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Config{})
			s.MarkReady(&fakePredictor{err: tt.err})

			rec := doJSON(t, s.Handler(), http.MethodPost, "/predictions", PredictionRequest{Input: PredictionInput{Image: "a"}}, nil)
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			resp := decode[PredictionResponse](t, rec)
			if resp.Status != PredictionFailed || resp.ErrorKind != tt.wantKind || resp.Error == "" {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestPredictBadBody(t *testing.T) {
	s := newTestServer(t, Config{MaxUploadBytes: 16})
	s.MarkReady(&fakePredictor{dir: t.TempDir()})
	h := s.Handler()

	req := httptest.NewRequest(http.MethodPost, "/predictions", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON = %d, want 400", rec.Code)
	}

	huge := PredictionRequest{Input: PredictionInput{Image: strings.Repeat("A", 100*1024)}}
	rec = doJSON(t, h, http.MethodPost, "/predictions", huge, nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("huge body = %d, want 413", rec.Code)
	}
}

func TestPredictTrackedByShutdownManager(t *testing.T) {
	mgr := shutdown.NewManager(zaptest.NewLogger(t))
	s := newTestServer(t, Config{}, WithTracker(mgr))
	s.MarkReady(&fakePredictor{dir: t.TempDir()})

	if err := mgr.Shutdown(); err != nil {
		t.Fatal(err)
	}
	rec := doJSON(t, s.Handler(), http.MethodPost, "/predictions", PredictionRequest{Input: PredictionInput{Image: "a"}}, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("predict during shutdown = %d, want 503", rec.Code)
	}
}

func TestGetPrediction(t *testing.T) {
	history := fakeHistory{"p1": {
		ID: "p1", Status: "succeeded", Style: "paprika", Strength: 0.7,
		InputRef: "/in.png", Duration: 2 * time.Second, CreatedAt: time.Unix(1700000000, 0),
	}}
	s := newTestServer(t, Config{}, WithHistory(history))
	h := s.Handler()

	rec := doJSON(t, h, http.MethodGet, "/predictions/p1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	got := decode[HistoryRecord](t, rec)
	if got.ID != "p1" || got.Strength != 0.7 || got.PredictTime != 2 || got.Input != "/in.png" {
		t.Errorf("record = %+v", got)
	}

	if rec := doJSON(t, h, http.MethodGet, "/predictions/nope", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing id = %d, want 404", rec.Code)
	}

	noHistory := newTestServer(t, Config{})
	if rec := doJSON(t, noHistory.Handler(), http.MethodGet, "/predictions/p1", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("disabled history = %d, want 404", rec.Code)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	s := newTestServer(t, Config{})
	h := s.Handler()

	id := "6f1c2a1e-3b9d-4c55-8a43-7c0d8f7e9a10"
	rec := doJSON(t, h, http.MethodGet, "/health-check", nil, http.Header{RequestIDHeader: {id}})
	if rec.Header().Get(RequestIDHeader) != id {
		t.Errorf("request ID = %q, want %q", rec.Header().Get(RequestIDHeader), id)
	}

	rec = doJSON(t, h, http.MethodGet, "/health-check", nil, http.Header{RequestIDHeader: {"not-a-uuid"}})
	if got := rec.Header().Get(RequestIDHeader); got == "not-a-uuid" || got == "" {
		t.Errorf("malformed request ID should be replaced, got %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	store := metrics.NewStore(metrics.StoreConfig{Version: "test"}, time.Now())
	for i := 0; i < 3; i++ {
		store.Record(metrics.PredictionRecord{ID: fmt.Sprint(i), Style: "paprika", Status: metrics.StatusSucceeded, Duration: time.Second})
	}
	h := newTestServer(t, Config{}, WithStats(store)).Handler()

	rec := doJSON(t, h, http.MethodGet, "/metrics?recent=2", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body)
	}
	snap := decode[metrics.Snapshot](t, rec)
	if snap.Total != 3 || len(snap.Recent) != 2 || snap.Version != "test" {
		t.Errorf("snapshot = %+v", snap)
	}

	if rec := doJSON(t, h, http.MethodGet, "/metrics?recent=-1", nil, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("negative recent = %d, want 400", rec.Code)
	}

	disabled := newTestServer(t, Config{}).Handler()
	if rec := doJSON(t, disabled, http.MethodGet, "/metrics", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("disabled metrics = %d, want 404", rec.Code)
	}
}

type passthroughGenerator struct{}

func (passthroughGenerator) Forward(ctx context.Context, in *stylize.Tensor) (*stylize.Tensor, error) {
	return in, nil
}

func (passthroughGenerator) Close() error { return nil }

type cpuOnlyProbe struct{}

func (cpuOnlyProbe) Name() string { return "none" }

func (cpuOnlyProbe) Probe(context.Context) ([]stylize.ExecutionDevice, error) { return nil, nil }

func TestPredictDoesNotReadServerFiles(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	img.SetRGBA(10, 10, color.RGBA{0, 1, 2, 255})
	data, err := stylize.EncodePNG(img)
	if err != nil {
		t.Fatal(err)
	}
	secret := filepath.Join(dir, "private", "secret.png")
	if err := os.MkdirAll(filepath.Dir(secret), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(secret, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &core.Config{
		Style:           "paprika",
		RenderSize:      stylize.MinRenderSize,
		ScratchDir:      filepath.Join(dir, "scratch"),
		Device:          "auto",
		Backend:         "onnx",
		ModelDir:        filepath.Join(dir, "models"),
		DownloadRetries: 1,
		MaxUploadBytes:  core.BytesPerMB,
		MaxPixels:       stylize.DefaultMaxPixels,
		AllowURLInputs:  true,
	}
	loader := stylize.LoaderFunc(func(context.Context, stylize.ExecutionDevice, string) (stylize.Generator, error) {
		return passthroughGenerator{}, nil
	})
	p, err := predictor.Setup(context.Background(), cfg, predictor.WithLoader(loader), predictor.WithProbes(cpuOnlyProbe{}))
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	s := newTestServer(t, Config{})
	s.MarkReady(p)
	h := s.Handler()

	strength := 0.1
	var messages []string
	for _, ref := range []string{secret, "file://" + secret, filepath.Join(dir, "absent.png"), "/etc/passwd"} {
		rec := doJSON(t, h, http.MethodPost, "/predictions",
			PredictionRequest{Input: PredictionInput{Image: ref, StyleStrength: &strength}}, nil)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: code = %d, want 422", ref, rec.Code)
		}
		resp := decode[PredictionResponse](t, rec)
		if resp.ErrorKind != "validation" || resp.Output != "" {
			t.Errorf("%s: response = %+v", ref, resp)
		}
		messages = append(messages, resp.Error)
	}
	for _, m := range messages {
		if m != messages[0] || strings.Contains(m, dir) {
			t.Errorf("error message reveals the filesystem: %q", m)
		}
	}

	inline := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
	rec := doJSON(t, h, http.MethodPost, "/predictions",
		PredictionRequest{Input: PredictionInput{Image: inline, StyleStrength: &strength}}, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("data URL input = %d, body %s", rec.Code, rec.Body)
	}
}
