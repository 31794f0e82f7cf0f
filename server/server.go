// Package server exposes the predictor over a Cog-compatible HTTP API.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"paprika/core"
	"paprika/db"
	"paprika/metrics"
	"paprika/predictor"
	"paprika/shutdown"
	"paprika/stylize"
)

// Predictor runs predictions. *predictor.Predictor implements it.
type Predictor interface {
	Predict(ctx context.Context, req predictor.Request) (*predictor.Result, error)
	Info() predictor.Info
}

// HistoryReader looks up recorded predictions. *db.Repository implements it.
type HistoryReader interface {
	GetPrediction(ctx context.Context, id string) (*db.Prediction, error)
}

// StatsSource reports in-memory prediction statistics. *metrics.Store
// implements it.
type StatsSource interface {
	Snapshot(recent int) metrics.Snapshot
}

// OperationTracker runs fn as tracked in-flight work. *shutdown.Manager
// implements it.
type OperationTracker interface {
	Track(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// Config configures the HTTP server.
type Config struct {
	Addr string
	// MaxUploadBytes bounds the decoded input image. The request body may be
	// larger to allow for base64 and JSON overhead.
	MaxUploadBytes int64
	// TokenHash is the bcrypt hash of the bearer token; empty disables auth.
	TokenHash string
	// TrustedProxies may set X-Forwarded-For and X-Real-IP. Requests from
	// anywhere else are identified by their connection address.
	TrustedProxies []netip.Prefix

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns timeouts suited to multi-second predictions.
func DefaultConfig() Config {
	return Config{
		Addr:           ":5000",
		MaxUploadBytes: 20 * core.BytesPerMB,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Minute,
		IdleTimeout:    120 * time.Second,
	}
}

// Server serves the prediction API. It starts before setup completes and
// reports STARTING until MarkReady or MarkSetupFailed is called.
type Server struct {
	cfg        Config
	httpServer *http.Server
	logger     *zap.Logger
	history    HistoryReader
	stats      StatsSource
	tracker    OperationTracker
	limiter    *RateLimiter

	mu        sync.RWMutex
	predictor Predictor
	setupErr  error
	startedAt time.Time
	readyAt   time.Time

	inFlight atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithHistory enables GET /predictions/{id}.
func WithHistory(h HistoryReader) Option {
	return func(s *Server) { s.history = h }
}

// WithStats enables GET /metrics.
func WithStats(src StatsSource) Option {
	return func(s *Server) { s.stats = src }
}

// WithTracker registers each prediction as in-flight work.
func WithTracker(t OperationTracker) Option {
	return func(s *Server) { s.tracker = t }
}

// WithRateLimiter replaces the auth failure limiter.
func WithRateLimiter(l *RateLimiter) Option {
	return func(s *Server) { s.limiter = l }
}

// New builds a server. A nil logger discards output.
func New(cfg Config, logger *zap.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TokenHash != "" {
		if err := ValidateHash(cfg.TokenHash); err != nil {
			return nil, err
		}
	}
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		limiter:   NewRateLimiter(0, 0, 0),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	logger.Info("HTTP server created",
		zap.String("addr", cfg.Addr),
		zap.Bool("auth_enabled", cfg.TokenHash != ""),
		zap.Bool("history_enabled", s.history != nil),
	)
	return s, nil
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health-check", s.handleHealth)

	var api http.Handler = http.HandlerFunc(s.handlePredict)
	var get http.Handler = http.HandlerFunc(s.handleGetPrediction)
	var stats http.Handler = http.HandlerFunc(s.handleMetrics)
	if s.cfg.TokenHash != "" {
		auth := newTokenAuth(s.cfg.TokenHash, s.limiter, s.cfg.TrustedProxies, s.logger)
		api = auth.middleware(api)
		get = auth.middleware(get)
		stats = auth.middleware(stats)
	}
	mux.Handle("POST /predictions", api)
	mux.Handle("PUT /predictions/{id}", api)
	mux.Handle("GET /predictions/{id}", get)
	mux.Handle("GET /metrics", stats)

	var h http.Handler = mux
	h = withRecovery(s.logger, h)
	h = withLogging(s.logger, s.cfg.TrustedProxies, map[string]bool{"/health-check": true}, h)
	return withRequestID(h)
}

// MarkReady switches the server to READY.
func (s *Server) MarkReady(p Predictor) {
	s.mu.Lock()
	s.predictor = p
	s.readyAt = time.Now()
	s.mu.Unlock()

	info := p.Info()
	s.logger.Info("Predictor ready",
		zap.String("style", info.Style),
		zap.String("device", info.Device.String()),
		zap.Duration("setup_time", s.readyAt.Sub(s.startedAt)),
	)
}

// MarkSetupFailed switches the server to SETUP_FAILED.
func (s *Server) MarkSetupFailed(err error) {
	s.mu.Lock()
	s.setupErr = err
	s.readyAt = time.Now()
	s.mu.Unlock()
	s.logger.Error("Predictor setup failed", zap.Error(err))
}

func (s *Server) state() (Predictor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.predictor, s.setupErr
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server", zap.Int64("in_flight", s.inFlight.Load()))
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// StartBackground runs the limiter cleanup until ctx is done.
func (s *Server) StartBackground(ctx context.Context) {
	s.limiter.StartCleanupTicker(ctx, 5*time.Minute)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	p, setupErr := s.state()
	s.mu.RLock()
	resp := HealthResponse{
		Version:  core.Version,
		Setup:    SetupInfo{StartedAt: s.startedAt.UTC(), Status: StatusStarting},
		InFlight: s.inFlight.Load(),
	}
	if !s.readyAt.IsZero() {
		t := s.readyAt.UTC()
		resp.Setup.CompletedAt = &t
	}
	s.mu.RUnlock()

	switch {
	case setupErr != nil:
		resp.Status = StatusSetupFailed
		resp.Setup.Status = PredictionFailed
		resp.Setup.Error = setupErr.Error()
	case p == nil:
		resp.Status = StatusStarting
	default:
		info := p.Info()
		resp.Setup.Status = PredictionSucceeded
		resp.Style = info.Style
		resp.Backend = info.Backend
		resp.Device = info.Device.String()
		resp.RenderSize = info.RenderSize
		resp.Status = StatusReady
		if resp.InFlight > 0 {
			resp.Status = StatusBusy
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	p, setupErr := s.state()
	switch {
	case setupErr != nil:
		writeError(w, http.StatusServiceUnavailable, "setup failed: "+setupErr.Error())
		return
	case p == nil:
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "predictor is still starting")
		return
	}

	var req PredictionRequest
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes())
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if id := r.PathValue("id"); id != "" {
		if req.ID != "" && req.ID != id {
			writeError(w, http.StatusBadRequest, "body id does not match path id")
			return
		}
		req.ID = id
	}
	if req.ID == "" {
		req.ID = RequestID(r.Context())
	}

	strength := stylize.DefaultStrength
	if req.Input.StyleStrength != nil {
		strength = *req.Input.StyleStrength
	}
	preq := predictor.Request{ID: req.ID, Image: req.Input.Image, Strength: strength}

	started := time.Now().UTC()
	var resp PredictionResponse
	status := http.StatusOK

	s.inFlight.Add(1)
	err := s.track(r.Context(), "predict "+req.ID, func(ctx context.Context) error {
		res, err := p.Predict(ctx, preq)
		if err != nil {
			return err
		}
		defer func() {
			if err := res.Artifact.Release(); err != nil {
				s.logger.Warn("Failed to release artifact", zap.String("path", res.Artifact.Path), zap.Error(err))
			}
		}()
		output, err := dataURL(res.Artifact.Path)
		if err != nil {
			return &stylize.Error{Kind: stylize.KindArtifactWrite, Op: "read", Err: err}
		}
		completed := time.Now().UTC()
		resp = PredictionResponse{
			ID:          req.ID,
			Status:      PredictionSucceeded,
			Output:      output,
			StartedAt:   &started,
			CompletedAt: &completed,
			Metrics:     &PredictionMetrics{PredictTime: res.Metrics.Duration.Seconds()},
		}
		return nil
	})
	s.inFlight.Add(-1)

	if err != nil {
		completed := time.Now().UTC()
		status = statusForError(err)
		resp = PredictionResponse{
			ID:          req.ID,
			Status:      PredictionFailed,
			Error:       err.Error(),
			ErrorKind:   stylize.KindOf(err).String(),
			StartedAt:   &started,
			CompletedAt: &completed,
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) track(ctx context.Context, name string, fn func(context.Context) error) error {
	if s.tracker == nil {
		return fn(ctx)
	}
	return s.tracker.Track(ctx, name, fn)
}

func (s *Server) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "prediction history is disabled")
		return
	}
	rec, err := s.history.GetPrediction(r.Context(), r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no prediction with that id")
		return
	}
	if err != nil {
		s.logger.Error("History lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, historyRecord(rec))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeError(w, http.StatusNotFound, "metrics are disabled")
		return
	}
	recent := 20
	if v := r.URL.Query().Get("recent"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "recent must be a non-negative integer")
			return
		}
		recent = min(n, 100)
	}
	writeJSON(w, http.StatusOK, s.stats.Snapshot(recent))
}

// maxBodyBytes allows for base64 expansion of the image plus JSON framing.
func (s *Server) maxBodyBytes() int64 {
	limit := s.cfg.MaxUploadBytes
	if limit <= 0 {
		limit = 20 * core.BytesPerMB
	}
	return limit*4/3 + 64*1024
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, shutdown.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case stylize.KindOf(err) == stylize.KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func dataURL(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	b.WriteString("data:image/png;base64,")
	enc := base64.NewEncoder(base64.StdEncoding, &b)
	if _, err := io.Copy(enc, f); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return b.String(), nil
}
