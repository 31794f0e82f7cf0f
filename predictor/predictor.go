// Package predictor is the entry point used by the CLI and the HTTP server:
// Setup builds the stylization session once, Predict serves requests.
package predictor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paprika/core"
	"paprika/db"
	"paprika/logging"
	"paprika/metrics"
	"paprika/stylize"
)

// Request is one prediction.
type Request struct {
	// ID is generated when empty.
	ID string
	// Image is a data URL or http(s) URL, or a local path when Setup was
	// given WithLocalInputs.
	Image string
	// Strength must be within [0.1, 2.0]; 1.0 returns the full render.
	Strength float64
}

// Result is a successful prediction. The caller owns Artifact and must
// release it.
type Result struct {
	ID       string
	Artifact *stylize.Artifact
	Metrics  logging.StylizationMetrics
}

// Info describes the ready session.
type Info struct {
	Style      string
	Backend    string
	Device     stylize.ExecutionDevice
	RenderSize int
	LoadTime   time.Duration
}

// Predictor owns the session, the artifact writer and history recording.
type Predictor struct {
	session  *stylize.Session
	writer   *stylize.ArtifactWriter
	inputs   *InputResolver
	history  *db.AsyncWriter[db.Prediction]
	recorder metrics.Recorder
	backend  string
	logger   *zap.Logger
}

type setupOptions struct {
	loader      stylize.Loader
	probes      []stylize.DeviceProbe
	repository  *db.Repository
	recorder    metrics.Recorder
	httpClient  *http.Client
	progress    func(file string, p core.ProgressInfo)
	localInputs bool
	logger      *zap.Logger
}

// Option configures Setup.
type Option func(*setupOptions)

// WithLoader replaces the loader built from the configuration.
func WithLoader(loader stylize.Loader) Option {
	return func(o *setupOptions) { o.loader = loader }
}

// WithProbes replaces the device probe chain.
func WithProbes(probes ...stylize.DeviceProbe) Option {
	return func(o *setupOptions) { o.probes = probes }
}

// WithHistory records every prediction in repo.
func WithHistory(repo *db.Repository) Option {
	return func(o *setupOptions) { o.repository = repo }
}

// WithRecorder feeds every finished prediction to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *setupOptions) { o.recorder = r }
}

// WithHTTPClient sets the client used for model downloads and URL inputs.
func WithHTTPClient(client *http.Client) Option {
	return func(o *setupOptions) { o.httpClient = client }
}

// WithDownloadProgress reports model download progress.
func WithDownloadProgress(fn func(file string, p core.ProgressInfo)) Option {
	return func(o *setupOptions) { o.progress = fn }
}

// WithLocalInputs lets requests name local files. The CLI sets it; the HTTP
// server must not.
func WithLocalInputs() Option {
	return func(o *setupOptions) { o.localInputs = true }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *setupOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Setup selects the device, acquires the model and warms the session up.
// It runs once per process; a failure leaves nothing behind.
func Setup(ctx context.Context, cfg *core.Config, opts ...Option) (*Predictor, error) {
	o := setupOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = cfg.HTTPClient(0)
	}
	logger := o.logger

	selectorOpts := []stylize.SelectorOption{
		stylize.WithPreference(cfg.Device),
		stylize.WithSelectorLogger(logger.Named("device")),
	}
	if o.probes != nil {
		selectorOpts = append(selectorOpts, stylize.WithProbes(o.probes...))
	}
	device := stylize.NewDeviceSelector(selectorOpts...).Select(ctx)

	backend := cfg.Backend
	loader := o.loader
	if loader == nil {
		models, err := NewModelManager(cfg, o.httpClient, logger.Named("models"), o.progress)
		if err != nil {
			return nil, &stylize.Error{Kind: stylize.KindModelLoad, Op: "models", Err: err}
		}
		gl, err := NewLoader(cfg, models, logger)
		if err != nil {
			return nil, &stylize.Error{Kind: stylize.KindModelLoad, Op: "backend", Err: err}
		}
		loader = gl
		backend = string(gl.Backend())
	}

	session, err := stylize.Initialize(ctx, device, cfg.Style, loader,
		stylize.WithRenderSize(cfg.RenderSize),
		stylize.WithWarmup(cfg.Warmup),
		stylize.WithLogger(logger.Named("session")),
	)
	if err != nil {
		return nil, err
	}

	inputOpts := []InputOption{WithMaxPixels(cfg.MaxPixels), AllowURLs(cfg.AllowURLInputs)}
	if o.localInputs {
		inputOpts = append(inputOpts, AllowLocalPaths())
	}

	p := &Predictor{
		session:  session,
		writer:   stylize.NewArtifactWriter(cfg.ScratchDir),
		inputs:   NewInputResolver(o.httpClient, cfg.MaxUploadBytes, inputOpts...),
		recorder: o.recorder,
		backend:  backend,
		logger:   logger,
	}
	if o.repository != nil {
		repo := o.repository
		p.history = db.NewAsyncWriter(db.DefaultQueueCapacity,
			func(ctx context.Context, rec db.Prediction) error {
				return repo.InsertPrediction(ctx, rec)
			},
			func(rec db.Prediction, err error) {
				logger.Warn("Failed to record prediction history",
					zap.String("prediction_id", rec.ID),
					zap.Error(err),
				)
			},
		)
	}
	return p, nil
}

// Info describes the loaded session.
func (p *Predictor) Info() Info {
	return Info{
		Style:      p.session.Style(),
		Backend:    p.backend,
		Device:     p.session.Device(),
		RenderSize: p.session.RenderSize(),
		LoadTime:   p.session.LoadTime(),
	}
}

// ScratchDir is where artifacts are written.
func (p *Predictor) ScratchDir() string {
	return p.writer.Dir()
}

// Predict stylizes req.Image and writes the result to a fresh artifact.
func (p *Predictor) Predict(ctx context.Context, req Request) (*Result, error) {
	var artifact *stylize.Artifact
	sm, err := p.run(ctx, &req, func(out *image.RGBA, m *logging.StylizationMetrics) (string, error) {
		a, err := p.writer.Write(out)
		if err != nil {
			return "", err
		}
		artifact = a
		m.ArtifactBytes = a.Size
		return a.Path, nil
	})
	if err != nil {
		return nil, err
	}
	return &Result{ID: req.ID, Artifact: artifact, Metrics: sm}, nil
}

// PredictBytes stylizes req.Image and returns the PNG in memory; no file is
// written.
func (p *Predictor) PredictBytes(ctx context.Context, req Request) ([]byte, logging.StylizationMetrics, error) {
	var data []byte
	sm, err := p.run(ctx, &req, func(out *image.RGBA, m *logging.StylizationMetrics) (string, error) {
		b, err := stylize.EncodePNG(out)
		if err != nil {
			return "", &stylize.Error{Kind: stylize.KindArtifactWrite, Op: "encode", Err: err}
		}
		data = b
		m.ArtifactBytes = int64(len(b))
		return "", nil
	})
	return data, sm, err
}

// PredictImage stylizes an already decoded image without writing anything.
func (p *Predictor) PredictImage(ctx context.Context, img image.Image, strength float64) (*image.RGBA, error) {
	return p.session.Stylize(ctx, img, strength)
}

// emitFunc persists the stylized image and returns the output path, if any.
type emitFunc func(out *image.RGBA, m *logging.StylizationMetrics) (string, error)

func (p *Predictor) run(ctx context.Context, req *Request, emit emitFunc) (logging.StylizationMetrics, error) {
	start := time.Now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	device := p.session.Device()
	m := logging.StylizationMetrics{
		PredictionID: req.ID,
		Style:        p.session.Style(),
		Backend:      p.backend,
		Device:       device.String(),
		Strength:     req.Strength,
	}
	rec := db.Prediction{
		ID:        req.ID,
		CreatedAt: start,
		Style:     m.Style,
		Backend:   m.Backend,
		Device:    m.Device,
		Strength:  req.Strength,
		InputRef:  DescribeRef(req.Image),
	}

	err := func() error {
		// Reject a bad strength before touching the input.
		if err := stylize.ValidateStrength(req.Strength); err != nil {
			return &stylize.Error{Kind: stylize.KindValidation, Op: "strength", Err: err}
		}
		in, err := p.inputs.Resolve(ctx, req.Image)
		if err != nil {
			return err
		}
		b := in.Image.Bounds()
		m.InputWidth, m.InputHeight = b.Dx(), b.Dy()

		stylizeStart := time.Now()
		out, err := p.session.Stylize(ctx, in.Image, req.Strength)
		m.StylizeDuration = time.Since(stylizeStart)
		if err != nil {
			return err
		}
		ob := out.Bounds()
		m.OutputWidth, m.OutputHeight = ob.Dx(), ob.Dy()
		rec.OutputPath, err = emit(out, &m)
		return err
	}()

	m.Duration = time.Since(start)
	rec.InputWidth, rec.InputHeight = m.InputWidth, m.InputHeight
	rec.OutputWidth, rec.OutputHeight = m.OutputWidth, m.OutputHeight
	rec.OutputBytes = m.ArtifactBytes
	rec.Duration = m.Duration

	if err != nil {
		m.Status = logging.StatusFailed
		m.ErrorKind = stylize.KindOf(err).String()
		rec.Status, rec.ErrorKind, rec.ErrorMessage = m.Status, m.ErrorKind, err.Error()
		p.record(rec)

		level := p.logger.Error
		if stylize.KindOf(err) == stylize.KindValidation {
			level = p.logger.Warn
		}
		level("Prediction failed", logging.StylizationFields(m), zap.Error(err))
		return m, err
	}

	m.Status = logging.StatusSucceeded
	rec.Status = m.Status
	p.record(rec)
	p.logger.Info("Prediction succeeded",
		logging.StylizationFields(m),
		zap.Float64("megapixels_per_second", m.MegapixelsPerSecond()),
	)
	return m, nil
}

func (p *Predictor) record(rec db.Prediction) {
	if p.recorder != nil {
		p.recorder.Record(metrics.PredictionRecord{
			ID:        rec.ID,
			Style:     rec.Style,
			Device:    rec.Device,
			Strength:  rec.Strength,
			Status:    rec.Status,
			ErrorKind: rec.ErrorKind,
			StartTime: rec.CreatedAt,
			Duration:  rec.Duration,
		})
	}
	if p.history == nil {
		return
	}
	if !p.history.Write(rec) {
		p.logger.Warn("Prediction history queue full, dropping record", zap.String("prediction_id", rec.ID))
	}
}

// FlushHistory waits for queued history writes and stops recording.
func (p *Predictor) FlushHistory(ctx context.Context) error {
	if p.history == nil {
		return nil
	}
	if err := p.history.Close(ctx); err != nil {
		return fmt.Errorf("flush history: %w", err)
	}
	return nil
}

// Close flushes history and releases the session.
func (p *Predictor) Close(ctx context.Context) error {
	return errors.Join(p.FlushHistory(ctx), p.session.Close())
}
