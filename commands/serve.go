package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"paprika/core"
	"paprika/db"
	"paprika/metrics"
	"paprika/predictor"
	"paprika/server"
	"paprika/shutdown"
)

// staleScratchAge is how old an orphaned temp file must be before startup
// removes it.
const staleScratchAge = time.Hour

// gpuSampleInterval is how often GPU utilization is sampled for /metrics.
const gpuSampleInterval = 5 * time.Second

// cleanupInterval is how often expired history rows are pruned.
const cleanupInterval = 6 * time.Hour

func serveCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the prediction API over HTTP",
		Long: `serve starts the HTTP API immediately and loads the model in the background.
GET /health-check reports STARTING until setup finishes, then READY or SETUP_FAILED.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.ListenAddr = addr
			}
			return runServe(cmd.Context(), a, true)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides PAPRIKA_LISTEN_ADDR)")
	return cmd
}

// runServe runs the API until ctx is cancelled or, when handleSignals is
// set, SIGINT/SIGTERM arrives.
func runServe(ctx context.Context, a *app, handleSignals bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := a.cfg
	logger := a.logger.Zap()

	mgr := shutdown.NewManager(logger.Named("shutdown"), shutdown.WithTimeout(cfg.ShutdownTimeout))
	if handleSignals {
		mgr.Start()
	}

	if n := shutdown.RemoveStaleScratch(logger, cfg.ScratchDir, staleScratchAge); n > 0 {
		logger.Info("Removed stale scratch files", zap.Int("count", n))
	}

	tokenHash, err := resolveTokenHash(cfg.APIToken, cfg.APITokenHash)
	if err != nil {
		return err
	}

	serverCfg := server.DefaultConfig()
	serverCfg.Addr = cfg.ListenAddr
	serverCfg.MaxUploadBytes = cfg.MaxUploadBytes
	serverCfg.TokenHash = tokenHash
	serverCfg.TrustedProxies = cfg.TrustedProxies
	stats := metrics.NewStore(metrics.StoreConfig{Version: core.Version}, time.Now())
	serverOpts := []server.Option{server.WithTracker(mgr), server.WithStats(stats)}

	setupOpts := []predictor.Option{
		predictor.WithLogger(logger.Named("predictor")),
		predictor.WithRecorder(stats),
	}

	var repo *db.Repository
	if cfg.HistoryEnabled {
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			logger.Warn("Prediction history disabled", zap.String("path", cfg.DBPath), zap.Error(err))
		} else {
			repo = db.NewRepository(database)
			serverOpts = append(serverOpts, server.WithHistory(repo))
			setupOpts = append(setupOpts, predictor.WithHistory(repo))
			mgr.Register("database", shutdown.PriorityDatabase, func(context.Context) error {
				return database.Close()
			})
		}
	}

	srv, err := server.New(serverCfg, logger.Named("http"), serverOpts...)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()
	mgr.Register("http-server", shutdown.PriorityHTTPServer, srv.Shutdown)

	bgCtx, cancelBackground := context.WithCancel(mgr.Context())
	mgr.Register("scheduler", shutdown.PriorityScheduler, func(context.Context) error {
		cancelBackground()
		return nil
	})
	srv.StartBackground(bgCtx)
	if repo != nil && cfg.HistoryRetentionDays > 0 {
		repo.StartCleanupScheduler(bgCtx, cfg.HistoryRetentionDays, cleanupInterval, func(res db.CleanupResult, err error) {
			if err != nil {
				logger.Warn("History cleanup failed", zap.Error(err))
				return
			}
			logger.Info("History cleanup complete",
				zap.Int64("deleted", res.Deleted),
				zap.Duration("duration", res.Duration),
			)
		})
	}

	var loaded *predictor.Predictor
	setupDone := make(chan struct{})
	go func() {
		defer close(setupDone)
		p, err := predictor.Setup(mgr.Context(), cfg, setupOpts...)
		if err != nil {
			srv.MarkSetupFailed(err)
			return
		}
		loaded = p
		srv.MarkReady(p)

		if d := p.Info().Device; d.IsAccelerator() {
			metrics.NewGPUCollector(metrics.SMIReader{Index: d.Index}, gpuSampleInterval, stats.UpdateGPU).Start(bgCtx)
		}
	}()

	awaitSetup := func(ctx context.Context) *predictor.Predictor {
		select {
		case <-setupDone:
			return loaded
		case <-ctx.Done():
			return nil
		}
	}
	mgr.Register("history", shutdown.PriorityHistory, func(ctx context.Context) error {
		if p := awaitSetup(ctx); p != nil {
			return p.FlushHistory(ctx)
		}
		return nil
	})
	mgr.Register("session", shutdown.PrioritySession, func(ctx context.Context) error {
		if p := awaitSetup(ctx); p != nil {
			return p.Close(ctx)
		}
		return nil
	})
	mgr.Register("scratch", shutdown.PriorityScratch, shutdown.CleanupScratch(logger, cfg.ScratchDir))

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Stop requested")
	case <-mgr.Context().Done():
	case err := <-serveErr:
		runErr = err
	}

	if err := mgr.Shutdown(); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return runErr
}

// resolveTokenHash returns the bcrypt hash protecting the API. A plaintext
// token is hashed once at startup.
func resolveTokenHash(token, hash string) (string, error) {
	if hash != "" {
		return hash, nil
	}
	if token == "" {
		return "", nil
	}
	return server.HashToken(token)
}
