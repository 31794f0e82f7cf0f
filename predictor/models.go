package predictor

import (
	"net/http"

	"go.uber.org/zap"

	"paprika/core"
	"paprika/generator"
)

// NewModelManager builds the model cache described by cfg. The configured
// checksum is pinned to the selected style's model file.
func NewModelManager(cfg *core.Config, client *http.Client, logger *zap.Logger, progress func(file string, p core.ProgressInfo)) (*core.ModelManager, error) {
	opts := []core.ModelManagerOption{
		core.WithHubURL(cfg.ModelHubURL),
		core.WithMaxRetries(cfg.DownloadRetries),
		core.WithManagerLogger(logger),
	}

	if cfg.ModelCatalog != "" {
		catalog, err := core.LoadCatalog(cfg.ModelCatalog)
		if err != nil {
			return nil, err
		}
		opts = append(opts, core.WithCatalog(catalog))
	}
	if cfg.ModelSHA256 != "" {
		if preset, err := generator.LookupPreset(cfg.Style); err == nil {
			opts = append(opts, core.WithChecksum(preset.ModelFile, cfg.ModelSHA256))
		}
	}
	if progress != nil {
		opts = append(opts, core.WithProgress(progress))
	}

	return core.NewModelManager(cfg.ModelDir, client, opts...), nil
}

// NewLoader builds the generator loader for cfg.Backend.
func NewLoader(cfg *core.Config, resolver generator.ModelResolver, logger *zap.Logger) (*generator.Loader, error) {
	backend, err := generator.ParseBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}
	return generator.NewLoader(generator.Options{
		Backend:         backend,
		Resolver:        resolver,
		ONNXLibraryPath: cfg.ONNXLibraryPath,
		GeminiAPIKey:    cfg.GeminiAPIKey,
		GeminiModel:     cfg.GeminiModel,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		RemoteTimeout:   cfg.RemoteTimeout,
		HTTPClient:      cfg.HTTPClient(0),
		ScratchDir:      cfg.ScratchDir,
		Logger:          logger,
	})
}
