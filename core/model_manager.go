package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrModelNotCached is returned when a model is missing locally and no
// download source is configured.
var ErrModelNotCached = errors.New("model not in local cache")

// ModelManager keeps the local model cache. A file already present (and
// matching its checksum when one is known) is used as-is; otherwise it is
// fetched from the catalog URL or the hub URL with retries.
//
// This is an organism that composes Download, VerifyChecksum and the Catalog.
type ModelManager struct {
	modelDir       string
	hubURL         string
	httpClient     *http.Client
	catalog        *Catalog
	checksums      map[string]string
	maxRetries     int
	baseRetryDelay time.Duration
	onProgress     func(file string, p ProgressInfo)
	logger         *zap.Logger

	mu sync.Mutex
}

// ModelManagerOption is a functional option for configuring ModelManager.
type ModelManagerOption func(*ModelManager)

// WithMaxRetries sets the maximum number of download attempts.
func WithMaxRetries(n int) ModelManagerOption {
	return func(mm *ModelManager) {
		if n > 0 {
			mm.maxRetries = n
		}
	}
}

// WithBaseRetryDelay sets the delay before the second attempt; it doubles after each failure.
func WithBaseRetryDelay(d time.Duration) ModelManagerOption {
	return func(mm *ModelManager) {
		if d > 0 {
			mm.baseRetryDelay = d
		}
	}
}

// WithHubURL sets the base URL that model files are fetched from (<hub>/<file>).
func WithHubURL(hub string) ModelManagerOption {
	return func(mm *ModelManager) {
		mm.hubURL = strings.TrimRight(strings.TrimSpace(hub), "/")
	}
}

// WithCatalog registers per-file URLs and checksums.
func WithCatalog(c *Catalog) ModelManagerOption {
	return func(mm *ModelManager) {
		mm.catalog = c
	}
}

// WithChecksum pins the expected SHA256 of file, overriding the catalog.
func WithChecksum(file, sha256 string) ModelManagerOption {
	return func(mm *ModelManager) {
		if file != "" && sha256 != "" {
			mm.checksums[file] = strings.ToLower(sha256)
		}
	}
}

// WithProgress sets a download progress callback.
func WithProgress(fn func(file string, p ProgressInfo)) ModelManagerOption {
	return func(mm *ModelManager) {
		mm.onProgress = fn
	}
}

// WithManagerLogger sets the logger.
func WithManagerLogger(logger *zap.Logger) ModelManagerOption {
	return func(mm *ModelManager) {
		if logger != nil {
			mm.logger = logger
		}
	}
}

// NewModelManager creates a manager for modelDir.
// If httpClient is nil a client without timeout is used; ctx bounds downloads.
//
// Default behavior:
//   - 3 attempts with exponential backoff (2s, 4s)
//   - no hub URL: missing models are reported with manual-download guidance
func NewModelManager(modelDir string, httpClient *http.Client, opts ...ModelManagerOption) *ModelManager {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	mm := &ModelManager{
		modelDir:       modelDir,
		httpClient:     httpClient,
		checksums:      make(map[string]string),
		maxRetries:     3,
		baseRetryDelay: 2 * time.Second,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(mm)
	}
	return mm
}

// ModelDir returns the cache directory.
func (mm *ModelManager) ModelDir() string {
	return mm.modelDir
}

// ModelPath returns where file lives in the cache. It does not check existence.
func (mm *ModelManager) ModelPath(file string) (string, error) {
	if file == "" || filepath.Base(file) != file || file == "." || file == ".." {
		return "", fmt.Errorf("invalid model file name %q", file)
	}
	return filepath.Join(mm.modelDir, file), nil
}

// ResolveModel returns the local path of file, downloading it on a cache miss.
// It implements generator.ModelResolver.
func (mm *ModelManager) ResolveModel(ctx context.Context, file string) (string, error) {
	path, err := mm.ModelPath(file)
	if err != nil {
		return "", err
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()

	source := mm.source(file)
	logger := mm.logger.With(zap.String("model", file))

	ok, err := mm.checkCached(path, source.SHA256)
	if err != nil {
		logger.Warn("Cached model is unusable, fetching again", zap.Error(err))
		_ = os.Remove(path)
	}
	if ok {
		logger.Debug("Model cache hit", zap.String("path", path))
		return path, nil
	}

	if source.URL == "" {
		return "", &ModelDownloadError{
			ModelName: file,
			Cause:     ErrModelNotCached,
			Message:   "no download source configured (set PAPRIKA_MODEL_HUB_URL or add it to PAPRIKA_MODEL_CATALOG)",
			DestPath:  path,
			Checksum:  source.SHA256,
		}
	}

	logger.Info("Downloading model", zap.String("url", source.URL))
	if err := mm.download(ctx, source, path); err != nil {
		return "", err
	}
	logger.Info("Model downloaded", zap.String("path", path))
	return path, nil
}

// source merges the catalog entry, the hub URL and pinned checksums for file.
func (mm *ModelManager) source(file string) ModelEntry {
	entry, ok := mm.catalog.Lookup(file)
	if !ok {
		entry = ModelEntry{Name: strings.TrimSuffix(file, filepath.Ext(file)), File: file}
	}
	if entry.URL == "" && mm.hubURL != "" {
		entry.URL = mm.hubURL + "/" + url.PathEscape(file)
	}
	if sum, ok := mm.checksums[file]; ok {
		entry.SHA256 = sum
	}
	return entry
}

// checkCached reports whether path holds a usable model. An error means the
// file exists but must not be used.
func (mm *ModelManager) checkCached(path, sha string) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat model file: %w", err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("model path is a directory: %s", path)
	}
	if info.Size() == 0 {
		return false, nil
	}
	if err := VerifyChecksum(path, sha); err != nil {
		return false, err
	}
	return true, nil
}

func (mm *ModelManager) download(ctx context.Context, source ModelEntry, dest string) error {
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= mm.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 1 {
			delay := mm.baseRetryDelay * time.Duration(1<<(attempt-2))
			mm.logger.Warn("Retrying model download",
				zap.String("model", source.File),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		attempts = attempt
		opts := DownloadOptions{
			URL:            source.URL,
			DestPath:       dest,
			ExpectedSHA256: source.SHA256,
			HTTPClient:     mm.httpClient,
			Resume:         true,
		}
		if mm.onProgress != nil {
			file := source.File
			opts.OnProgress = func(p ProgressInfo) { mm.onProgress(file, p) }
		}

		_, err := Download(ctx, opts)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
	}

	return &ModelDownloadError{
		ModelName: source.File,
		Cause:     lastErr,
		Message:   fmt.Sprintf("download failed after %d attempt(s)", attempts),
		URL:       source.URL,
		DestPath:  dest,
		Checksum:  source.SHA256,
	}
}

// isRetryable treats network failures and 5xx/429 as transient. Checksum
// mismatches, cancellation and client errors are final.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrChecksumMismatch) {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true
}

// CachedModel is a model file present in the cache directory.
type CachedModel struct {
	File      string
	Path      string
	SizeBytes int64
	ModTime   time.Time
}

// Cached lists the *.onnx files in the cache directory, sorted by name.
// A missing directory yields an empty list.
func (mm *ModelManager) Cached() ([]CachedModel, error) {
	entries, err := os.ReadDir(mm.modelDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read model directory: %w", err)
	}

	var out []CachedModel
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".onnx" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, CachedModel{
			File:      e.Name(),
			Path:      filepath.Join(mm.modelDir, e.Name()),
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out, nil
}

// ModelDownloadError explains a model that could not be made available,
// with manual download instructions when the source is known.
type ModelDownloadError struct {
	ModelName string
	Cause     error
	Message   string
	URL       string
	DestPath  string
	Checksum  string
}

func (e *ModelDownloadError) Error() string {
	if e.URL != "" && e.DestPath != "" {
		checksum := e.Checksum
		if checksum == "" {
			checksum = "(not pinned)"
		}
		return fmt.Sprintf(`model download failed: %s: %s: %v

Manual download instructions:
  1. Download: %s
  2. Save to:  %s
  3. SHA256:   %s`,
			e.ModelName, e.Message, e.Cause, e.URL, e.DestPath, checksum)
	}
	if e.DestPath != "" {
		return fmt.Sprintf("model unavailable: %s: %s; place the file at %s", e.ModelName, e.Message, e.DestPath)
	}
	return fmt.Sprintf("model download failed: %s: %s", e.ModelName, e.Message)
}

func (e *ModelDownloadError) Unwrap() error {
	return e.Cause
}
