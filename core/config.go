package core

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"paprika/stylize"
)

// Backend names accepted by PAPRIKA_BACKEND.
var validBackends = []string{"onnx", "gemini", "openai"}

// Config holds all configuration values. It is read once at startup and never
// mutated afterwards.
type Config struct {
	// Stylization
	Style      string // PAPRIKA_STYLE: preset name (default: paprika)
	RenderSize int    // PAPRIKA_RENDER_SIZE: projector square size (default: 512)
	ScratchDir string // PAPRIKA_SCRATCH_DIR: artifact directory (default: OS temp dir)
	Device     string // PAPRIKA_DEVICE: auto, cpu, cuda or cuda:N (default: auto)
	Warmup     bool   // PAPRIKA_WARMUP: run a warm-up render at setup (default: true)

	// Generator backend
	Backend         string // PAPRIKA_BACKEND: onnx, gemini or openai (default: onnx)
	ModelDir        string // PAPRIKA_MODEL_DIR: ONNX model cache (default: <data dir>/models)
	ModelHubURL     string // PAPRIKA_MODEL_HUB_URL: base URL for <file>.onnx downloads
	ModelSHA256     string // PAPRIKA_MODEL_SHA256: pinned digest of the selected style's model
	ModelCatalog    string // PAPRIKA_MODEL_CATALOG: YAML catalog path
	DownloadRetries int    // PAPRIKA_DOWNLOAD_RETRIES (default: 3)
	ONNXLibraryPath string // ONNXRUNTIME_LIB_PATH: onnxruntime shared library

	// Remote backends
	GeminiAPIKey  string
	GeminiModel   string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	RemoteTimeout time.Duration // PAPRIKA_REMOTE_TIMEOUT (default: 120s)

	// HTTP server
	ListenAddr      string         // PAPRIKA_LISTEN_ADDR (default: :5000)
	APIToken        string         // PAPRIKA_API_TOKEN: plaintext bearer token (hashed at startup)
	APITokenHash    string         // PAPRIKA_API_TOKEN_HASH: bcrypt hash of the bearer token
	MaxUploadBytes  int64          // PAPRIKA_MAX_UPLOAD_MB (default: 20)
	MaxPixels       int64          // PAPRIKA_MAX_PIXELS: input width*height limit, 0 disables (default: 25000000)
	AllowURLInputs  bool           // PAPRIKA_ALLOW_URL_INPUTS: fetch http(s) image references (default: true)
	TrustedProxies  []netip.Prefix // PAPRIKA_TRUSTED_PROXIES: IPs or CIDRs whose forwarded headers are honored
	ShutdownTimeout time.Duration  // PAPRIKA_SHUTDOWN_TIMEOUT (default: 30s)

	// Prediction history
	DBPath               string // PAPRIKA_DB_PATH (default: <data dir>/history.db)
	HistoryEnabled       bool   // PAPRIKA_HISTORY (default: true)
	HistoryRetentionDays int    // PAPRIKA_HISTORY_RETENTION_DAYS (default: 30, 0 keeps everything)

	// Logging
	LogFile  string // PAPRIKA_LOG_FILE (default: <data dir>/logs/paprika.log)
	LogLevel string // PAPRIKA_LOG_LEVEL (default: debug in dev mode, info otherwise)
	DevMode  bool   // DEV_MODE
}

// LoadConfig reads the configuration from the environment. Call
// godotenv.Load first to pick up a .env file.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Style:      strings.ToLower(GetEnvOrDefault("PAPRIKA_STYLE", "paprika")),
		RenderSize: ParseIntEnv("PAPRIKA_RENDER_SIZE", stylize.DefaultRenderSize),
		ScratchDir: GetEnvOrDefault("PAPRIKA_SCRATCH_DIR", os.TempDir()),
		Device:     strings.ToLower(GetEnvOrDefault("PAPRIKA_DEVICE", "auto")),
		Warmup:     ParseBoolEnv("PAPRIKA_WARMUP", true),

		Backend:         strings.ToLower(GetEnvOrDefault("PAPRIKA_BACKEND", "onnx")),
		ModelDir:        GetEnvOrDefault("PAPRIKA_MODEL_DIR", GetDataFilePath("models")),
		ModelHubURL:     GetEnvOrDefault("PAPRIKA_MODEL_HUB_URL", ""),
		ModelSHA256:     GetEnvOrDefault("PAPRIKA_MODEL_SHA256", ""),
		ModelCatalog:    GetEnvOrDefault("PAPRIKA_MODEL_CATALOG", ""),
		DownloadRetries: ParseIntEnv("PAPRIKA_DOWNLOAD_RETRIES", 3),
		ONNXLibraryPath: GetEnvOrDefault("ONNXRUNTIME_LIB_PATH", ""),

		GeminiAPIKey:  GetEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:   GetEnvOrDefault("PAPRIKA_GEMINI_MODEL", ""),
		OpenAIAPIKey:  GetEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIBaseURL: GetEnvOrDefault("OPENAI_BASE_URL", ""),
		RemoteTimeout: ParseDurationEnv("PAPRIKA_REMOTE_TIMEOUT", 120*time.Second),

		ListenAddr:      GetEnvOrDefault("PAPRIKA_LISTEN_ADDR", ":5000"),
		APIToken:        GetEnvOrDefault("PAPRIKA_API_TOKEN", ""),
		APITokenHash:    GetEnvOrDefault("PAPRIKA_API_TOKEN_HASH", ""),
		MaxUploadBytes:  ParseMegabytesEnv("PAPRIKA_MAX_UPLOAD_MB", 20),
		MaxPixels:       int64(ParseIntEnv("PAPRIKA_MAX_PIXELS", stylize.DefaultMaxPixels)),
		AllowURLInputs:  ParseBoolEnv("PAPRIKA_ALLOW_URL_INPUTS", true),
		ShutdownTimeout: ParseDurationEnv("PAPRIKA_SHUTDOWN_TIMEOUT", 30*time.Second),

		DBPath:               GetEnvOrDefault("PAPRIKA_DB_PATH", GetDataFilePath("history.db")),
		HistoryEnabled:       ParseBoolEnv("PAPRIKA_HISTORY", true),
		HistoryRetentionDays: ParseIntEnv("PAPRIKA_HISTORY_RETENTION_DAYS", 30),

		LogFile: GetEnvOrDefault("PAPRIKA_LOG_FILE", GetDataFilePath("logs", "paprika.log")),
		DevMode: ParseBoolEnv("DEV_MODE", false),
	}

	defaultLevel := "info"
	if cfg.DevMode {
		defaultLevel = "debug"
	}
	cfg.LogLevel = strings.ToLower(GetEnvOrDefault("PAPRIKA_LOG_LEVEL", defaultLevel))

	proxies, err := ParseTrustedProxies(GetEnvOrDefault("PAPRIKA_TRUSTED_PROXIES", ""))
	if err != nil {
		return nil, ErrInvalidValue("PAPRIKA_TRUSTED_PROXIES", os.Getenv("PAPRIKA_TRUSTED_PROXIES"), err.Error())
	}
	cfg.TrustedProxies = proxies

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and cross-field requirements.
func (c *Config) Validate() error {
	if c.Style == "" {
		return ErrMissingConfig("PAPRIKA_STYLE")
	}
	if c.RenderSize < stylize.MinRenderSize || c.RenderSize > stylize.MaxRenderSize {
		return ErrInvalidValue("PAPRIKA_RENDER_SIZE", strconv.Itoa(c.RenderSize),
			fmt.Sprintf("must be between %d and %d", stylize.MinRenderSize, stylize.MaxRenderSize))
	}
	if err := validateDevice(c.Device); err != nil {
		return err
	}

	if !contains(validBackends, c.Backend) {
		return ErrInvalidValue("PAPRIKA_BACKEND", c.Backend, "must be one of "+strings.Join(validBackends, ", "))
	}
	switch c.Backend {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return ErrMissingAuth("gemini")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return ErrMissingAuth("openai")
		}
		if c.OpenAIBaseURL != "" {
			if err := validateURL("OPENAI_BASE_URL", c.OpenAIBaseURL); err != nil {
				return err
			}
		}
	}

	if c.ModelHubURL != "" {
		if err := validateURL("PAPRIKA_MODEL_HUB_URL", c.ModelHubURL); err != nil {
			return err
		}
	}
	if _, err := NormalizeSHA256(c.ModelSHA256); err != nil {
		return ErrInvalidValue("PAPRIKA_MODEL_SHA256", c.ModelSHA256, err.Error())
	}
	if c.DownloadRetries < 1 {
		return ErrInvalidValue("PAPRIKA_DOWNLOAD_RETRIES", strconv.Itoa(c.DownloadRetries), "must be at least 1")
	}
	if c.RemoteTimeout <= 0 {
		return ErrInvalidValue("PAPRIKA_REMOTE_TIMEOUT", c.RemoteTimeout.String(), "must be positive")
	}

	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return ErrInvalidValue("PAPRIKA_LISTEN_ADDR", c.ListenAddr, "must be host:port")
	}
	if c.MaxUploadBytes <= 0 {
		return ErrInvalidValue("PAPRIKA_MAX_UPLOAD_MB", strconv.FormatInt(c.MaxUploadBytes/BytesPerMB, 10), "must be positive")
	}
	if c.MaxPixels < 0 {
		return ErrInvalidValue("PAPRIKA_MAX_PIXELS", strconv.FormatInt(c.MaxPixels, 10), "must not be negative")
	}
	if c.HistoryRetentionDays < 0 {
		return ErrInvalidValue("PAPRIKA_HISTORY_RETENTION_DAYS", strconv.Itoa(c.HistoryRetentionDays), "must not be negative")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return ErrInvalidValue("PAPRIKA_LOG_LEVEL", c.LogLevel, "must be debug, info, warn or error")
	}
	return nil
}

// HTTPClient returns a client for outbound API and download traffic.
// A zero timeout leaves cancellation to the request context.
func (c *Config) HTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 4
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// AuthEnabled reports whether the HTTP API requires a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.APIToken != "" || c.APITokenHash != ""
}

// ParseTrustedProxies parses a comma-separated list of IP addresses and CIDR
// prefixes. A bare address becomes a single-host prefix.
func ParseTrustedProxies(raw string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, err
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func validateDevice(device string) error {
	switch {
	case device == "auto", device == "cpu", device == "cuda":
		return nil
	case strings.HasPrefix(device, "cuda:"):
		if n, err := strconv.Atoi(strings.TrimPrefix(device, "cuda:")); err == nil && n >= 0 {
			return nil
		}
	}
	return ErrInvalidValue("PAPRIKA_DEVICE", device, "must be auto, cpu, cuda or cuda:N")
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidValue(key, raw, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidValue(key, raw, "scheme must be http or https")
	}
	if u.Host == "" {
		return ErrInvalidValue(key, raw, "missing host")
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
