package core

import (
	"errors"
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeEnvFileMissing = "ENV_FILE_MISSING"
	ErrCodeInvalidValue   = "INVALID_VALUE"
	ErrCodeMissingAuth    = "MISSING_AUTH"
	ErrCodeMissingConfig  = "MISSING_CONFIG"
	ErrCodeInvalidCatalog = "INVALID_CATALOG"
)

// ErrEnvFileMissing returns an error for an explicitly requested .env file that does not exist.
func ErrEnvFileMissing(path string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeEnvFileMissing,
		Message: fmt.Sprintf("Configuration file not found: %s", path),
		Action:  "Create the file or drop the --env-file flag",
	}
}

// ErrInvalidValue returns an error for a variable whose value is out of range or malformed.
func ErrInvalidValue(key, value, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("Invalid %s %q: %s", key, value, reason),
		Action:  fmt.Sprintf("Fix %s in your environment or .env file", key),
	}
}

// ErrMissingAuth returns an error for a backend that needs credentials.
func ErrMissingAuth(backend string) *ConfigError {
	var action string
	switch backend {
	case "gemini":
		action = "Set GEMINI_API_KEY in your .env file, or use PAPRIKA_BACKEND=onnx"
	case "openai":
		action = "Set OPENAI_API_KEY in your .env file, or use PAPRIKA_BACKEND=onnx"
	default:
		action = fmt.Sprintf("Set the API key for %s in your .env file", backend)
	}
	return &ConfigError{
		Code:    ErrCodeMissingAuth,
		Message: fmt.Sprintf("Missing API key for the %s backend", backend),
		Action:  action,
	}
}

// ErrMissingConfig returns an error for missing required configuration.
func ErrMissingConfig(varName string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Missing required configuration: %s", varName),
		Action:  fmt.Sprintf("Set %s in your .env file", varName),
	}
}

// ErrInvalidCatalog returns an error for a model catalog that cannot be used.
func ErrInvalidCatalog(path, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidCatalog,
		Message: fmt.Sprintf("Invalid model catalog %s: %s", path, reason),
		Action:  "Fix the YAML file or unset PAPRIKA_MODEL_CATALOG",
	}
}

// IsConfigError reports whether err is or wraps a ConfigError and returns it.
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error if it's a ConfigError
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}
