package core

import (
	"errors"

	"paprika/stylize"
)

// Exit codes for the application.
// Signal-based exits follow the Unix convention of 128 + signal number.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1

	// ExitCodeConfig indicates invalid configuration (exit code 2)
	ExitCodeConfig = 2
	// ExitCodeModelLoad indicates the style generator could not be loaded (exit code 3)
	ExitCodeModelLoad = 3
	// ExitCodeValidation indicates a rejected request (bad strength or image) (exit code 4)
	ExitCodeValidation = 4
	// ExitCodeInference indicates the generator failed on a valid request (exit code 5)
	ExitCodeInference = 5
	// ExitCodeArtifactWrite indicates the result could not be persisted (exit code 6)
	ExitCodeArtifactWrite = 6

	// ExitCodeSIGINT indicates termination due to SIGINT (Ctrl+C): 128 + 2
	ExitCodeSIGINT = 130
	// ExitCodeSIGTERM indicates termination due to SIGTERM: 128 + 15
	ExitCodeSIGTERM = 143
)

// ExitCodeName returns a human-readable name for an exit code.
func ExitCodeName(code int) string {
	switch code {
	case ExitCodeSuccess:
		return "success"
	case ExitCodeError:
		return "error"
	case ExitCodeConfig:
		return "configuration error"
	case ExitCodeModelLoad:
		return "model load error"
	case ExitCodeValidation:
		return "validation error"
	case ExitCodeInference:
		return "inference error"
	case ExitCodeArtifactWrite:
		return "artifact write error"
	case ExitCodeSIGINT:
		return "interrupted (SIGINT)"
	case ExitCodeSIGTERM:
		return "terminated (SIGTERM)"
	default:
		return "unknown"
	}
}

// IsSignalExit returns true if the exit code indicates a signal-based termination.
func IsSignalExit(code int) bool {
	return code == ExitCodeSIGINT || code == ExitCodeSIGTERM
}

// ExitCodeForError maps an error to the process exit code.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	if _, ok := IsConfigError(err); ok {
		return ExitCodeConfig
	}
	var dlErr *ModelDownloadError
	if errors.As(err, &dlErr) {
		return ExitCodeModelLoad
	}
	switch stylize.KindOf(err) {
	case stylize.KindModelLoad:
		return ExitCodeModelLoad
	case stylize.KindValidation:
		return ExitCodeValidation
	case stylize.KindInference:
		return ExitCodeInference
	case stylize.KindArtifactWrite:
		return ExitCodeArtifactWrite
	}
	return ExitCodeError
}
