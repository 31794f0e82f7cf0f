package logging

import (
	"errors"
	"syscall"
)

// isIgnorableSyncError reports fsync failures on terminals and pipes, which
// do not support it (EINVAL on Linux, ENOTTY on macOS).
func isIgnorableSyncError(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.EBADF)
}
