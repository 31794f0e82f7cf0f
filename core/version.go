package core

import (
	"fmt"
	"runtime"
)

// Build metadata, injected with:
//
//	go build -ldflags "-X paprika/core.Version=$(git describe --tags --always) \
//	  -X paprika/core.GitCommit=$(git rev-parse --short HEAD) \
//	  -X paprika/core.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// VersionInfo returns a one-line description of the build,
// for example "v0.3.0 (commit abc1234, built 2026-01-15T10:30:00Z, go1.24.0 linux/amd64)".
func VersionInfo() string {
	return fmt.Sprintf("%s (commit %s, built %s, %s %s/%s)",
		Version, GitCommit, BuildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// UserAgent is sent on model downloads and remote API calls.
func UserAgent() string {
	return AppName + "/" + Version
}
