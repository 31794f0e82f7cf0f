package shutdown

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ScratchPatterns match partially written artifacts and remote-backend
// staging files.
var ScratchPatterns = []string{".paprika-*.tmp", "paprika-edit-*.png"}

// CleanupScratch returns a Func that removes leftover scratch files in dir.
// Finished artifacts are left alone. Failures are logged, never returned.
func CleanupScratch(logger *zap.Logger, dir string) Func {
	return func(ctx context.Context) error {
		removeScratch(ctx, logger, dir, 0)
		return nil
	}
}

// RemoveStaleScratch deletes scratch files in dir older than maxAge and
// returns how many were removed. Used at startup to clear what a crashed
// process left behind.
func RemoveStaleScratch(logger *zap.Logger, dir string, maxAge time.Duration) int {
	return removeScratch(context.Background(), logger, dir, maxAge)
}

func removeScratch(ctx context.Context, logger *zap.Logger, dir string, maxAge time.Duration) int {
	if logger == nil {
		logger = zap.NewNop()
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, pattern := range ScratchPatterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			logger.Warn("Bad scratch pattern", zap.String("pattern", pattern), zap.Error(err))
			continue
		}
		for _, path := range matches {
			if ctx.Err() != nil {
				logger.Warn("Scratch cleanup interrupted", zap.Int("removed", removed))
				return removed
			}
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				continue
			}
			if maxAge > 0 && info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil {
				logger.Warn("Failed to remove scratch file", zap.String("path", path), zap.Error(err))
				continue
			}
			removed++
			logger.Debug("Removed scratch file", zap.String("path", path))
		}
	}
	if removed > 0 {
		logger.Info("Scratch cleanup finished", zap.String("dir", dir), zap.Int("removed", removed))
	}
	return removed
}
