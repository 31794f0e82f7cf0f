package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CleanupResult reports one retention pass.
type CleanupResult struct {
	Deleted  int64
	Cutoff   time.Time
	Duration time.Duration
}

// Cleanup deletes predictions older than retentionDays. Zero keeps everything.
// VACUUM runs only when rows were removed.
func (r *Repository) Cleanup(ctx context.Context, retentionDays int) (CleanupResult, error) {
	start := time.Now()
	if retentionDays < 0 {
		return CleanupResult{}, fmt.Errorf("retention days must not be negative, got %d", retentionDays)
	}
	if retentionDays == 0 {
		return CleanupResult{Duration: time.Since(start)}, nil
	}

	result := CleanupResult{Cutoff: start.AddDate(0, 0, -retentionDays)}
	deleted, err := r.DeleteOlderThan(ctx, result.Cutoff)
	if err != nil {
		return result, err
	}
	result.Deleted = deleted

	if deleted > 0 {
		err = r.db.with(func(conn *sql.DB) error {
			_, err := conn.ExecContext(ctx, "VACUUM")
			return err
		})
		if err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("cleanup deleted %d rows but VACUUM failed: %w", deleted, err)
		}
	}
	result.Duration = time.Since(start)
	return result, nil
}

// StartCleanupScheduler runs Cleanup now and then every interval until ctx
// is done. onCleanup, if set, receives each result.
func (r *Repository) StartCleanupScheduler(ctx context.Context, retentionDays int, interval time.Duration, onCleanup func(CleanupResult, error)) {
	if retentionDays == 0 || interval <= 0 {
		return
	}
	go func() {
		run := func() {
			result, err := r.Cleanup(ctx, retentionDays)
			if onCleanup != nil && ctx.Err() == nil {
				onCleanup(result, err)
			}
		}
		run()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}
