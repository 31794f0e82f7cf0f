package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// PartialSuffix is appended to the destination while a download is in flight.
// Only a complete, verified file is renamed into place.
const PartialSuffix = ".part"

// DownloadOptions configures a single download.
type DownloadOptions struct {
	URL      string
	DestPath string
	// ExpectedSHA256 is an optional lowercase hex digest checked before the
	// file is moved into place
	ExpectedSHA256 string
	// HTTPClient defaults to a client without timeout; ctx bounds the transfer
	HTTPClient *http.Client
	// OnProgress is called roughly every 256 KiB and once at the end
	OnProgress func(ProgressInfo)
	// Resume continues from an existing DestPath+".part" via a Range request
	Resume bool
}

// DownloadResult describes a completed download.
type DownloadResult struct {
	BytesDownloaded int64
	TotalBytes      int64
	Resumed         bool
	ChecksumValid   bool
	Path            string
}

// HTTPStatusError is returned for unexpected HTTP status codes.
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %s", e.URL, e.Status)
}

// Retryable reports whether the status is worth another attempt.
func (e *HTTPStatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Download fetches opts.URL into opts.DestPath.
//
// This molecule composes:
//   - BuildRangeHeader / ParseContentRange for resume
//   - ProgressTracker for speed and ETA
//   - VerifyChecksum before the final rename
//
// Data is written to DestPath+PartialSuffix and renamed only after it is
// synced and verified, so DestPath never holds a truncated file.
func Download(ctx context.Context, opts DownloadOptions) (*DownloadResult, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if opts.DestPath == "" {
		return nil, fmt.Errorf("DestPath is required")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	if err := os.MkdirAll(filepath.Dir(opts.DestPath), 0o755); err != nil {
		return nil, fmt.Errorf("create destination directory: %w", err)
	}

	partPath := opts.DestPath + PartialSuffix

	var resumeFrom int64
	if opts.Resume {
		if info, err := os.Stat(partPath); err == nil {
			resumeFrom = info.Size()
		}
	} else {
		_ = os.Remove(partPath)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent())
	if resumeFrom > 0 {
		req.Header.Set("Range", BuildRangeHeader(resumeFrom))
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	var (
		totalSize int64
		resumed   bool
		flags     = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	)

	switch resp.StatusCode {
	case http.StatusOK:
		totalSize = resp.ContentLength
		resumeFrom = 0

	case http.StatusPartialContent:
		resumed = true
		flags = os.O_WRONLY | os.O_APPEND
		if _, _, total, err := ParseContentRange(resp.Header.Get("Content-Range")); err == nil && total > 0 {
			totalSize = total
		} else if resp.ContentLength > 0 {
			totalSize = resumeFrom + resp.ContentLength
		}

	case http.StatusRequestedRangeNotSatisfiable:
		// The partial file is unusable; start over once without Range.
		_ = os.Remove(partPath)
		if !opts.Resume {
			return nil, &HTTPStatusError{URL: opts.URL, StatusCode: resp.StatusCode, Status: resp.Status}
		}
		opts.Resume = false
		return Download(ctx, opts)

	default:
		return nil, &HTTPStatusError{URL: opts.URL, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	file, err := os.OpenFile(partPath, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open partial file: %w", err)
	}

	tracker := NewProgressTracker(totalSize)
	tracker.SetDownloaded(resumeFrom)
	reader := &progressReader{reader: resp.Body, tracker: tracker, onProgress: opts.OnProgress, last: resumeFrom}

	written, copyErr := io.Copy(file, reader)
	if copyErr == nil {
		copyErr = file.Sync()
	}
	if closeErr := file.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		// Keep the partial file for the next resume attempt.
		return nil, fmt.Errorf("download interrupted: %w", copyErr)
	}
	if opts.OnProgress != nil {
		opts.OnProgress(tracker.Progress())
	}

	result := &DownloadResult{
		BytesDownloaded: written,
		TotalBytes:      totalSize,
		Resumed:         resumed,
		Path:            opts.DestPath,
	}

	if opts.ExpectedSHA256 != "" {
		if err := VerifyChecksum(partPath, opts.ExpectedSHA256); err != nil {
			if errors.Is(err, ErrChecksumMismatch) {
				_ = os.Remove(partPath)
			}
			return nil, err
		}
		result.ChecksumValid = true
	}

	if err := os.Rename(partPath, opts.DestPath); err != nil {
		return nil, fmt.Errorf("move download into place: %w", err)
	}
	return result, nil
}

// progressReader reports progress while copying.
type progressReader struct {
	reader     io.Reader
	tracker    *ProgressTracker
	onProgress func(ProgressInfo)
	last       int64
}

const progressInterval = 256 * 1024

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.tracker.Update(int64(n))
		if r.onProgress != nil {
			if downloaded := r.tracker.Downloaded(); downloaded-r.last >= progressInterval {
				r.onProgress(r.tracker.Progress())
				r.last = downloaded
			}
		}
	}
	return n, err
}
