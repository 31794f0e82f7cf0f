package core

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// modelPayload is large enough to trigger at least one progress callback.
var modelPayload = bytes.Repeat([]byte("onnx"), 200*1024)

func serveContent(t *testing.T, data []byte) (*httptest.Server, *atomic.Int32, *atomic.Value) {
	t.Helper()
	var hits atomic.Int32
	var lastRange atomic.Value
	lastRange.Store("")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		lastRange.Store(r.Header.Get("Range"))
		http.ServeContent(w, r, "model.onnx", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits, &lastRange
}

func TestDownloadFresh(t *testing.T) {
	srv, _, _ := serveContent(t, modelPayload)
	dest := filepath.Join(t.TempDir(), "models", "paprika.onnx")
	sum := sha256Hex(modelPayload)

	var calls int
	var last ProgressInfo
	result, err := Download(context.Background(), DownloadOptions{
		URL:            srv.URL + "/paprika.onnx",
		DestPath:       dest,
		ExpectedSHA256: sum,
		OnProgress: func(p ProgressInfo) {
			calls++
			last = p
		},
	})
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}

	if result.Resumed || !result.ChecksumValid {
		t.Errorf("result = %+v, want fresh verified download", result)
	}
	if result.BytesDownloaded != int64(len(modelPayload)) {
		t.Errorf("BytesDownloaded = %d, want %d", result.BytesDownloaded, len(modelPayload))
	}
	got, err := os.ReadFile(dest)
	if err != nil || !bytes.Equal(got, modelPayload) {
		t.Fatalf("destination content mismatch (err=%v)", err)
	}
	if _, err := os.Stat(dest + PartialSuffix); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}
	if calls < 2 {
		t.Errorf("OnProgress called %d times, want at least 2", calls)
	}
	if last.Downloaded != int64(len(modelPayload)) || last.Percent != 100 {
		t.Errorf("final progress = %+v", last)
	}
}

func TestDownloadResume(t *testing.T) {
	srv, _, lastRange := serveContent(t, modelPayload)
	dest := filepath.Join(t.TempDir(), "paprika.onnx")
	half := len(modelPayload) / 2
	if err := os.WriteFile(dest+PartialSuffix, modelPayload[:half], 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := Download(context.Background(), DownloadOptions{
		URL:      srv.URL,
		DestPath: dest,
		Resume:   true,
	})
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}

	if !result.Resumed {
		t.Error("Resumed = false, want true")
	}
	if got := lastRange.Load().(string); got != BuildRangeHeader(int64(half)) {
		t.Errorf("Range header = %q, want %q", got, BuildRangeHeader(int64(half)))
	}
	if result.BytesDownloaded != int64(len(modelPayload)-half) {
		t.Errorf("BytesDownloaded = %d, want %d", result.BytesDownloaded, len(modelPayload)-half)
	}
	if result.TotalBytes != int64(len(modelPayload)) {
		t.Errorf("TotalBytes = %d, want %d", result.TotalBytes, len(modelPayload))
	}
	got, _ := os.ReadFile(dest)
	if !bytes.Equal(got, modelPayload) {
		t.Error("resumed file does not match source")
	}
}

func TestDownloadRangeNotSatisfiableRestarts(t *testing.T) {
	srv, hits, _ := serveContent(t, []byte("small model"))
	dest := filepath.Join(t.TempDir(), "paprika.onnx")
	// A partial file longer than the source makes the range unsatisfiable.
	if err := os.WriteFile(dest+PartialSuffix, bytes.Repeat([]byte("x"), 100), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := Download(context.Background(), DownloadOptions{URL: srv.URL, DestPath: dest, Resume: true})
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if result.Resumed {
		t.Error("Resumed = true after restart")
	}
	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want 2", hits.Load())
	}
	got, _ := os.ReadFile(dest)
	if string(got) != "small model" {
		t.Errorf("content = %q", got)
	}
}

func TestDownloadChecksumMismatch(t *testing.T) {
	srv, _, _ := serveContent(t, []byte("tampered"))
	dest := filepath.Join(t.TempDir(), "paprika.onnx")

	_, err := Download(context.Background(), DownloadOptions{
		URL:            srv.URL,
		DestPath:       dest,
		ExpectedSHA256: strings.Repeat("0", 64),
	})
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("Download() = %v, want ErrChecksumMismatch", err)
	}
	for _, p := range []string{dest, dest + PartialSuffix} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should not exist after a checksum mismatch", filepath.Base(p))
		}
	}
}

func TestDownloadHTTPStatus(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			dest := filepath.Join(t.TempDir(), "paprika.onnx")
			_, err := Download(context.Background(), DownloadOptions{URL: srv.URL, DestPath: dest})

			var statusErr *HTTPStatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("Download() = %v, want *HTTPStatusError", err)
			}
			if statusErr.StatusCode != tt.status || statusErr.Retryable() != tt.retryable {
				t.Errorf("status=%d retryable=%v, want %d/%v", statusErr.StatusCode, statusErr.Retryable(), tt.status, tt.retryable)
			}
			if _, err := os.Stat(dest); !os.IsNotExist(err) {
				t.Error("destination created for a failed download")
			}
		})
	}
}

func TestDownloadRequiresURLAndDest(t *testing.T) {
	if _, err := Download(context.Background(), DownloadOptions{DestPath: "x"}); err == nil {
		t.Error("Download() without URL should fail")
	}
	if _, err := Download(context.Background(), DownloadOptions{URL: "http://example.invalid"}); err == nil {
		t.Error("Download() without DestPath should fail")
	}
}
