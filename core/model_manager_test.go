package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
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

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestModelManagerCacheHit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	dir := t.TempDir()
	path, _ := writeTestFile(t, dir, "paprika.onnx", []byte("cached weights"))

	mm := NewModelManager(dir, srv.Client(), WithHubURL(srv.URL))
	got, err := mm.ResolveModel(context.Background(), "paprika.onnx")
	if err != nil {
		t.Fatalf("ResolveModel() error: %v", err)
	}
	if got != path {
		t.Errorf("ResolveModel() = %q, want %q", got, path)
	}
	if hits.Load() != 0 {
		t.Errorf("cache hit made %d requests", hits.Load())
	}
}

func TestModelManagerDownloadsFromHub(t *testing.T) {
	payload := []byte("hub weights")
	var requested atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested.Store(r.URL.Path)
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	var progressFile string
	mm := NewModelManager(dir, srv.Client(),
		WithHubURL(srv.URL+"/animegan2/"),
		WithChecksum("face_paint_512_v2.onnx", strings.ToUpper(sha256Hex(payload))),
		WithProgress(func(file string, p ProgressInfo) { progressFile = file }),
	)

	path, err := mm.ResolveModel(context.Background(), "face_paint_512_v2.onnx")
	if err != nil {
		t.Fatalf("ResolveModel() error: %v", err)
	}
	if got := requested.Load().(string); got != "/animegan2/face_paint_512_v2.onnx" {
		t.Errorf("requested path = %q", got)
	}
	if data, _ := os.ReadFile(path); string(data) != string(payload) {
		t.Errorf("cached content = %q", data)
	}
	if progressFile != "face_paint_512_v2.onnx" {
		t.Errorf("progress callback file = %q", progressFile)
	}
}

func TestModelManagerCatalogURLWins(t *testing.T) {
	payload := []byte("catalog weights")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mirror/p.onnx" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	catalog := &Catalog{Models: []ModelEntry{{
		Name: "paprika", File: "paprika.onnx", URL: srv.URL + "/mirror/p.onnx", SHA256: sha256Hex(payload),
	}}}
	mm := NewModelManager(t.TempDir(), srv.Client(), WithHubURL(srv.URL+"/hub"), WithCatalog(catalog))

	if _, err := mm.ResolveModel(context.Background(), "paprika.onnx"); err != nil {
		t.Fatalf("ResolveModel() error: %v", err)
	}
}

func TestModelManagerRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("third time"))
	}))
	defer srv.Close()

	mm := NewModelManager(t.TempDir(), srv.Client(),
		WithHubURL(srv.URL),
		WithMaxRetries(3),
		WithBaseRetryDelay(time.Millisecond),
	)
	if _, err := mm.ResolveModel(context.Background(), "paprika.onnx"); err != nil {
		t.Fatalf("ResolveModel() error: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
}

func TestModelManagerStopsOnPermanentFailure(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	mm := NewModelManager(t.TempDir(), srv.Client(), WithHubURL(srv.URL), WithBaseRetryDelay(time.Millisecond))
	_, err := mm.ResolveModel(context.Background(), "paprika.onnx")

	var dlErr *ModelDownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("ResolveModel() = %v, want *ModelDownloadError", err)
	}
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("cause = %v, want 404", dlErr.Cause)
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1 for a 404", attempts.Load())
	}
	if !strings.Contains(err.Error(), "Manual download instructions") {
		t.Errorf("error lacks manual instructions: %v", err)
	}
}

func TestModelManagerNoSource(t *testing.T) {
	dir := t.TempDir()
	mm := NewModelManager(dir, nil)

	_, err := mm.ResolveModel(context.Background(), "paprika.onnx")
	if !errors.Is(err, ErrModelNotCached) {
		t.Fatalf("ResolveModel() = %v, want ErrModelNotCached", err)
	}
	if !strings.Contains(err.Error(), filepath.Join(dir, "paprika.onnx")) {
		t.Errorf("error should name the expected path: %v", err)
	}
	if ExitCodeForError(err) != ExitCodeModelLoad {
		t.Errorf("exit code = %d, want %d", ExitCodeForError(err), ExitCodeModelLoad)
	}
}

func TestModelManagerReplacesCorruptCache(t *testing.T) {
	payload := []byte("good weights")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	writeTestFile(t, dir, "paprika.onnx", []byte("corrupt"))

	mm := NewModelManager(dir, srv.Client(), WithHubURL(srv.URL), WithChecksum("paprika.onnx", sha256Hex(payload)))
	path, err := mm.ResolveModel(context.Background(), "paprika.onnx")
	if err != nil {
		t.Fatalf("ResolveModel() error: %v", err)
	}
	if data, _ := os.ReadFile(path); string(data) != string(payload) {
		t.Errorf("cache content = %q, want refreshed model", data)
	}
}

func TestModelManagerRejectsPaths(t *testing.T) {
	mm := NewModelManager(t.TempDir(), nil)
	for _, name := range []string{"", ".", "..", "../x.onnx", "sub/x.onnx"} {
		if _, err := mm.ResolveModel(context.Background(), name); err == nil {
			t.Errorf("ResolveModel(%q) should fail", name)
		}
	}
}

func TestModelManagerCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mm := NewModelManager(t.TempDir(), srv.Client(), WithHubURL(srv.URL))
	if _, err := mm.ResolveModel(ctx, "paprika.onnx"); !errors.Is(err, context.Canceled) {
		t.Errorf("ResolveModel() = %v, want context.Canceled", err)
	}
}

func TestModelManagerCached(t *testing.T) {
	mm := NewModelManager(filepath.Join(t.TempDir(), "absent"), nil)
	if models, err := mm.Cached(); err != nil || len(models) != 0 {
		t.Errorf("Cached() on missing dir = %v, %v", models, err)
	}

	dir := t.TempDir()
	writeTestFile(t, dir, "paprika.onnx", []byte("p"))
	writeTestFile(t, dir, "celeba_distill.onnx", []byte("cd"))
	writeTestFile(t, dir, "notes.txt", []byte("ignored"))
	writeTestFile(t, dir, "face_paint_512_v1.onnx.part", []byte("partial"))

	models, err := NewModelManager(dir, nil).Cached()
	if err != nil {
		t.Fatalf("Cached() error: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("Cached() = %d entries, want 2", len(models))
	}
	if models[0].File != "celeba_distill.onnx" || models[1].File != "paprika.onnx" {
		t.Errorf("Cached() order = %s, %s", models[0].File, models[1].File)
	}
	if models[0].SizeBytes != 2 {
		t.Errorf("SizeBytes = %d, want 2", models[0].SizeBytes)
	}
}
