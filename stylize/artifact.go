package stylize

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ArtifactPrefix is the file name prefix of every artifact.
const ArtifactPrefix = "paprika-"

// Artifact is a PNG written once per request. The caller owns the file: the
// writer never deletes or reuses it, and the caller must call Release (or move
// the file) when done.
type Artifact struct {
	Path      string
	Size      int64
	Width     int
	Height    int
	CreatedAt time.Time
}

// Release deletes the artifact file. Releasing an already removed artifact is
// not an error.
func (a *Artifact) Release() error {
	if a == nil || a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("release artifact: %w", err)
	}
	return nil
}

// ArtifactWriter persists results as uniquely named PNG files in a scratch directory.
type ArtifactWriter struct {
	dir string
}

// NewArtifactWriter creates a writer for dir; "" selects os.TempDir().
func NewArtifactWriter(dir string) *ArtifactWriter {
	if dir == "" {
		dir = os.TempDir()
	}
	return &ArtifactWriter{dir: dir}
}

// Dir returns the scratch directory.
func (w *ArtifactWriter) Dir() string {
	return w.dir
}

// Write encodes img as PNG and stores it under a fresh name. The file is fully
// written and synced under a temporary name first, so the returned path never
// refers to a partial file. On failure no path is returned and nothing is left
// behind.
func (w *ArtifactWriter) Write(img image.Image) (*Artifact, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return nil, newError(KindArtifactWrite, "encode", err)
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, newError(KindArtifactWrite, "mkdir", err)
	}

	tmp, err := os.CreateTemp(w.dir, ".paprika-*.tmp")
	if err != nil {
		return nil, newError(KindArtifactWrite, "create", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, newError(KindArtifactWrite, "write", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, newError(KindArtifactWrite, "sync", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, newError(KindArtifactWrite, "close", err)
	}

	final := filepath.Join(w.dir, ArtifactPrefix+uuid.NewString()+".png")
	if err := os.Rename(tmpPath, final); err != nil {
		return nil, newError(KindArtifactWrite, "rename", err)
	}
	committed = true

	b := img.Bounds()
	return &Artifact{
		Path:      final,
		Size:      int64(len(data)),
		Width:     b.Dx(),
		Height:    b.Dy(),
		CreatedAt: time.Now(),
	}, nil
}
