package core

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestFile(t *testing.T, dir, name string, data []byte) (string, string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	sum := sha256.Sum256(data)
	return path, hex.EncodeToString(sum[:])
}

func TestComputeSHA256(t *testing.T) {
	path, want := writeTestFile(t, t.TempDir(), "model.onnx", []byte("generator weights"))

	got, err := ComputeSHA256(path)
	if err != nil {
		t.Fatalf("ComputeSHA256() error: %v", err)
	}
	if got != want {
		t.Errorf("ComputeSHA256() = %s, want %s", got, want)
	}

	if _, err := ComputeSHA256(""); err == nil {
		t.Error("ComputeSHA256(\"\") should fail")
	}
	if _, err := ComputeSHA256(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("ComputeSHA256(missing) should fail")
	}
}

func TestNormalizeSHA256(t *testing.T) {
	valid := strings.Repeat("ab", 32)

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"empty", "", "", false},
		{"blank", "   ", "", false},
		{"lowercase", valid, valid, false},
		{"uppercase and padded", " " + strings.ToUpper(valid) + "\n", valid, false},
		{"too short", "abc", "", true},
		{"not hex", strings.Repeat("zz", 32), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeSHA256(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeSHA256(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeSHA256(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestVerifyChecksum(t *testing.T) {
	path, sum := writeTestFile(t, t.TempDir(), "model.onnx", []byte("weights"))

	if err := VerifyChecksum(path, sum); err != nil {
		t.Errorf("VerifyChecksum(match) error: %v", err)
	}
	if err := VerifyChecksum(path, strings.ToUpper(sum)); err != nil {
		t.Errorf("VerifyChecksum(uppercase) error: %v", err)
	}
	if err := VerifyChecksum(path, ""); err != nil {
		t.Errorf("VerifyChecksum(empty) should skip, got %v", err)
	}

	err := VerifyChecksum(path, strings.Repeat("0", 64))
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("VerifyChecksum(mismatch) = %v, want ErrChecksumMismatch", err)
	}
	if err := VerifyChecksum(path, "nothex"); err == nil || errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("VerifyChecksum(malformed) = %v, want format error", err)
	}
}
