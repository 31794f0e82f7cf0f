package core

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrChecksumMismatch is returned when a file's SHA256 differs from the expected value.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// ComputeSHA256 returns the lowercase hex SHA256 of the file at path.
func ComputeSHA256(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %q: %w", path, err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("read %q: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// NormalizeSHA256 lowercases and validates a hex SHA256 digest.
// The empty string is accepted and means "no checksum".
func NormalizeSHA256(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	if len(s) != 64 {
		return "", fmt.Errorf("sha256 must be 64 hex characters, got %d", len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("sha256 is not hex: %w", err)
	}
	return s, nil
}

// VerifyChecksum compares the file at path against expected. A mismatch
// returns an error wrapping ErrChecksumMismatch.
func VerifyChecksum(path, expected string) error {
	want, err := NormalizeSHA256(expected)
	if err != nil {
		return err
	}
	if want == "" {
		return nil
	}

	got, err := ComputeSHA256(path)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: %s has %s, want %s", ErrChecksumMismatch, path, got, want)
	}
	return nil
}
