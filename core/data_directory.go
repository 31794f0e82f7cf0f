package core

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName is the application name used in data directory paths.
const AppName = "Paprika"

// GetDataDirectory returns the platform-specific data directory.
//
// Paths by platform:
//   - Windows: %APPDATA%\Paprika
//   - Linux/macOS: ~/.paprika
//
// Does NOT create the directory; use EnsureDataDirectory for that.
func GetDataDirectory() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, AppName)
		}
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "AppData", "Roaming", AppName)
		}
		return AppName
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".paprika"
	}
	return filepath.Join(home, ".paprika")
}

// GetDataFilePath returns the full path for a file within the data directory.
// Example: GetDataFilePath("history.db") -> "/home/user/.paprika/history.db"
func GetDataFilePath(elem ...string) string {
	return filepath.Join(append([]string{GetDataDirectory()}, elem...)...)
}

// EnsureDataDirectory creates the data directory if it doesn't exist.
func EnsureDataDirectory() (string, error) {
	dir := GetDataDirectory()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}
