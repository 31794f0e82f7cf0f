package core

import "fmt"

// Binary byte size units.
const (
	BytesPerKB int64 = 1024
	BytesPerMB int64 = 1024 * BytesPerKB
	BytesPerGB int64 = 1024 * BytesPerMB
)

// FormatBytes converts a byte count to a human-readable string using binary
// units displayed as KB/MB/GB.
//
//	FormatBytes(512)      // "512 B"
//	FormatBytes(1536)     // "1.50 KB"
//	FormatBytes(8912345)  // "8.50 MB"
//
// Negative values are treated as 0.
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}

	switch {
	case bytes >= BytesPerGB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(BytesPerGB))
	case bytes >= BytesPerMB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(BytesPerMB))
	case bytes >= BytesPerKB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(BytesPerKB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatRate formats a transfer speed in bytes per second.
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "-"
	}
	return FormatBytes(int64(bytesPerSec)) + "/s"
}
