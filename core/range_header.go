package core

import "fmt"

// BuildRangeHeader returns the Range header value that resumes a download at
// byte offset resumeFrom ("bytes=N-"). Negative offsets start from 0.
func BuildRangeHeader(resumeFrom int64) string {
	if resumeFrom < 0 {
		resumeFrom = 0
	}
	return fmt.Sprintf("bytes=%d-", resumeFrom)
}

// ParseContentRange parses "bytes start-end/total" or "bytes start-end/*".
// An unknown total is returned as -1.
func ParseContentRange(header string) (start, end, total int64, err error) {
	if header == "" {
		return 0, 0, 0, fmt.Errorf("empty Content-Range header")
	}

	var totalStr string
	n, scanErr := fmt.Sscanf(header, "bytes %d-%d/%s", &start, &end, &totalStr)
	if scanErr != nil || n < 3 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %q", header)
	}
	if end < start {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range range: %q", header)
	}

	if totalStr == "*" {
		return start, end, -1, nil
	}
	if _, err := fmt.Sscanf(totalStr, "%d", &total); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid total in Content-Range: %q", totalStr)
	}
	return start, end, total, nil
}
