package core

import "testing"

func TestBuildRangeHeader(t *testing.T) {
	tests := []struct {
		from int64
		want string
	}{
		{0, "bytes=0-"},
		{1024, "bytes=1024-"},
		{-5, "bytes=0-"},
	}
	for _, tt := range tests {
		if got := BuildRangeHeader(tt.from); got != tt.want {
			t.Errorf("BuildRangeHeader(%d) = %q, want %q", tt.from, got, tt.want)
		}
	}
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		name              string
		header            string
		start, end, total int64
		wantErr           bool
	}{
		{"known total", "bytes 100-199/1000", 100, 199, 1000, false},
		{"unknown total", "bytes 0-49/*", 0, 49, -1, false},
		{"empty", "", 0, 0, 0, true},
		{"garbage", "items 1-2/3", 0, 0, 0, true},
		{"reversed", "bytes 10-5/100", 0, 0, 0, true},
		{"bad total", "bytes 0-5/abc", 0, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, total, err := ParseContentRange(tt.header)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseContentRange(%q) error = %v, wantErr %v", tt.header, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if start != tt.start || end != tt.end || total != tt.total {
				t.Errorf("ParseContentRange(%q) = %d, %d, %d; want %d, %d, %d",
					tt.header, start, end, total, tt.start, tt.end, tt.total)
			}
		})
	}
}
