package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func testHash(t *testing.T, token string) string {
	t.Helper()
	hash, err := HashTokenWithCost(token, bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return hash
}

func TestTokenHashing(t *testing.T) {
	hash := testHash(t, "s3cret")
	if err := VerifyToken("s3cret", hash); err != nil {
		t.Errorf("VerifyToken(correct) = %v", err)
	}
	if err := VerifyToken("wrong", hash); !errors.Is(err, ErrTokenMismatch) {
		t.Errorf("VerifyToken(wrong) = %v", err)
	}
	if err := VerifyToken("", hash); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("VerifyToken(empty) = %v", err)
	}
	if _, err := HashToken(""); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("HashToken(empty) = %v", err)
	}
	if err := ValidateHash("plaintext"); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("ValidateHash(plaintext) = %v", err)
	}
}

func TestNewRejectsInvalidHash(t *testing.T) {
	if _, err := New(Config{TokenHash: "not-bcrypt"}, nil); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("New() = %v, want ErrInvalidHash", err)
	}
}

func TestBearerAuth(t *testing.T) {
	s := newTestServer(t, Config{TokenHash: testHash(t, "s3cret")})
	h := s.Handler()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer s3cret", http.StatusNotFound},
		{"lowercase scheme", "bearer s3cret", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.header != "" {
				header.Set("Authorization", tt.header)
			}
			rec := doJSON(t, h, http.MethodGet, "/predictions/x", nil, header)
			if rec.Code != tt.want {
				t.Errorf("code = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	rec := doJSON(t, h, http.MethodGet, "/health-check", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health-check should not require auth, got %d", rec.Code)
	}
}

// requestFrom sends a GET from remoteAddr with the given headers.
func requestFrom(h http.Handler, remoteAddr string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/predictions/x", nil)
	req.RemoteAddr = remoteAddr
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBearerAuthRateLimit(t *testing.T) {
	limiter := NewRateLimiter(3, time.Minute, time.Hour)
	s := newTestServer(t, Config{TokenHash: testHash(t, "s3cret")}, WithRateLimiter(limiter))
	h := s.Handler()

	bad := http.Header{"Authorization": {"Bearer nope"}}
	for i := 0; i < 3; i++ {
		if rec := requestFrom(h, "203.0.113.9:4000", bad); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d = %d, want 401", i+1, rec.Code)
		}
	}

	good := http.Header{"Authorization": {"Bearer s3cret"}}
	rec := requestFrom(h, "203.0.113.9:4001", good)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Errorf("blocked client = %d, Retry-After %q", rec.Code, rec.Header().Get("Retry-After"))
	}

	if rec := requestFrom(h, "198.51.100.1:4000", good); rec.Code == http.StatusTooManyRequests {
		t.Error("other clients must not be blocked")
	}
}

func TestRateLimitIgnoresForwardedHeadersFromUntrustedPeers(t *testing.T) {
	limiter := NewRateLimiter(5, time.Minute, time.Hour)
	s := newTestServer(t, Config{TokenHash: testHash(t, "s3cret")}, WithRateLimiter(limiter))
	h := s.Handler()

	blocked := 0
	for i := 0; i < 50; i++ {
		header := http.Header{
			"Authorization":   {"Bearer nope"},
			"X-Forwarded-For": {fmt.Sprintf("10.9.%d.%d", i/250, i%250)},
			"X-Real-IP":       {fmt.Sprintf("10.8.0.%d", i)},
		}
		if rec := requestFrom(h, "203.0.113.50:5555", header); rec.Code == http.StatusTooManyRequests {
			blocked++
		}
	}
	if blocked != 45 {
		t.Errorf("blocked %d of 50 attempts, want 45 after the fifth failure", blocked)
	}
	if n := limiter.Count(); n != 1 {
		t.Errorf("limiter tracks %d clients, want 1", n)
	}
}

func TestRateLimitBehindTrustedProxy(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute, time.Hour)
	cfg := Config{
		TokenHash:      testHash(t, "s3cret"),
		TrustedProxies: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")},
	}
	h := newTestServer(t, cfg, WithRateLimiter(limiter)).Handler()

	// The proxy appends the real client; anything left of it is client-supplied.
	bad := http.Header{"Authorization": {"Bearer nope"}, "X-Forwarded-For": {"1.1.1.1, 198.51.100.7"}}
	for i := 0; i < 2; i++ {
		requestFrom(h, "10.0.0.2:80", bad)
	}
	spoofed := http.Header{"Authorization": {"Bearer s3cret"}, "X-Forwarded-For": {"9.9.9.9, 198.51.100.7"}}
	if rec := requestFrom(h, "10.0.0.2:80", spoofed); rec.Code != http.StatusTooManyRequests {
		t.Errorf("client behind proxy = %d, want 429", rec.Code)
	}

	other := http.Header{"Authorization": {"Bearer s3cret"}, "X-Forwarded-For": {"198.51.100.8"}}
	if rec := requestFrom(h, "10.0.0.2:80", other); rec.Code == http.StatusTooManyRequests {
		t.Error("a different client behind the same proxy must not be blocked")
	}
}

func TestClientIP(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8"), netip.MustParsePrefix("::1/128")}
	tests := []struct {
		name    string
		remote  string
		xff     string
		xri     string
		trusted []netip.Prefix
		want    string
	}{
		{"no proxies configured", "203.0.113.1:1234", "1.2.3.4", "5.6.7.8", nil, "203.0.113.1"},
		{"untrusted peer", "203.0.113.1:1234", "1.2.3.4", "", trusted, "203.0.113.1"},
		{"trusted peer", "10.1.1.1:1234", "1.2.3.4", "", trusted, "1.2.3.4"},
		{"rightmost untrusted hop", "10.1.1.1:1234", "6.6.6.6, 1.2.3.4, 10.2.2.2", "", trusted, "1.2.3.4"},
		{"real ip fallback", "[::1]:1234", "", "1.2.3.4", trusted, "1.2.3.4"},
		{"all hops trusted", "10.1.1.1:1234", "10.3.3.3", "", trusted, "10.1.1.1"},
		{"no port", "203.0.113.1", "", "", nil, "203.0.113.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := clientIP(r, tt.trusted); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
