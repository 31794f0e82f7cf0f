package server

import (
	"context"
	"crypto/sha256"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

type contextKey int

const requestIDKey contextKey = iota

// RequestID returns the ID assigned by the request ID middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// withRequestID assigns every request an ID, reusing a well-formed
// incoming X-Request-ID.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// responseRecorder captures the status code and body size.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
}

func (w *responseRecorder) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

func (w *responseRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withLogging logs one line per request. Paths in skip are not logged.
func withLogging(logger *zap.Logger, trusted []netip.Prefix, skip map[string]bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if skip[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		fields := []zap.Field{
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Int64("bytes", rec.bytes),
			zap.Duration("duration", time.Since(start)),
			zap.String("client", clientIP(r, trusted)),
		}
		switch {
		case rec.status >= 500:
			logger.Error("HTTP request", fields...)
		case rec.status >= 400:
			logger.Warn("HTTP request", fields...)
		default:
			logger.Info("HTTP request", fields...)
		}
	})
}

// withRecovery turns handler panics into 500 responses.
func withRecovery(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				logger.Error("Handler panic",
					zap.String("request_id", RequestID(r.Context())),
					zap.Any("panic", p),
					zap.Stack("stack"),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// tokenAuth checks "Authorization: Bearer <token>" against a bcrypt hash.
// Verified tokens are remembered by digest so bcrypt runs once per token.
type tokenAuth struct {
	hash    string
	limiter *RateLimiter
	trusted []netip.Prefix
	logger  *zap.Logger

	mu       sync.Mutex
	verified map[[sha256.Size]byte]bool
}

func newTokenAuth(hash string, limiter *RateLimiter, trusted []netip.Prefix, logger *zap.Logger) *tokenAuth {
	return &tokenAuth{
		hash:     hash,
		limiter:  limiter,
		trusted:  trusted,
		logger:   logger,
		verified: make(map[[sha256.Size]byte]bool),
	}
}

func (a *tokenAuth) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r, a.trusted)
		if ok, wait := a.limiter.Allow(client); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			writeError(w, http.StatusTooManyRequests, "too many failed authentication attempts")
			return
		}

		token, ok := bearerToken(r)
		if !ok || !a.check(token) {
			a.limiter.RecordFailure(client)
			a.logger.Warn("Rejected request with invalid token",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("client", client),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="paprika"`)
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		a.limiter.Reset(client)
		next.ServeHTTP(w, r)
	})
}

func (a *tokenAuth) check(token string) bool {
	sum := sha256.Sum256([]byte(token))
	a.mu.Lock()
	known := a.verified[sum]
	a.mu.Unlock()
	if known {
		return true
	}
	if VerifyToken(token, a.hash) != nil {
		return false
	}
	a.mu.Lock()
	a.verified[sum] = true
	a.mu.Unlock()
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// clientIP returns the connection address without its port. Forwarded
// headers are honored only when the connection comes from a trusted proxy:
// X-Forwarded-For is walked from the right and the first untrusted hop wins,
// then X-Real-IP is consulted.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	if !isTrustedProxy(peer, trusted) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop != "" && !isTrustedProxy(hop, trusted) {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

func isTrustedProxy(ip string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
