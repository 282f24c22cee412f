package api

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/surfwatch/internal/domain/ratelimit"
	"github.com/okian/surfwatch/pkg/metrics"
)

// MetricsMiddleware wraps HTTP handlers to record Prometheus metrics.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		durationMs := float64(time.Since(start).Milliseconds())
		statusCodeStr := strconv.Itoa(wrapped.statusCode)

		metrics.RecordHTTPRequest(endpoint, r.Method, statusCodeStr)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, statusCodeStr, durationMs)

		if wrapped.statusCode >= http.StatusBadRequest {
			metrics.RecordErrorByEndpoint(endpoint, r.Method, getErrorType(wrapped.statusCode))
		}
	}
}

// getErrorType returns a standardized error type based on HTTP status code.
func getErrorType(statusCode int) string {
	switch {
	case statusCode >= http.StatusInternalServerError:
		return "server_error"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limit"
	case statusCode == http.StatusNotFound:
		return "not_found"
	case statusCode == http.StatusRequestEntityTooLarge:
		return "too_large"
	case statusCode >= http.StatusBadRequest:
		return "client_error"
	default:
		return "unknown"
	}
}

// RateLimitMiddleware rejects requests beyond the per-client allowance with
// 429 and a Retry-After header. A nil counter disables limiting. Clients are
// keyed by peer address; X-Forwarded-For is honoured only from trusted peers.
func RateLimitMiddleware(next http.HandlerFunc, counter ratelimit.Counter, clock clockwork.Clock, trusted []netip.Prefix) http.HandlerFunc {
	if counter == nil {
		return next
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ok, usage := counter.Allow(r.Context(), clientKey(r, trusted))
		if usage.Limit > 0 {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(usage.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(usage.Remaining))
		}
		if !ok {
			secs := int(math.Ceil(usage.RetryAfter(clock.Now()).Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			metrics.RecordRateLimited()
			status, code, msg, _ := classify(ErrRateLimited)
			writeJSON(w, status, errorResponse{Code: code, Message: msg})
			return
		}
		next.ServeHTTP(w, r)
	}
}

// clientKey identifies the caller by its connection peer. When the peer is a
// trusted proxy, X-Forwarded-For is walked right to left and the first
// untrusted hop wins.
func clientKey(r *http.Request, trusted []netip.Prefix) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !isTrusted(peer, trusted) {
		return host
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	key := host
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		addr, err := netip.ParseAddr(hop)
		if err != nil {
			break
		}
		key = addr.String()
		if !isTrusted(addr, trusted) {
			break
		}
	}
	return key
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// Unwrap lets http.ResponseController reach the connection.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("failed to write response: %w", err)
	}
	return n, nil
}
