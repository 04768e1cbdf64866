package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/lime-go/internal/core/domain"
	"github.com/yndnr/lime-go/internal/server/httpbridge"
	"github.com/yndnr/lime-go/internal/telemetry/logger"
	"github.com/yndnr/lime-go/internal/telemetry/metric"
	"github.com/yndnr/lime-go/pkg/cmap"
	"github.com/yndnr/lime-go/pkg/token"
)

// Context keys for request-scoped values.
type contextKey string

const (
	// ContextKeyPrincipal is the context key for the authenticated principal.
	ContextKeyPrincipal contextKey = "principal"

	// ContextKeyStartTime is the context key for request start time.
	ContextKeyStartTime contextKey = "start_time"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

// Middleware wraps an http.Handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// Chain chains multiple middlewares together. The first middleware runs
// first.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RequestID adds a unique request ID to each request.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(HeaderRequestID)
			if requestID == "" {
				if id, err := token.Generate(16); err == nil {
					requestID = "req-" + id
				} else {
					requestID = "req-" + domain.NewID()
				}
			}

			w.Header().Set(HeaderRequestID, requestID)

			ctx := logger.WithRequestID(r.Context(), requestID)
			ctx = context.WithValue(ctx, ContextKeyStartTime, time.Now())

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authenticate resolves the principal of each request. Rejected requests
// get a 401 with the resolver's challenges.
func Authenticate(resolver *PrincipalResolver, metrics *metric.Registry, log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := resolver.Resolve(r)
			if err != nil {
				scheme := "none"
				if auth := r.Header.Get("Authorization"); auth != "" {
					scheme = strings.ToLower(strings.SplitN(auth, " ", 2)[0])
				}
				if metrics != nil {
					metrics.RecordAuthFailure(scheme)
				}
				log.Debug("request authentication failed",
					"request_id", logger.RequestIDFromContext(r.Context()),
					"client_ip", getClientIP(r),
					"error", err,
				)
				for _, c := range resolver.Challenges("lime") {
					w.Header().Add("WWW-Authenticate", c)
				}
				writeError(w, http.StatusUnauthorized, domain.GetErrorCode(err), "authentication required")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyPrincipal, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext returns the principal stored by Authenticate.
func PrincipalFromContext(ctx context.Context) (httpbridge.Principal, bool) {
	p, ok := ctx.Value(ContextKeyPrincipal).(httpbridge.Principal)
	return p, ok
}

// RateLimiter limits requests per client IP with token buckets.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	idle    time.Duration
	clients *cmap.Map[*clientLimiter]

	lastPrune atomic.Int64
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// NewRateLimiter allows requestsPerSecond per client with the given burst
// (default: requestsPerSecond). Clients idle for 10 minutes are forgotten.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	l := &RateLimiter{
		limit:   rate.Limit(requestsPerSecond),
		burst:   burst,
		idle:    10 * time.Minute,
		clients: cmap.New[*clientLimiter](),
	}
	l.lastPrune.Store(time.Now().UnixNano())
	return l
}

// Allow reports whether a request from ip may proceed at now.
func (l *RateLimiter) Allow(ip string, now time.Time) bool {
	c, _, _ := l.clients.GetOrCompute(ip, func() (*clientLimiter, error) {
		return &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}, nil
	})
	c.lastSeen.Store(now.UnixNano())

	if last := l.lastPrune.Load(); now.UnixNano()-last > int64(time.Minute) && l.lastPrune.CompareAndSwap(last, now.UnixNano()) {
		l.Prune(now)
	}
	return c.limiter.AllowN(now, 1)
}

// Prune forgets the clients idle at now and returns how many were removed.
func (l *RateLimiter) Prune(now time.Time) int {
	cutoff := now.Add(-l.idle).UnixNano()
	removed := 0
	for _, ip := range l.clients.Keys() {
		if _, ok := l.clients.RemoveIf(ip, func(c *clientLimiter) bool { return c.lastSeen.Load() < cutoff }); ok {
			removed++
		}
	}
	return removed
}

// Middleware returns the rate limiting middleware.
func (l *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(getClientIP(r), time.Now()) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "LM-SYS-4290", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Audit logs every completed request.
func Audit(log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			startTime, ok := r.Context().Value(ContextKeyStartTime).(time.Time)
			if !ok {
				startTime = time.Now()
			}
			attrs := []any{
				"request_id", logger.RequestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", time.Since(startTime).Milliseconds(),
				"client_ip", getClientIP(r),
			}
			if p, ok := PrincipalFromContext(r.Context()); ok {
				attrs = append(attrs, "principal", p.Identity.String(), "scheme", string(p.Scheme))
			}

			switch {
			case wrapped.statusCode >= 500:
				log.Error("request completed with error", attrs...)
			case wrapped.statusCode >= 400:
				log.Warn("request completed with client error", attrs...)
			default:
				log.Info("request completed", attrs...)
			}
		})
	}
}

// Recover recovers from panics and returns 500 error.
func Recover(log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("panic recovered",
						"request_id", logger.RequestIDFromContext(r.Context()),
						"error", err,
						"path", r.URL.Path,
					)
					writeError(w, http.StatusInternalServerError, "LM-SYS-5000", "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// NetworkACL restricts access to the clients matching allowList entries
// (IPs or CIDRs). An empty list allows everyone.
func NetworkACL(allowList []string, log *slog.Logger) Middleware {
	prefixes := make([]netip.Prefix, 0, len(allowList))
	for _, entry := range allowList {
		prefix, err := parseAllowEntry(entry)
		if err != nil {
			log.Warn("invalid allowlist entry ignored", "entry", entry, "error", err)
			continue
		}
		prefixes = append(prefixes, prefix)
	}

	return func(next http.Handler) http.Handler {
		if len(prefixes) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := getClientIP(r)
			if addr, err := netip.ParseAddr(clientIP); err == nil {
				addr = addr.Unmap()
				for _, p := range prefixes {
					if p.Contains(addr) {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			log.Warn("request denied by network ACL", "client_ip", clientIP, "path", r.URL.Path)
			writeError(w, http.StatusForbidden, "LM-SYS-4030", "IP not in allowlist")
		})
	}
}

// parseAllowEntry turns an IP or CIDR into a prefix; a bare IP matches
// only itself.
func parseAllowEntry(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		p, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// CORS adds Cross-Origin Resource Sharing headers.
func CORS(allowedOrigins []string) Middleware {
	exposed := strings.Join([]string{
		httpbridge.HeaderSessionID, httpbridge.HeaderSessionExpiration, httpbridge.HeaderID,
		httpbridge.HeaderFrom, httpbridge.HeaderTo, httpbridge.HeaderPp,
		httpbridge.HeaderReasonCode, httpbridge.HeaderReasonDescription, HeaderRequestID,
	}, ", ")
	allowedHeaders := strings.Join([]string{
		"Content-Type", "Accept", "Authorization", HeaderRequestID, httpbridge.HeaderSession,
		httpbridge.HeaderID, httpbridge.HeaderFrom, httpbridge.HeaderTo, httpbridge.HeaderPp,
	}, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := len(allowedOrigins) == 0
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
				w.Header().Set("Access-Control-Expose-Headers", exposed)
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, code, message string) {
	if code == "" {
		code = "LM-SYS-" + strconv.Itoa(status) + "0"
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    code,
		"message": message,
	})
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	// SplitHostPort handles bracketed IPv6 addresses.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
