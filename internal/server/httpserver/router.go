package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/yndnr/lime-go/internal/infra/buildinfo"
	"github.com/yndnr/lime-go/internal/telemetry/metric"
)

// NewRouter builds the handler tree for s:
//
//	GET /health   liveness and build information
//	GET /metrics  Prometheus exposition, behind the metrics allowlist
//	/             everything else goes to the session bridge
func NewRouter(s *Server) http.Handler {
	cfg := s.cfg
	log := s.logger

	base := []Middleware{Recover(log), RequestID()}
	if len(cfg.CORSAllowedOrigins) > 0 {
		base = append(base, CORS(cfg.CORSAllowedOrigins))
	}

	mux := http.NewServeMux()

	started := time.Now()
	mux.Handle("GET /health", Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := buildinfo.Get()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":         "ok",
			"version":        info.Version,
			"uptime_seconds": int64(time.Since(started).Seconds()),
		})
	}), base...))

	var metricsHandler http.Handler
	if cfg.Metrics != nil {
		metricsHandler = cfg.Metrics.Handler()
	} else {
		metricsHandler = metric.Handler()
	}
	mux.Handle("GET /metrics", Chain(NetworkACL(cfg.MetricsAllowList, log)(metricsHandler), base...))

	bridge := append([]Middleware{}, base...)
	if cfg.RateLimit > 0 {
		bridge = append(bridge, NewRateLimiter(cfg.RateLimit, cfg.RateBurst).Middleware())
	}
	if cfg.EnableAudit {
		bridge = append(bridge, Audit(log))
	}
	if s.resolver != nil {
		bridge = append(bridge, Authenticate(s.resolver, cfg.Metrics, log))
	}
	mux.Handle("/", Chain(s, bridge...))

	return mux
}
