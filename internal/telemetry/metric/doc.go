// Package metric provides Prometheus metrics for lime-go.
//
// Registry owns a private prometheus.Registry with the Go and process
// collectors plus the session, envelope, routing and bridge metrics. The
// process-wide instance is returned by Global and exposed at /metrics.
package metric
