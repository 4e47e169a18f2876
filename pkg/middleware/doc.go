// Package middleware provides HTTP middleware for the Mohallaa API.
//
// This package includes:
//   - OpenTelemetry tracing middleware
//   - Prometheus metrics middleware
//   - Panic recovery with structured logging
//
// # OpenTelemetry Middleware
//
// OpenTelemetry starts a server span for every request, named after the
// matched chi route pattern:
//
//	r := chi.NewRouter()
//	r.Use(middleware.OpenTelemetry(
//	    middleware.WithTracerName("mohallaa"),
//	    middleware.WithRequestFilter(func(r *http.Request) bool {
//	        return r.URL.Path != "/v1/health"
//	    }),
//	))
//
// The tracer uses the global OpenTelemetry tracer provider. Configure it in
// main() before starting the server.
//
// # Prometheus Metrics
//
//	m := middleware.NewMetrics(middleware.WithRegistry(reg))
//	r.Use(m.Handler)
//	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// Metrics collected:
//   - mohallaa_http_requests_total: requests by route, method and status class
//   - mohallaa_http_request_duration_seconds: request latency by route
//   - mohallaa_change_streams: open change feed streams
//   - mohallaa_websocket_errors_total: change feed errors by type
package middleware
