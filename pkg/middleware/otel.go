package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name for the API.
const defaultTracerName = "mohallaa"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "mohallaa").
	TracerName string

	// Filter determines which requests to trace.
	// Return true to trace the request, false to skip.
	// If nil, all requests are traced.
	Filter func(r *http.Request) bool

	// AttributeExtractor extracts custom attributes from the request.
	AttributeExtractor func(r *http.Request) []attribute.KeyValue

	// TracerProvider overrides the global provider.
	TracerProvider trace.TracerProvider
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithRequestFilter sets a filter function for requests.
func WithRequestFilter(filter func(r *http.Request) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(r *http.Request) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// OpenTelemetry creates middleware that traces every request. The span is
// stored in the request context, so handlers and the stores they call can
// start child spans from it.
func OpenTelemetry(opts ...OTelOption) func(http.Handler) http.Handler {
	config := OTelConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(config.TracerName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.Filter != nil && !config.Filter(r) {
				next.ServeHTTP(w, r)
				return
			}

			attrs := []attribute.KeyValue{
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			}
			if config.AttributeExtractor != nil {
				attrs = append(attrs, config.AttributeExtractor(r)...)
			}

			ctx, span := tracer.Start(r.Context(), fmt.Sprintf("HTTP %s", r.Method),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			r = r.WithContext(ctx)
			next.ServeHTTP(rec, r)

			route := routePattern(r)
			span.SetName(fmt.Sprintf("%s %s", r.Method, route))
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.status_code", rec.status),
			)
			if rec.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			} else {
				span.SetStatus(codes.Ok, "")
			}
		})
	}
}

// Recover converts handler panics into 500 responses and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					logger.Error("handler panic",
						"path", r.URL.Path,
						"panic", v,
						"stack", string(debug.Stack()))
					trace.SpanFromContext(r.Context()).RecordError(fmt.Errorf("panic: %v", v))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
