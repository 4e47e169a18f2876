package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohallaa/mohallaa/pkg/auth"
	"github.com/mohallaa/mohallaa/pkg/middleware"
	"github.com/mohallaa/mohallaa/pkg/remote"
	"github.com/mohallaa/mohallaa/pkg/search"
	"github.com/mohallaa/mohallaa/pkg/upload"
)

// DefaultBasePath prefixes every API route.
const DefaultBasePath = "/v1"

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config for the HTTP API handler.
type Config struct {
	// Remote stores the rows. Required.
	Remote remote.Remote

	// Verifier checks bearer tokens. Without it every write is rejected.
	Verifier *auth.Verifier

	// Uploads receives media; nil disables the upload route.
	Uploads      upload.Store
	UploadLimits *upload.Config

	// Search answers /search; defaults to the five standard sources over
	// Remote.
	Search *search.Aggregator

	// Metrics records HTTP metrics; Gatherer is exposed on /metrics.
	Metrics  *middleware.Metrics
	Gatherer prometheus.Gatherer

	Logger   *slog.Logger
	BasePath string
	Version  string
}

type handler struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New returns an HTTP handler exposing the API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = DefaultBasePath
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.UploadLimits == nil {
		cfg.UploadLimits = upload.DefaultConfig()
	}
	if cfg.Search == nil {
		cfg.Search = search.NewAggregator(search.DefaultSources(cfg.Remote), search.WithLogger(cfg.Logger))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{
		cfg:    cfg,
		logger: logger.With("component", "api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Tokens travel in the query string, not in cookies, so any
			// origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	huma.DefaultArrayNullable = false
	installErrorEnvelope()

	router := chi.NewRouter()
	router.Use(middleware.Recover(h.logger))
	router.Use(middleware.OpenTelemetry(middleware.WithRequestFilter(func(r *http.Request) bool {
		return r.URL.Path != "/metrics"
	})))
	router.Use(cfg.Metrics.Handler)
	if cfg.Verifier != nil {
		router.Use(auth.Middleware(cfg.Verifier))
	}

	hcfg := huma.DefaultConfig("Mohallaa API", cfg.Version)
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	h.registerHealth(group)
	h.registerRows(group)
	h.registerSearch(group)

	router.Get(basePath+"/collections/{collection}/changes", h.serveChanges)
	if cfg.Uploads != nil {
		router.With(auth.RequireAuth).
			Post(basePath+"/uploads", upload.HandlerWithConfig(cfg.Uploads, cfg.UploadLimits, h.logger).ServeHTTP)
	}
	if cfg.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	return router, nil
}

type healthBody struct {
	Status  string `json:"status" example:"ok"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

func (h *handler) registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body healthBody `json:"body"`
	}, error) {
		if p, ok := h.cfg.Remote.(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				h.logger.Error("health check failed", "error", err)
				return nil, newAPIError(http.StatusServiceUnavailable, remote.CodeUnavailable, "store unavailable", nil)
			}
		}
		return &struct {
			Body healthBody `json:"body"`
		}{Body: healthBody{
			Status:  "ok",
			Version: h.cfg.Version,
			Time:    time.Now().UTC().Format(time.RFC3339),
		}}, nil
	})
}

func requirePrincipal(ctx context.Context) (auth.Principal, error) {
	p, ok := auth.FromContext(ctx)
	if !ok {
		return auth.Principal{}, newAPIError(http.StatusUnauthorized, "", "Please sign in to continue", nil)
	}
	return p, nil
}
