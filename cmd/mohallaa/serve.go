package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/mohallaa/mohallaa/internal/api"
	"github.com/mohallaa/mohallaa/internal/config"
	"github.com/mohallaa/mohallaa/internal/store"
	"github.com/mohallaa/mohallaa/pkg/auth"
	"github.com/mohallaa/mohallaa/pkg/middleware"
	"github.com/mohallaa/mohallaa/pkg/search"
	"github.com/mohallaa/mohallaa/pkg/upload"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		Long: `Run the HTTP API server over the SQLite store.

The database is migrated on start. Uploads go to the configured backend
(disk or s3) and unclaimed uploads are removed after upload.temp_expiry.

Examples:
  mohallaa serve
  mohallaa serve --addr=0.0.0.0:8080
  MOHALLAA_AUTH_SECRET=... mohallaa serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, newLogger(cfg))
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := store.Open(cfg.Store.Path, store.WithLogger(logger))
	if err != nil {
		return err
	}
	defer st.Close()

	uploads, err := newUploadStore(cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	agg := search.NewAggregator(search.DefaultSources(st),
		search.WithLimit(cfg.Search.Limit),
		search.WithSourceTimeout(cfg.Search.SourceTimeout),
		search.WithLogger(logger),
		search.WithMetrics(search.NewMetrics(search.MetricsConfig{Registry: reg})),
	)

	handler, err := api.New(api.Config{
		Remote:       st,
		Verifier:     auth.NewVerifier(cfg.Auth.Secret, auth.WithIssuer(cfg.Auth.Issuer)),
		Uploads:      uploads,
		UploadLimits: cfg.UploadLimits(),
		Search:       agg,
		Metrics:      middleware.NewMetrics(middleware.WithRegistry(reg)),
		Gatherer:     reg,
		Logger:       logger,
		Version:      version,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go sweepUploads(ctx, uploads, cfg.Upload.TempExpiry, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "store", cfg.Store.Path, "uploads", cfg.Upload.Backend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newUploadStore(cfg *config.Config) (upload.Store, error) {
	switch cfg.Upload.Backend {
	case "s3":
		client := upload.NewS3Client(cfg.S3Options())
		return upload.NewS3Store(client, cfg.Upload.S3.Bucket, cfg.Upload.S3.Prefix, cfg.Upload.MaxFileSize), nil
	default:
		return upload.NewDiskStore(cfg.Upload.Dir, cfg.Upload.MaxFileSize)
	}
}

// sweepUploads removes unclaimed uploads until ctx ends.
func sweepUploads(ctx context.Context, s upload.Store, maxAge time.Duration, logger *slog.Logger) {
	if maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(maxAge / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Cleanup(ctx, maxAge); err != nil {
				logger.Warn("upload cleanup failed", "error", err)
			}
		}
	}
}
