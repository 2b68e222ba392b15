package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/oriys/whisk/internal/activation"
	"github.com/oriys/whisk/internal/api"
	"github.com/oriys/whisk/internal/auth"
	"github.com/oriys/whisk/internal/blobstore"
	"github.com/oriys/whisk/internal/broker"
	"github.com/oriys/whisk/internal/config"
	"github.com/oriys/whisk/internal/invoker"
	"github.com/oriys/whisk/internal/logging"
	"github.com/oriys/whisk/internal/metrics"
	"github.com/oriys/whisk/internal/observability"
	"github.com/oriys/whisk/internal/orchestrator"
	"github.com/oriys/whisk/internal/store"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		cacheTTL   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control plane HTTP API",
		Long:  "Run the Whisk control plane: connect to Postgres, Redis, and the blob store, start the invoker registry, and serve the OpenWhisk-compatible HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configPath != "" {
				loaded, err := config.LoadFromFile(configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = loaded
			}
			config.LoadFromEnv(cfg)

			logging.SetLevelFromString(cfg.Observability.Logging.Level)
			logging.InitStructured(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if err := observability.Init(ctx, observability.Config{
				Enabled:     cfg.Observability.Tracing.Enabled,
				Exporter:    cfg.Observability.Tracing.Exporter,
				Endpoint:    cfg.Observability.Tracing.Endpoint,
				ServiceName: cfg.Observability.Tracing.ServiceName,
				SampleRate:  cfg.Observability.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(context.Background())

			if cfg.Observability.Metrics.Enabled {
				metrics.InitPrometheus(cfg.Observability.Metrics.Namespace, cfg.Observability.Metrics.HistogramBuckets)
			}

			pg, err := store.NewPostgresStore(ctx, cfg.Postgres.DSN)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pg.Close()

			var metadataStore store.MetadataStore = pg
			if cacheTTL > 0 {
				metadataStore = store.NewCachedMetadataStore(pg, cacheTTL)
			}

			redisClient := redis.NewClient(&redis.Options{
				Addr:     cfg.Broker.Addr,
				Password: cfg.Broker.Password,
				DB:       cfg.Broker.DB,
			})
			mqBroker, err := broker.NewRedisBroker(ctx, redisClient)
			if err != nil {
				return fmt.Errorf("connect broker: %w", err)
			}

			blobClient, err := blobstore.NewS3Client(ctx, blobstore.S3Config{
				Endpoint:     cfg.Blob.Endpoint,
				AccessKey:    cfg.Blob.AccessKey,
				SecretKey:    cfg.Blob.SecretKey,
				Region:       cfg.Blob.Region,
				Bucket:       cfg.Blob.Bucket,
				UsePathStyle: cfg.Blob.UsePathStyle,
				MaxRetries:   cfg.Blob.MaxRetries,
			})
			if err != nil {
				return fmt.Errorf("connect blob store: %w", err)
			}

			registry := invoker.NewRegistry(mqBroker)
			registry.Start(ctx)
			defer registry.Stop()

			scheduler := invoker.NewScheduler(registry)
			activationMgr := activation.NewManager(metadataStore, mqBroker)
			orch := orchestrator.New(metadataStore, blobClient, mqBroker, activationMgr, scheduler, cfg.Blob.Bucket)

			handler := api.New(metadataStore, blobClient, orch, cfg.Blob.Bucket)
			mux := http.NewServeMux()
			handler.RegisterRoutes(mux)
			mux.Handle("GET /metrics", metrics.PrometheusHandler())
			mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			var httpHandler http.Handler = mux
			if cfg.Auth.Enabled {
				authenticators := []auth.Authenticator{auth.NewBasicAuthAuthenticator(metadataStore)}
				if cfg.Auth.JWT.Enabled {
					jwtAuth, err := auth.NewJWTAuthenticator(auth.JWTAuthConfig{
						Algorithm:     cfg.Auth.JWT.Algorithm,
						Secret:        cfg.Auth.JWT.Secret,
						PublicKeyFile: cfg.Auth.JWT.PublicKeyFile,
						Issuer:        cfg.Auth.JWT.Issuer,
					})
					if err != nil {
						return fmt.Errorf("init jwt authenticator: %w", err)
					}
					authenticators = append(authenticators, jwtAuth)
				}
				httpHandler = auth.Middleware(authenticators, cfg.Auth.PublicPaths)(httpHandler)
			}
			httpHandler = observability.HTTPMiddleware(httpHandler)

			httpServer := &http.Server{
				Addr:    cfg.Daemon.HTTPAddr,
				Handler: httpHandler,
			}

			errCh := make(chan error, 1)
			go func() {
				logging.Op().Info("controller started", "addr", cfg.Daemon.HTTPAddr)
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				logging.Op().Info("shutdown signal received", "signal", sig.String())
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutdown controller: %w", err)
				}
				return nil
			case err := <-errCh:
				return fmt.Errorf("controller server error: %w", err)
			}
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to JSON or YAML config file, format chosen by extension (defaults applied, then WHISK_* env overrides)")
	cmd.Flags().DurationVar(&cacheTTL, "cache-ttl", store.DefaultCacheTTL, "TTL for the cached metadata store's hot-path reads; 0 disables caching")

	return cmd
}
