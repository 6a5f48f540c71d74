package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstore/internal/config"
	dbRedis "github.com/kailas-cloud/ragstore/internal/db/redis"
	"github.com/kailas-cloud/ragstore/internal/db/sqlite"
	logpkg "github.com/kailas-cloud/ragstore/internal/logger"
	"github.com/kailas-cloud/ragstore/internal/metrics"
	"github.com/kailas-cloud/ragstore/internal/provider"
	chiTransport "github.com/kailas-cloud/ragstore/internal/transport/chi"
	healthuc "github.com/kailas-cloud/ragstore/internal/usecase/health"
	pipelineuc "github.com/kailas-cloud/ragstore/internal/usecase/pipeline"
	searchuc "github.com/kailas-cloud/ragstore/internal/usecase/search"
	usageuc "github.com/kailas-cloud/ragstore/internal/usecase/usage"
	"github.com/kailas-cloud/ragstore/internal/vecindex"
	"github.com/kailas-cloud/ragstore/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragstore API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)

	metrics.Register(prometheus.DefaultRegisterer)
	ctx := context.Background()

	stores, err := sqlite.NewRegistry(cfg.Storage.DataDir,
		time.Duration(cfg.Storage.BusyTimeoutMS)*time.Millisecond, logger)
	if err != nil {
		logger.Fatal("Failed to open data directory", zap.Error(err))
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Error("Error closing collection stores", zap.Error(err))
		}
	}()

	var policy vecindex.EvictionPolicy
	if cfg.Index.Eviction == "lru" {
		policy = vecindex.LRU(cfg.Index.LRUSize)
	}
	index := vecindex.NewManager(cfg.Storage.DataDir, vecindex.NewCache(policy))

	var providerOpts []provider.Option
	healthOpts := []healthuc.Option{}
	if cfg.Cache.Enabled() {
		kv, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Username: cfg.Cache.Username,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer kv.Close()

		if err := kv.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Cache not ready", zap.Error(err))
		}
		logger.Info("Connected to embedding cache", zap.Strings("addrs", cfg.Cache.Addrs))
		providerOpts = append(providerOpts,
			provider.WithKV(kv, time.Duration(cfg.Cache.TTLHours)*time.Hour))
		healthOpts = append(healthOpts, healthuc.WithCache(kv))
	}

	embedders := provider.NewRegistry(cfg.Embedding, logger, providerOpts...)
	if _, err := embedders.Default(ctx); err != nil {
		logger.Fatal("Default embedding provider unavailable", zap.Error(err))
	}
	healthOpts = append(healthOpts, healthuc.WithEmbedding(embedders))

	pipelineSvc := pipelineuc.New(stores, index, embedders)
	searchSvc := searchuc.New(stores, index, embedders)
	usageSvc := usageuc.New(embedders)
	healthSvc := healthuc.New(stores, healthOpts...)

	server := chiTransport.NewServer(pipelineSvc, searchSvc, usageSvc, healthSvc, logger,
		chiTransport.WithVersion(version.Version),
		chiTransport.WithSearchDefaults(cfg.Search.DefaultTopK, cfg.Search.DefaultAlpha),
	)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.CodeInternalError,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits one log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.Int("response_bytes", ww.BytesWritten()),
			}
			if tokens := ww.Header().Get("X-Embedding-Tokens"); tokens != "" {
				fields = append(fields, zap.String("embedding_tokens", tokens))
			}
			reqLogger.Info("http_request", fields...)
		})
	}
}
