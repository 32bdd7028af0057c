package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/promptlab/internal/admin"
	"github.com/af-corp/promptlab/internal/config"
	"github.com/af-corp/promptlab/internal/gateway"
	"github.com/af-corp/promptlab/internal/registry"
	"github.com/af-corp/promptlab/internal/server"
	"github.com/af-corp/promptlab/internal/telemetry"
	"github.com/af-corp/promptlab/internal/usage"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/promptlab.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Telemetry)
	slog.SetDefault(logger)

	// Model registry
	store := registry.NewStore(cfg.Registry.Path, logger)
	reg, err := registry.New(store, logger)
	if err != nil {
		logger.Error("failed to load model registry", "path", cfg.Registry.Path, "error", err)
		os.Exit(1)
	}

	metrics := telemetry.NewMetrics()
	reg.OnReload(metrics.RecordRegistryReload)

	if cfg.Registry.Watch {
		stop, err := reg.Watch()
		if err != nil {
			logger.Warn("failed to start registry watcher", "error", err)
		} else {
			defer stop()
		}
	}

	// Usage ledger database is optional; the workshop runs without it.
	var dbPool *pgxpool.Pool
	if cfg.Database.Enabled() {
		dbPool, err = pgxpool.New(context.Background(), cfg.Database.DSN())
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()
		if err := dbPool.Ping(context.Background()); err != nil {
			logger.Warn("database not reachable (usage ledger disabled)", "error", err)
			dbPool = nil
		} else {
			logger.Info("database connected")
		}
	}

	// Redis spend tracking is optional too.
	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (spend tracking disabled)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	inference := gateway.NewClient(cfg.Inference)
	spend := usage.NewSpendTracker(rdb)
	ledger := usage.NewLedger(dbPool)

	apiHandler := server.NewHandler(reg, inference, spend, ledger, metrics, logger)
	adminHandler := admin.NewHandler(reg, ledger, logger)
	guard := admin.NewGuard(cfg.Admin.Password)
	if !guard.Configured() {
		logger.Warn("admin password not set, admin API disabled")
	}

	// Router setup
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/healthz", healthHandler)
	r.Get("/", apiHandler.Index)
	r.Mount("/api/v1", apiHandler.Routes())
	r.Mount("/admin/v1", adminHandler.Routes(guard))

	if cfg.Telemetry.MetricsPort > 0 {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("metrics listener starting", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics listener failed", "error", err)
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("promptlab starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("promptlab stopped")
}

func newLogger(cfg config.TelemetryConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func generateRequestID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}
