// AuraCode - session capture and replay server
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/ai"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/analytics"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/api"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/broadcast"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/config"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/metrics"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/middleware"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/playback"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/recorder"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/registry"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/sandbox"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/store"
)

func newLogger(level, file string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	if file != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     7, // days
			Compress:   true,
		})
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl}))
}

func openStore(ctx context.Context, cfg *config.Config) (*store.SQLStore, error) {
	if cfg.StoreDriver == config.DriverPostgres {
		return store.NewPostgres(ctx, cfg.DatabaseURL)
	}
	return store.NewSQLite(cfg.DBPath)
}

//nolint:gocyclo // Startup wiring is intentionally sequential to keep dependency setup explicit.
func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFile)
	slog.SetDefault(logger)
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.StoreDriver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage.
	repo, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	optional := map[string]api.Checker{}

	// Redis is optional: it shares the AI cache and relays broadcasts across instances.
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("Redis unreachable, falling back to in-process cache and broadcast", "addr", cfg.RedisAddr, "error", err)
			_ = rdb.Close()
			rdb = nil
		} else {
			defer rdb.Close()
			optional["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
			slog.Info("Redis connected", "addr", cfg.RedisAddr)
		}
	}

	// Core services.
	rec := recorder.New(repo, recorder.Options{
		QueueSize: cfg.RecorderQueueSize,
		Logger:    logger,
		Metrics:   m,
	})
	sessions := registry.New(repo, registry.WithMetrics(m))
	stats := analytics.NewService(repo)

	// Mentor service (optional).
	aiCfg := ai.DefaultConfig()
	aiCfg.RequestTimeout = cfg.AI.RequestTimeout
	aiCfg.CacheTTL = cfg.AI.CacheTTL
	aiCfg.CacheSize = cfg.AI.CacheSize

	var cache ai.Cache = ai.NewMemoryCache(aiCfg.CacheTTL, aiCfg.CacheSize)
	if rdb != nil {
		cache = ai.NewRedisCache(rdb, aiCfg.CacheTTL, logger)
	}

	var mentor ai.Mentor
	if cfg.AI.Addr != "" {
		aiCfg.Address = cfg.AI.Addr
		slog.Info("Connecting to mentor service via gRPC", "address", aiCfg.Address)
		client, err := ai.NewGrpcClient(aiCfg, logger)
		if err != nil {
			slog.Warn("Failed to connect to mentor service, hints will use fallbacks", "error", err)
		} else {
			defer client.Close()
			mentor = client
			optional["mentor"] = client.Health
		}
	} else {
		slog.Info("AI features limited (AI_SERVICE_ADDR not set): fallback hints only")
	}
	aiService := ai.NewService(mentor,
		ai.WithCache(cache),
		ai.WithRetryDelays(aiCfg.RetryDelays...),
		ai.WithLogger(logger),
	)

	// Sandbox (optional).
	var executor api.Executor
	if cfg.Sandbox.Enabled {
		runner, err := sandbox.NewDockerRunner(cfg.Sandbox.Image, cfg.Sandbox.Runtime)
		if err == nil {
			err = runner.Ping(ctx)
		}
		if err != nil {
			slog.Warn("Sandbox unavailable, code execution disabled", "error", err)
		} else {
			defer func() {
				if closeErr := runner.Close(); closeErr != nil {
					slog.Debug("Failed to close docker client", "error", closeErr)
				}
			}()
			executor = sandbox.NewExecutor(runner)
			optional["sandbox"] = runner.Ping
		}
	}

	// Problem broadcast.
	hub := broadcast.NewHub(logger)
	var publisher broadcast.Publisher = hub
	if rdb != nil {
		relay := broadcast.NewRedisRelay(rdb, hub, logger)
		go relay.Run(ctx)
		publisher = relay
	}

	handler := api.NewHandler(api.Deps{
		Store:            repo,
		Registry:         sessions,
		Recorder:         rec,
		Analytics:        stats,
		AI:               aiService,
		Sandbox:          executor,
		Hub:              hub,
		Publisher:        publisher,
		Player:           playback.NewPlayer(cfg.PlaybackMaxGap),
		DashboardRefresh: cfg.DashboardRefresh,
		SandboxLimit:     cfg.Sandbox.TimeLimit,
		MaxRequestBody:   cfg.MaxRequestBody,
		AllowedOrigins:   cfg.AllowedOrigins(),
		IsDev:            cfg.IsDevelopment(),
	})
	healthHandler := api.NewHealthHandler(repo, 5*time.Second, optional)

	var tokenAuth *jwtauth.JWTAuth
	if cfg.JWTSecret != "" {
		tokenAuth = middleware.NewTokenAuth(cfg.JWTSecret)
	} else {
		slog.Warn("JWT_SECRET not set, admin routes disabled")
	}

	// Setup router.
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(middleware.Metrics(m))

	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	handler.RegisterRoutes(r, tokenAuth)

	// Note: SSE and WebSocket connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	sessions.StartIdleSweeper(ctx, cfg.SessionIdleTimeout, func(sessionID string) {
		rec.End(sessionID)
		handler.Streams().Close(sessionID, "session abandoned")
	})

	go func() {
		slog.Info("Server listening", "addr", srv.Addr, "origins", strings.Join(cfg.AllowedOrigins(), ","))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	if err := rec.Close(shutdownCtx); err != nil {
		slog.Error("Recorder did not drain before shutdown", "error", err, "stats", rec.Stats())
	} else {
		slog.Info("Recorder drained", "stats", rec.Stats())
	}

	slog.Info("Server stopped successfully")
}
