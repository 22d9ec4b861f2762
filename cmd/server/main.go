package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"vortex.app/relay/common/id"
	"vortex.app/relay/common/logger"
	"vortex.app/relay/common/otel"
	"vortex.app/relay/core/config"
	"vortex.app/relay/core/db"
	"vortex.app/relay/internal/http/handler/webhook"
	"vortex.app/relay/internal/http/middleware"
	httprouter "vortex.app/relay/internal/http/router"
	"vortex.app/relay/internal/queue"
	"vortex.app/relay/internal/secrets"
	"vortex.app/relay/internal/service"
	"vortex.app/relay/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// Can't use slog yet — OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "relay server starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	if err := database.Migrate(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to apply migrations", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	eventProducer := queue.NewRedisProducer(redisClient, cfg.Pipeline.RedisStream, slog.Default())
	defer eventProducer.Close()

	secretStore := secrets.NewProvider(cfg.Secrets.Dir)
	stores := store.NewStores(database.Querier())
	services := service.NewServices(stores, eventProducer, cfg.Pipeline)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, services, secretStore)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, services *service.Services, secretStore secrets.Provider) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	routerCfg := httprouter.RouterConfig{
		TraceHeaderName: cfg.Pipeline.TraceHeaderName,
		GitHubSecret: webhook.NewMemoizedSecret(func(ctx context.Context) ([]byte, error) {
			return secrets.LoadWebhookSecret(ctx, secretStore, cfg.GitHub.WebhookSecretName)
		}),
	}
	if cfg.GitLab.Enabled() {
		routerCfg.GitLabToken = webhook.NewMemoizedSecret(func(ctx context.Context) ([]byte, error) {
			raw, err := secretStore.Get(ctx, cfg.GitLab.WebhookTokenName)
			if err != nil {
				return nil, err
			}
			return []byte(strings.TrimSpace(string(raw))), nil
		})
	}

	httprouter.SetupRoutes(router, services, routerCfg)

	return router
}

const banner = `
 _   _  ___  ____ _____ _______  __    ____  _____ ____  __     _______ ____
| | | |/ _ \|  _ \_   _| ____\ \/ /   / ___|| ____|  _ \ \ \   / / ____|  _ \
| | | | | | | |_) || | |  _|  \  /    \___ \|  _| | |_) | \ \ / /|  _| | |_) |
| |_| | |_| |  _ < | | | |___ /  \     ___) | |___|  _ <   \ V / | |___|  _ <
 \___/ \___/|_| \_\|_| |_____/_/\_\   |____/|_____|_| \_\   \_/  |_____|_| \_\
`
