package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"vortex.app/relay/common/id"
	"vortex.app/relay/common/llm"
	"vortex.app/relay/common/logger"
	"vortex.app/relay/common/otel"
	"vortex.app/relay/core/config"
	"vortex.app/relay/core/db"
	"vortex.app/relay/internal/blob"
	"vortex.app/relay/internal/credential"
	"vortex.app/relay/internal/mail"
	"vortex.app/relay/internal/pipeline"
	"vortex.app/relay/internal/queue"
	"vortex.app/relay/internal/secrets"
	"vortex.app/relay/internal/sourcecontrol"
	"vortex.app/relay/internal/store"
	"vortex.app/relay/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "relay worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Pipeline.RedisGroup,
		"consumer_name", cfg.Pipeline.RedisConsumer)

	// Initialize snowflake ID generator (use different node ID than server)
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
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

	stores := store.NewStores(database.Querier())

	stages, err := buildStages(ctx, cfg, database, stores)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build pipeline stages", "error", err)
		os.Exit(1)
	}

	dispatcher, err := pipeline.NewRouter(pipeline.SourcesFrom(cfg.Pipeline), stages)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build route table", "error", err)
		os.Exit(1)
	}

	producer := queue.NewRedisProducer(redisClient, cfg.Pipeline.RedisStream, slog.Default())
	defer producer.Close()

	consumer, err := queue.NewRedisConsumer(ctx, redisClient, queue.ConsumerConfig{
		Stream:       cfg.Pipeline.RedisStream,
		Group:        cfg.Pipeline.RedisGroup,
		Consumer:     cfg.Pipeline.RedisConsumer,
		DLQStream:    cfg.Pipeline.RedisDLQStream,
		BatchSize:    1,
		Block:        5 * time.Second,
		RequeueDelay: time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	w := worker.New(consumer, dispatcher, producer, worker.Config{
		MaxAttempts: cfg.Pipeline.MaxAttempts,
	})

	reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
		Stream:    cfg.Pipeline.RedisStream,
		Group:     cfg.Pipeline.RedisGroup,
		Consumer:  cfg.Pipeline.RedisConsumer + "-reclaimer",
		MinIdle:   5 * time.Minute,
		Interval:  1 * time.Minute,
		BatchSize: 10,
	}, consumer, w.ProcessMessage)

	sweeper := worker.NewSweeper(stores.KV(), 10*time.Minute)

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(ctx)
	}()
	go reclaimer.Run(ctx)
	go sweeper.Run(ctx)

	slog.InfoContext(ctx, "worker initialized and running", "routes", len(dispatcher.Routes()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop the background loops first (quick)
	reclaimer.Stop()
	sweeper.Stop()

	// Stop worker (may be processing)
	w.Stop()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	for route, s := range dispatcher.Stats().Snapshot() {
		slog.InfoContext(ctx, "route totals", "route", route, "succeeded", s.Succeeded, "failed", s.Failed, "emitted", s.Emitted)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

// buildStages wires every stage to its collaborators. Missing or malformed
// secrets fail here, before the worker reads its first message.
func buildStages(ctx context.Context, cfg config.Config, database *db.DB, stores *store.Stores) (pipeline.Stages, error) {
	secretStore := secrets.NewProvider(cfg.Secrets.Dir)
	creds, err := secrets.LoadAppCredentials(ctx, secretStore, cfg.GitHub.AppCredentialsSecret)
	if err != nil {
		return pipeline.Stages{}, err
	}

	issuerOpts := []credential.IssuerOption{credential.WithUserAgent(cfg.GitHub.UserAgent)}
	if cfg.GitHub.APIBaseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(cfg.GitHub.APIBaseURL, "/") + "/")
		if err != nil {
			return pipeline.Stages{}, fmt.Errorf("parsing GITHUB_API_BASE_URL: %w", err)
		}
		issuerOpts = append(issuerOpts, credential.WithBaseURL(u))
	}
	issuer, err := credential.NewGitHubIssuer(creds, issuerOpts...)
	if err != nil {
		return pipeline.Stages{}, err
	}
	broker := credential.NewBroker(credential.NewTokenCache(), stores.InstallationTokens(), issuer,
		credential.WithTimeout(cfg.ExternalCallTimeout))

	github, err := sourcecontrol.NewGitHub(broker, cfg.GitHub.APIBaseURL, cfg.GitHub.UserAgent)
	if err != nil {
		return pipeline.Stages{}, err
	}

	var gitlabDiffs pipeline.GitLabDiffs
	if cfg.GitLab.Enabled() {
		gl, err := sourcecontrol.NewGitLab(cfg.GitLab.BaseURL, cfg.GitLab.Token)
		if err != nil {
			return pipeline.Stages{}, err
		}
		gitlabDiffs = gl
	}

	model, err := llm.NewClient(llm.Config{
		Provider:    cfg.LLM.Provider,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		return pipeline.Stages{}, err
	}

	blobs, err := blob.NewMinioStore(blob.Config{
		Endpoint:  cfg.Blob.Endpoint,
		AccessKey: cfg.Blob.AccessKey,
		SecretKey: cfg.Blob.SecretKey,
		Bucket:    cfg.Blob.Bucket,
		Region:    cfg.Blob.Region,
		UseSSL:    cfg.Blob.UseSSL,
	})
	if err != nil {
		return pipeline.Stages{}, err
	}
	if err := blob.EnsureBucket(ctx, blobs); err != nil {
		return pipeline.Stages{}, err
	}

	sender, err := mail.NewSMTPSender(mail.Config{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
	})
	if err != nil {
		return pipeline.Stages{}, err
	}

	timeout := cfg.ExternalCallTimeout
	return pipeline.Stages{
		Audit:     pipeline.NewRecorder(store.NewTxRunner(database)),
		DiffFetch: pipeline.NewDiffFetcher(github, gitlabDiffs, timeout),
		Analyze:   pipeline.NewAnalyzer(model, pipeline.DefaultPatchBudget, timeout),
		Report:    pipeline.NewReporter(stores.Profiles(), blobs, timeout),
		Deliver:   pipeline.NewDeliverer(blobs, sender, timeout),
	}, nil
}

const banner = `
 _   _  ___  ____ _____ _______  __   __        _____  ____  _  _______ ____
| | | |/ _ \|  _ \_   _| ____\ \/ /   \ \      / / _ \|  _ \| |/ / ____|  _ \
| | | | | | | |_) || | |  _|  \  /     \ \ /\ / / | | | |_) | ' /|  _| | |_) |
| |_| | |_| |  _ < | | | |___ /  \      \ V  V /| |_| |  _ <| . \| |___|  _ <
 \___/ \___/|_| \_\|_| |_____/_/\_\      \_/\_/  \___/|_| \_\_|\_\_____|_| \_\
`
