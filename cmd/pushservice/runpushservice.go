package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-tenant-push-service/internal/credentials"
	"github.com/tinywideclouds/go-tenant-push-service/internal/dispatch"
	"github.com/tinywideclouds/go-tenant-push-service/internal/platform/apns"
	"github.com/tinywideclouds/go-tenant-push-service/internal/platform/fcm"
	"github.com/tinywideclouds/go-tenant-push-service/internal/platform/hms"
	"github.com/tinywideclouds/go-tenant-push-service/internal/registry"
	"github.com/tinywideclouds/go-tenant-push-service/internal/storage/cache"
	"github.com/tinywideclouds/go-tenant-push-service/internal/storage/credfile"
	fsStore "github.com/tinywideclouds/go-tenant-push-service/internal/storage/firestore"
	"github.com/tinywideclouds/go-tenant-push-service/internal/storage/memory"
	"github.com/tinywideclouds/go-tenant-push-service/internal/storage/postgres"
	"github.com/tinywideclouds/go-tenant-push-service/internal/storage/s3cred"
	"github.com/tinywideclouds/go-tenant-push-service/internal/tenants"
	"github.com/tinywideclouds/go-tenant-push-service/pkg/push"
	"github.com/tinywideclouds/go-tenant-push-service/pushservice"
	"github.com/tinywideclouds/go-tenant-push-service/pushservice/config"
)

//go:embed local.yaml
var configFile []byte

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-tenant-push-service")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, _ := config.NewConfigFromYaml(&yamlCfg, logger)
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Stores ---
	var tenantStore push.TenantStore
	var deviceStore push.DeviceStore
	switch cfg.Storage.Backend {
	case config.StorageMemory:
		store := memory.NewStore()
		tenantStore, deviceStore = store, store
		logger.Warn("Using in-memory stores, state is lost on restart")
	case config.StoragePostgres:
		db, err := postgres.Connect(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			logger.Error("Postgres connection failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		store := postgres.NewStore(db)
		if err := store.Migrate(ctx); err != nil {
			logger.Error("Postgres migration failed", "err", err)
			os.Exit(1)
		}
		tenantStore, deviceStore = store, store
	default:
		fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			logger.Error("Firestore client failed", "err", err)
			os.Exit(1)
		}
		defer fsClient.Close()
		store := fsStore.NewStore(fsClient)
		tenantStore, deviceStore = store, store
	}
	logger.Info("Stores initialized", "type", cfg.Storage.Backend)

	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(ctx, cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		tenantStore = cache.NewCachedTenantStore(tenantStore, redisClient, cfg.Redis.TTL, logger)
		logger.Info("TenantStore upgraded", "type", "redis_cached")
	}

	blobs, err := newCredentialBlobs(ctx, cfg)
	if err != nil {
		logger.Error("Credential blob store failed", "err", err)
		os.Exit(1)
	}
	logger.Info("Credential blobs initialized", "type", cfg.Credentials.Backend)

	// --- Provider Adapters ---
	adapters := dispatch.NewAdapters(
		apns.NewAdapter(blobs, apns.NewTokenClientFactory(cfg.APNS.Production), logger),
		fcm.NewAdapter(blobs, fcm.NewFirebaseClientFactory(), logger),
		hms.NewAdapter(blobs, hms.Config{TokenURL: cfg.Huawei.TokenURL, PushURL: cfg.Huawei.PushURL}, logger),
	)

	// --- Domain ---
	resolver := credentials.NewResolver(tenantStore, logger)
	devices := registry.New(deviceStore, logger)
	engine := dispatch.NewEngine(resolver, devices, adapters, dispatch.Config{
		Workers:          cfg.Dispatch.Workers,
		RecipientTimeout: cfg.Dispatch.RecipientTimeout,
	}, logger)
	tenantService := tenants.NewService(tenantStore, blobs, logger)

	// --- Auth ---
	identityURL := cfg.IdentityServiceURL
	if identityURL == "" {
		identityURL = "http://localhost:3000"
	}
	jwksURL, err := middleware.DiscoverAndValidateJWTConfig(identityURL, middleware.RSA256, logger)
	if err != nil {
		logger.Error("JWT config discovery failed", "identity_url", identityURL, "err", err)
		os.Exit(1)
	}
	authMiddleware, err := middleware.NewJWKSAuthMiddleware(jwksURL, logger)
	if err != nil {
		logger.Error("Auth middleware failed", "err", err)
		os.Exit(1)
	}

	// --- Consumer (optional) ---
	var consumer messagepipeline.MessageConsumer
	if cfg.PipelineEnabled() {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			logger.Error("PubSub client failed", "err", err)
			os.Exit(1)
		}
		defer psClient.Close()

		consumer, err = newIngestionConsumer(ctx, cfg, psClient, logger)
		if err != nil {
			logger.Error("Ingestion consumer failed", "err", err)
			os.Exit(1)
		}
	}

	service, err := pushservice.New(
		cfg,
		consumer,
		pushservice.Dependencies{
			Dispatcher:  engine,
			Devices:     devices,
			Tenants:     tenantService,
			Credentials: resolver,
		},
		authMiddleware,
		logger,
	)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = service.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting service...", "listen_addr", cfg.ListenAddr)
	if err := service.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}

// credentialBlobs stores blobs for onboarding and reads them back for adapters.
type credentialBlobs interface {
	tenants.BlobWriter
	push.CredentialReader
}

func newCredentialBlobs(ctx context.Context, cfg *config.Config) (credentialBlobs, error) {
	if cfg.Credentials.Backend == config.CredentialsS3 {
		s3cfg := cfg.Credentials.S3
		client, err := s3cred.NewClient(ctx, s3cred.ClientConfig{
			Region:          s3cfg.Region,
			Endpoint:        s3cfg.Endpoint,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return s3cred.NewStore(client, s3cfg.Bucket, s3cfg.Prefix), nil
	}
	return credfile.NewStore(afero.NewOsFs(), cfg.Credentials.Root), nil
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:                  sub,
		Topic:                 topicID,
		AckDeadlineSeconds:    10,
		EnableMessageOrdering: false,
	}
	if cfg.SubscriptionDLQTopicID != "" {
		subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics"),
			MaxDeliveryAttempts: 5,
		}
	}
	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub: %s", sub)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
