package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

const (
	defaultListenAddr       = ":8080"
	defaultDispatchWorkers  = 16
	defaultRecipientTimeout = 10 * time.Second
	defaultCredentialsRoot  = "docs"
	defaultRedisTTL         = 24 * time.Hour
)

type StorageBackend string

const (
	StorageFirestore StorageBackend = "firestore"
	StorageMemory    StorageBackend = "memory"
	StoragePostgres  StorageBackend = "postgres"
)

type CredentialsBackend string

const (
	CredentialsFile CredentialsBackend = "file"
	CredentialsS3   CredentialsBackend = "s3"
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type StorageConfig struct {
	Backend     StorageBackend
	PostgresDSN string
}

// CredentialsConfig locates the credential blobs: a directory for the file backend,
// a bucket for s3.
type CredentialsConfig struct {
	Backend CredentialsBackend
	Root    string
	S3      S3Config
}

type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type DispatchConfig struct {
	Workers          int
	RecipientTimeout time.Duration
}

type APNSConfig struct {
	Production bool
}

// HuaweiConfig holds the Push Kit endpoints. Empty values select the production endpoints.
type HuaweiConfig struct {
	TokenURL string
	PushURL  string
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	TopicID                string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int
	IdentityServiceURL     string

	CorsConfig  middleware.CorsConfig
	Redis       RedisConfig
	Storage     StorageConfig
	Credentials CredentialsConfig
	Dispatch    DispatchConfig
	APNS        APNSConfig
	Huawei      HuaweiConfig

	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// PipelineEnabled reports whether asynchronous dispatch from Pub/Sub is configured.
func (c *Config) PipelineEnabled() bool {
	return c.SubscriptionID != ""
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "TOPIC_ID", "source", "env")
		cfg.TopicID = val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}
	if val := os.Getenv("IDENTITY_SERVICE_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "IDENTITY_SERVICE_URL", "source", "env")
		cfg.IdentityServiceURL = val
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// Storage and credential files
	if val := os.Getenv("STORAGE_BACKEND"); val != "" {
		logger.Debug("Overriding config value", "key", "STORAGE_BACKEND", "source", "env")
		cfg.Storage.Backend = StorageBackend(strings.ToLower(val))
	}
	if val := os.Getenv("DATABASE_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "DATABASE_URL", "source", "env")
		cfg.Storage.PostgresDSN = val
	}
	if val := os.Getenv("CREDENTIALS_BACKEND"); val != "" {
		logger.Debug("Overriding config value", "key", "CREDENTIALS_BACKEND", "source", "env")
		cfg.Credentials.Backend = CredentialsBackend(strings.ToLower(val))
	}
	if val := os.Getenv("CREDENTIALS_ROOT"); val != "" {
		logger.Debug("Overriding config value", "key", "CREDENTIALS_ROOT", "source", "env")
		cfg.Credentials.Root = val
	}
	if val := os.Getenv("CREDENTIALS_S3_BUCKET"); val != "" {
		logger.Debug("Overriding config value", "key", "CREDENTIALS_S3_BUCKET", "source", "env")
		cfg.Credentials.S3.Bucket = val
	}
	if val := os.Getenv("CREDENTIALS_S3_ENDPOINT"); val != "" {
		logger.Debug("Overriding config value", "key", "CREDENTIALS_S3_ENDPOINT", "source", "env")
		cfg.Credentials.S3.Endpoint = val
	}
	if val := os.Getenv("AWS_ACCESS_KEY_ID"); val != "" {
		cfg.Credentials.S3.AccessKeyID = val
	}
	if val := os.Getenv("AWS_SECRET_ACCESS_KEY"); val != "" {
		cfg.Credentials.S3.SecretAccessKey = val
	}

	// Dispatch
	if val := os.Getenv("DISPATCH_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "DISPATCH_WORKERS", "source", "env")
			cfg.Dispatch.Workers = workers
		}
	}
	if val := os.Getenv("DISPATCH_RECIPIENT_TIMEOUT_MS"); val != "" {
		if ms, err := strconv.Atoi(val); err == nil && ms > 0 {
			logger.Debug("Overriding config value", "key", "DISPATCH_RECIPIENT_TIMEOUT_MS", "source", "env")
			cfg.Dispatch.RecipientTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	// Providers
	if val := os.Getenv("APNS_PRODUCTION"); val != "" {
		logger.Debug("Overriding config value", "key", "APNS_PRODUCTION", "source", "env")
		production, _ := strconv.ParseBool(val)
		cfg.APNS.Production = production
	}
	if val := os.Getenv("HUAWEI_TOKEN_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "HUAWEI_TOKEN_URL", "source", "env")
		cfg.Huawei.TokenURL = val
	}
	if val := os.Getenv("HUAWEI_PUSH_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "HUAWEI_PUSH_URL", "source", "env")
		cfg.Huawei.PushURL = val
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// 2. Final Validation
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageFirestore
	}
	switch cfg.Storage.Backend {
	case StorageFirestore, StorageMemory:
	case StoragePostgres:
		if cfg.Storage.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage requires a dsn (set via YAML or DATABASE_URL env var)")
		}
	default:
		return nil, fmt.Errorf("storage backend %q is not supported (firestore, postgres or memory)", cfg.Storage.Backend)
	}

	if cfg.Credentials.Backend == "" {
		cfg.Credentials.Backend = CredentialsFile
	}
	switch cfg.Credentials.Backend {
	case CredentialsFile:
	case CredentialsS3:
		if cfg.Credentials.S3.Bucket == "" {
			return nil, fmt.Errorf("s3 credentials backend requires a bucket (set via YAML or CREDENTIALS_S3_BUCKET env var)")
		}
	default:
		return nil, fmt.Errorf("credentials backend %q is not supported (file or s3)", cfg.Credentials.Backend)
	}

	needsProject := cfg.Storage.Backend == StorageFirestore || cfg.PipelineEnabled()
	if needsProject && cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.Dispatch.Workers <= 0 {
		cfg.Dispatch.Workers = defaultDispatchWorkers
	}
	if cfg.Dispatch.RecipientTimeout <= 0 {
		cfg.Dispatch.RecipientTimeout = defaultRecipientTimeout
	}
	if cfg.Credentials.Root == "" {
		cfg.Credentials.Root = defaultCredentialsRoot
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = defaultRedisTTL
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
