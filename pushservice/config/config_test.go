package config_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-tenant-push-service/pushservice/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUpdateConfigWithEnvOverrides(t *testing.T) {
	logger := newTestLogger()

	baseConfig := func() *config.Config {
		return &config.Config{
			ProjectID:          "base-project",
			ListenAddr:         ":8080",
			SubscriptionID:     "base-sub",
			NumPipelineWorkers: 2,
			Storage:            config.StorageConfig{Backend: config.StorageFirestore},
			Dispatch:           config.DispatchConfig{Workers: 4, RecipientTimeout: 2 * time.Second},
		}
	}

	t.Run("Success - All overrides applied", func(t *testing.T) {
		cfg := baseConfig()

		t.Setenv("PROJECT_ID", "env-project")
		t.Setenv("PORT", "9090")
		t.Setenv("SUBSCRIPTION_ID", "env-sub")
		t.Setenv("TOPIC_ID", "env-topic")
		t.Setenv("STORAGE_BACKEND", "MEMORY")
		t.Setenv("CREDENTIALS_ROOT", "/var/creds")
		t.Setenv("DISPATCH_WORKERS", "32")
		t.Setenv("DISPATCH_RECIPIENT_TIMEOUT_MS", "1500")
		t.Setenv("APNS_PRODUCTION", "true")
		t.Setenv("HUAWEI_TOKEN_URL", "http://hms.local/token")
		t.Setenv("HUAWEI_PUSH_URL", "http://hms.local/push")
		t.Setenv("REDIS_ADDR", "localhost:6379")
		t.Setenv("REDIS_DB", "3")
		t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.com, http://b.com ,")
		t.Setenv("IDENTITY_SERVICE_URL", "http://identity.local")

		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, "env-project", finalCfg.ProjectID)
		assert.Equal(t, ":9090", finalCfg.ListenAddr)
		assert.Equal(t, "env-sub", finalCfg.SubscriptionID)
		assert.Equal(t, "env-sub", finalCfg.PubsubConsumerConfig.SubscriptionID)
		assert.Equal(t, "env-topic", finalCfg.TopicID)
		assert.Equal(t, config.StorageMemory, finalCfg.Storage.Backend)
		assert.Equal(t, "/var/creds", finalCfg.Credentials.Root)
		assert.Equal(t, 32, finalCfg.Dispatch.Workers)
		assert.Equal(t, 1500*time.Millisecond, finalCfg.Dispatch.RecipientTimeout)
		assert.True(t, finalCfg.APNS.Production)
		assert.Equal(t, "http://hms.local/token", finalCfg.Huawei.TokenURL)
		assert.Equal(t, "http://hms.local/push", finalCfg.Huawei.PushURL)
		assert.True(t, finalCfg.Redis.Enabled)
		assert.Equal(t, "localhost:6379", finalCfg.Redis.Addr)
		assert.Equal(t, 3, finalCfg.Redis.DB)
		assert.Equal(t, []string{"http://a.com", "http://b.com"}, finalCfg.CorsConfig.AllowedOrigins)
		assert.Equal(t, "http://identity.local", finalCfg.IdentityServiceURL)
	})

	t.Run("Success - Defaults preserved", func(t *testing.T) {
		cfg := baseConfig()
		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, "base-project", finalCfg.ProjectID)
		assert.Equal(t, 4, finalCfg.Dispatch.Workers)
		assert.Equal(t, 2*time.Second, finalCfg.Dispatch.RecipientTimeout)
	})

	t.Run("Success - Fills defaults", func(t *testing.T) {
		cfg := &config.Config{ProjectID: "p"}
		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, ":8080", finalCfg.ListenAddr)
		assert.Equal(t, config.StorageFirestore, finalCfg.Storage.Backend)
		assert.Equal(t, 16, finalCfg.Dispatch.Workers)
		assert.Equal(t, 10*time.Second, finalCfg.Dispatch.RecipientTimeout)
		assert.Equal(t, "docs", finalCfg.Credentials.Root)
		assert.Equal(t, config.CredentialsFile, finalCfg.Credentials.Backend)
		assert.Equal(t, 1, finalCfg.NumPipelineWorkers)
		assert.False(t, finalCfg.PipelineEnabled())
		assert.Nil(t, finalCfg.PubsubConsumerConfig)
	})

	t.Run("Success - Memory backend without subscription needs no project", func(t *testing.T) {
		t.Setenv("PROJECT_ID", "")
		cfg := &config.Config{Storage: config.StorageConfig{Backend: config.StorageMemory}}
		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)
		assert.Empty(t, finalCfg.ProjectID)
	})

	t.Run("Validation Failure - Missing ProjectID", func(t *testing.T) {
		t.Setenv("PROJECT_ID", "")
		cfg := &config.Config{SubscriptionID: "sub"}
		_, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		assert.Error(t, err)
	})

	t.Run("Validation Failure - Memory backend with subscription needs project", func(t *testing.T) {
		t.Setenv("PROJECT_ID", "")
		cfg := &config.Config{SubscriptionID: "sub", Storage: config.StorageConfig{Backend: config.StorageMemory}}
		_, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		assert.Error(t, err)
	})

	t.Run("Success - Postgres and S3 backends", func(t *testing.T) {
		t.Setenv("STORAGE_BACKEND", "postgres")
		t.Setenv("DATABASE_URL", "postgres://localhost/push")
		t.Setenv("CREDENTIALS_BACKEND", "s3")
		t.Setenv("CREDENTIALS_S3_BUCKET", "push-creds")
		t.Setenv("CREDENTIALS_S3_ENDPOINT", "http://minio:9000")

		finalCfg, err := config.UpdateConfigWithEnvOverrides(baseConfig(), logger)
		require.NoError(t, err)

		assert.Equal(t, config.StoragePostgres, finalCfg.Storage.Backend)
		assert.Equal(t, "postgres://localhost/push", finalCfg.Storage.PostgresDSN)
		assert.Equal(t, config.CredentialsS3, finalCfg.Credentials.Backend)
		assert.Equal(t, "push-creds", finalCfg.Credentials.S3.Bucket)
		assert.Equal(t, "http://minio:9000", finalCfg.Credentials.S3.Endpoint)
	})

	t.Run("Validation Failure - Postgres without dsn", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		cfg := baseConfig()
		cfg.Storage.Backend = config.StoragePostgres
		_, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		assert.Error(t, err)
	})

	t.Run("Validation Failure - S3 without bucket", func(t *testing.T) {
		t.Setenv("CREDENTIALS_S3_BUCKET", "")
		cfg := baseConfig()
		cfg.Credentials.Backend = config.CredentialsS3
		_, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		assert.Error(t, err)
	})

	t.Run("Validation Failure - Unknown backend", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Storage.Backend = "postgres"
		_, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		assert.Error(t, err)
	})
}
