package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-tenant-push-service/pushservice/config"
)

func TestNewConfigFromYaml(t *testing.T) {
	logger := newTestLogger()

	t.Run("Success - maps all fields correctly", func(t *testing.T) {
		yamlCfg := &config.YamlConfig{
			ProjectID:              "yaml-project",
			ListenAddr:             ":9000",
			TopicID:                "yaml-topic",
			SubscriptionID:         "yaml-subscription",
			SubscriptionDLQTopicID: "yaml-dlq",
			NumPipelineWorkers:     5,
			CorsConfig: config.YamlCorsConfig{
				AllowedOrigins: []string{"http://yaml.com"},
				Role:           "editor",
			},
			RedisConfig:       config.YamlRedisConfig{Addr: "redis:6379", Enabled: true, TTLSeconds: 60},
			StorageConfig:     config.YamlStorageConfig{Backend: "memory", PostgresDSN: "postgres://x"},
			CredentialsConfig: config.YamlCredentialsConfig{Backend: "s3", Root: "/creds", S3: config.YamlS3Config{Bucket: "b", Prefix: "p"}},
			DispatchConfig:    config.YamlDispatchConfig{Workers: 8, RecipientTimeoutMS: 250},
			APNSConfig:        config.YamlAPNSConfig{Production: true},
			HuaweiConfig:      config.YamlHuaweiConfig{TokenURL: "http://t", PushURL: "http://p"},
		}

		cfg, err := config.NewConfigFromYaml(yamlCfg, logger)

		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "yaml-project", cfg.ProjectID)
		assert.Equal(t, ":9000", cfg.ListenAddr)
		assert.Equal(t, "yaml-topic", cfg.TopicID)
		assert.Equal(t, "yaml-subscription", cfg.SubscriptionID)
		assert.Equal(t, "yaml-dlq", cfg.SubscriptionDLQTopicID)
		assert.Equal(t, 5, cfg.NumPipelineWorkers)

		assert.Equal(t, []string{"http://yaml.com"}, cfg.CorsConfig.AllowedOrigins)
		assert.Equal(t, middleware.CorsRoleEditor, cfg.CorsConfig.Role)

		assert.Equal(t, 60*time.Second, cfg.Redis.TTL)
		assert.Equal(t, config.StorageMemory, cfg.Storage.Backend)
		assert.Equal(t, "/creds", cfg.Credentials.Root)
		assert.Equal(t, "postgres://x", cfg.Storage.PostgresDSN)
		assert.Equal(t, config.CredentialsS3, cfg.Credentials.Backend)
		assert.Equal(t, "b", cfg.Credentials.S3.Bucket)
		assert.Equal(t, "p", cfg.Credentials.S3.Prefix)
		assert.Equal(t, 8, cfg.Dispatch.Workers)
		assert.Equal(t, 250*time.Millisecond, cfg.Dispatch.RecipientTimeout)
		assert.True(t, cfg.APNS.Production)
		assert.Equal(t, "http://t", cfg.Huawei.TokenURL)
		assert.Equal(t, "http://p", cfg.Huawei.PushURL)

		assert.NotNil(t, cfg.PubsubConsumerConfig)
	})

	t.Run("Success - Handles missing optional fields gracefully", func(t *testing.T) {
		yamlCfg := &config.YamlConfig{
			ProjectID: "minimal-project",
		}

		cfg, err := config.NewConfigFromYaml(yamlCfg, logger)

		require.NoError(t, err)
		assert.Equal(t, "minimal-project", cfg.ProjectID)
		assert.Equal(t, 0, cfg.NumPipelineWorkers)
		assert.Empty(t, cfg.ListenAddr)
		assert.Nil(t, cfg.PubsubConsumerConfig)
	})

	t.Run("Success - decodes yaml document", func(t *testing.T) {
		raw := []byte(`
project_id: doc-project
storage:
  backend: memory
dispatch:
  workers: 3
  recipient_timeout_ms: 500
huawei:
  push_url: http://push.local
`)
		var yamlCfg config.YamlConfig
		require.NoError(t, yaml.Unmarshal(raw, &yamlCfg))

		cfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
		require.NoError(t, err)
		assert.Equal(t, config.StorageMemory, cfg.Storage.Backend)
		assert.Equal(t, 3, cfg.Dispatch.Workers)
		assert.Equal(t, 500*time.Millisecond, cfg.Dispatch.RecipientTimeout)
		assert.Equal(t, "http://push.local", cfg.Huawei.PushURL)
	})
}
