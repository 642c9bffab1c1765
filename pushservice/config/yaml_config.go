package config

import (
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	Enabled    bool   `yaml:"enabled"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

type YamlStorageConfig struct {
	Backend     string `yaml:"backend"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type YamlS3Config struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

type YamlCredentialsConfig struct {
	Backend string       `yaml:"backend"`
	Root    string       `yaml:"root"`
	S3      YamlS3Config `yaml:"s3"`
}

type YamlDispatchConfig struct {
	Workers            int `yaml:"workers"`
	RecipientTimeoutMS int `yaml:"recipient_timeout_ms"`
}

type YamlAPNSConfig struct {
	Production bool `yaml:"production"`
}

type YamlHuaweiConfig struct {
	TokenURL string `yaml:"token_url"`
	PushURL  string `yaml:"push_url"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string                `yaml:"project_id"`
	ListenAddr             string                `yaml:"listen_addr"`
	TopicID                string                `yaml:"topic_id"`
	SubscriptionID         string                `yaml:"subscription_id"`
	SubscriptionDLQTopicID string                `yaml:"subscription_dlq_topic_id"`
	NumPipelineWorkers     int                   `yaml:"num_pipeline_workers"`
	IdentityServiceURL     string                `yaml:"identity_service_url"`
	CorsConfig             YamlCorsConfig        `yaml:"cors"`
	RedisConfig            YamlRedisConfig       `yaml:"redis"`
	StorageConfig          YamlStorageConfig     `yaml:"storage"`
	CredentialsConfig      YamlCredentialsConfig `yaml:"credentials"`
	DispatchConfig         YamlDispatchConfig    `yaml:"dispatch"`
	APNSConfig             YamlAPNSConfig        `yaml:"apns"`
	HuaweiConfig           YamlHuaweiConfig      `yaml:"huawei"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		ProjectID:              baseCfg.ProjectID,
		ListenAddr:             baseCfg.ListenAddr,
		TopicID:                baseCfg.TopicID,
		SubscriptionID:         baseCfg.SubscriptionID,
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
		IdentityServiceURL:     baseCfg.IdentityServiceURL,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
			TTL:      time.Duration(baseCfg.RedisConfig.TTLSeconds) * time.Second,
		},
		Storage: StorageConfig{
			Backend:     StorageBackend(baseCfg.StorageConfig.Backend),
			PostgresDSN: baseCfg.StorageConfig.PostgresDSN,
		},
		Credentials: CredentialsConfig{
			Backend: CredentialsBackend(baseCfg.CredentialsConfig.Backend),
			Root:    baseCfg.CredentialsConfig.Root,
			S3: S3Config{
				Bucket:   baseCfg.CredentialsConfig.S3.Bucket,
				Prefix:   baseCfg.CredentialsConfig.S3.Prefix,
				Region:   baseCfg.CredentialsConfig.S3.Region,
				Endpoint: baseCfg.CredentialsConfig.S3.Endpoint,
			},
		},
		Dispatch: DispatchConfig{
			Workers:          baseCfg.DispatchConfig.Workers,
			RecipientTimeout: time.Duration(baseCfg.DispatchConfig.RecipientTimeoutMS) * time.Millisecond,
		},
		APNS: APNSConfig{
			Production: baseCfg.APNSConfig.Production,
		},
		Huawei: HuaweiConfig{
			TokenURL: baseCfg.HuaweiConfig.TokenURL,
			PushURL:  baseCfg.HuaweiConfig.PushURL,
		},
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"subscription_id", cfg.SubscriptionID,
		"storage_backend", cfg.Storage.Backend,
	)

	return cfg, nil
}
