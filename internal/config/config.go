// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package config

import "time"

// Store backends accepted by STORE_BACKEND.
const (
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config holds all process configuration loaded from environment variables.
// Policy knobs live in the YAML file at PolicyPath and in the remote config.
type Config struct {
	// Server
	GRPCPort    int    `env:"GRPC_PORT" envDefault:"6565"`
	MetricsPort int    `env:"METRICS_PORT" envDefault:"8080"`
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8000"`
	Environment string `env:"ENVIRONMENT" envDefault:"dev"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"OfferEngagementEngine"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Store
	StoreBackend      string        `env:"STORE_BACKEND" envDefault:"redis"`
	RedisHost         string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort         string        `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword     string        `env:"REDIS_PASSWORD"`
	RedisKeyPrefix    string        `env:"REDIS_KEY_PREFIX" envDefault:"offer_engagement:"`
	RedisMaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"5"`
	RedisRetryDelayMs int           `env:"REDIS_RETRY_DELAY_MS" envDefault:"1000"`
	RedisKeyTTL       time.Duration `env:"REDIS_KEY_TTL" envDefault:"0s"`
	SQLitePath        string        `env:"SQLITE_PATH" envDefault:"data/engagement.db"`

	// Policy
	PolicyPath            string        `env:"POLICY_PATH" envDefault:"config/policy.yaml"`
	RequireRemoteConfig   bool          `env:"REQUIRE_REMOTE_CONFIG" envDefault:"false"`
	ConfigRefreshInterval time.Duration `env:"CONFIG_REFRESH_INTERVAL" envDefault:"6h"`
	ConfigPollInterval    time.Duration `env:"CONFIG_POLL_INTERVAL" envDefault:"15m"`
	Timezone              string        `env:"TIMEZONE" envDefault:"Local"`

	// Offer API
	APIURL     string        `env:"API_URL"`
	AppKey     string        `env:"APP_KEY"`
	BundleID   string        `env:"BUNDLE_ID" envDefault:"com.example.app"`
	AppVersion string        `env:"APP_VERSION" envDefault:"1.0.0"`
	DeviceOS   string        `env:"DEVICE_OS" envDefault:"linux"`
	Platform   string        `env:"DEVICE_PLATFORM" envDefault:"server"`
	AdID       string        `env:"AD_ID"`
	APITimeout time.Duration `env:"API_TIMEOUT" envDefault:"15s"`

	// Engine
	SyncInterval         time.Duration `env:"SYNC_INTERVAL" envDefault:"5m"`
	GrantBudget          time.Duration `env:"BACKGROUND_GRANT_BUDGET" envDefault:"30s"`
	PendingTTL           time.Duration `env:"PENDING_OFFER_TTL" envDefault:"24h"`
	MaxPending           int           `env:"PENDING_OFFER_MAX" envDefault:"256"`
	PresenterWebhookURL  string        `env:"PRESENTER_WEBHOOK_URL"`
	NotificationsAllowed bool          `env:"NOTIFICATIONS_AUTHORIZED" envDefault:"true"`

	// Telemetry
	ZipkinEndpoint string `env:"ZIPKIN_ENDPOINT"`
}
