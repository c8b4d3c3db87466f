// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Load reads configuration from environment variables.
// A .env file in the working directory is applied first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("no .env file loaded: %v", err)
	} else {
		logrus.Infof("loaded environment variables from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}

	return cfg, nil
}

// Validate checks ranges and cross-field constraints after parsing.
func (c *Config) Validate() error {
	ports := []struct {
		name string
		port int
	}{
		{"GRPC_PORT", c.GRPCPort},
		{"METRICS_PORT", c.MetricsPort},
		{"HTTP_PORT", c.HTTPPort},
	}
	for _, p := range ports {
		if p.port < 1 || p.port > 65535 {
			return fmt.Errorf("invalid %s: %d (must be 1-65535)", p.name, p.port)
		}
	}

	switch c.StoreBackend {
	case StoreRedis, StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND: %q (must be redis, sqlite or memory)", c.StoreBackend)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	if c.SyncInterval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive")
	}
	if c.ConfigPollInterval <= 0 {
		return fmt.Errorf("CONFIG_POLL_INTERVAL must be positive")
	}
	if c.ConfigRefreshInterval < 0 || c.GrantBudget < 0 || c.PendingTTL < 0 {
		return fmt.Errorf("intervals must not be negative")
	}
	if c.MaxPending < 0 {
		return fmt.Errorf("invalid PENDING_OFFER_MAX: %d", c.MaxPending)
	}

	for name, raw := range map[string]string{"API_URL": c.APIURL, "PRESENTER_WEBHOOK_URL": c.PresenterWebhookURL} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s: %q", name, raw)
		}
	}

	return nil
}

// Location resolves TIMEZONE; day buckets of the frequency caps use it.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// RedisAddr joins host and port.
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}
