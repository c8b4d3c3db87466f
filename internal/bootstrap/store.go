// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AccelByte/extend-offer-engagement/internal/config"
	"github.com/AccelByte/extend-offer-engagement/pkg/store"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// InitStore opens the backend selected by STORE_BACKEND.
func InitStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreRedis:
		client, err := initRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logrus.Infof("using redis store at %s", cfg.RedisAddr())
		return store.NewRedisStore(client, store.RedisStoreConfig{
			KeyPrefix: cfg.RedisKeyPrefix,
			TTL:       cfg.RedisKeyTTL,
		}), nil

	case config.StoreSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
		s, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logrus.Infof("using sqlite store at %s", cfg.SQLitePath)
		return s, nil

	case config.StoreMemory:
		logrus.Warn("using in-memory store; counters and buffered stats are lost on restart")
		return store.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// initRedis connects to Redis, retrying the first ping with exponential backoff.
func initRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.RedisPassword,
		DB:           0,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	b := backoff.NewExponentialBackOff()
	if cfg.RedisRetryDelayMs > 0 {
		b.InitialInterval = time.Duration(cfg.RedisRetryDelayMs) * time.Millisecond
	}
	retries := cfg.RedisMaxRetries
	if retries < 0 {
		retries = 0
	}

	err := backoff.Retry(
		func() error {
			if err := client.Ping(ctx).Err(); err != nil {
				logrus.Warnf("redis connection failed: %v, retrying...", err)
				return err
			}
			return nil
		},
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr(), err)
	}

	logrus.Info("redis client initialized")
	return client, nil
}
