// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultKeyPrefix namespaces every key written by the engine.
	DefaultKeyPrefix = "offer_engagement:"
	// defaultMaxTxRetries bounds optimistic-lock retries in Update.
	defaultMaxTxRetries = 64
)

var errClosed = errors.New("store is closed")

// RedisStoreConfig configures a RedisStore. Zero values select defaults.
type RedisStoreConfig struct {
	KeyPrefix    string
	TTL          time.Duration // 0 keeps keys forever
	MaxTxRetries int
}

// RedisStore implements Store on top of Redis strings. Update uses WATCH/MULTI.
type RedisStore struct {
	client *redis.Client
	cfg    RedisStoreConfig
}

func NewRedisStore(client *redis.Client, cfg RedisStoreConfig) *RedisStore {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.MaxTxRetries <= 0 {
		cfg.MaxTxRetries = defaultMaxTxRetries
	}
	return &RedisStore{client: client, cfg: cfg}
}

func (r *RedisStore) makeKey(key string) string {
	return fmt.Sprintf("%s%s", r.cfg.KeyPrefix, key)
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.makeKey(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		logrus.Errorf("failed to get %s: %v", key, err)
		return nil, ioError("get", key, err)
	}
	return data, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.makeKey(key), value, r.cfg.TTL).Err(); err != nil {
		logrus.Errorf("failed to set %s: %v", key, err)
		return ioError("set", key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.makeKey(key)).Err(); err != nil {
		logrus.Errorf("failed to delete %s: %v", key, err)
		return ioError("delete", key, err)
	}
	return nil
}

// Update retries the transaction when another client modified the key between WATCH and EXEC.
func (r *RedisStore) Update(ctx context.Context, key string, fn UpdateFunc) ([]byte, error) {
	fullKey := r.makeKey(key)

	for attempt := 0; attempt < r.cfg.MaxTxRetries; attempt++ {
		var (
			next  []byte
			fnErr error
		)

		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, fullKey).Bytes()
			exists := true
			if err == redis.Nil {
				current, exists = nil, false
			} else if err != nil {
				return err
			}

			next, fnErr = fn(current, exists)
			if fnErr != nil {
				return fnErr
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, fullKey, next, r.cfg.TTL)
				return nil
			})
			return err
		}, fullKey)

		switch {
		case err == nil:
			return next, nil
		case fnErr != nil:
			return nil, fnErr
		case errors.Is(err, redis.TxFailedErr):
			logrus.Debugf("optimistic lock conflict on %s (attempt %d), retrying", key, attempt+1)
			continue
		default:
			logrus.Errorf("failed to update %s: %v", key, err)
			return nil, ioError("update", key, err)
		}
	}

	return nil, ioError("update", key, fmt.Errorf("too many concurrent writers after %d attempts", r.cfg.MaxTxRetries))
}

func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return ioError("ping", "", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
