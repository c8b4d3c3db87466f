// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrNotFound is returned by Get when the key has never been written or was deleted.
	ErrNotFound = errors.New("key not found")

	// ErrStoreIO marks any failure of the underlying storage backend.
	ErrStoreIO = errors.New("store I/O failure")
)

// UpdateFunc receives the current value of a key (nil and exists=false when absent)
// and returns the value to write. Returning an error aborts the update.
type UpdateFunc func(current []byte, exists bool) ([]byte, error)

// Store is the durable key/value storage used for counters, dates, flags and JSON blobs.
//
// Update is an atomic read-modify-write: no other writer can interleave between
// the read handed to fn and the write of its result.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Update(ctx context.Context, key string, fn UpdateFunc) ([]byte, error)
	Ping(ctx context.Context) error
	Close() error
}

// IOError wraps a backend failure. errors.Is(err, ErrStoreIO) holds for every IOError.
type IOError struct {
	Op  string
	Key string
	Err error
}

func (e *IOError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %q failed: %v", e.Op, e.Key, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrStoreIO }

func ioError(op, key string, err error) error {
	return &IOError{Op: op, Key: key, Err: err}
}

// GetJSON decodes the value stored under key into v. It reports false when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, v interface{}) (bool, error) {
	data, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}

// GetInt reads a decimal counter. Absent keys read as zero.
func GetInt(ctx context.Context, s Store, key string) (int64, error) {
	data, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse counter %s: %w", key, err)
	}
	return n, nil
}

// Incr atomically adds delta to the counter at key and returns the new value.
func Incr(ctx context.Context, s Store, key string, delta int64) (int64, error) {
	var next int64
	_, err := s.Update(ctx, key, func(current []byte, exists bool) ([]byte, error) {
		var n int64
		if exists {
			parsed, err := strconv.ParseInt(string(current), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse counter %s: %w", key, err)
			}
			n = parsed
		}
		next = n + delta
		return []byte(strconv.FormatInt(next, 10)), nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// GetBool reads a flag. Absent keys read as false.
func GetBool(ctx context.Context, s Store, key string) (bool, error) {
	data, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(string(data))
}

// SetBool writes a flag.
func SetBool(ctx context.Context, s Store, key string, v bool) error {
	return s.Set(ctx, key, []byte(strconv.FormatBool(v)))
}
