// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

// setupTestRedis creates a miniredis instance for testing
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"redis": func(t *testing.T) Store {
			client, mr := setupTestRedis(t)
			t.Cleanup(mr.Close)
			s := NewRedisStore(client, RedisStoreConfig{})
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "engine.db"))
			if err != nil {
				t.Fatalf("OpenSQLite() error = %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestStore_GetSetDelete(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get(missing) error = %v, expected ErrNotFound", err)
			}

			if err := s.Set(ctx, "k", []byte("v1")); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			got, err := s.Get(ctx, "k")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if string(got) != "v1" {
				t.Errorf("Get() = %q, expected %q", got, "v1")
			}

			if err := s.Set(ctx, "k", []byte("v2")); err != nil {
				t.Fatalf("Set() overwrite error = %v", err)
			}
			got, _ = s.Get(ctx, "k")
			if string(got) != "v2" {
				t.Errorf("Get() after overwrite = %q, expected %q", got, "v2")
			}

			if err := s.Delete(ctx, "k"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get() after delete error = %v, expected ErrNotFound", err)
			}
		})
	}
}

func TestStore_ConcurrentIncr(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			const workers = 20
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := Incr(ctx, s, "counter", 1); err != nil {
						t.Errorf("Incr() error = %v", err)
					}
				}()
			}
			wg.Wait()

			n, err := GetInt(ctx, s, "counter")
			if err != nil {
				t.Fatalf("GetInt() error = %v", err)
			}
			if n != workers {
				t.Errorf("counter = %d, expected %d", n, workers)
			}
		})
	}
}

func TestStore_UpdateAbortsOnCallbackError(t *testing.T) {
	errAbort := errors.New("abort")

	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			if err := s.Set(ctx, "k", []byte("keep")); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			_, err := s.Update(ctx, "k", func(current []byte, exists bool) ([]byte, error) {
				return []byte("changed"), errAbort
			})
			if !errors.Is(err, errAbort) {
				t.Fatalf("Update() error = %v, expected %v", err, errAbort)
			}
			if errors.Is(err, ErrStoreIO) {
				t.Error("callback error should not be reported as ErrStoreIO")
			}

			got, _ := s.Get(ctx, "k")
			if string(got) != "keep" {
				t.Errorf("value = %q, expected %q", got, "keep")
			}
		})
	}
}

func TestStore_JSONAndFlags(t *testing.T) {
	type blob struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			var out blob
			found, err := GetJSON(ctx, s, "blob", &out)
			if err != nil || found {
				t.Fatalf("GetJSON(missing) = %v, %v; expected false, nil", found, err)
			}

			if err := SetJSON(ctx, s, "blob", blob{Name: "a", Count: 3}); err != nil {
				t.Fatalf("SetJSON() error = %v", err)
			}
			found, err = GetJSON(ctx, s, "blob", &out)
			if err != nil || !found {
				t.Fatalf("GetJSON() = %v, %v; expected true, nil", found, err)
			}
			if out.Name != "a" || out.Count != 3 {
				t.Errorf("GetJSON() = %+v, expected {a 3}", out)
			}

			flag, err := GetBool(ctx, s, "flag")
			if err != nil || flag {
				t.Fatalf("GetBool(missing) = %v, %v; expected false, nil", flag, err)
			}
			if err := SetBool(ctx, s, "flag", true); err != nil {
				t.Fatalf("SetBool() error = %v", err)
			}
			flag, _ = GetBool(ctx, s, "flag")
			if !flag {
				t.Error("GetBool() = false, expected true")
			}
		})
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "engine.db")

	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	if _, err := Incr(ctx, s, "session:count", 7); err != nil {
		t.Fatalf("Incr() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite() reopen error = %v", err)
	}
	defer reopened.Close()

	n, err := GetInt(ctx, reopened, "session:count")
	if err != nil {
		t.Fatalf("GetInt() error = %v", err)
	}
	if n != 7 {
		t.Errorf("session:count = %d, expected 7", n)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite(context.Background(), "  "); err == nil {
		t.Error("OpenSQLite() expected error for empty path")
	}
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	s := NewRedisStore(client, RedisStoreConfig{KeyPrefix: "test:"})
	if err := s.Set(context.Background(), "cap:notification", []byte("x")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if !mr.Exists("test:cap:notification") {
		t.Error("expected key to be written with prefix test:")
	}
}

func TestRedisStore_ServerDownIsStoreIO(t *testing.T) {
	client, mr := setupTestRedis(t)
	s := NewRedisStore(client, RedisStoreConfig{})
	mr.Close()

	_, err := s.Get(context.Background(), "k")
	if !errors.Is(err, ErrStoreIO) {
		t.Errorf("Get() error = %v, expected ErrStoreIO", err)
	}

	checker := NewHealthChecker(s)
	if checker.IsHealthy(context.Background()) {
		t.Error("IsHealthy() = true, expected false with server down")
	}
}

func TestMemoryStore_ClosedIsStoreIO(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Close()

	if err := s.Set(context.Background(), "k", []byte("v")); !errors.Is(err, ErrStoreIO) {
		t.Errorf("Set() error = %v, expected ErrStoreIO", err)
	}
}
