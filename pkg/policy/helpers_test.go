// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package policy

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/AccelByte/extend-offer-engagement/pkg/common"
	"github.com/AccelByte/extend-offer-engagement/pkg/store"
)

var errDisk = errors.New("disk unavailable")

// flakyStore fails every call while failing is set.
type flakyStore struct {
	*store.MemoryStore
	failing atomic.Bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: store.NewMemoryStore()}
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.failing.Load() {
		return nil, &store.IOError{Op: "get", Key: key, Err: errDisk}
	}
	return f.MemoryStore.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	if f.failing.Load() {
		return &store.IOError{Op: "set", Key: key, Err: errDisk}
	}
	return f.MemoryStore.Set(ctx, key, value)
}

func (f *flakyStore) Update(ctx context.Context, key string, fn store.UpdateFunc) ([]byte, error) {
	if f.failing.Load() {
		return nil, &store.IOError{Op: "update", Key: key, Err: errDisk}
	}
	return f.MemoryStore.Update(ctx, key, fn)
}

type staticConfig struct {
	cfg EligibilityConfig
	err error
}

func (s staticConfig) Get() (EligibilityConfig, error) {
	return s.cfg, s.err
}

// noon on a fixed day keeps tests away from midnight unless they move there on purpose.
var testStart = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestPolicy() (*FrequencyCapPolicy, *flakyStore, *common.ManualClock) {
	s := newFlakyStore()
	clock := common.NewManualClock(testStart)
	return NewFrequencyCapPolicy(s, clock, time.UTC, nil), s, clock
}
