// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package stats

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AccelByte/extend-offer-engagement/pkg/common"
	"github.com/AccelByte/extend-offer-engagement/pkg/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

type uploadFunc func(ctx context.Context, batch Batch) (Ack, error)

func (f uploadFunc) PostBatch(ctx context.Context, batch Batch) (Ack, error) {
	return f(ctx, batch)
}

func newTestBuffer(t *testing.T, s store.Store) *Buffer {
	t.Helper()
	b, err := NewBuffer(context.Background(), s, common.SystemClock{}, nil)
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}
	return b
}

// activity drops the sync bookkeeping records.
func activity(events []StatEvent) []StatEvent {
	var out []StatEvent
	for _, ev := range events {
		if ev.Event != SyncRequestEvent {
			out = append(out, ev)
		}
	}
	return out
}

func eventNames(events []StatEvent) []string {
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.Event
	}
	return names
}

func TestBuffer_AddSurvivesReload(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "stats.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer s.Close()

	b := newTestBuffer(t, s)
	ev, err := b.Add(ctx, "notification-click", 1, map[string]string{"offerId": "o-1"})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if ev.ID == "" {
		t.Fatal("Add() returned an event without id")
	}

	reloaded := newTestBuffer(t, s)
	all := reloaded.GetAll()
	if len(all) != 1 {
		t.Fatalf("reloaded %d events, expected 1", len(all))
	}
	if all[0].ID != ev.ID || all[0].Metadata["offerId"] != "o-1" {
		t.Errorf("reloaded event = %+v, expected %+v", all[0], ev)
	}
}

func TestBuffer_ClearIDsRemovesOnlyGiven(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	b := newTestBuffer(t, s)

	first, _ := b.Add(ctx, "a", 0, nil)
	second, _ := b.Add(ctx, "b", 0, nil)
	third, _ := b.Add(ctx, "c", 0, nil)

	if err := b.ClearIDs(ctx, []string{first.ID, third.ID, "unknown"}); err != nil {
		t.Fatalf("ClearIDs() error = %v", err)
	}

	all := b.GetAll()
	if len(all) != 1 || all[0].ID != second.ID {
		t.Errorf("after ClearIDs() = %v, expected only %s", eventNames(all), second.Event)
	}

	reloaded := newTestBuffer(t, s)
	if got := reloaded.Len(); got != 1 {
		t.Errorf("reloaded Len() = %d, expected 1", got)
	}
}

func TestBuffer_ConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	b := newTestBuffer(t, store.NewMemoryStore())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.Add(ctx, "tick", 1, nil); err != nil {
				t.Errorf("Add() error = %v", err)
			}
			_ = b.GetAll()
		}()
	}
	wg.Wait()

	if got := b.Len(); got != 50 {
		t.Errorf("Len() = %d, expected 50", got)
	}
}

func TestBuffer_PersistFailureKeepsEvent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	b := newTestBuffer(t, s)
	_ = s.Close()

	_, err := b.Add(ctx, "offline", 0, nil)
	if !errors.Is(err, store.ErrStoreIO) {
		t.Errorf("Add() error = %v, expected ErrStoreIO", err)
	}
	if got := b.Len(); got != 1 {
		t.Errorf("Len() = %d, expected the event to stay in memory", got)
	}
}

func TestSync_EmptyBufferSucceedsWithoutUpload(t *testing.T) {
	b := newTestBuffer(t, store.NewMemoryStore())
	c := NewCoordinator(b, uploadFunc(func(ctx context.Context, batch Batch) (Ack, error) {
		t.Error("PostBatch() called for an empty buffer")
		return Ack{}, nil
	}), common.SystemClock{}, nil)

	if err := c.Sync(context.Background()); err != nil {
		t.Errorf("Sync() error = %v", err)
	}
}

func TestSync_EventAddedDuringUploadIsKept(t *testing.T) {
	ctx := context.Background()
	b := newTestBuffer(t, store.NewMemoryStore())
	_, _ = b.Add(ctx, "before-1", 0, nil)
	_, _ = b.Add(ctx, "before-2", 0, nil)

	var uploaded [][]string
	var late StatEvent
	c := NewCoordinator(b, uploadFunc(func(ctx context.Context, batch Batch) (Ack, error) {
		uploaded = append(uploaded, eventNames(batch.Events))
		if len(uploaded) == 1 {
			late, _ = b.Add(ctx, "during", 0, nil)
		}
		return Ack{}, nil
	}), common.SystemClock{}, nil)

	if err := c.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	all := activity(b.GetAll())
	if len(all) != 1 || all[0].ID != late.ID {
		t.Fatalf("after first sync buffer = %v, expected only the late event", eventNames(all))
	}

	if err := c.Sync(ctx); err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}
	if len(uploaded) != 2 || len(uploaded[1]) != 2 || uploaded[1][0] != "during" || uploaded[1][1] != SyncRequestEvent {
		t.Errorf("second batch = %v, expected [during sync-request]", uploaded)
	}
	if got := activity(b.GetAll()); len(got) != 0 {
		t.Errorf("buffer = %v after second sync, expected no activity", eventNames(got))
	}
}

func TestSync_FailureRetainsEvents(t *testing.T) {
	ctx := context.Background()
	b := newTestBuffer(t, store.NewMemoryStore())
	ev, _ := b.Add(ctx, "impression", 1, nil)

	failing := true
	var lastBatch Batch
	c := NewCoordinator(b, uploadFunc(func(ctx context.Context, batch Batch) (Ack, error) {
		lastBatch = batch
		if failing {
			return Ack{}, errors.New("503 service unavailable")
		}
		return Ack{}, nil
	}), common.SystemClock{}, nil)

	err := c.Sync(ctx)
	if !errors.Is(err, ErrSyncUploadFailed) {
		t.Fatalf("Sync() error = %v, expected ErrSyncUploadFailed", err)
	}

	all := b.GetAll()
	if len(all) != 2 || all[0].ID != ev.ID || all[1].Event != SyncRequestEvent {
		t.Fatalf("buffer after failure = %v, expected [impression sync-request]", eventNames(all))
	}
	if all[1].Metadata["result"] != "failure" || all[1].Metadata["attempts"] != "1" {
		t.Errorf("sync-request metadata = %v, expected result=failure attempts=1", all[1].Metadata)
	}

	// repeated failures update one record instead of piling up
	for i := 0; i < 2; i++ {
		if err := c.Sync(ctx); !errors.Is(err, ErrSyncUploadFailed) {
			t.Fatalf("Sync() error = %v, expected ErrSyncUploadFailed", err)
		}
	}
	all = b.GetAll()
	if len(all) != 2 || all[0].ID != ev.ID || all[1].Event != SyncRequestEvent {
		t.Fatalf("buffer after three failures = %v, expected [impression sync-request]", eventNames(all))
	}
	if all[1].Metadata["attempts"] != "3" {
		t.Errorf("attempts = %q, expected 3", all[1].Metadata["attempts"])
	}

	failing = false
	if err := c.Sync(ctx); err != nil {
		t.Fatalf("retry Sync() error = %v", err)
	}
	if len(lastBatch.Events) != 2 || lastBatch.Events[0].ID != ev.ID {
		t.Errorf("retry batch = %v, expected a superset containing the original event", eventNames(lastBatch.Events))
	}
	all = b.GetAll()
	if len(all) != 1 || all[0].Event != SyncRequestEvent || all[0].Metadata["result"] != "success" {
		t.Fatalf("buffer after successful retry = %v, expected one sync-request success", all)
	}
	if all[0].Metadata["events"] != "2" {
		t.Errorf("success metadata = %v, expected events=2", all[0].Metadata)
	}

	// the success record is uploaded on its own without leaving another behind
	if err := c.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if got := b.Len(); got != 0 {
		t.Errorf("Len() = %d after uploading the sync record, expected 0", got)
	}
}

func TestSync_PartialAckClearsOnlyAccepted(t *testing.T) {
	ctx := context.Background()
	b := newTestBuffer(t, store.NewMemoryStore())
	a, _ := b.Add(ctx, "a", 0, nil)
	kept, _ := b.Add(ctx, "b", 0, nil)

	c := NewCoordinator(b, uploadFunc(func(ctx context.Context, batch Batch) (Ack, error) {
		return Ack{AcceptedIDs: []string{a.ID, "not-in-batch"}}, nil
	}), common.SystemClock{}, nil)

	if err := c.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	all := activity(b.GetAll())
	if len(all) != 1 || all[0].ID != kept.ID {
		t.Errorf("buffer = %v, expected only b", eventNames(all))
	}
}

func TestSync_SingleFlight(t *testing.T) {
	ctx := context.Background()
	b := newTestBuffer(t, store.NewMemoryStore())
	_, _ = b.Add(ctx, "a", 0, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	c := NewCoordinator(b, uploadFunc(func(ctx context.Context, batch Batch) (Ack, error) {
		close(entered)
		<-release
		return Ack{}, nil
	}), common.SystemClock{}, nil)

	done := make(chan error, 1)
	go func() { done <- c.Sync(ctx) }()
	<-entered

	if err := c.Sync(ctx); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("concurrent Sync() error = %v, expected ErrSyncInProgress", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("Sync() error = %v", err)
	}
}

func TestCoordinator_RunDrainsPeriodically(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()
	s := store.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), store.RedisStoreConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := newTestBuffer(t, s)
	_, _ = b.Add(ctx, "a", 0, nil)

	synced := make(chan struct{}, 1)
	c := NewCoordinator(b, uploadFunc(func(ctx context.Context, batch Batch) (Ack, error) {
		select {
		case synced <- struct{}{}:
		default:
		}
		return Ack{}, nil
	}), common.SystemClock{}, nil)

	go c.Run(ctx, 10*time.Millisecond)

	select {
	case <-synced:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not sync within 2s")
	}

	deadline := time.Now().Add(2 * time.Second)
	for b.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := b.Len(); got != 0 {
		t.Errorf("Len() = %d after periodic sync, expected 0", got)
	}
}
