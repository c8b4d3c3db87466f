// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/AccelByte/extend-offer-engagement/pkg/common"
	"github.com/AccelByte/extend-offer-engagement/pkg/metrics"
	"github.com/AccelByte/extend-offer-engagement/pkg/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const bufferKey = "stats:buffer"

// StatEvent is one immutable telemetry record.
type StatEvent struct {
	ID         string            `json:"id"`
	Event      string            `json:"event"`
	OccurredAt time.Time         `json:"occurredAt"`
	Value      int64             `json:"value"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Buffer is the durable append-only event log. Every mutation persists the
// whole log before returning; readers share a read lock.
type Buffer struct {
	store   store.Store
	clock   common.Clock
	metrics *metrics.Recorder

	mu     sync.RWMutex
	events []StatEvent
}

// NewBuffer creates a buffer and restores whatever the store holds.
func NewBuffer(ctx context.Context, s store.Store, clock common.Clock, m *metrics.Recorder) (*Buffer, error) {
	b := &Buffer{store: s, clock: clock, metrics: m}
	if err := b.Load(ctx); err != nil {
		return b, err
	}
	return b, nil
}

// Load replaces the in-memory log with the persisted one.
func (b *Buffer) Load(ctx context.Context) error {
	var events []StatEvent
	if _, err := store.GetJSON(ctx, b.store, bufferKey, &events); err != nil {
		logrus.Errorf("failed to load stats buffer: %v", err)
		return fmt.Errorf("failed to load stats buffer: %w", err)
	}

	b.mu.Lock()
	b.events = events
	b.metrics.BufferedEvents(len(b.events))
	b.mu.Unlock()

	logrus.Infof("loaded %d buffered stat events", len(events))
	return nil
}

// persist must be called with the write lock held.
func (b *Buffer) persist(ctx context.Context) error {
	data, err := json.Marshal(b.events)
	if err != nil {
		return fmt.Errorf("failed to marshal stats buffer: %w", err)
	}
	if err := b.store.Set(ctx, bufferKey, data); err != nil {
		b.metrics.StoreFailure("stats")
		return err
	}
	return nil
}

// Add appends an event with a fresh id. If persisting fails the event stays
// in memory and the store error is returned.
func (b *Buffer) Add(ctx context.Context, event string, value int64, metadata map[string]string) (StatEvent, error) {
	return b.Replace(ctx, nil, event, value, metadata)
}

// Replace drops the events matched by drop and appends a new event in one
// persisted write. A nil drop makes it an Add.
func (b *Buffer) Replace(ctx context.Context, drop func(StatEvent) bool, event string, value int64, metadata map[string]string) (StatEvent, error) {
	ev := StatEvent{
		ID:         uuid.NewString(),
		Event:      event,
		OccurredAt: b.clock.Now().UTC(),
		Value:      value,
	}
	if len(metadata) > 0 {
		ev.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			ev.Metadata[k] = v
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if drop != nil {
		kept := b.events[:0:0]
		for _, old := range b.events {
			if !drop(old) {
				kept = append(kept, old)
			}
		}
		b.events = kept
	}
	b.events = append(b.events, ev)
	b.metrics.BufferedEvents(len(b.events))

	if err := b.persist(ctx); err != nil {
		logrus.Errorf("failed to persist stat event %s: %v", event, err)
		return ev, fmt.Errorf("failed to persist stat event: %w", err)
	}
	logrus.Debugf("recorded stat event %s (%s)", event, ev.ID)
	return ev, nil
}

// GetAll returns a copy of the log in insertion order.
func (b *Buffer) GetAll() []StatEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]StatEvent, len(b.events))
	copy(out, b.events)
	return out
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

// ClearIDs removes exactly the events whose id is listed.
func (b *Buffer) ClearIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.events[:0:0]
	for _, ev := range b.events {
		if _, ok := drop[ev.ID]; !ok {
			kept = append(kept, ev)
		}
	}
	removed := len(b.events) - len(kept)
	b.events = kept
	b.metrics.BufferedEvents(len(b.events))

	if err := b.persist(ctx); err != nil {
		logrus.Errorf("failed to persist stats buffer after clearing %d events: %v", removed, err)
		return fmt.Errorf("failed to persist cleared stats buffer: %w", err)
	}
	logrus.Debugf("cleared %d stat events", removed)
	return nil
}
