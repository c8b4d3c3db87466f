// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package stats

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/AccelByte/extend-offer-engagement/pkg/common"
	"github.com/AccelByte/extend-offer-engagement/pkg/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// SyncRequestEvent is recorded after every upload. Consecutive failures
// share one record whose "attempts" metadata counts them.
const SyncRequestEvent = "sync-request"

var (
	// ErrSyncUploadFailed means the batch was not acknowledged; every event is retained.
	ErrSyncUploadFailed = errors.New("sync upload failed")

	// ErrSyncInProgress is returned when another sync holds the coordinator.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// Batch is one upload: the events in insertion order.
type Batch struct {
	Events []StatEvent
}

// IDs returns the event ids of the batch.
func (b Batch) IDs() []string {
	ids := make([]string, len(b.Events))
	for i, ev := range b.Events {
		ids[i] = ev.ID
	}
	return ids
}

// Ack is a positive acknowledgment. A nil AcceptedIDs acknowledges the whole batch.
type Ack struct {
	AcceptedIDs []string
}

// Uploader sends a batch and reports the acknowledgment.
type Uploader interface {
	PostBatch(ctx context.Context, batch Batch) (Ack, error)
}

// Coordinator drains the buffer to an Uploader. Only one sync runs at a time.
type Coordinator struct {
	buffer   *Buffer
	uploader Uploader
	clock    common.Clock
	metrics  *metrics.Recorder

	mu sync.Mutex
}

func NewCoordinator(buffer *Buffer, uploader Uploader, clock common.Clock, m *metrics.Recorder) *Coordinator {
	return &Coordinator{
		buffer:   buffer,
		uploader: uploader,
		clock:    clock,
		metrics:  m,
	}
}

// Sync uploads a snapshot of the buffer and clears exactly the acknowledged ids.
// Events added while the upload is in flight are left for the next sync.
func (c *Coordinator) Sync(ctx context.Context) error {
	if !c.mu.TryLock() {
		return ErrSyncInProgress
	}
	defer c.mu.Unlock()

	snapshot := c.buffer.GetAll()
	if len(snapshot) == 0 {
		logrus.Debugf("no stat events to sync")
		return nil
	}

	batch := Batch{Events: snapshot}
	start := c.clock.Now()
	ack, err := c.uploader.PostBatch(ctx, batch)
	elapsed := c.clock.Now().Sub(start)

	if err != nil {
		c.metrics.Sync("failure", elapsed.Seconds())
		logrus.Errorf("stats sync of %d events failed after %v: %v", len(snapshot), elapsed, err)
		attempts := 1
		for _, ev := range snapshot {
			if isSyncFailure(ev) {
				if n, convErr := strconv.Atoi(ev.Metadata["attempts"]); convErr == nil {
					attempts = n + 1
				}
			}
		}
		if _, recErr := c.buffer.Replace(ctx, isSyncFailure, SyncRequestEvent, elapsed.Milliseconds(), map[string]string{
			"result":   "failure",
			"error":    err.Error(),
			"events":   strconv.Itoa(len(snapshot)),
			"attempts": strconv.Itoa(attempts),
		}); recErr != nil {
			logrus.Warnf("failed to record sync failure: %v", recErr)
		}
		return fmt.Errorf("%w: %v", ErrSyncUploadFailed, err)
	}

	ids := clearable(batch, ack)
	c.metrics.Sync("success", elapsed.Seconds())
	if err := c.buffer.ClearIDs(ctx, ids); err != nil {
		// the ack stands; events removed in memory are not resent by this process
		logrus.Errorf("uploaded %d stat events but failed to persist the clear: %v", len(ids), err)
		return err
	}
	logrus.Infof("synced %d stat events in %v", len(ids), elapsed)

	// a batch holding only earlier sync records gets no record of its own,
	// otherwise every sync would leave one event behind for the next
	if carriesActivity(snapshot) {
		if _, err := c.buffer.Add(ctx, SyncRequestEvent, elapsed.Milliseconds(), map[string]string{
			"result": "success",
			"events": strconv.Itoa(len(ids)),
		}); err != nil {
			logrus.Warnf("failed to record sync success: %v", err)
		}
	}
	return nil
}

func isSyncFailure(ev StatEvent) bool {
	return ev.Event == SyncRequestEvent && ev.Metadata["result"] == "failure"
}

func carriesActivity(events []StatEvent) bool {
	for _, ev := range events {
		if ev.Event != SyncRequestEvent {
			return true
		}
	}
	return false
}

// clearable restricts the acknowledged ids to those that were in the batch.
func clearable(batch Batch, ack Ack) []string {
	if ack.AcceptedIDs == nil {
		return batch.IDs()
	}
	inBatch := make(map[string]struct{}, len(batch.Events))
	for _, ev := range batch.Events {
		inBatch[ev.ID] = struct{}{}
	}
	ids := make([]string, 0, len(ack.AcceptedIDs))
	for _, id := range ack.AcceptedIDs {
		if _, ok := inBatch[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Run syncs every interval until ctx is done. Failed syncs are retried
// with exponential backoff capped at interval.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = interval
	b.MaxElapsedTime = 0

	wait := interval
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		err := c.Sync(ctx)
		switch {
		case err == nil || errors.Is(err, ErrSyncInProgress):
			b.Reset()
			wait = interval
		default:
			wait = b.NextBackOff()
			logrus.Warnf("stats sync failed, retrying in %v", wait)
		}
	}
}
