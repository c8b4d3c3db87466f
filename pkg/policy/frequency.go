// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AccelByte/extend-offer-engagement/pkg/common"
	"github.com/AccelByte/extend-offer-engagement/pkg/metrics"
	"github.com/AccelByte/extend-offer-engagement/pkg/store"

	"github.com/sirupsen/logrus"
)

const (
	capKeyPrefix  = "cap:"
	dayBucketFmt  = "2006-01-02"
	capsComponent = "caps"
)

var errCapReached = errors.New("frequency cap reached")

// FrequencyCapPolicy tracks per-channel daily fire counts.
//
// Every read-modify-write goes through one store.Update under mu, so concurrent
// fires on the same channel are linearizable. When the store fails, the last
// state seen by this process is used instead; a channel with no known state is
// reported as capped.
type FrequencyCapPolicy struct {
	store   store.Store
	clock   common.Clock
	loc     *time.Location
	metrics *metrics.Recorder

	mu sync.Mutex
	// known is the last state read from or written to the store.
	known map[Channel]ChannelCapState
	// unsaved holds increments whose write failed. They are merged into
	// every later read and flushed with the next successful write.
	unsaved map[Channel]ChannelCapState
}

func NewFrequencyCapPolicy(s store.Store, clock common.Clock, loc *time.Location, m *metrics.Recorder) *FrequencyCapPolicy {
	if loc == nil {
		loc = time.Local
	}
	return &FrequencyCapPolicy{
		store:   s,
		clock:   clock,
		loc:     loc,
		metrics: m,
		known:   make(map[Channel]ChannelCapState),
		unsaved: make(map[Channel]ChannelCapState),
	}
}

func capKey(ch Channel) string {
	return capKeyPrefix + string(ch)
}

// DayBucket formats t as the calendar date in the policy's timezone.
func (p *FrequencyCapPolicy) DayBucket(t time.Time) string {
	return t.In(p.loc).Format(dayBucketFmt)
}

// countFor returns the count that applies to today; a stale bucket reads as zero.
func (p *FrequencyCapPolicy) countFor(st ChannelCapState, now time.Time) uint32 {
	if st.DayBucket != p.DayBucket(now) {
		return 0
	}
	return st.CountToday
}

// merge folds a failed-write increment into a state read from the store.
func merge(stored, unsaved ChannelCapState) ChannelCapState {
	if unsaved.DayBucket == "" {
		return stored
	}
	if stored.DayBucket != unsaved.DayBucket {
		if unsaved.DayBucket > stored.DayBucket {
			return unsaved
		}
		return stored
	}
	out := stored
	if unsaved.CountToday > out.CountToday {
		out.CountToday = unsaved.CountToday
	}
	if unsaved.LastFiredAt.After(out.LastFiredAt) {
		out.LastFiredAt = unsaved.LastFiredAt
	}
	return out
}

func decodeCapState(data []byte, exists bool) (ChannelCapState, error) {
	var st ChannelCapState
	if !exists || len(data) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("failed to unmarshal cap state: %w", err)
	}
	return st, nil
}

// load must be called with mu held. ok is false when the state is unknown.
func (p *FrequencyCapPolicy) load(ctx context.Context, ch Channel) (st ChannelCapState, ok bool, err error) {
	var stored ChannelCapState
	found, err := store.GetJSON(ctx, p.store, capKey(ch), &stored)
	if err != nil {
		p.metrics.StoreFailure(capsComponent)
		cached, cachedOK := p.known[ch]
		if !cachedOK {
			logrus.Errorf("failed to read %s cap state and no cached state: %v", ch, err)
			return ChannelCapState{}, false, err
		}
		logrus.Warnf("failed to read %s cap state, using cached state: %v", ch, err)
		return cached, true, err
	}
	if !found {
		stored = ChannelCapState{}
	}
	st = merge(stored, p.unsaved[ch])
	p.known[ch] = st
	return st, true, nil
}

// State returns the current state of ch as stored, without rolling the day bucket.
func (p *FrequencyCapPolicy) State(ctx context.Context, ch Channel) (ChannelCapState, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load(ctx, ch)
}

// CanFire reports whether ch has fired fewer than limit times today. It never mutates state.
// A non-nil error means the store failed; the boolean is still the safe answer.
func (p *FrequencyCapPolicy) CanFire(ctx context.Context, ch Channel, limit int) (bool, error) {
	limit = CoerceMin(string(ch)+".frequencyCap", limit)

	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok, err := p.load(ctx, ch)
	if !ok {
		return false, err
	}
	return p.countFor(st, p.clock.Now()) < uint32(limit), err
}

// RecordFire counts one fire of ch unconditionally.
func (p *FrequencyCapPolicy) RecordFire(ctx context.Context, ch Channel) (ChannelCapState, error) {
	_, st, err := p.apply(ctx, ch, 0)
	return st, err
}

// TryRecordFire counts one fire of ch only if the cap allows it, as a single atomic step.
func (p *FrequencyCapPolicy) TryRecordFire(ctx context.Context, ch Channel, limit int) (bool, ChannelCapState, error) {
	limit = CoerceMin(string(ch)+".frequencyCap", limit)
	return p.apply(ctx, ch, limit)
}

// apply increments the counter of ch. limit 0 disables the cap check.
func (p *FrequencyCapPolicy) apply(ctx context.Context, ch Channel, limit int) (bool, ChannelCapState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	bucket := p.DayBucket(now)
	pending := p.unsaved[ch]

	step := func(st ChannelCapState) (ChannelCapState, error) {
		if st.DayBucket != bucket {
			st = ChannelCapState{DayBucket: bucket, LastFiredAt: st.LastFiredAt}
		}
		if limit > 0 && st.CountToday >= uint32(limit) {
			return st, errCapReached
		}
		st.CountToday++
		st.LastFiredAt = now
		return st, nil
	}

	var next ChannelCapState
	_, err := p.store.Update(ctx, capKey(ch), func(current []byte, exists bool) ([]byte, error) {
		stored, err := decodeCapState(current, exists)
		if err != nil {
			return nil, err
		}
		next, err = step(merge(stored, pending))
		if err != nil {
			return nil, err
		}
		return json.Marshal(next)
	})

	switch {
	case err == nil:
		delete(p.unsaved, ch)
		p.known[ch] = next
		p.metrics.Fire(string(ch))
		logrus.Debugf("recorded %s fire: %d today", ch, next.CountToday)
		return true, next, nil

	case errors.Is(err, errCapReached):
		p.known[ch] = next
		return false, next, nil

	case errors.Is(err, store.ErrStoreIO):
		p.metrics.StoreFailure(capsComponent)
		cached, ok := p.known[ch]
		if !ok && limit > 0 {
			logrus.Errorf("failed to record %s fire and no cached state, treating cap as reached: %v", ch, err)
			return false, ChannelCapState{}, err
		}
		next, stepErr := step(merge(cached, pending))
		if stepErr != nil {
			return false, next, err
		}
		p.known[ch] = next
		p.unsaved[ch] = next
		p.metrics.Fire(string(ch))
		logrus.Errorf("failed to persist %s fire, keeping count %d in memory: %v", ch, next.CountToday, err)
		return true, next, err

	default:
		logrus.Errorf("failed to record %s fire: %v", ch, err)
		return false, ChannelCapState{}, err
	}
}
