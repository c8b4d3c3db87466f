// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AccelByte/extend-offer-engagement/pkg/common"
	"github.com/AccelByte/extend-offer-engagement/pkg/metrics"
	"github.com/AccelByte/extend-offer-engagement/pkg/policy"
	"github.com/AccelByte/extend-offer-engagement/pkg/store"

	"github.com/sirupsen/logrus"
)

const (
	SessionCountKey = "session:count"

	commandQueueSize = 64
)

// ErrTrackerStopped is returned by calls that wait on the worker after it exited.
var ErrTrackerStopped = errors.New("session tracker stopped")

// State is the session state owned by the tracker worker.
type State struct {
	IsActive                  bool
	StartedAt                 time.Time
	SessionCount              uint64
	LastResultWasClickThrough bool
	MidSessionFired           bool
}

// ActiveDuration is how long the current session has been active at now.
func (s State) ActiveDuration(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.StartedAt)
}

// Handlers are called off the worker once a lifecycle trigger won its fire slot.
type Handlers struct {
	PostSession func(ctx context.Context, st State)
	MidSession  func(ctx context.Context, st State)

	// Decided, when set, observes every trigger decision on the worker. It must not block.
	Decided func(ch policy.Channel, trigger policy.Trigger, d policy.Decision)
}

type Options struct {
	Store     store.Store
	Evaluator *policy.Evaluator
	Clock     common.Clock
	Scheduler Scheduler
	Grants    GrantProvider
	Handlers  Handlers
	Metrics   *metrics.Recorder
}

type command func(ctx context.Context)

// Tracker detects active/background transitions and drives the session triggers.
// Every state read and write happens on the goroutine running Run.
type Tracker struct {
	store     store.Store
	evaluator *policy.Evaluator
	clock     common.Clock
	scheduler Scheduler
	grants    GrantProvider
	handlers  Handlers
	metrics   *metrics.Recorder

	cmds    chan command
	done    chan struct{}
	started atomic.Bool
	flows   sync.WaitGroup

	// owned by the worker
	state State
	epoch uint64
	// a click-through seen while in background applies to the next session
	clickThroughPending bool
}

func NewTracker(opts Options) *Tracker {
	if opts.Clock == nil {
		opts.Clock = common.SystemClock{}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = SystemScheduler{}
	}
	return &Tracker{
		store:     opts.Store,
		evaluator: opts.Evaluator,
		clock:     opts.Clock,
		scheduler: opts.Scheduler,
		grants:    opts.Grants,
		handlers:  opts.Handlers,
		metrics:   opts.Metrics,
		cmds:      make(chan command, commandQueueSize),
		done:      make(chan struct{}),
	}
}

// Run restores the persisted session count and processes commands until ctx ends.
func (t *Tracker) Run(ctx context.Context) {
	t.started.Store(true)
	defer close(t.done)

	count, err := store.GetInt(ctx, t.store, SessionCountKey)
	if err != nil {
		logrus.Errorf("failed to restore session count, starting from memory: %v", err)
		t.metrics.StoreFailure("session")
	} else if count > 0 {
		t.state.SessionCount = uint64(count)
	}
	logrus.Infof("session tracker started, sessionCount=%d", t.state.SessionCount)

	for {
		select {
		case <-ctx.Done():
			logrus.Info("session tracker stopped")
			return
		case cmd := <-t.cmds:
			cmd(ctx)
		}
	}
}

// Done is closed when Run returns.
func (t *Tracker) Done() <-chan struct{} { return t.done }

// Started reports whether Run has been called.
func (t *Tracker) Started() bool { return t.started.Load() }

// Wait blocks until every handler started by the worker has returned.
// Handlers are counted on the worker, so callers racing a live worker
// should wait for Done first.
func (t *Tracker) Wait() {
	t.flows.Wait()
}

func (t *Tracker) enqueue(cmd command) bool {
	select {
	case t.cmds <- cmd:
		return true
	case <-t.done:
		logrus.Warn("session tracker stopped, dropping command")
		return false
	}
}

// OnBecameActive records a Background to Active transition.
func (t *Tracker) OnBecameActive() {
	t.enqueue(t.becameActive)
}

// OnEnteredBackground records an Active to Background transition.
func (t *Tracker) OnEnteredBackground() {
	t.enqueue(t.enteredBackground)
}

// MarkClickThrough suppresses the next post-session notification once.
// A click-through arriving in background, such as a tapped notification
// that launches the app, carries over into the session that starts next.
func (t *Tracker) MarkClickThrough() {
	t.enqueue(func(context.Context) {
		if t.state.IsActive {
			t.state.LastResultWasClickThrough = true
			return
		}
		t.clickThroughPending = true
	})
}

// Snapshot returns a copy of the session state as seen by the worker.
func (t *Tracker) Snapshot(ctx context.Context) (State, error) {
	reply := make(chan State, 1)
	if !t.enqueue(func(context.Context) { reply <- t.state }) {
		return State{}, ErrTrackerStopped
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	case <-t.done:
		return State{}, ErrTrackerStopped
	}
}

// Flush waits until every command enqueued before it has run.
func (t *Tracker) Flush(ctx context.Context) error {
	_, err := t.Snapshot(ctx)
	return err
}

func (t *Tracker) becameActive(ctx context.Context) {
	if t.state.IsActive {
		logrus.Debug("duplicate became-active ignored")
		return
	}

	t.state.IsActive = true
	t.state.LastResultWasClickThrough = t.clickThroughPending
	t.clickThroughPending = false
	t.state.MidSessionFired = false
	t.state.StartedAt = t.clock.Now()

	next := t.state.SessionCount + 1
	stored, err := store.Incr(ctx, t.store, SessionCountKey, 1)
	if err != nil {
		logrus.Errorf("failed to persist session count: %v", err)
		t.metrics.StoreFailure("session")
	} else if uint64(stored) > next {
		next = uint64(stored)
	}
	t.state.SessionCount = next
	t.epoch++
	t.metrics.SessionStarted()

	logrus.WithFields(logrus.Fields{
		"sessionCount": t.state.SessionCount,
		"epoch":        t.epoch,
	}).Info("session started")

	cfg, err := t.evaluator.Config()
	if err != nil {
		logrus.Debugf("mid-session trigger not armed: %v", err)
		return
	}
	if !policy.MidSessionDue(cfg, t.state.SessionCount) {
		return
	}

	epoch := t.epoch
	t.scheduler.AfterFunc(cfg.MidSession.Delay, func() {
		t.enqueue(func(ctx context.Context) { t.midSessionDue(ctx, epoch) })
	})
	logrus.Debugf("mid-session trigger armed for %v", cfg.MidSession.Delay)
}

func (t *Tracker) midSessionDue(ctx context.Context, epoch uint64) {
	if epoch != t.epoch || !t.state.IsActive {
		logrus.Debugf("stale mid-session trigger dropped (armed epoch %d, current %d)", epoch, t.epoch)
		return
	}

	if !t.fire(ctx, policy.ChannelMessage, policy.TriggerMidSession) {
		return
	}
	t.state.MidSessionFired = true

	if t.handlers.MidSession != nil {
		st := t.state
		t.flows.Add(1)
		go func() {
			defer t.flows.Done()
			t.handlers.MidSession(ctx, st)
		}()
	}
}

func (t *Tracker) enteredBackground(ctx context.Context) {
	if !t.state.IsActive {
		logrus.Debug("duplicate entered-background ignored")
		return
	}
	t.state.IsActive = false
	t.epoch++

	switch {
	case t.state.LastResultWasClickThrough:
		t.state.LastResultWasClickThrough = false
		t.state.MidSessionFired = false
		t.metrics.Suppressed("click_through")
		logrus.Info("post-session notification suppressed after click-through")
		return
	case t.state.MidSessionFired:
		t.state.MidSessionFired = false
		t.metrics.Suppressed("mid_session")
		logrus.Info("post-session notification suppressed after mid-session message")
		return
	}

	if !t.fire(ctx, policy.ChannelNotification, policy.TriggerPostSession) {
		return
	}

	if t.handlers.PostSession != nil {
		st := t.state
		t.flows.Add(1)
		RunWithGrant(ctx, t.grants, "post-session", func(ctx context.Context) {
			defer t.flows.Done()
			t.handlers.PostSession(ctx, st)
		})
	}
}

// fire evaluates ch and claims a fire slot on Allow.
func (t *Tracker) fire(ctx context.Context, ch policy.Channel, trigger policy.Trigger) bool {
	d := t.evaluator.Evaluate(ctx, ch, policy.EvalContext{
		Trigger:        trigger,
		SessionCount:   t.state.SessionCount,
		ActiveDuration: t.state.ActiveDuration(t.clock.Now()),
	})
	if t.handlers.Decided != nil {
		t.handlers.Decided(ch, trigger, d)
	}
	if !d.Allowed {
		logrus.Infof("%s %s not fired: %s", trigger, ch, d.Reason)
		return false
	}

	cfg, err := t.evaluator.Config()
	if err != nil {
		return false
	}
	ok, _, err := t.evaluator.Caps().TryRecordFire(ctx, ch, cfg.Channel(ch).FrequencyCap)
	if err != nil {
		logrus.Warnf("fire of %s recorded in memory only: %v", ch, err)
	}
	if !ok {
		logrus.Infof("%s %s lost its fire slot", trigger, ch)
		return false
	}
	return true
}
