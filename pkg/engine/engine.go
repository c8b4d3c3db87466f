// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AccelByte/extend-offer-engagement/pkg/common"
	"github.com/AccelByte/extend-offer-engagement/pkg/metrics"
	"github.com/AccelByte/extend-offer-engagement/pkg/offer"
	"github.com/AccelByte/extend-offer-engagement/pkg/policy"
	"github.com/AccelByte/extend-offer-engagement/pkg/session"
	"github.com/AccelByte/extend-offer-engagement/pkg/stats"
	"github.com/AccelByte/extend-offer-engagement/pkg/store"

	"github.com/sirupsen/logrus"
)

// ConfigProvider serves config snapshots and owns the client overrides.
type ConfigProvider interface {
	Get() (policy.EligibilityConfig, error)
	Due() bool
	Refresh(ctx context.Context) error
	UpdateOverrides(ctx context.Context, fn func(o *policy.ClientOverrides)) error
}

// InteractionLogger reports offer interactions to the offer service.
type InteractionLogger interface {
	LogInteraction(ctx context.Context, event, offerID, referenceID string) error
}

type Options struct {
	Store     store.Store
	Config    ConfigProvider
	Source    offer.Source
	Presenter offer.Presenter
	Uploader  stats.Uploader

	// optional
	Pinger       offer.ImpressionPinger
	Interactions InteractionLogger
	Clock        common.Clock
	Location     *time.Location
	Scheduler    session.Scheduler
	Grants       session.GrantProvider
	Metrics      *metrics.Recorder
	PendingTTL   time.Duration
	MaxPending   int
}

// Engine is the exposed surface: lifecycle hooks, eligibility, offer flows and telemetry.
type Engine struct {
	store        store.Store
	config       ConfigProvider
	source       offer.Source
	presenter    offer.Presenter
	pinger       offer.ImpressionPinger
	interactions InteractionLogger
	clock        common.Clock
	grants       session.GrantProvider
	metrics      *metrics.Recorder

	caps        *policy.FrequencyCapPolicy
	evaluator   *policy.Evaluator
	buffer      *stats.Buffer
	coordinator *stats.Coordinator
	tracker     *session.Tracker
	pending     *offer.Registry

	// ctx outlives single calls; async flows run under it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Config == nil || opts.Source == nil || opts.Presenter == nil || opts.Uploader == nil {
		return nil, ErrMissingCollaborator
	}
	if opts.Clock == nil {
		opts.Clock = common.SystemClock{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	buffer, err := stats.NewBuffer(ctx, opts.Store, opts.Clock, opts.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats buffer: %w", err)
	}

	caps := policy.NewFrequencyCapPolicy(opts.Store, opts.Clock, opts.Location, opts.Metrics)
	evaluator := policy.NewEvaluator(caps, opts.Config, opts.Clock, opts.Metrics)

	lifetime, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:        opts.Store,
		config:       opts.Config,
		source:       opts.Source,
		presenter:    opts.Presenter,
		pinger:       opts.Pinger,
		interactions: opts.Interactions,
		clock:        opts.Clock,
		grants:       opts.Grants,
		metrics:      opts.Metrics,
		caps:         caps,
		evaluator:    evaluator,
		buffer:       buffer,
		coordinator:  stats.NewCoordinator(buffer, opts.Uploader, opts.Clock, opts.Metrics),
		pending:      offer.NewRegistry(opts.PendingTTL, opts.MaxPending, opts.Metrics),
		ctx:          lifetime,
		cancel:       cancel,
	}
	e.tracker = session.NewTracker(session.Options{
		Store:     opts.Store,
		Evaluator: evaluator,
		Clock:     opts.Clock,
		Scheduler: opts.Scheduler,
		Grants:    opts.Grants,
		Metrics:   opts.Metrics,
		Handlers: session.Handlers{
			PostSession: e.runPostSession,
			MidSession:  e.runMidSession,
		},
	})
	return e, nil
}

// Run drives the session tracker until ctx is done or Close is called.
func (e *Engine) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-e.ctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	e.tracker.Run(ctx)
}

// Close cancels in-flight flows and waits for them to return, including the
// post-session and mid-session flows the tracker started.
func (e *Engine) Close() {
	e.cancel()
	if e.tracker.Started() {
		<-e.tracker.Done()
	}
	e.Wait()
}

// Wait blocks until every async flow started so far has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
	e.tracker.Wait()
}

func (e *Engine) Coordinator() *stats.Coordinator { return e.coordinator }

func (e *Engine) Buffer() *stats.Buffer { return e.buffer }

// Evaluate decides whether ch may fire now. It never claims a fire slot.
func (e *Engine) Evaluate(ctx context.Context, ch policy.Channel, ec policy.EvalContext) policy.Decision {
	return e.evaluator.Evaluate(ctx, ch, ec)
}

// OnBecameActive is the host's became-active hook. It also refreshes the
// remote config when the refresh interval has passed.
func (e *Engine) OnBecameActive() {
	e.tracker.OnBecameActive()
	if e.config.Due() {
		e.goAsync(func(ctx context.Context) {
			if err := e.config.Refresh(ctx); err != nil {
				logrus.Warnf("config refresh on activation failed: %v", err)
			}
		})
	}
}

// OnEnteredBackground is the host's entered-background hook. Buffered stats
// are synced inside their own background grant.
func (e *Engine) OnEnteredBackground() {
	e.tracker.OnEnteredBackground()

	e.wg.Add(1)
	session.RunWithGrant(e.ctx, e.grants, "stats-sync", func(ctx context.Context) {
		defer e.wg.Done()
		err := e.coordinator.Sync(ctx)
		switch {
		case err == nil, errors.Is(err, stats.ErrSyncInProgress):
		case errors.Is(err, context.Canceled):
			logrus.Info("background sync cancelled")
		default:
			logrus.Warnf("background sync failed: %v", err)
		}
	})
}

// MarkClickThrough suppresses the next post-session notification once.
func (e *Engine) MarkClickThrough() {
	e.tracker.MarkClickThrough()
}

// Session returns the session state as seen by the tracker.
func (e *Engine) Session(ctx context.Context) (session.State, error) {
	return e.tracker.Snapshot(ctx)
}

// Now reads the engine clock, which session timestamps are taken from.
func (e *Engine) Now() time.Time { return e.clock.Now() }

// RecordOutcome appends a telemetry event to the durable buffer.
func (e *Engine) RecordOutcome(ctx context.Context, event string, value int64, metadata map[string]string) error {
	if _, err := e.buffer.Add(ctx, event, value, metadata); err != nil {
		return fmt.Errorf("failed to record %s: %w", event, err)
	}
	return nil
}

// RequestSync uploads the buffered events now.
func (e *Engine) RequestSync(ctx context.Context) error {
	return e.coordinator.Sync(ctx)
}

// goAsync runs fn under the engine lifetime and tracks it for Wait.
func (e *Engine) goAsync(fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn(e.ctx)
	}()
}

// record stores a telemetry event; failures stay in the in-memory buffer and are only logged.
func (e *Engine) record(ctx context.Context, event string, metadata map[string]string) {
	if _, err := e.buffer.Add(ctx, event, 0, metadata); err != nil {
		logrus.Warnf("stat %s kept in memory only: %v", event, err)
	}
}

// claim evaluates ch and takes a fire slot on Allow.
func (e *Engine) claim(ctx context.Context, ch policy.Channel, ec policy.EvalContext) policy.Decision {
	d := e.evaluator.Evaluate(ctx, ch, ec)
	if !d.Allowed {
		return d
	}
	cfg, err := e.config.Get()
	if err != nil {
		return policy.Deny(policy.ReasonConfigUnavailable)
	}
	ok, _, err := e.caps.TryRecordFire(ctx, ch, cfg.Channel(ch).FrequencyCap)
	if err != nil {
		logrus.Warnf("fire of %s recorded in memory only: %v", ch, err)
	}
	if !ok {
		return policy.Deny(policy.ReasonFrequencyCap)
	}
	return d
}
