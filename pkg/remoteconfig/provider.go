// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package remoteconfig

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AccelByte/extend-offer-engagement/pkg/common"
	"github.com/AccelByte/extend-offer-engagement/pkg/policy"
	"github.com/AccelByte/extend-offer-engagement/pkg/store"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const (
	remoteKey    = "config:remote"
	lastFetchKey = "config:last_fetch"
	overridesKey = "config:overrides"

	// DefaultMinRefreshInterval is the minimum time between two remote fetches.
	DefaultMinRefreshInterval = 6 * time.Hour
)

var (
	// ErrConfigUnavailable is returned by Get while no usable snapshot exists.
	ErrConfigUnavailable = errors.New("config unavailable")

	// ErrRefreshInProgress is returned by Refresh when another refresh is running.
	ErrRefreshInProgress = errors.New("config refresh already in progress")
)

// Fetcher retrieves the remote config document.
type Fetcher interface {
	FetchConfig(ctx context.Context) (map[string]interface{}, error)
}

// Options configures a Provider.
type Options struct {
	Defaults           policy.EligibilityConfig
	MinRefreshInterval time.Duration
	// RequireRemote withholds every snapshot until a remote document was applied once.
	RequireRemote bool
}

// Provider serves immutable EligibilityConfig snapshots. Readers never block:
// the current snapshot is swapped atomically after every change.
type Provider struct {
	store   store.Store
	fetcher Fetcher
	clock   common.Clock
	opts    Options

	current    atomic.Pointer[policy.EligibilityConfig]
	inProgress atomic.Bool

	// mu serializes writers of remote, overrides and lastFetch.
	mu        sync.Mutex
	remote    map[string]interface{}
	overrides policy.ClientOverrides
	lastFetch time.Time
}

// NewProvider restores the last applied remote document and client overrides
// from the store. Store failures are logged and leave the defaults in place.
func NewProvider(ctx context.Context, s store.Store, fetcher Fetcher, clock common.Clock, opts Options) *Provider {
	if opts.MinRefreshInterval <= 0 {
		opts.MinRefreshInterval = DefaultMinRefreshInterval
	}
	p := &Provider{
		store:   s,
		fetcher: fetcher,
		clock:   clock,
		opts:    opts,
	}

	var remote map[string]interface{}
	if found, err := store.GetJSON(ctx, s, remoteKey, &remote); err != nil {
		logrus.Warnf("failed to restore remote config: %v", err)
	} else if found {
		p.remote = remote
		logrus.Infof("restored remote config with %d keys", len(remote))
	}

	if _, err := store.GetJSON(ctx, s, overridesKey, &p.overrides); err != nil {
		logrus.Warnf("failed to restore client overrides: %v", err)
	}

	if data, err := s.Get(ctx, lastFetchKey); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, string(data)); err == nil {
			p.lastFetch = t
		}
	}

	p.rebuild()
	return p
}

// Get returns the current snapshot.
func (p *Provider) Get() (policy.EligibilityConfig, error) {
	cfg := p.current.Load()
	if cfg == nil {
		return policy.EligibilityConfig{}, ErrConfigUnavailable
	}
	return *cfg, nil
}

// rebuild must be called with mu held or before the provider is shared.
func (p *Provider) rebuild() {
	if p.remote == nil && p.opts.RequireRemote {
		p.current.Store(nil)
		return
	}
	cfg := p.opts.Defaults
	if p.remote != nil {
		cfg = applyRemote(cfg, p.remote)
	}
	cfg.Overrides = p.overrides
	p.current.Store(&cfg)
}

// Due reports whether the minimum refresh interval has elapsed.
func (p *Provider) Due() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastFetch.IsZero() || p.clock.Now().Sub(p.lastFetch) >= p.opts.MinRefreshInterval
}

// Refresh fetches and applies the remote document when it is due.
// Only one refresh runs at a time; a concurrent call returns ErrRefreshInProgress.
func (p *Provider) Refresh(ctx context.Context) error {
	if !p.Due() {
		logrus.Debugf("config refresh not due")
		return nil
	}
	if !p.inProgress.CompareAndSwap(false, true) {
		return ErrRefreshInProgress
	}
	defer p.inProgress.Store(false)

	start := p.clock.Now()
	raw, err := p.fetcher.FetchConfig(ctx)
	if err != nil {
		logrus.Errorf("config request failed: %v", err)
		return fmt.Errorf("failed to fetch remote config: %w", err)
	}
	logrus.Infof("config request succeeded in %v", p.clock.Now().Sub(start))

	p.mu.Lock()
	p.remote = raw
	p.lastFetch = p.clock.Now()
	p.rebuild()
	lastFetch := p.lastFetch
	p.mu.Unlock()

	if err := store.SetJSON(ctx, p.store, remoteKey, raw); err != nil {
		logrus.Errorf("failed to persist remote config: %v", err)
	}
	if err := p.store.Set(ctx, lastFetchKey, []byte(lastFetch.Format(time.RFC3339Nano))); err != nil {
		logrus.Errorf("failed to persist config fetch time: %v", err)
	}
	return nil
}

// Run refreshes whenever the config is due, checking every pollInterval.
// After a failed fetch the next attempt is delayed with exponential backoff.
func (p *Provider) Run(ctx context.Context, pollInterval time.Duration) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Second
	b.MaxInterval = pollInterval
	b.MaxElapsedTime = 0

	wait := time.Duration(0)
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		err := p.Refresh(ctx)
		switch {
		case err == nil || errors.Is(err, ErrRefreshInProgress):
			b.Reset()
			wait = pollInterval
		default:
			wait = b.NextBackOff()
			logrus.Warnf("config refresh failed, retrying in %v", wait)
		}
	}
}

// Overrides returns the client overrides currently applied.
func (p *Provider) Overrides() policy.ClientOverrides {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overrides
}

// UpdateOverrides applies fn to the client overrides, persists them and swaps the snapshot.
func (p *Provider) UpdateOverrides(ctx context.Context, fn func(o *policy.ClientOverrides)) error {
	p.mu.Lock()
	fn(&p.overrides)
	overrides := p.overrides
	p.rebuild()
	p.mu.Unlock()

	if err := store.SetJSON(ctx, p.store, overridesKey, overrides); err != nil {
		logrus.Errorf("failed to persist client overrides: %v", err)
		return err
	}
	return nil
}
