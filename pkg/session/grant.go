// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Grant is a bounded time budget the host gives us to finish work after backgrounding.
type Grant interface {
	End()
}

// GrantProvider hands out grants. onExpire is called when the host takes the budget back.
type GrantProvider interface {
	Begin(name string, onExpire func()) (Grant, error)
}

// Scheduler runs f once after d. Armed functions are never cancelled; callers guard with an epoch.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

type SystemScheduler struct{}

func (SystemScheduler) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

// TimedGrantProvider gives out grants that expire after a fixed budget.
type TimedGrantProvider struct {
	Budget time.Duration
}

type timedGrant struct {
	timer *time.Timer
}

func (g *timedGrant) End() {
	g.timer.Stop()
}

func (p TimedGrantProvider) Begin(name string, onExpire func()) (Grant, error) {
	budget := p.Budget
	if budget <= 0 {
		budget = 30 * time.Second
	}
	return &timedGrant{timer: time.AfterFunc(budget, func() {
		logrus.Infof("background grant %q expired after %v", name, budget)
		onExpire()
	})}, nil
}

type grantScope struct {
	cancel context.CancelFunc
	once   sync.Once

	mu       sync.Mutex
	grant    Grant
	released bool
}

func (s *grantScope) attach(g Grant) {
	s.mu.Lock()
	s.grant = g
	released := s.released
	s.mu.Unlock()
	if released {
		g.End()
	}
}

func (s *grantScope) release() {
	s.once.Do(func() {
		s.cancel()
		s.mu.Lock()
		g := s.grant
		s.released = true
		s.mu.Unlock()
		if g != nil {
			g.End()
		}
	})
}

// RunWithGrant runs fn on its own goroutine inside a background grant.
// The context passed to fn is cancelled when the grant expires, and the grant
// is ended exactly once whichever way fn finishes. Without a grant fn still runs.
func RunWithGrant(parent context.Context, grants GrantProvider, name string, fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(parent)
	scope := &grantScope{cancel: cancel}

	if grants != nil {
		g, err := grants.Begin(name, scope.release)
		if err != nil {
			logrus.Warnf("running %s without a background grant: %v", name, err)
		} else if g != nil {
			scope.attach(g)
		}
	}

	go func() {
		defer scope.release()
		fn(ctx)
	}()
}
