// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package policy

import (
	"context"
	"time"

	"github.com/AccelByte/extend-offer-engagement/pkg/common"
	"github.com/AccelByte/extend-offer-engagement/pkg/metrics"

	"github.com/sirupsen/logrus"
)

// ConfigSource hands out the current config snapshot.
type ConfigSource interface {
	Get() (EligibilityConfig, error)
}

// check is one gating rule. It returns a deny decision and true when it fails.
type check struct {
	name string
	fn   func(ctx context.Context, ch Channel, cfg EligibilityConfig, ec EvalContext) (Decision, bool)
}

// Evaluator combines every gating rule into one Allow/Deny decision.
// Checks run in a fixed order and the first failing check wins.
// Evaluate never mutates state.
type Evaluator struct {
	caps    *FrequencyCapPolicy
	config  ConfigSource
	clock   common.Clock
	metrics *metrics.Recorder
	checks  []check
}

func NewEvaluator(caps *FrequencyCapPolicy, config ConfigSource, clock common.Clock, m *metrics.Recorder) *Evaluator {
	e := &Evaluator{
		caps:    caps,
		config:  config,
		clock:   clock,
		metrics: m,
	}
	e.checks = []check{
		{name: "enabled", fn: e.checkEnabled},
		{name: "blackout", fn: e.checkBlackout},
		{name: "frequency_cap", fn: e.checkFrequencyCap},
		{name: "session_gating", fn: e.checkSessionGating},
	}
	return e
}

// Config returns the snapshot the next evaluation would use.
func (e *Evaluator) Config() (EligibilityConfig, error) {
	return e.config.Get()
}

// Caps exposes the frequency cap policy used by the evaluator.
func (e *Evaluator) Caps() *FrequencyCapPolicy {
	return e.caps
}

// Evaluate decides whether ch may fire now.
func (e *Evaluator) Evaluate(ctx context.Context, ch Channel, ec EvalContext) Decision {
	d := e.evaluate(ctx, ch, ec)
	e.metrics.Decision(string(ch), string(ec.Trigger), d.Allowed, d.Reason)
	logrus.WithFields(logrus.Fields{
		"channel":      ch,
		"trigger":      ec.Trigger,
		"sessionCount": ec.SessionCount,
		"decision":     d.String(),
	}).Debug("eligibility evaluated")
	return d
}

func (e *Evaluator) evaluate(ctx context.Context, ch Channel, ec EvalContext) Decision {
	cfg, err := e.config.Get()
	if err != nil {
		logrus.Warnf("eligibility for %s denied: %v", ch, err)
		return Deny(ReasonConfigUnavailable)
	}
	if !ch.Valid() {
		return Deny(ReasonChannelDisabled)
	}

	for _, c := range e.checks {
		if d, failed := c.fn(ctx, ch, cfg, ec); failed {
			logrus.Debugf("%s check failed for %s: %s", c.name, ch, d.Reason)
			return d
		}
	}
	return Allow()
}

func (e *Evaluator) checkEnabled(_ context.Context, ch Channel, cfg EligibilityConfig, ec EvalContext) (Decision, bool) {
	if !cfg.Channel(ch).Enabled {
		return Deny(ReasonChannelDisabled), true
	}
	switch {
	case ec.Trigger == TriggerPostSession && (!cfg.PostSession.Enabled || cfg.Overrides.PostSessionNotifDisabled):
		return Deny(ReasonChannelDisabled), true
	case ch == ChannelMessage && cfg.Overrides.MidSessionMessageDisabled:
		return Deny(ReasonChannelDisabled), true
	}
	return Decision{}, false
}

func (e *Evaluator) checkBlackout(ctx context.Context, ch Channel, cfg EligibilityConfig, _ EvalContext) (Decision, bool) {
	minutes := cfg.Channel(ch).BlackoutMinutes
	if minutes <= 0 {
		return Decision{}, false
	}
	st, ok, err := e.caps.State(ctx, ch)
	if !ok {
		logrus.Warnf("blackout state of %s unknown, denying: %v", ch, err)
		return Deny(ReasonBlackoutWindow), true
	}
	if st.LastFiredAt.IsZero() {
		return Decision{}, false
	}
	if e.clock.Now().Before(st.LastFiredAt.Add(time.Duration(minutes) * time.Minute)) {
		return Deny(ReasonBlackoutWindow), true
	}
	return Decision{}, false
}

func (e *Evaluator) checkFrequencyCap(ctx context.Context, ch Channel, cfg EligibilityConfig, _ EvalContext) (Decision, bool) {
	ok, err := e.caps.CanFire(ctx, ch, cfg.Channel(ch).FrequencyCap)
	if err != nil {
		logrus.Warnf("frequency cap of %s evaluated without the store: %v", ch, err)
	}
	if !ok {
		return Deny(ReasonFrequencyCap), true
	}
	return Decision{}, false
}

func (e *Evaluator) checkSessionGating(_ context.Context, _ Channel, cfg EligibilityConfig, ec EvalContext) (Decision, bool) {
	switch ec.Trigger {
	case TriggerPostSession:
		ps := cfg.PostSession
		minCount := uint64(CoerceMin("postSession.minSessionCount", ps.MinSessionCount))
		interval := uint64(CoerceMin("postSession.sessionInterval", ps.SessionInterval))
		if ec.SessionCount < minCount || ec.SessionCount%interval != 0 || ec.ActiveDuration < ps.MinActiveTime {
			return Deny(ReasonSessionGating), true
		}
	case TriggerMidSession:
		interval := uint64(CoerceMin("midSession.sessionInterval", cfg.MidSession.SessionInterval))
		if ec.SessionCount%interval != 0 {
			return Deny(ReasonSessionGating), true
		}
	}
	return Decision{}, false
}

// MidSessionDue reports whether a session with this count arms the mid-session trigger.
func MidSessionDue(cfg EligibilityConfig, sessionCount uint64) bool {
	if !cfg.Message.Enabled || cfg.Overrides.MidSessionMessageDisabled {
		return false
	}
	interval := uint64(CoerceMin("midSession.sessionInterval", cfg.MidSession.SessionInterval))
	return sessionCount%interval == 0
}
