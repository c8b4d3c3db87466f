// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package policy

import (
	"fmt"
	"time"
)

// Channel is a presentation surface with its own daily cap.
type Channel string

const (
	ChannelNotification Channel = "notification"
	ChannelInterstitial Channel = "interstitial"
	ChannelMessage      Channel = "message"
)

// Channels lists every channel in a stable order.
var Channels = []Channel{ChannelNotification, ChannelInterstitial, ChannelMessage}

func (c Channel) Valid() bool {
	switch c {
	case ChannelNotification, ChannelInterstitial, ChannelMessage:
		return true
	}
	return false
}

// ParseChannel returns an error for names outside Channels.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown channel %q", s)
	}
	return c, nil
}

// Trigger is the moment an evaluation happens at.
type Trigger string

const (
	TriggerPostSession Trigger = "post_session"
	TriggerMidSession  Trigger = "mid_session"
	TriggerImmediate   Trigger = "immediate"
)

// ParseTrigger returns an error for unknown trigger names.
func ParseTrigger(s string) (Trigger, error) {
	switch t := Trigger(s); t {
	case TriggerPostSession, TriggerMidSession, TriggerImmediate:
		return t, nil
	}
	return "", fmt.Errorf("unknown trigger %q", s)
}

// Deny reasons. They are stable strings surfaced to callers and metrics.
const (
	ReasonChannelDisabled   = "channel disabled"
	ReasonBlackoutWindow    = "blackout window"
	ReasonFrequencyCap      = "frequency cap reached"
	ReasonSessionGating     = "session gating"
	ReasonConfigUnavailable = "config unavailable"
)

// Decision is the outcome of one eligibility evaluation.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func Allow() Decision { return Decision{Allowed: true} }

func Deny(reason string) Decision { return Decision{Reason: reason} }

func (d Decision) String() string {
	if d.Allowed {
		return "allow"
	}
	return "deny(" + d.Reason + ")"
}

// EvalContext carries the session facts an evaluation depends on.
type EvalContext struct {
	Trigger        Trigger
	SessionCount   uint64
	ActiveDuration time.Duration
}

// ChannelCapState is the persisted per-channel daily counter.
type ChannelCapState struct {
	DayBucket   string    `json:"dayBucket"`
	CountToday  uint32    `json:"countToday"`
	LastFiredAt time.Time `json:"lastFiredAt"`
}
