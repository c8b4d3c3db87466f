// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package policy

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrInvalidConfigValue marks a knob that had to be coerced into its valid range.
var ErrInvalidConfigValue = errors.New("invalid config value")

// ChannelConfig holds the knobs shared by every channel.
type ChannelConfig struct {
	Enabled         bool `json:"enabled" yaml:"enabled"`
	FrequencyCap    int  `json:"frequencyCap" yaml:"frequencyCap"`
	BlackoutMinutes int  `json:"blackoutMinutes" yaml:"blackoutMinutes"`
}

// PostSessionConfig governs the notification evaluated when a session ends.
type PostSessionConfig struct {
	Enabled         bool          `json:"enabled" yaml:"enabled"`
	Delay           time.Duration `json:"delay" yaml:"delay"`
	MinActiveTime   time.Duration `json:"minActiveTime" yaml:"minActiveTime"`
	MinSessionCount int           `json:"minSessionCount" yaml:"minSessionCount"`
	SessionInterval int           `json:"sessionInterval" yaml:"sessionInterval"`
	TitlePrefix     string        `json:"titlePrefix" yaml:"titlePrefix"`
}

// MidSessionConfig governs the deferred message armed when a session starts.
type MidSessionConfig struct {
	SessionInterval int           `json:"sessionInterval" yaml:"sessionInterval"`
	Delay           time.Duration `json:"delay" yaml:"delay"`
	Vibrate         bool          `json:"vibrate" yaml:"vibrate"`
	ForcePopup      bool          `json:"forcePopup" yaml:"forcePopup"`
	ViewThroughAttr bool          `json:"viewThroughAttribution" yaml:"viewThroughAttribution"`
	OverlayDelay    time.Duration `json:"overlayDelay" yaml:"overlayDelay"`
}

// ClientOverrides are kill switches set by the embedding application.
type ClientOverrides struct {
	PostSessionNotifDisabled  bool `json:"postSessionNotifDisabled"`
	MidSessionMessageDisabled bool `json:"midSessionMessageDisabled"`
}

// EligibilityConfig is an immutable snapshot of every policy knob.
// It is passed by value; nothing in the engine mutates a snapshot.
type EligibilityConfig struct {
	Notification         ChannelConfig     `json:"notification" yaml:"notification"`
	Interstitial         ChannelConfig     `json:"interstitial" yaml:"interstitial"`
	Message              ChannelConfig     `json:"message" yaml:"message"`
	PostSession          PostSessionConfig `json:"postSession" yaml:"postSession"`
	MidSession           MidSessionConfig  `json:"midSession" yaml:"midSession"`
	TriggeredNotifPrefix string            `json:"triggeredNotifPrefix" yaml:"triggeredNotifPrefix"`
	NotifRouteToPopup    bool              `json:"notifRouteToPopup" yaml:"notifRouteToPopup"`
	APIURL               string            `json:"apiUrl" yaml:"apiUrl"`
	Overrides            ClientOverrides   `json:"-" yaml:"-"`
}

// DefaultConfig returns the built-in knobs used before any remote config arrives.
func DefaultConfig() EligibilityConfig {
	return EligibilityConfig{
		Notification: ChannelConfig{Enabled: true, FrequencyCap: 1, BlackoutMinutes: 60},
		Interstitial: ChannelConfig{Enabled: true, FrequencyCap: 3},
		Message:      ChannelConfig{Enabled: true, FrequencyCap: 1},
		PostSession: PostSessionConfig{
			Enabled:         true,
			Delay:           30 * time.Second,
			MinActiveTime:   5 * time.Second,
			MinSessionCount: 2,
			SessionInterval: 1,
			TitlePrefix:     "",
		},
		MidSession: MidSessionConfig{
			SessionInterval: 3,
			Delay:           2 * time.Minute,
		},
		APIURL: "https://api.atargrowth.com",
	}
}

// Channel returns the knobs of ch. Unknown channels come back disabled.
func (c EligibilityConfig) Channel(ch Channel) ChannelConfig {
	switch ch {
	case ChannelNotification:
		return c.Notification
	case ChannelInterstitial:
		return c.Interstitial
	case ChannelMessage:
		return c.Message
	}
	return ChannelConfig{}
}

// Normalize coerces every interval and cap into its valid range.
func (c EligibilityConfig) Normalize() EligibilityConfig {
	c.Notification.FrequencyCap = CoerceMin("notification.frequencyCap", c.Notification.FrequencyCap)
	c.Interstitial.FrequencyCap = CoerceMin("interstitial.frequencyCap", c.Interstitial.FrequencyCap)
	c.Message.FrequencyCap = CoerceMin("message.frequencyCap", c.Message.FrequencyCap)
	c.PostSession.MinSessionCount = CoerceMin("postSession.minSessionCount", c.PostSession.MinSessionCount)
	c.PostSession.SessionInterval = CoerceMin("postSession.sessionInterval", c.PostSession.SessionInterval)
	c.MidSession.SessionInterval = CoerceMin("midSession.sessionInterval", c.MidSession.SessionInterval)
	for _, d := range []*time.Duration{&c.PostSession.Delay, &c.PostSession.MinActiveTime, &c.MidSession.Delay, &c.MidSession.OverlayDelay} {
		if *d < 0 {
			*d = 0
		}
	}
	return c
}

// CoerceMin returns v, or 1 with a warning when v is not positive.
func CoerceMin(name string, v int) int {
	if v <= 0 {
		logrus.Warnf("%v: %s = %d, using 1", ErrInvalidConfigValue, name, v)
		return 1
	}
	return v
}
