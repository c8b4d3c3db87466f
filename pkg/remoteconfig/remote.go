// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package remoteconfig

import (
	"time"

	"github.com/AccelByte/extend-offer-engagement/pkg/policy"

	"github.com/sirupsen/logrus"
)

// applyRemote overlays the keys of a remote config document on base.
// Unknown keys and values of the wrong type are ignored.
func applyRemote(base policy.EligibilityConfig, raw map[string]interface{}) policy.EligibilityConfig {
	cfg := base

	setString(raw, "apiUrl", &cfg.APIURL)
	setString(raw, "triggeredNotifPrefix", &cfg.TriggeredNotifPrefix)
	setBool(raw, "notifRouteToPopup", &cfg.NotifRouteToPopup)

	setInt(raw, "notifBlackoutWindow", &cfg.Notification.BlackoutMinutes)
	setInt(raw, "notifFrequencyCap", &cfg.Notification.FrequencyCap)

	setBool(raw, "postSessionNotifEnabled", &cfg.PostSession.Enabled)
	setString(raw, "postSessionNotifPrefix", &cfg.PostSession.TitlePrefix)
	setMillis(raw, "postSessionNotifDelay", &cfg.PostSession.Delay)
	setMillis(raw, "postSessionMinActiveTime", &cfg.PostSession.MinActiveTime)
	setInt(raw, "postSessionMinSessionCount", &cfg.PostSession.MinSessionCount)
	setInt(raw, "postSessionSessionInterval", &cfg.PostSession.SessionInterval)

	setBool(raw, "interstitialAdEnabled", &cfg.Interstitial.Enabled)
	setInt(raw, "interstitialFrequencyCap", &cfg.Interstitial.FrequencyCap)

	setBool(raw, "midSessionMessageEnabled", &cfg.Message.Enabled)
	setInt(raw, "midSessionMessageFrequencyCap", &cfg.Message.FrequencyCap)
	setInt(raw, "midSessionMessageSessionInterval", &cfg.MidSession.SessionInterval)
	setMillis(raw, "midSessionMessageDelay", &cfg.MidSession.Delay)
	setBool(raw, "midSessionMessageVibrate", &cfg.MidSession.Vibrate)
	setBool(raw, "midSessionMessageForcePopup", &cfg.MidSession.ForcePopup)
	setBool(raw, "midSessionMessageVTA", &cfg.MidSession.ViewThroughAttr)
	setMillis(raw, "midSessionMessageOverlayDelay", &cfg.MidSession.OverlayDelay)

	return cfg.Normalize()
}

func setString(raw map[string]interface{}, key string, dst *string) {
	v, ok := raw[key]
	if !ok {
		return
	}
	s, ok := v.(string)
	if !ok {
		logrus.Warnf("remote config %s has type %T, expected string", key, v)
		return
	}
	*dst = s
}

func setBool(raw map[string]interface{}, key string, dst *bool) {
	v, ok := raw[key]
	if !ok {
		return
	}
	b, ok := v.(bool)
	if !ok {
		logrus.Warnf("remote config %s has type %T, expected bool", key, v)
		return
	}
	*dst = b
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

func setInt(raw map[string]interface{}, key string, dst *int) {
	v, ok := raw[key]
	if !ok {
		return
	}
	n, ok := toInt(v)
	if !ok {
		logrus.Warnf("remote config %s has type %T, expected number", key, v)
		return
	}
	*dst = n
}

func setMillis(raw map[string]interface{}, key string, dst *time.Duration) {
	v, ok := raw[key]
	if !ok {
		return
	}
	n, ok := toInt(v)
	if !ok {
		logrus.Warnf("remote config %s has type %T, expected milliseconds", key, v)
		return
	}
	*dst = time.Duration(n) * time.Millisecond
}
