// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_RegistersAndCounts(t *testing.T) {
	r := New()
	registry := prometheus.NewRegistry()
	registry.MustRegister(r.Collectors()...)

	r.Decision("notification", "post_session", false, "session gating")
	r.Decision("notification", "post_session", true, "")
	r.Fire("notification")
	r.BufferedEvents(4)

	if got := testutil.ToFloat64(r.decisions.WithLabelValues("notification", "post_session", "session gating")); got != 1 {
		t.Errorf("deny counter = %v, expected 1", got)
	}
	if got := testutil.ToFloat64(r.decisions.WithLabelValues("notification", "post_session", "allow")); got != 1 {
		t.Errorf("allow counter = %v, expected 1", got)
	}
	if got := testutil.ToFloat64(r.fires.WithLabelValues("notification")); got != 1 {
		t.Errorf("fires = %v, expected 1", got)
	}
	if got := testutil.ToFloat64(r.bufferedEvents); got != 4 {
		t.Errorf("buffered = %v, expected 4", got)
	}
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	r.Decision("message", "mid_session", true, "")
	r.Fire("message")
	r.SessionStarted()
	r.Suppressed("click_through")
	r.BufferedEvents(1)
	r.Sync("success", 0.1)
	r.PendingRequests(2)
	r.StoreFailure("caps")
}
