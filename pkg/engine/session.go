// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package engine

import (
	"context"
	"strconv"

	"github.com/AccelByte/extend-offer-engagement/pkg/offer"
	"github.com/AccelByte/extend-offer-engagement/pkg/session"

	"github.com/sirupsen/logrus"
)

const (
	eventSessionEnd = "session_end"
	eventMidSession = "mid_session"
)

// runPostSession schedules the session-end notification. It runs inside a
// background grant; ctx is cancelled when the grant expires.
func (e *Engine) runPostSession(ctx context.Context, st session.State) {
	meta := map[string]string{"sessionCount": strconv.FormatUint(st.SessionCount, 10)}
	result := func(r string) {
		meta["result"] = r
		e.record(context.WithoutCancel(ctx), StatPostSessionNotif, meta)
	}

	if !e.presenter.NotificationsAuthorized(ctx) {
		logrus.Info("post-session notification skipped: " + ReasonNotificationsUnauthorized)
		result("unauthorized")
		return
	}
	if err := e.presenter.ClearNotifications(ctx); err != nil {
		logrus.Warnf("failed to clear pending notifications: %v", err)
	}

	req, _ := e.lastConversion(ctx)
	req.Event = eventSessionEnd

	o, err := e.source.FetchOffer(ctx, req.Params())
	if err != nil {
		logrus.Infof("post-session notification not scheduled: %v", err)
		meta["error"] = err.Error()
		result("failure")
		return
	}

	cfg, err := e.config.Get()
	if err != nil {
		result("failure")
		return
	}
	n := offer.NewNotification(o, cfg.PostSession.TitlePrefix, "", cfg.PostSession.Delay)
	if err := e.presenter.ScheduleNotification(ctx, n); err != nil {
		logrus.Warnf("post-session notification not scheduled: %v", err)
		meta["error"] = err.Error()
		result("failure")
		return
	}
	meta["offerId"] = o.ID
	logrus.Infof("post-session notification for offer %s scheduled in %v", o.ID, n.Delay)
	result("success")
}

// runMidSession shows the deferred mid-session message.
func (e *Engine) runMidSession(ctx context.Context, st session.State) {
	req, _ := e.lastConversion(ctx)
	req.Event = eventMidSession
	req.ReferenceID = ""
	e.pending.Put(req)

	meta := map[string]string{
		"sessionCount": strconv.FormatUint(st.SessionCount, 10),
		"referenceId":  req.ReferenceID,
	}
	if err := e.presenter.ShowMessage(ctx, req); err != nil {
		e.pending.Remove(req.ReferenceID)
		logrus.Warnf("mid-session message not shown: %v", err)
		meta["result"] = "failure"
		meta["error"] = err.Error()
	} else {
		logrus.Infof("mid-session message %s shown", req.ReferenceID)
		meta["result"] = "success"
	}
	e.record(context.WithoutCancel(ctx), StatMidSessionMessage, meta)
}
