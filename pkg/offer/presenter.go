// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package offer

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogPresenter only logs what it was asked to show. It is used when no host
// presenter is attached; notifications are reported as unauthorized.
type LogPresenter struct{}

func (LogPresenter) NotificationsAuthorized(context.Context) bool { return false }

func (LogPresenter) ScheduleNotification(_ context.Context, n Notification) error {
	logrus.WithFields(logrus.Fields{
		"id":    n.ID,
		"title": n.Title,
		"delay": n.Delay,
	}).Info("notification scheduled")
	return nil
}

func (LogPresenter) ClearNotifications(context.Context) error {
	logrus.Info("notifications cleared")
	return nil
}

func (LogPresenter) ShowInterstitial(_ context.Context, req *Request) error {
	logrus.WithField("referenceId", req.ReferenceID).Info("interstitial shown")
	return nil
}

func (LogPresenter) ShowMessage(_ context.Context, req *Request) error {
	logrus.WithField("referenceId", req.ReferenceID).Info("message shown")
	return nil
}
