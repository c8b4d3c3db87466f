// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package transport

import (
	"context"
	"fmt"

	"github.com/AccelByte/extend-offer-engagement/pkg/offer"

	"github.com/sirupsen/logrus"
)

// WebhookPresenter forwards presentation commands to a host process over HTTP.
// The host reports what it displayed back through the control API.
type WebhookPresenter struct {
	url        string
	client     *Client
	authorized bool
}

// NewWebhookPresenter posts commands to url. authorized tells the engine whether
// the host may show local notifications.
func NewWebhookPresenter(url string, client *Client, authorized bool) *WebhookPresenter {
	return &WebhookPresenter{
		url:        url,
		client:     client,
		authorized: authorized,
	}
}

type presenterCommand struct {
	Action       string            `json:"action"`
	ReferenceID  string            `json:"referenceId,omitempty"`
	URL          string            `json:"url,omitempty"`
	Notification *notificationBody `json:"notification,omitempty"`
}

type notificationBody struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	IconURL      string            `json:"iconUrl,omitempty"`
	DelaySeconds float64           `json:"delaySeconds"`
	UserInfo     map[string]string `json:"userInfo,omitempty"`
}

func (p *WebhookPresenter) send(ctx context.Context, cmd presenterCommand) error {
	if err := p.client.postJSON(ctx, p.url, cmd, nil); err != nil {
		return fmt.Errorf("presenter %s: %w", cmd.Action, err)
	}
	return nil
}

func (p *WebhookPresenter) NotificationsAuthorized(context.Context) bool {
	return p.authorized
}

func (p *WebhookPresenter) ScheduleNotification(ctx context.Context, n offer.Notification) error {
	return p.send(ctx, presenterCommand{
		Action:      "schedule_notification",
		ReferenceID: n.UserInfo["referenceId"],
		Notification: &notificationBody{
			ID:           n.ID,
			Title:        n.Title,
			Body:         n.Body,
			IconURL:      n.IconURL,
			DelaySeconds: n.Delay.Seconds(),
			UserInfo:     n.UserInfo,
		},
	})
}

func (p *WebhookPresenter) ClearNotifications(ctx context.Context) error {
	return p.send(ctx, presenterCommand{Action: "clear_notifications"})
}

func (p *WebhookPresenter) ShowInterstitial(ctx context.Context, req *offer.Request) error {
	u, err := p.client.OfferWebURL(req)
	if err != nil {
		return err
	}
	logrus.Debugf("showing interstitial %s", req.ReferenceID)
	return p.send(ctx, presenterCommand{Action: "show_interstitial", ReferenceID: req.ReferenceID, URL: u})
}

func (p *WebhookPresenter) ShowMessage(ctx context.Context, req *offer.Request) error {
	u, err := p.client.MessageWebURL(req)
	if err != nil {
		return err
	}
	logrus.Debugf("showing message %s", req.ReferenceID)
	return p.send(ctx, presenterCommand{Action: "show_message", ReferenceID: req.ReferenceID, URL: u})
}
