// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package offer

import (
	"context"
	"errors"
	"strings"
	"time"
)

// NotificationIDPrefix marks local notifications scheduled by the engine.
const NotificationIDPrefix = "offer-"

var (
	// ErrOfferFetchFailed wraps every failure to obtain an offer.
	ErrOfferFetchFailed = errors.New("offer fetch failed")

	// ErrNoOffer means the offer service answered but had nothing to show.
	ErrNoOffer = errors.New("no offer available")
)

// Offer is what the offer service returns for a request.
type Offer struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	ClickURL       string `json:"clickUrl"`
	DestinationURL string `json:"destinationUrl,omitempty"`
	IconURL        string `json:"iconUrl,omitempty"`
	ImpressionURL  string `json:"impressionUrl,omitempty"`
}

// Notification is a local notification handed to the Presenter.
type Notification struct {
	ID       string
	Title    string
	Body     string
	IconURL  string
	Delay    time.Duration
	UserInfo map[string]string
}

// IsEngineNotification reports whether id belongs to a notification scheduled by the engine.
func IsEngineNotification(id string) bool {
	return strings.HasPrefix(id, NotificationIDPrefix)
}

// NewNotification builds the notification for o. referenceID may be empty.
func NewNotification(o *Offer, titlePrefix, referenceID string, delay time.Duration) Notification {
	title := o.Title
	if titlePrefix != "" {
		title = titlePrefix + " " + o.Title
	}
	info := map[string]string{
		"offerId":  o.ID,
		"clickUrl": o.ClickURL,
	}
	if referenceID != "" {
		info["referenceId"] = referenceID
	}
	if o.DestinationURL != "" {
		info["destinationUrl"] = o.DestinationURL
	}
	if o.IconURL != "" {
		info["iconUrl"] = o.IconURL
	}
	if o.ImpressionURL != "" {
		info["impressionUrl"] = o.ImpressionURL
	}
	return Notification{
		ID:       NotificationIDPrefix + o.ID,
		Title:    title,
		Body:     o.Description,
		IconURL:  o.IconURL,
		Delay:    delay,
		UserInfo: info,
	}
}

// Source fetches the offer matching the request parameters.
type Source interface {
	FetchOffer(ctx context.Context, params map[string]interface{}) (*Offer, error)
}

// Presenter renders offers on the host. Outcomes flow back through the
// Request callbacks and the engine's notification handlers.
type Presenter interface {
	NotificationsAuthorized(ctx context.Context) bool
	ScheduleNotification(ctx context.Context, n Notification) error
	ClearNotifications(ctx context.Context) error
	ShowInterstitial(ctx context.Context, req *Request) error
	ShowMessage(ctx context.Context, req *Request) error
}

// ImpressionPinger reports that an offer was displayed.
type ImpressionPinger interface {
	Ping(ctx context.Context, url string) error
}
