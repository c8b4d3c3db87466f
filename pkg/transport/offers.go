// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/AccelByte/extend-offer-engagement/pkg/offer"

	"github.com/sirupsen/logrus"
)

type offersResponse struct {
	Success *bool         `json:"success"`
	Message string        `json:"message"`
	Offers  []offer.Offer `json:"offers"`
}

// FetchOffer asks the offer service for one notification offer.
func (c *Client) FetchOffer(ctx context.Context, params map[string]interface{}) (*offer.Offer, error) {
	endpoint, err := c.endpoint(OffersPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", offer.ErrOfferFetchFailed, err)
	}

	body := c.envelope()
	body["nE"] = c.notifsEnabled()
	body["request"] = params
	body["count"] = 1
	body["type"] = "notif"

	var resp offersResponse
	if err := c.postJSON(ctx, endpoint, body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", offer.ErrOfferFetchFailed, err)
	}
	if resp.Success != nil && !*resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "unknown error"
		}
		return nil, fmt.Errorf("%w: %s", offer.ErrNoOffer, msg)
	}
	if len(resp.Offers) == 0 {
		return nil, offer.ErrNoOffer
	}

	o := resp.Offers[0]
	if o.ID == "" || o.Title == "" || o.ClickURL == "" {
		return nil, fmt.Errorf("%w: offer is missing id, title or clickUrl", offer.ErrOfferFetchFailed)
	}
	if o.DestinationURL == "<null>" {
		o.DestinationURL = ""
	}
	logrus.Debugf("fetched offer %s", o.ID)
	return &o, nil
}

// OfferWebURL is the page an interstitial loads for req.
func (c *Client) OfferWebURL(req *offer.Request) (string, error) {
	return c.webURL(OffersPath, req)
}

// MessageWebURL is the page a message banner loads for req.
func (c *Client) MessageWebURL(req *offer.Request) (string, error) {
	return c.webURL(MessagePath, req)
}

func (c *Client) webURL(path string, req *offer.Request) (string, error) {
	endpoint, err := c.endpoint(path)
	if err != nil {
		return "", err
	}
	q := c.query()
	q.Set("nE", fmt.Sprint(c.notifsEnabled()))
	q.Set("startTime", time.Now().UTC().Format(time.RFC3339))
	if req != nil {
		for k, v := range req.Params() {
			q.Set(k, fmt.Sprint(v))
		}
	}
	return endpoint + "?" + q.Encode(), nil
}

// LogInteraction reports an offer interaction such as a click.
func (c *Client) LogInteraction(ctx context.Context, event, offerID, referenceID string) error {
	endpoint, err := c.endpoint(EventPath)
	if err != nil {
		return err
	}
	q := c.query()
	q.Set("event", event)
	if offerID != "" {
		q.Set("oId", offerID)
	}
	if referenceID != "" {
		q.Set("orId", referenceID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("failed to log %s interaction: %w", event, err)
	}
	return nil
}

// Ping fires an impression url.
func (c *Client) Ping(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build impression request: %w", err)
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("failed to ping impression: %w", err)
	}
	return nil
}
