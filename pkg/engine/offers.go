// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AccelByte/extend-offer-engagement/pkg/common"
	"github.com/AccelByte/extend-offer-engagement/pkg/offer"
	"github.com/AccelByte/extend-offer-engagement/pkg/policy"
	"github.com/AccelByte/extend-offer-engagement/pkg/store"

	"github.com/sirupsen/logrus"
)

const (
	lastRequestKey = "offer:last_request"

	StatNotificationImpression = "notification-impression"
	StatNotificationClick      = "notification-click"
	StatInterstitialClick      = "click-inter"
	StatPostSessionNotif       = "post-session-notification"
	StatMidSessionMessage      = "mid-session-message"

	ReasonNotificationsUnauthorized = "notifications not authorized"
)

var immediate = policy.EvalContext{Trigger: policy.TriggerImmediate}

// conversion is the last request registered by the host, reused by the session flows.
type conversion struct {
	Request *offer.Request `json:"request"`
	At      time.Time      `json:"at"`
}

// TriggerOfferNotification shows an offer notification right away. The
// interstitial budget gates the attempt; without notification permission the
// offer is shown as a message instead. The returned decision is also delivered
// through the request callbacks.
func (e *Engine) TriggerOfferNotification(ctx context.Context, req *offer.Request, titlePrefix string) policy.Decision {
	scope := common.NewScope(ctx, "engine.TriggerOfferNotification")
	defer scope.Finish()

	if d := e.claim(scope.Ctx, policy.ChannelInterstitial, immediate); !d.Allowed {
		scope.Log.Infof("offer notification denied: %s", d.Reason)
		e.goAsync(func(context.Context) { req.NotifScheduled(false, d.Reason) })
		return d
	}

	cfg, _ := e.config.Get()
	if titlePrefix == "" {
		titlePrefix = cfg.TriggeredNotifPrefix
	}
	if err := e.RegisterConversion(scope.Ctx, req); err != nil {
		scope.Log.Warnf("conversion not persisted: %v", err)
	}

	if !e.presenter.NotificationsAuthorized(scope.Ctx) {
		scope.Log.Info("notifications not authorized, showing message instead")
		e.present(req, e.presenter.ShowMessage)
		return policy.Allow()
	}

	d := e.claim(scope.Ctx, policy.ChannelNotification, immediate)
	if !d.Allowed {
		scope.Log.Infof("offer notification denied: %s", d.Reason)
		e.goAsync(func(context.Context) { req.NotifScheduled(false, d.Reason) })
		return d
	}

	e.pending.Put(req)
	scope.SetAttributes("referenceId", req.ReferenceID)
	e.goAsync(func(ctx context.Context) {
		e.scheduleOfferNotification(ctx, req, titlePrefix)
	})
	return d
}

func (e *Engine) scheduleOfferNotification(ctx context.Context, req *offer.Request, titlePrefix string) {
	o, err := e.source.FetchOffer(ctx, req.Params())
	if err != nil {
		e.pending.Remove(req.ReferenceID)
		logrus.Infof("offer notification %s not scheduled: %v", req.ReferenceID, err)
		req.NotifScheduled(false, err.Error())
		return
	}

	n := offer.NewNotification(o, titlePrefix, req.ReferenceID, 0)
	if err := e.presenter.ScheduleNotification(ctx, n); err != nil {
		e.pending.Remove(req.ReferenceID)
		logrus.Warnf("offer notification %s not scheduled: %v", req.ReferenceID, err)
		req.NotifScheduled(false, err.Error())
		return
	}
	logrus.Infof("offer notification %s scheduled for offer %s", req.ReferenceID, o.ID)
	req.NotifScheduled(true, "")
}

// ShowOfferPopup shows an interstitial offer.
func (e *Engine) ShowOfferPopup(ctx context.Context, req *offer.Request) policy.Decision {
	scope := common.NewScope(ctx, "engine.ShowOfferPopup")
	defer scope.Finish()

	d := e.claim(scope.Ctx, policy.ChannelInterstitial, immediate)
	if !d.Allowed {
		scope.Log.Infof("offer popup denied: %s", d.Reason)
		e.goAsync(func(context.Context) { req.PopupShown(false, d.Reason) })
		return d
	}
	e.present(req, e.presenter.ShowInterstitial)
	return d
}

// ShowOfferMessage shows a banner offer on request of the host.
func (e *Engine) ShowOfferMessage(ctx context.Context, req *offer.Request) policy.Decision {
	scope := common.NewScope(ctx, "engine.ShowOfferMessage")
	defer scope.Finish()

	d := e.claim(scope.Ctx, policy.ChannelMessage, immediate)
	if !d.Allowed {
		scope.Log.Infof("offer message denied: %s", d.Reason)
		e.goAsync(func(context.Context) { req.PopupShown(false, d.Reason) })
		return d
	}
	e.present(req, e.presenter.ShowMessage)
	return d
}

// present registers req and hands it to show, reporting through OnPopupShown.
func (e *Engine) present(req *offer.Request, show func(context.Context, *offer.Request) error) {
	e.pending.Put(req)
	e.goAsync(func(ctx context.Context) {
		if err := show(ctx, req); err != nil {
			e.pending.Remove(req.ReferenceID)
			logrus.Warnf("offer %s not shown: %v", req.ReferenceID, err)
			req.PopupShown(false, err.Error())
			return
		}
		req.PopupShown(true, "")
	})
}

// RegisterConversion remembers req as the latest conversion for the session flows.
func (e *Engine) RegisterConversion(ctx context.Context, req *offer.Request) error {
	c := conversion{Request: req.CloneData(), At: e.clock.Now()}
	if err := store.SetJSON(ctx, e.store, lastRequestKey, c); err != nil {
		return fmt.Errorf("failed to register conversion: %w", err)
	}
	return nil
}

// lastConversion returns a callback-free copy of the latest conversion, or an empty request.
func (e *Engine) lastConversion(ctx context.Context) (*offer.Request, bool) {
	var c conversion
	found, err := store.GetJSON(ctx, e.store, lastRequestKey, &c)
	if err != nil {
		logrus.Warnf("last conversion unavailable: %v", err)
	}
	if !found || c.Request == nil {
		return &offer.Request{}, false
	}
	return c.Request, true
}

// HandleNotificationPresented is reported by the host when an engine notification was displayed.
func (e *Engine) HandleNotificationPresented(ctx context.Context, referenceID, impressionURL string) error {
	if impressionURL != "" && e.pinger != nil {
		e.goAsync(func(ctx context.Context) {
			if err := e.pinger.Ping(ctx, impressionURL); err != nil {
				logrus.Warnf("impression ping failed: %v", err)
			}
		})
	}
	e.record(ctx, StatNotificationImpression, map[string]string{"referenceId": referenceID})

	req, ok := e.pending.Get(referenceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReference, referenceID)
	}
	e.goAsync(func(context.Context) { req.NotifSent() })
	return nil
}

// HandleNotificationTapped is reported by the host when the user opened an engine notification.
func (e *Engine) HandleNotificationTapped(ctx context.Context, referenceID, offerID string) error {
	e.tracker.MarkClickThrough()
	e.record(ctx, StatNotificationClick, map[string]string{"referenceId": referenceID, "offerId": offerID})
	e.logInteraction("click", offerID, referenceID)

	req, pending := e.pending.Take(referenceID)
	if pending {
		e.goAsync(func(context.Context) { req.Clicked() })
	}

	cfg, err := e.config.Get()
	if err == nil && cfg.NotifRouteToPopup {
		if last, ok := e.lastConversion(ctx); ok {
			last.ReferenceID = ""
			e.ShowOfferPopup(ctx, last)
		}
	}

	if !pending {
		return fmt.Errorf("%w: %s", ErrUnknownReference, referenceID)
	}
	return nil
}

// HandlePopupClicked is reported by the host when the user clicked an offer in an interstitial or message.
func (e *Engine) HandlePopupClicked(ctx context.Context, referenceID, offerID, clickURL string) error {
	e.tracker.MarkClickThrough()
	e.record(ctx, StatInterstitialClick, map[string]string{"offerId": offerID, "clickUrl": clickURL})
	e.logInteraction("click-inter", offerID, referenceID)

	req, ok := e.pending.Take(referenceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReference, referenceID)
	}
	e.goAsync(func(context.Context) { req.Clicked() })
	return nil
}

// HandlePopupCanceled is reported by the host when the user dismissed an interstitial or message.
func (e *Engine) HandlePopupCanceled(_ context.Context, referenceID string) error {
	req, ok := e.pending.Take(referenceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReference, referenceID)
	}
	e.goAsync(func(context.Context) { req.PopupCanceled() })
	return nil
}

func (e *Engine) logInteraction(event, offerID, referenceID string) {
	if e.interactions == nil {
		return
	}
	e.goAsync(func(ctx context.Context) {
		if err := e.interactions.LogInteraction(ctx, event, offerID, referenceID); err != nil && !errors.Is(err, context.Canceled) {
			logrus.Warnf("interaction %s not logged: %v", event, err)
		}
	})
}
