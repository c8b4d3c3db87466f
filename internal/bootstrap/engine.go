// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package bootstrap

import (
	"context"
	"fmt"

	"github.com/AccelByte/extend-offer-engagement/internal/config"
	"github.com/AccelByte/extend-offer-engagement/pkg/common"
	"github.com/AccelByte/extend-offer-engagement/pkg/engine"
	"github.com/AccelByte/extend-offer-engagement/pkg/metrics"
	"github.com/AccelByte/extend-offer-engagement/pkg/offer"
	"github.com/AccelByte/extend-offer-engagement/pkg/remoteconfig"
	"github.com/AccelByte/extend-offer-engagement/pkg/session"
	"github.com/AccelByte/extend-offer-engagement/pkg/store"
	"github.com/AccelByte/extend-offer-engagement/pkg/transport"

	"github.com/sirupsen/logrus"
)

// Components is everything InitEngine builds on top of the store.
type Components struct {
	Engine    *engine.Engine
	Provider  *remoteconfig.Provider
	Client    *transport.Client
	Presenter offer.Presenter
	Metrics   *metrics.Recorder
}

// InitEngine loads the policy defaults, resolves the install id and builds the
// transport, config provider and engine.
func InitEngine(ctx context.Context, cfg *config.Config, s store.Store) (*Components, error) {
	defaults, err := remoteconfig.LoadDefaults(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy defaults: %w", err)
	}
	logrus.Infof("loaded policy defaults from %s", cfg.PolicyPath)

	anonID, err := engine.LoadOrCreateAnonID(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("failed to load install id: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	c := &Components{Metrics: metrics.New()}

	// The base url follows the remote config unless API_URL pins it.
	baseURL := func() string {
		if cfg.APIURL != "" {
			return cfg.APIURL
		}
		if snapshot, err := c.Provider.Get(); err == nil && snapshot.APIURL != "" {
			return snapshot.APIURL
		}
		return defaults.APIURL
	}

	c.Client = transport.NewClient(transport.ClientOptions{
		BaseURL: baseURL,
		Device: transport.DeviceInfo{
			AppKey:     cfg.AppKey,
			BundleID:   cfg.BundleID,
			AppVersion: cfg.AppVersion,
			OS:         cfg.DeviceOS,
			Platform:   cfg.Platform,
			AnonID:     anonID,
			AdID:       cfg.AdID,
		},
		NotificationsEnabled: func() bool {
			return c.Presenter.NotificationsAuthorized(context.Background())
		},
		Timeout: cfg.APITimeout,
	})
	c.Presenter = InitPresenter(cfg, c.Client)

	c.Provider = remoteconfig.NewProvider(ctx, s, c.Client, common.SystemClock{}, remoteconfig.Options{
		Defaults:           defaults,
		MinRefreshInterval: cfg.ConfigRefreshInterval,
		RequireRemote:      cfg.RequireRemoteConfig,
	})

	c.Engine, err = engine.New(ctx, engine.Options{
		Store:        s,
		Config:       c.Provider,
		Source:       c.Client,
		Presenter:    c.Presenter,
		Uploader:     c.Client,
		Pinger:       c.Client,
		Interactions: c.Client,
		Clock:        common.SystemClock{},
		Location:     loc,
		Scheduler:    session.SystemScheduler{},
		Grants:       session.TimedGrantProvider{Budget: cfg.GrantBudget},
		Metrics:      c.Metrics,
		PendingTTL:   cfg.PendingTTL,
		MaxPending:   cfg.MaxPending,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"anonId":   anonID,
		"timezone": loc.String(),
	}).Info("engine initialized")
	return c, nil
}

// InitPresenter forwards presentation to PRESENTER_WEBHOOK_URL, or logs it when unset.
func InitPresenter(cfg *config.Config, client *transport.Client) offer.Presenter {
	if cfg.PresenterWebhookURL == "" {
		logrus.Warn("no presenter webhook configured; offers are logged only")
		return offer.LogPresenter{}
	}
	logrus.Infof("presenting offers through %s", cfg.PresenterWebhookURL)
	return transport.NewWebhookPresenter(cfg.PresenterWebhookURL, client, cfg.NotificationsAllowed)
}
