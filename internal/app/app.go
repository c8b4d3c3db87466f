// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/AccelByte/extend-offer-engagement/internal/bootstrap"
	"github.com/AccelByte/extend-offer-engagement/internal/config"
	"github.com/AccelByte/extend-offer-engagement/internal/server"
	"github.com/AccelByte/extend-offer-engagement/pkg/handler"
	"github.com/AccelByte/extend-offer-engagement/pkg/store"

	"github.com/sirupsen/logrus"
)

// App holds all application dependencies and manages the application lifecycle.
type App struct {
	cfg               *config.Config
	store             store.Store
	components        *bootstrap.Components
	grpcServer        *server.GRPCServer
	metricsServer     *server.MetricsServer
	httpServer        *server.HTTPServer
	shutdownTelemetry func(context.Context) error

	stopLoops context.CancelFunc
	loops     sync.WaitGroup
}

// New creates and initializes a new application instance.
//
// Components are initialized in dependency order:
// store, engine (policy defaults, install id, transport, config provider),
// servers, telemetry.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logrus.Info("initializing application...")

	app := &App{cfg: cfg}

	s, err := bootstrap.InitStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}
	app.store = s

	components, err := bootstrap.InitEngine(ctx, cfg, s)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to init engine: %w", err)
	}
	app.components = components

	app.grpcServer = server.NewGRPCServer(cfg.GRPCPort, store.NewHealthChecker(s))
	if err := app.grpcServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup gRPC server: %w", err)
	}

	app.metricsServer = server.NewMetricsServer(cfg.MetricsPort, "/metrics", components.Metrics.Collectors()...)
	if err := app.metricsServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup metrics server: %w", err)
	}

	app.httpServer = server.NewHTTPServer(cfg.HTTPPort, handler.NewControl(components.Engine).Routes())

	shutdownTelemetry, err := server.SetupTelemetry(ctx, cfg.ServiceName, cfg.Environment, cfg.ZipkinEndpoint, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to setup telemetry: %w", err)
	}
	app.shutdownTelemetry = shutdownTelemetry

	logrus.Info("application initialized successfully")

	return app, nil
}

// startLoops runs the session tracker, the periodic stats sync and the config refresh loop.
func (a *App) startLoops(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	a.stopLoops = cancel

	e := a.components.Engine
	loops := []func(context.Context){
		e.Run,
		func(ctx context.Context) { e.Coordinator().Run(ctx, a.cfg.SyncInterval) },
		func(ctx context.Context) { a.components.Provider.Run(ctx, a.cfg.ConfigPollInterval) },
	}
	for _, loop := range loops {
		a.loops.Add(1)
		go func(run func(context.Context)) {
			defer a.loops.Done()
			run(ctx)
		}(loop)
	}
	logrus.Infof("started %d background loops", len(loops))
}
