// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPServer serves the control API.
type HTTPServer struct {
	server *http.Server
	port   int
}

// NewHTTPServer wraps routes with otelhttp so every request starts a server span.
func NewHTTPServer(port int, routes http.Handler) *HTTPServer {
	return &HTTPServer{
		port: port,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           otelhttp.NewHandler(routes, "control"),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start begins serving the control API on the configured port.
func (h *HTTPServer) Start(ctx context.Context) error {
	go func() {
		logrus.Infof("control server listening on port %d", h.port)
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("control server failed: %v", err)
		}
	}()
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (h *HTTPServer) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down control server...")
	if err := h.server.Shutdown(ctx); err != nil {
		return err
	}
	logrus.Info("control server stopped")
	return nil
}
