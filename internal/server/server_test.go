// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AccelByte/extend-offer-engagement/pkg/metrics"

	"google.golang.org/grpc/health/grpc_health_v1"
)

type fakeCheck struct{ err error }

func (f *fakeCheck) Check(context.Context) error { return f.err }

func TestMetricsServer_ExposesAppCollectors(t *testing.T) {
	rec := metrics.New()
	rec.SessionStarted()

	m := NewMetricsServer(8080, "/metrics", rec.Collectors()...)
	if err := m.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "offer_engagement_") {
		t.Fatalf("application metrics missing from output")
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("runtime metrics missing from output")
	}
}

func TestGRPCServer_HealthFollowsCheck(t *testing.T) {
	check := &fakeCheck{}
	s := NewGRPCServer(6565, check)
	if err := s.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	ctx := context.Background()
	req := &grpc_health_v1.HealthCheckRequest{}

	s.updateHealth(ctx)
	resp, err := s.health.Check(ctx, req)
	if err != nil || resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v, err = %v, want SERVING", resp.GetStatus(), err)
	}

	check.err = errors.New("store down")
	s.updateHealth(ctx)
	resp, err = s.health.Check(ctx, req)
	if err != nil || resp.Status != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status = %v, err = %v, want NOT_SERVING", resp.GetStatus(), err)
	}
}
