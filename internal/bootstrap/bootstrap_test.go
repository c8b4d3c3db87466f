// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AccelByte/extend-offer-engagement/internal/config"
	"github.com/AccelByte/extend-offer-engagement/pkg/offer"
	"github.com/AccelByte/extend-offer-engagement/pkg/store"
	"github.com/AccelByte/extend-offer-engagement/pkg/transport"

	"github.com/alicebob/miniredis/v2"
)

const testPolicy = `
apiUrl: https://offers.example.com
notification:
  enabled: true
  frequencyCap: 2
interstitial:
  enabled: true
  frequencyCap: 3
message:
  enabled: true
  frequencyCap: 1
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	policyPath := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(policyPath, []byte(testPolicy), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return &config.Config{
		StoreBackend:          config.StoreMemory,
		SQLitePath:            filepath.Join(dir, "db", "engagement.db"),
		PolicyPath:            policyPath,
		ConfigRefreshInterval: time.Hour,
		Timezone:              "UTC",
		DeviceOS:              "linux",
		RedisMaxRetries:       1,
		RedisRetryDelayMs:     10,
		PendingTTL:            time.Hour,
		MaxPending:            8,
	}
}

func TestInitStore_Backends(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"memory", func(c *config.Config) {}},
		{"sqlite", func(c *config.Config) { c.StoreBackend = config.StoreSQLite }},
		{"redis", func(c *config.Config) {
			c.StoreBackend = config.StoreRedis
			c.RedisHost = mr.Host()
			c.RedisPort = mr.Port()
			c.RedisKeyPrefix = "test:"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)

			s, err := InitStore(ctx, cfg)
			if err != nil {
				t.Fatalf("InitStore() error = %v", err)
			}
			defer s.Close()

			if err := s.Set(ctx, "k", []byte("v")); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			got, err := s.Get(ctx, "k")
			if err != nil || string(got) != "v" {
				t.Fatalf("Get() = %q, %v", got, err)
			}
		})
	}

	if !mr.Exists("test:k") {
		t.Fatalf("redis key prefix not applied")
	}
}

func TestInitStore_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.StoreBackend = config.StoreRedis
	cfg.RedisHost = mr.Host()
	cfg.RedisPort = mr.Port()
	mr.Close()

	if _, err := InitStore(context.Background(), cfg); err == nil {
		t.Fatalf("InitStore() succeeded against a closed server")
	}
}

func TestInitEngine(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	s := store.NewMemoryStore()
	defer s.Close()

	c, err := InitEngine(ctx, cfg, s)
	if err != nil {
		t.Fatalf("InitEngine() error = %v", err)
	}
	defer c.Engine.Close()

	snapshot, err := c.Provider.Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if snapshot.Notification.FrequencyCap != 2 {
		t.Fatalf("FrequencyCap = %d, want the policy file value 2", snapshot.Notification.FrequencyCap)
	}
	if _, ok := c.Presenter.(offer.LogPresenter); !ok {
		t.Fatalf("presenter = %T, want LogPresenter", c.Presenter)
	}

	url, err := c.Client.OfferWebURL(&offer.Request{Event: "purchase"})
	if err != nil {
		t.Fatalf("OfferWebURL() error = %v", err)
	}
	if want := "https://offers.example.com/offers"; len(url) < len(want) || url[:len(want)] != want {
		t.Fatalf("url = %q, want prefix %q", url, want)
	}
}

func TestInitEngine_MissingPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.PolicyPath = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := InitEngine(context.Background(), cfg, store.NewMemoryStore()); err == nil {
		t.Fatalf("InitEngine() succeeded without a policy file")
	}
}

func TestInitPresenter(t *testing.T) {
	cfg := testConfig(t)
	cfg.PresenterWebhookURL = "http://localhost:9000/present"
	p := InitPresenter(cfg, transport.NewClient(transport.ClientOptions{}))
	if _, ok := p.(*transport.WebhookPresenter); !ok {
		t.Fatalf("presenter = %T, want *WebhookPresenter", p)
	}
}
