// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AccelByte/extend-offer-engagement/pkg/offer"
	"github.com/AccelByte/extend-offer-engagement/pkg/stats"
)

type recorded struct {
	method string
	path   string
	query  url.Values
	auth   string
	body   map[string]interface{}
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []recorded
	status   int
	response string
}

func (f *fakeAPI) handler(w http.ResponseWriter, r *http.Request) {
	rec := recorded{method: r.Method, path: r.URL.Path, query: r.URL.Query(), auth: r.Header.Get("Authorization")}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&rec.body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	status, response := f.status, f.response
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(response))
}

func (f *fakeAPI) last(t *testing.T) recorded {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("no request reached the server")
	}
	return f.requests[len(f.requests)-1]
}

func setupTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(api.handler))
	t.Cleanup(srv.Close)
	return NewClient(ClientOptions{
		BaseURL: func() string { return srv.URL + "/" },
		Device: DeviceInfo{
			AppKey:     "key-1",
			BundleID:   "com.example.game",
			AppVersion: "2.3.0",
			Platform:   "server",
			AnonID:     "anon-1",
		},
		Timeout: 2 * time.Second,
	})
}

func TestFetchOffer(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		response  string
		expectErr error
		expectID  string
	}{
		{
			name:     "first offer returned",
			response: `{"success":true,"offers":[{"id":"o1","title":"T","description":"D","clickUrl":"https://c","destinationUrl":"<null>"},{"id":"o2","title":"T2","description":"D","clickUrl":"https://c"}]}`,
			expectID: "o1",
		},
		{
			name:      "success false",
			response:  `{"success":false,"message":"no fill"}`,
			expectErr: offer.ErrNoOffer,
		},
		{
			name:      "empty offers",
			response:  `{"success":true,"offers":[]}`,
			expectErr: offer.ErrNoOffer,
		},
		{
			name:      "missing offers key",
			response:  `{}`,
			expectErr: offer.ErrNoOffer,
		},
		{
			name:      "server error",
			status:    http.StatusInternalServerError,
			expectErr: offer.ErrOfferFetchFailed,
		},
		{
			name:      "malformed body",
			response:  `not json`,
			expectErr: offer.ErrOfferFetchFailed,
		},
		{
			name:      "offer without click url",
			response:  `{"offers":[{"id":"o1","title":"T"}]}`,
			expectErr: offer.ErrOfferFetchFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{status: tt.status, response: tt.response}
			c := setupTestClient(t, api)

			o, err := c.FetchOffer(context.Background(), map[string]interface{}{"event": "purchase"})
			if tt.expectErr != nil {
				if !errors.Is(err, tt.expectErr) {
					t.Fatalf("FetchOffer() error = %v, expected %v", err, tt.expectErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchOffer() error = %v", err)
			}
			if o.ID != tt.expectID {
				t.Errorf("offer id = %s, expected %s", o.ID, tt.expectID)
			}
			if o.DestinationURL != "" {
				t.Errorf("DestinationURL = %q, expected empty for <null>", o.DestinationURL)
			}
		})
	}
}

func TestFetchOffer_RequestEnvelope(t *testing.T) {
	api := &fakeAPI{response: `{"offers":[{"id":"o1","title":"T","description":"D","clickUrl":"https://c"}]}`}
	c := setupTestClient(t, api)

	if _, err := c.FetchOffer(context.Background(), map[string]interface{}{"event": "purchase"}); err != nil {
		t.Fatalf("FetchOffer() error = %v", err)
	}

	req := api.last(t)
	if req.method != http.MethodPost || req.path != OffersPath {
		t.Errorf("request = %s %s", req.method, req.path)
	}
	if req.auth != "Bearer key-1" {
		t.Errorf("Authorization = %q", req.auth)
	}
	expected := map[string]interface{}{
		"bId":  "com.example.game",
		"aV":   "2.3.0",
		"lV":   LibVersion,
		"aId":  "anon-1",
		"type": "notif",
	}
	for k, v := range expected {
		if req.body[k] != v {
			t.Errorf("body[%s] = %v, expected %v", k, req.body[k], v)
		}
	}
	if req.body["count"] != float64(1) {
		t.Errorf("body[count] = %v", req.body["count"])
	}
	params, _ := req.body["request"].(map[string]interface{})
	if params["event"] != "purchase" {
		t.Errorf("request params = %v", req.body["request"])
	}
	if _, ok := req.body["adId"]; ok {
		t.Error("adId sent without an advertising id")
	}
}

func TestFetchConfig(t *testing.T) {
	api := &fakeAPI{response: `{"notifFrequencyCap":2,"apiUrl":"https://x"}`}
	c := setupTestClient(t, api)

	doc, err := c.FetchConfig(context.Background())
	if err != nil {
		t.Fatalf("FetchConfig() error = %v", err)
	}
	if doc["notifFrequencyCap"] != float64(2) {
		t.Errorf("doc = %v", doc)
	}

	req := api.last(t)
	if req.method != http.MethodGet || req.path != ConfigPath {
		t.Errorf("request = %s %s", req.method, req.path)
	}
	for k, v := range map[string]string{"aK": "key-1", "aId": "anon-1", "bId": "com.example.game", "lV": LibVersion} {
		if req.query.Get(k) != v {
			t.Errorf("query %s = %q, expected %q", k, req.query.Get(k), v)
		}
	}
}

func TestFetchConfig_Failure(t *testing.T) {
	api := &fakeAPI{status: http.StatusBadGateway}
	c := setupTestClient(t, api)

	if _, err := c.FetchConfig(context.Background()); err == nil {
		t.Fatal("FetchConfig() expected error on 502")
	}
}

func TestPostBatch(t *testing.T) {
	events := []stats.StatEvent{
		{ID: "e1", Event: "a", OccurredAt: time.Now()},
		{ID: "e2", Event: "b", OccurredAt: time.Now()},
	}

	tests := []struct {
		name        string
		status      int
		response    string
		expectErr   bool
		expectAcked []string
	}{
		{name: "empty body acks all", response: ``},
		{name: "plain ok acks all", response: `{"success":true}`},
		{name: "partial ack", response: `{"acceptedIds":["e1"]}`, expectAcked: []string{"e1"}},
		{name: "server error", status: http.StatusServiceUnavailable, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{status: tt.status, response: tt.response}
			c := setupTestClient(t, api)

			ack, err := c.PostBatch(context.Background(), stats.Batch{Events: events})
			if tt.expectErr {
				if err == nil {
					t.Fatal("PostBatch() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("PostBatch() error = %v", err)
			}
			if len(ack.AcceptedIDs) != len(tt.expectAcked) {
				t.Fatalf("AcceptedIDs = %v, expected %v", ack.AcceptedIDs, tt.expectAcked)
			}

			req := api.last(t)
			if req.path != SyncPath {
				t.Errorf("path = %s", req.path)
			}
			sent, _ := req.body["stats"].([]interface{})
			if len(sent) != 2 {
				t.Errorf("sent %d stats, expected 2", len(sent))
			}
		})
	}
}

func TestLogInteractionAndPing(t *testing.T) {
	api := &fakeAPI{}
	c := setupTestClient(t, api)
	ctx := context.Background()

	if err := c.LogInteraction(ctx, "click", "o1", "ref-1"); err != nil {
		t.Fatalf("LogInteraction() error = %v", err)
	}
	req := api.last(t)
	if req.path != EventPath || req.query.Get("oId") != "o1" || req.query.Get("orId") != "ref-1" || req.query.Get("event") != "click" {
		t.Errorf("interaction request = %+v", req)
	}

	srvURL := c.baseURL()
	if err := c.Ping(ctx, strings.TrimRight(srvURL, "/")+"/impression/abc"); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if req := api.last(t); req.path != "/impression/abc" {
		t.Errorf("ping path = %s", req.path)
	}
}

func TestOfferWebURL(t *testing.T) {
	c := setupTestClient(t, &fakeAPI{})

	u, err := c.OfferWebURL(&offer.Request{Event: "level_up", ReferenceID: "ref-2"})
	if err != nil {
		t.Fatalf("OfferWebURL() error = %v", err)
	}
	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("invalid url %q: %v", u, err)
	}
	if parsed.Path != OffersPath {
		t.Errorf("path = %s", parsed.Path)
	}
	q := parsed.Query()
	if q.Get("event") != "level_up" || q.Get("referenceId") != "ref-2" || q.Get("aK") != "key-1" {
		t.Errorf("query = %v", q)
	}
}

func TestNoBaseURL(t *testing.T) {
	c := NewClient(ClientOptions{BaseURL: func() string { return "" }})
	if _, err := c.FetchOffer(context.Background(), nil); !errors.Is(err, offer.ErrOfferFetchFailed) {
		t.Errorf("FetchOffer() error = %v, expected ErrOfferFetchFailed", err)
	}
}

func TestWebhookPresenter(t *testing.T) {
	api := &fakeAPI{}
	c := setupTestClient(t, api)
	hook := NewWebhookPresenter(c.baseURL()+"hooks/present", c, true)
	ctx := context.Background()

	if !hook.NotificationsAuthorized(ctx) {
		t.Error("NotificationsAuthorized() = false")
	}

	n := offer.NewNotification(&offer.Offer{ID: "o1", Title: "T", ClickURL: "https://c"}, "", "ref-3", 30*time.Second)
	if err := hook.ScheduleNotification(ctx, n); err != nil {
		t.Fatalf("ScheduleNotification() error = %v", err)
	}
	req := api.last(t)
	if req.path != "/hooks/present" || req.body["action"] != "schedule_notification" || req.body["referenceId"] != "ref-3" {
		t.Errorf("schedule request = %+v", req)
	}
	notif, _ := req.body["notification"].(map[string]interface{})
	if notif["delaySeconds"] != float64(30) {
		t.Errorf("notification = %v", notif)
	}

	if err := hook.ShowInterstitial(ctx, &offer.Request{ReferenceID: "ref-4"}); err != nil {
		t.Fatalf("ShowInterstitial() error = %v", err)
	}
	req = api.last(t)
	if req.body["action"] != "show_interstitial" || !strings.Contains(req.body["url"].(string), OffersPath) {
		t.Errorf("interstitial request = %+v", req)
	}

	api.mu.Lock()
	api.status = http.StatusInternalServerError
	api.mu.Unlock()
	if err := hook.ClearNotifications(ctx); err == nil {
		t.Error("ClearNotifications() expected error on 500")
	}
}
