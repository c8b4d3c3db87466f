// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	LibVersion = "1.0.4"

	ConfigPath  = "/config"
	SyncPath    = "/sync"
	OffersPath  = "/offers"
	MessagePath = "/message"
	EventPath   = "/event"

	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20
)

// DeviceInfo identifies this install in every request envelope.
type DeviceInfo struct {
	AppKey     string
	BundleID   string
	AppVersion string
	OS         string
	Platform   string
	AnonID     string
	AdID       string
}

type ClientOptions struct {
	// BaseURL returns the current API base url; remote config may move it.
	BaseURL func() string
	Device  DeviceInfo
	// NotificationsEnabled is reported as nE. Optional.
	NotificationsEnabled func() bool
	HTTPClient           *http.Client
	Timeout              time.Duration
}

// Client talks to the offer API: config, offers, stats sync and interaction pings.
type Client struct {
	baseURL       func() string
	device        DeviceInfo
	notifsEnabled func() bool
	http          *http.Client
}

func NewClient(opts ClientOptions) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if opts.Device.OS == "" {
		opts.Device.OS = "linux"
	}
	if opts.NotificationsEnabled == nil {
		opts.NotificationsEnabled = func() bool { return false }
	}
	return &Client{
		baseURL:       opts.BaseURL,
		device:        opts.Device,
		notifsEnabled: opts.NotificationsEnabled,
		http:          httpClient,
	}
}

func (c *Client) endpoint(path string) (string, error) {
	if c.baseURL == nil {
		return "", fmt.Errorf("no api url configured")
	}
	base := strings.TrimRight(c.baseURL(), "/")
	if base == "" {
		return "", fmt.Errorf("no api url configured")
	}
	return base + path, nil
}

// envelope is the device block every POST body starts from.
func (c *Client) envelope() map[string]interface{} {
	body := map[string]interface{}{
		"bId":      c.device.BundleID,
		"aV":       c.device.AppVersion,
		"lV":       LibVersion,
		"aId":      orNone(c.device.AnonID),
		"os":       c.device.OS,
		"platform": c.device.Platform,
	}
	if c.device.AdID != "" {
		body["adId"] = c.device.AdID
	}
	return body
}

// query is the device block of GET requests.
func (c *Client) query() url.Values {
	q := url.Values{}
	q.Set("aK", c.device.AppKey)
	q.Set("aId", c.device.AnonID)
	q.Set("bId", c.device.BundleID)
	q.Set("aV", c.device.AppVersion)
	q.Set("os", c.device.OS)
	q.Set("platform", c.device.Platform)
	q.Set("lV", LibVersion)
	if c.device.AdID != "" {
		q.Set("adId", c.device.AdID)
	}
	return q
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, rawURL string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+orNone(c.device.AppKey))
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return fmt.Errorf("%s %s returned %s", req.Method, req.URL.Path, resp.Status)
	}
	if out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return &decodeError{path: req.URL.Path, err: err}
	}
	return nil
}

// decodeError is a 2xx response whose body could not be decoded.
type decodeError struct {
	path string
	err  error
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("decode %s response: %v", e.path, e.err)
}

func (e *decodeError) Unwrap() error { return e.err }

func isDecodeError(err error) bool {
	var de *decodeError
	return errors.As(err, &de)
}
