// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package redfish is a minimal Redfish (HTTPS BMC API) client: session
// authentication, per-device request pacing, and firmware-update-service
// request helpers. It is the one transport the engine's built-in
// capabilities speak to BMCs through.
package redfish

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Config describes how to reach one BMC.
type Config struct {
	BaseURL            string
	Username           string
	Password           string
	Timeout            time.Duration
	InsecureSkipVerify bool

	// RequestsPerSecond bounds this client's Redfish call rate; default 5.
	RequestsPerSecond float64
}

// Client is a session-authenticated, rate-limited Redfish HTTP client. One
// Client is cached per (device_type, device_id) DeviceHandle.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter

	sessionToken    string
	sessionLocation string
}

// New constructs a Client. No network I/O happens until the first request;
// session establishment is lazy (see ensureSession).
func New(cfg Config) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:  cfg.BaseURL,
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}, //nolint:gosec
			},
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Response is a decoded Redfish HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Get issues a GET against a Redfish-relative path (e.g.
// "/redfish/v1/UpdateService/FirmwareInventory").
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, "")
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, payload, "application/json")
}

// PostMultipart issues the multipart/form-data push used by
// MultipartHTTPPushUpdate (§4.3's stage_firmware): one "UpdateParameters"
// JSON part and one binary firmware-image part.
func (c *Client) PostMultipart(ctx context.Context, path string, updateParameters any, imageFieldName, imageFileName string, image []byte) (*Response, error) {
	var buf bytes.Buffer
	boundary := "factoryflow-boundary"

	params, err := json.Marshal(updateParameters)
	if err != nil {
		return nil, fmt.Errorf("encoding UpdateParameters: %w", err)
	}

	fmt.Fprintf(&buf, "--%s\r\nContent-Disposition: form-data; name=\"UpdateParameters\"\r\nContent-Type: application/json\r\n\r\n%s\r\n", boundary, params)
	fmt.Fprintf(&buf, "--%s\r\nContent-Disposition: form-data; name=%q; filename=%q\r\nContent-Type: application/octet-stream\r\n\r\n", boundary, imageFieldName, imageFileName)
	buf.Write(image)
	fmt.Fprintf(&buf, "\r\n--%s--\r\n", boundary)

	return c.do(ctx, http.MethodPost, path, buf.Bytes(), "multipart/form-data; boundary="+boundary)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string) (*Response, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("redfish request to %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading redfish response body: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}

func (c *Client) applyAuth(req *http.Request) {
	if c.sessionToken != "" {
		req.Header.Set("X-Auth-Token", c.sessionToken)
		return
	}
	req.SetBasicAuth(c.username, c.password)
}

// ensureSession establishes a Redfish session (POST /redfish/v1/SessionService/Sessions)
// the first time it is called, and is a no-op afterward. Falling back to
// basic auth for the session-creation call itself.
func (c *Client) ensureSession(ctx context.Context) error {
	if c.sessionToken != "" {
		return nil
	}

	payload, _ := json.Marshal(map[string]string{"UserName": c.username, "Password": c.password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/redfish/v1/SessionService/Sessions", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("establishing redfish session: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusCreated {
		// Session auth isn't always available (some BMCs only accept basic
		// auth); fall back silently and let applyAuth use basic auth.
		return nil
	}

	c.sessionToken = resp.Header.Get("X-Auth-Token")
	c.sessionLocation = resp.Header.Get("Location")
	return nil
}

// Close releases the Redfish session, if one was established. Errors are
// non-fatal: the Device Registry logs and swallows them during teardown.
func (c *Client) Close(ctx context.Context) error {
	if c.sessionLocation == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+c.sessionLocation, nil)
	if err != nil {
		return err
	}
	c.applyAuth(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	c.sessionToken = ""
	c.sessionLocation = ""
	return nil
}
