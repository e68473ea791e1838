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

// Package telemetry pushes a finished flow's JSON progress artifact to a
// fleet telemetry collector over SigV4-signed HTTP. It is a read-only,
// advisory tap on the same event stream pkg/progress/metrics.go consumes:
// flow_progress.json and the process exit code remain the authoritative
// outcome regardless of whether a push succeeds (spec.md §2 EXPANSION).
package telemetry

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Config configures the telemetry push endpoint. A zero-value Endpoint
// disables telemetry entirely — NewPusher returns nil, nil in that case so
// callers can treat telemetry as unconditionally optional.
type Config struct {
	// Endpoint is the full collector URL, e.g.
	// https://telemetry.example.internal/v1/runs.
	Endpoint string

	// Region is the AWS region the collector's execute-api/gateway lives
	// in.
	Region string

	// Service is the SigV4 service name signed against (default
	// "execute-api", matching an API-Gateway-fronted collector).
	Service string

	// Timeout bounds each push (default 10s).
	Timeout time.Duration
}

// Pusher signs and sends one HTTP request per finished flow.
type Pusher struct {
	cfg    Config
	client *http.Client

	awsConfig aws.Config
	signer    *v4.Signer

	credMu     sync.RWMutex
	creds      aws.Credentials
	credExpiry time.Time
}

// NewPusher builds a Pusher, validating AWS credentials via STS
// GetCallerIdentity up front (the same fail-fast pattern the teacher's AWS
// transport uses) so a misconfigured collector is caught at startup rather
// than silently dropping every push. Returns (nil, nil) when cfg.Endpoint
// is empty, since telemetry push is entirely optional.
func NewPusher(ctx context.Context, cfg Config) (*Pusher, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("telemetry: region is required when endpoint is set")
	}
	cfg = applyDefaults(cfg)

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("telemetry: load AWS configuration: %w", err)
	}

	p := &Pusher{
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.Timeout},
		awsConfig: awsCfg,
		signer:    v4.NewSigner(),
	}

	if err := p.refreshCredentials(ctx); err != nil {
		return nil, err
	}
	if _, err := sts.NewFromConfig(awsCfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{}); err != nil {
		return nil, fmt.Errorf("telemetry: AWS credential validation failed: %w", err)
	}

	return p, nil
}

// applyDefaults fills in Config fields the caller left zero.
func applyDefaults(cfg Config) Config {
	if cfg.Service == "" {
		cfg.Service = "execute-api"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return cfg
}

func (p *Pusher) refreshCredentials(ctx context.Context) error {
	p.credMu.Lock()
	defer p.credMu.Unlock()

	if !p.credExpiry.IsZero() && time.Now().Before(p.credExpiry) {
		return nil
	}

	creds, err := p.awsConfig.Credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("telemetry: resolve AWS credentials: %w", err)
	}

	p.creds = creds
	expiry := creds.Expires
	if expiry.IsZero() || time.Until(expiry) > time.Hour {
		expiry = time.Now().Add(time.Hour)
	}
	p.credExpiry = expiry
	return nil
}

// Push sends payload (a flow_progress.json body) to the configured
// collector, tagging it with flowKey so the collector can correlate
// multiple pushes from one factory_mode run (main sequence plus any
// IndependentFlow/OptionalFlow sub-scopes, if the caller chooses to push
// those too). A nil Pusher is a valid no-op receiver so call sites never
// need a conditional around every call.
func (p *Pusher) Push(ctx context.Context, flowKey string, payload []byte) error {
	if p == nil {
		return nil
	}
	if err := p.refreshCredentials(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("telemetry: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Factoryflow-Flow-Key", flowKey)

	hash := sha256.Sum256(payload)
	payloadHash := hex.EncodeToString(hash[:])
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)

	p.credMu.RLock()
	creds := p.creds
	p.credMu.RUnlock()

	if err := p.signer.SignHTTP(ctx, creds, req, payloadHash, p.cfg.Service, p.cfg.Region, time.Now()); err != nil {
		return fmt.Errorf("telemetry: sign request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("telemetry: push request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("telemetry: collector returned status %d", resp.StatusCode)
	}
	return nil
}
