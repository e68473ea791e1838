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

// Package sdk is a small embeddable API around the Factory Flow Engine,
// for Go programs that want to load and run a flow without shelling out
// to the factoryflow binary. It wraps the same internal/config,
// pkg/flow and pkg/engine machinery factory_mode itself uses.
package sdk

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/rackforge/factoryflow/internal/config"
	"github.com/rackforge/factoryflow/pkg/engine"
	"github.com/rackforge/factoryflow/pkg/flow"
	"github.com/rackforge/factoryflow/pkg/progress"
	"github.com/rackforge/factoryflow/pkg/registry"
)

// EventHandler receives one engine.Event. Handlers are called one after
// another in registration order from a dispatch goroutine that Run starts
// and waits for before returning; a panicking handler is recovered and
// logged, never allowed to abort the run.
type EventHandler func(engine.Event)

// SDK is the entry point for embedding the Factory Flow Engine in another
// Go program. Each instance holds its own logger and event handlers; there
// is no shared global state between instances.
type SDK struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers []EventHandler
}

// Option configures an SDK at construction time.
type Option func(*SDK)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SDK) { s.logger = logger }
}

// New creates an SDK instance.
func New(opts ...Option) *SDK {
	s := &SDK{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnEvent registers a handler invoked for every engine.Event emitted during
// a subsequent Run call.
func (s *SDK) OnEvent(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

func (s *SDK) dispatch(ev engine.Event) {
	s.mu.RLock()
	handlers := append([]EventHandler(nil), s.handlers...)
	s.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("event handler panic", "event_kind", ev.Kind, "panic", r)
				}
			}()
			h(ev)
		}()
	}
}

// LoadConfig reads and default/credential-resolves a configuration file.
func (s *SDK) LoadConfig(path string) (*flow.Configuration, error) {
	return config.Load(path)
}

// LoadFlow expands and loads a flow YAML document against cfg, validating
// it the same way factory_mode and validate do.
func (s *SDK) LoadFlow(yamlContent []byte, cfg *flow.Configuration) (*flow.Flow, error) {
	var raw any
	if err := yaml.Unmarshal(yamlContent, &raw); err != nil {
		return nil, fmt.Errorf("parse flow YAML: %w", err)
	}

	expanded, err := flow.ExpandTree(raw, cfg.Variables)
	if err != nil {
		return nil, err
	}

	return flow.Load(expanded, cfg, registry.NewDefaultOperationRegistry())
}

// LoadFlowFile reads a flow YAML file from disk and loads it via LoadFlow.
func (s *SDK) LoadFlowFile(path string, cfg *flow.Configuration) (*flow.Flow, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow file: %w", err)
	}
	return s.LoadFlow(content, cfg)
}

// RunOptions configures one Run call.
type RunOptions struct {
	// LogDir, if non-empty, is recorded on the engine for error handlers
	// that write diagnostic artifacts (e.g. nvdebug log collection).
	LogDir string
}

// Run drives f to completion against cfg, using a fresh OperationRegistry,
// DeviceRegistry, ErrorHandlerRegistry and Tracker scoped to this call.
// Every engine.Event is forwarded to handlers registered via OnEvent before
// Run returns the flow's terminal status.
func (s *SDK) Run(ctx context.Context, cfg *flow.Configuration, f *flow.Flow, opts RunOptions) (flow.FlowState, error) {
	tracker := progress.New()
	ops := registry.NewDefaultOperationRegistry()
	devices := registry.NewDeviceRegistry(cfg)
	handlers := registry.NewErrorHandlerRegistry()

	eng := engine.New(cfg, ops, devices, handlers, tracker, s.logger)
	eng.LogDir = opts.LogDir

	events := make(chan engine.Event, 256)
	eng.Events = events

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			s.dispatch(ev)
		}
	}()

	status, err := eng.Run(ctx, f)
	close(events)
	<-done

	return status, err
}

// Snapshot returns the tracker snapshot format flow_progress.json uses,
// useful for embedders that want the same JSON shape factory_mode writes
// without going through a file.
type Snapshot = progress.Snapshot
