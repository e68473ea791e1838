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

package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rackforge/factoryflow/pkg/flow"
)

// HandlerContext is the mapping of configuration variables plus the log
// directory a handler receives (spec §4.3: "Context is a mapping of
// configuration variables plus the log directory").
type HandlerContext struct {
	Variables map[string]any
	LogDir    string
	Devices   []DeviceRef
	Logger    *slog.Logger
}

// DeviceRef names one (device_type, device_id) touched by the flow that
// invoked the handler, for handlers that need to reach every device.
type DeviceRef struct {
	DeviceType flow.DeviceType
	DeviceID   string
}

// Handler is registered by name and may be invoked in either of two
// shapes: step-level (step is non-nil, return value means "recover,
// continue flow") or flow-level (step is nil, return value ignored).
type Handler func(ctx context.Context, step *flow.FlowStep, failure error, hctx HandlerContext) bool

// ErrorHandlerRegistry is the name -> Handler dispatch table.
type ErrorHandlerRegistry struct {
	handlers map[string]Handler
}

// NewErrorHandlerRegistry returns a registry seeded with the two required
// built-ins: default_error_handler and error_handler_collect_nvdebug_logs.
func NewErrorHandlerRegistry() *ErrorHandlerRegistry {
	r := &ErrorHandlerRegistry{handlers: make(map[string]Handler)}
	r.Register("default_error_handler", defaultErrorHandler)
	r.Register("error_handler_collect_nvdebug_logs", collectNVDebugLogsHandler)
	return r
}

// Register adds (or replaces) the handler for name.
func (r *ErrorHandlerRegistry) Register(name string, h Handler) {
	r.handlers[name] = h
}

// Has reports whether a handler is registered under name. The Flow Loader
// does not consult it; an unregistered execute_on_error name is logged by
// the engine when the handler is looked up.
func (r *ErrorHandlerRegistry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Get returns the handler registered under name.
func (r *ErrorHandlerRegistry) Get(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// defaultErrorHandler logs the failure and returns false: it never
// recovers a step, and as a flow-level handler it is a pure log sink.
func defaultErrorHandler(_ context.Context, step *flow.FlowStep, failure error, hctx HandlerContext) bool {
	if step != nil {
		hctx.Logger.Error("step failed", "step_name", step.Name, "device_type", step.DeviceType, "device_id", step.DeviceID, "error", failure)
	} else {
		hctx.Logger.Error("flow failed", "error", failure)
	}
	return false
}

// collectNVDebugLogsHandler invokes the external nvdebug diagnostic
// binary (path from configuration.variables.nvdebug_path) against every
// device the flow touched and writes its output under the log directory.
// It always returns false: collecting logs is not a recovery action.
func collectNVDebugLogsHandler(ctx context.Context, step *flow.FlowStep, failure error, hctx HandlerContext) bool {
	nvdebugPath, _ := hctx.Variables["nvdebug_path"].(string)
	if nvdebugPath == "" {
		hctx.Logger.Warn("nvdebug_path not set in configuration.variables; skipping log collection")
		return false
	}

	for _, dev := range hctx.Devices {
		timeout, cancel := context.WithTimeout(ctx, 2*time.Minute)
		output, err := runExternalBinary(timeout, nvdebugPath, "--device-type", string(dev.DeviceType), "--device-id", dev.DeviceID)
		cancel()

		outPath := filepath.Join(hctx.LogDir, fmt.Sprintf("nvdebug_%s_%s.tgz", dev.DeviceType, dev.DeviceID))
		if writeErr := os.WriteFile(outPath, []byte(output), 0o644); writeErr != nil {
			hctx.Logger.Error("writing nvdebug output", "device_type", dev.DeviceType, "device_id", dev.DeviceID, "error", writeErr)
		}
		if err != nil {
			hctx.Logger.Warn("nvdebug collection reported an error", "device_type", dev.DeviceType, "device_id", dev.DeviceID, "error", err)
		}
	}
	return false
}
