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
	"os/exec"
	"strings"
	"time"

	"github.com/rackforge/factoryflow/internal/pldm"
	"github.com/rackforge/factoryflow/internal/redfish"
	"github.com/rackforge/factoryflow/pkg/flow"
)

// Capability is a registered operation: blocking/synchronous from the
// engine's perspective (it manages its own internal I/O and timeouts). It
// never returns a Go error across the boundary — failure is reported as
// (false, message), matching spec.md §4.3's Capability contract.
type Capability func(ctx context.Context, handle *DeviceHandle, parameters map[string]any) (ok bool, errMessage string)

// OperationRegistry is the static mapping (device_type, operation_name) ->
// Capability. It is populated at program start; dynamic registration
// after load is not required by the spec.
type OperationRegistry struct {
	byDeviceType map[flow.DeviceType]map[string]Capability
}

// NewOperationRegistry returns an empty registry. Use Register to populate
// it, or NewDefaultOperationRegistry for the built-in capability set.
func NewOperationRegistry() *OperationRegistry {
	return &OperationRegistry{byDeviceType: make(map[flow.DeviceType]map[string]Capability)}
}

// Register adds (or replaces) the Capability for (deviceType, operation).
func (r *OperationRegistry) Register(deviceType flow.DeviceType, operation string, capability Capability) {
	if r.byDeviceType[deviceType] == nil {
		r.byDeviceType[deviceType] = make(map[string]Capability)
	}
	r.byDeviceType[deviceType][operation] = capability
}

// Has reports whether an operation is registered for a device type. This
// is the pkg/flow.OperationResolver the Flow Loader's validation pass
// consults; it is defined here, not in pkg/flow, to avoid an import cycle.
func (r *OperationRegistry) Has(deviceType flow.DeviceType, operation string) bool {
	ops, ok := r.byDeviceType[deviceType]
	if !ok {
		return false
	}
	_, ok = ops[operation]
	return ok
}

// Get returns the Capability registered for (deviceType, operation). The
// Flow Loader guarantees this always resolves for a loaded Flow's steps;
// callers outside the loaded-flow path (e.g. the update_fw/force_update
// commands) must check ok themselves.
func (r *OperationRegistry) Get(deviceType flow.DeviceType, operation string) (Capability, bool) {
	ops, ok := r.byDeviceType[deviceType]
	if !ok {
		return nil, false
	}
	capability, ok := ops[operation]
	return capability, ok
}

// NewDefaultOperationRegistry seeds the registry with the built-in
// firmware-update capabilities for compute and switch device types (spec
// §4.3's expansion): get_firmware_inventory, stage_firmware,
// poll_update_task, activate, and run_diagnostic over SSH.
func NewDefaultOperationRegistry() *OperationRegistry {
	r := NewOperationRegistry()
	for _, dt := range []flow.DeviceType{flow.DeviceCompute, flow.DeviceSwitch} {
		r.Register(dt, "redfish.get_firmware_inventory", capGetFirmwareInventory)
		r.Register(dt, "redfish.stage_firmware", capStageFirmware)
		r.Register(dt, "redfish.poll_update_task", capPollUpdateTask)
		r.Register(dt, "redfish.activate", capActivate)
		r.Register(dt, "ssh.run_diagnostic", capRunDiagnostic)
	}
	return r
}

func stringParam(parameters map[string]any, key string) (string, bool) {
	v, ok := parameters[key].(string)
	return v, ok
}

func capGetFirmwareInventory(ctx context.Context, handle *DeviceHandle, parameters map[string]any) (bool, string) {
	items, err := handle.Redfish.GetFirmwareInventory(ctx)
	if err != nil {
		return false, err.Error()
	}
	if component, ok := stringParam(parameters, "component"); ok {
		for _, item := range items {
			if item.Name == component {
				return true, ""
			}
		}
		return false, fmt.Sprintf("component %q not present in firmware inventory", component)
	}
	return true, ""
}

func capStageFirmware(ctx context.Context, handle *DeviceHandle, parameters map[string]any) (bool, string) {
	packagePath, ok := stringParam(parameters, "package")
	if !ok || packagePath == "" {
		return false, "parameters.package is required"
	}

	pkg, err := pldm.Load(packagePath)
	if err != nil {
		return false, err.Error()
	}

	var targets []string
	if raw, ok := parameters["target_uris"].([]any); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok {
				targets = append(targets, s)
			}
		}
	}

	taskURI, err := handle.Redfish.StageFirmware(ctx, targets, pkg.Bytes())
	if err != nil {
		return false, err.Error()
	}
	parameters["_task_uri"] = taskURI
	return true, ""
}

func capPollUpdateTask(ctx context.Context, handle *DeviceHandle, parameters map[string]any) (bool, string) {
	taskURI, ok := stringParam(parameters, "task_uri")
	if !ok {
		taskURI, ok = stringParam(parameters, "_task_uri")
	}
	if !ok || taskURI == "" {
		// No task to poll (some BMCs complete the update synchronously
		// within the stage request); treat as already complete.
		return true, ""
	}

	deadline := time.Now().Add(10 * time.Minute)
	pollInterval := 5 * time.Second
	for time.Now().Before(deadline) {
		state, err := handle.Redfish.PollUpdateTask(ctx, taskURI)
		if err != nil {
			return false, err.Error()
		}
		switch state {
		case redfish.TaskStateCompleted:
			return true, ""
		case redfish.TaskStateException, redfish.TaskStateCancelled:
			return false, fmt.Sprintf("update task ended in state %s", state)
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err().Error()
		case <-time.After(pollInterval):
		}
	}
	return false, "update task did not complete before the polling deadline"
}

func capActivate(ctx context.Context, handle *DeviceHandle, parameters map[string]any) (bool, string) {
	resetType, ok := stringParam(parameters, "reset_type")
	if !ok || resetType == "" {
		resetType = "GracefulRestart"
	}
	if err := handle.Redfish.Activate(ctx, resetType); err != nil {
		return false, err.Error()
	}
	return true, ""
}

func capRunDiagnostic(ctx context.Context, handle *DeviceHandle, parameters map[string]any) (bool, string) {
	command, ok := stringParam(parameters, "command")
	if !ok || command == "" {
		return false, "parameters.command is required"
	}
	output, err := handle.SSH().RunCommand(ctx, command)
	if err != nil {
		return false, fmt.Sprintf("%s: %s", err, strings.TrimSpace(output))
	}
	return true, ""
}

// runExternalBinary is a small helper shared with the error-handler
// registry's nvdebug collector: run an external diagnostic binary and
// capture its combined output.
func runExternalBinary(ctx context.Context, path string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}
