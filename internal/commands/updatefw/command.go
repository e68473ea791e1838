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

// Package updatefw implements update_fw: a direct stage -> poll -> activate
// Redfish sequence against one device, outside of any flow file, reusing
// the same capabilities the Factory Flow Engine calls for
// redfish.stage_firmware/poll_update_task/activate.
package updatefw

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rackforge/factoryflow/internal/commands/shared"
	"github.com/rackforge/factoryflow/internal/config"
	ffErrors "github.com/rackforge/factoryflow/internal/errors"
	"github.com/rackforge/factoryflow/pkg/flow"
	"github.com/rackforge/factoryflow/pkg/registry"
)

// Options bundles update_fw/force_update's common flag values, threaded
// through Run so force_update can reuse the same sequence
// after its own confirmation step.
type Options struct {
	DeviceType  string
	DeviceID    string
	Component   string
	PackagePath string
	TargetURIs  []string
	ResetType   string
}

// NewCommand creates the update_fw command.
func NewCommand() *cobra.Command {
	var (
		configPath string
		opts       Options
		targetURIs string
	)

	cmd := &cobra.Command{
		Use:   "update_fw",
		Short: "Stage, poll and activate a firmware package on one device",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.TargetURIs = splitNonEmpty(targetURIs)
			return Run(cmd.Context(), configPath, opts, false)
		},
	}

	registerFlags(cmd, &configPath, &opts, &targetURIs)
	return cmd
}

// registerFlags binds the flags shared by update_fw and force_update.
func registerFlags(cmd *cobra.Command, configPath *string, opts *Options, targetURIs *string) {
	cmd.Flags().StringVarP(configPath, "config", "c", "", "Path to configuration YAML (required)")
	cmd.Flags().StringVar(&opts.DeviceType, "device-type", "", "Device type: compute or switch (required)")
	cmd.Flags().StringVar(&opts.DeviceID, "device-id", "", "Device identifier within connection.<device-type> (required)")
	cmd.Flags().StringVar(&opts.Component, "component", "", "Firmware component name to check/update")
	cmd.Flags().StringVar(&opts.PackagePath, "package", "", "Path to the PLDM firmware package (required)")
	cmd.Flags().StringVar(targetURIs, "target-uris", "", "Comma-separated Redfish target URIs for the update")
	cmd.Flags().StringVar(&opts.ResetType, "reset-type", "GracefulRestart", "ResetType used to activate the staged update")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("device-type")
	_ = cmd.MarkFlagRequired("device-id")
	_ = cmd.MarkFlagRequired("package")
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Run loads configuration, resolves the device, and runs the stage/poll/
// activate sequence. skipPrecheck is set by force_update to bypass the
// check update_fw performs first when --component is given: that the
// component appears in the device's firmware inventory.
func Run(ctx context.Context, configPath string, opts Options, skipPrecheck bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return &shared.ExitError{Code: shared.ExitConfigError, Message: "loading configuration", Cause: err}
	}

	deviceType := flow.DeviceType(opts.DeviceType)
	devices := registry.NewDeviceRegistry(cfg)
	handle, err := devices.Get(deviceType, opts.DeviceID)
	if err != nil {
		return &shared.ExitError{Code: shared.ExitNotFound, Message: "resolving device", Cause: err}
	}

	ops := registry.NewDefaultOperationRegistry()

	if !skipPrecheck && opts.Component != "" {
		if err := invoke(ctx, ops, handle, deviceType, "redfish.get_firmware_inventory", map[string]any{"component": opts.Component}); err != nil {
			return &shared.ExitError{Code: shared.ExitFlowFailed, Message: "installed-version precheck", Cause: err}
		}
	}

	stageParams := map[string]any{"package": opts.PackagePath}
	if len(opts.TargetURIs) > 0 {
		uris := make([]any, len(opts.TargetURIs))
		for i, u := range opts.TargetURIs {
			uris[i] = u
		}
		stageParams["target_uris"] = uris
	}
	if err := invoke(ctx, ops, handle, deviceType, "redfish.stage_firmware", stageParams); err != nil {
		return &shared.ExitError{Code: shared.ExitFlowFailed, Message: "staging firmware", Cause: err}
	}

	if err := invoke(ctx, ops, handle, deviceType, "redfish.poll_update_task", stageParams); err != nil {
		return &shared.ExitError{Code: shared.ExitFlowFailed, Message: "polling update task", Cause: err}
	}

	resetType := opts.ResetType
	if resetType == "" {
		resetType = "GracefulRestart"
	}
	if err := invoke(ctx, ops, handle, deviceType, "redfish.activate", map[string]any{"reset_type": resetType}); err != nil {
		return &shared.ExitError{Code: shared.ExitFlowFailed, Message: "activating update", Cause: err}
	}

	return nil
}

// invoke looks up and calls one registered capability directly, wrapping a
// (false, message) result as the same CapabilityError the engine would
// have produced for a flow step calling the same operation.
func invoke(ctx context.Context, ops *registry.OperationRegistry, handle *registry.DeviceHandle, deviceType flow.DeviceType, operation string, parameters map[string]any) error {
	capability, ok := ops.Get(deviceType, operation)
	if !ok {
		return &ffErrors.ValidationError{Path: operation, Message: fmt.Sprintf("no capability registered for %s/%s", deviceType, operation)}
	}
	if ok, msg := capability(ctx, handle, parameters); !ok {
		return &ffErrors.CapabilityError{DeviceType: string(deviceType), DeviceID: handle.DeviceID, Operation: operation, Message: msg}
	}
	return nil
}
