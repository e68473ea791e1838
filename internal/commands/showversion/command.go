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

// Package showversion implements show_version: one Redfish firmware
// inventory query outside of any flow file.
package showversion

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rackforge/factoryflow/internal/commands/shared"
	"github.com/rackforge/factoryflow/internal/config"
	ffErrors "github.com/rackforge/factoryflow/internal/errors"
	"github.com/rackforge/factoryflow/pkg/flow"
	"github.com/rackforge/factoryflow/pkg/registry"
)

// NewCommand creates the show_version command.
func NewCommand() *cobra.Command {
	var (
		configPath string
		deviceType string
		deviceID   string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "show_version",
		Short: "Query a device's installed firmware inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, configPath, deviceType, deviceID, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration YAML (required)")
	cmd.Flags().StringVar(&deviceType, "device-type", "", "Device type: compute or switch (required)")
	cmd.Flags().StringVar(&deviceID, "device-id", "", "Device identifier within connection.<device-type> (required)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("device-type")
	_ = cmd.MarkFlagRequired("device-id")

	return cmd
}

func run(cmd *cobra.Command, configPath, deviceType, deviceID string, jsonOutput bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return &shared.ExitError{Code: shared.ExitConfigError, Message: "loading configuration", Cause: err}
	}

	devices := registry.NewDeviceRegistry(cfg)
	handle, err := devices.Get(flow.DeviceType(deviceType), deviceID)
	if err != nil {
		return &shared.ExitError{Code: shared.ExitNotFound, Message: "resolving device", Cause: err}
	}

	items, err := handle.Redfish.GetFirmwareInventory(cmd.Context())
	if err != nil {
		return &shared.ExitError{Code: shared.ExitFlowFailed, Message: "querying firmware inventory", Cause: &ffErrors.CapabilityError{
			DeviceType: deviceType, DeviceID: deviceID, Operation: "redfish.get_firmware_inventory", Message: err.Error(),
		}}
	}

	if jsonOutput {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(items)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tUPDATEABLE")
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%s\t%t\n", item.Name, item.Version, item.Updateable)
	}
	return w.Flush()
}
