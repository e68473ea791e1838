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

// Package forceupdate implements force_update: the same stage -> poll ->
// activate sequence as update_fw, skipping the installed-version precheck,
// gated behind a typed confirmation unless --yes is given.
package forceupdate

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/rackforge/factoryflow/internal/commands/shared"
	"github.com/rackforge/factoryflow/internal/commands/updatefw"
)

// NewCommand creates the force_update command.
func NewCommand() *cobra.Command {
	var (
		configPath string
		opts       updatefw.Options
		targetURIs string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "force_update",
		Short: "Stage, poll and activate a firmware package, skipping the installed-version precheck",
		Long: `force_update runs the same Redfish sequence as update_fw but never checks
whether the target component is already at the requested version first. It
requires typing the device id back to confirm, unless --yes is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.TargetURIs = splitNonEmpty(targetURIs)

			if !yes {
				confirmed, err := confirmDeviceID(opts.DeviceID)
				if err != nil {
					return &shared.ExitError{Code: shared.ExitConfigError, Message: "confirmation prompt", Cause: err}
				}
				if !confirmed {
					return &shared.ExitError{Code: shared.ExitCancelled, Message: "force_update cancelled"}
				}
			}

			return updatefw.Run(cmd.Context(), configPath, opts, true)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration YAML (required)")
	cmd.Flags().StringVar(&opts.DeviceType, "device-type", "", "Device type: compute or switch (required)")
	cmd.Flags().StringVar(&opts.DeviceID, "device-id", "", "Device identifier within connection.<device-type> (required)")
	cmd.Flags().StringVar(&opts.Component, "component", "", "Firmware component name (informational; not precheck-verified)")
	cmd.Flags().StringVar(&opts.PackagePath, "package", "", "Path to the PLDM firmware package (required)")
	cmd.Flags().StringVar(&targetURIs, "target-uris", "", "Comma-separated Redfish target URIs for the update")
	cmd.Flags().StringVar(&opts.ResetType, "reset-type", "GracefulRestart", "ResetType used to activate the staged update")
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the typed confirmation prompt")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("device-type")
	_ = cmd.MarkFlagRequired("device-id")
	_ = cmd.MarkFlagRequired("package")

	return cmd
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

// confirmDeviceID asks the operator to type the device id back before
// force_update proceeds without its installed-version precheck.
func confirmDeviceID(deviceID string) (bool, error) {
	if shared.IsNonInteractive() {
		return false, fmt.Errorf("force_update requires --yes in a non-interactive context")
	}

	var typed string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title(fmt.Sprintf("Type the device id %q to skip the precheck and force this update", deviceID)).
			Value(&typed).
			Validate(func(s string) error {
				if s != deviceID {
					return fmt.Errorf("must match %q exactly", deviceID)
				}
				return nil
			}),
	))
	if err := form.Run(); err != nil {
		return false, err
	}
	return typed == deviceID, nil
}
