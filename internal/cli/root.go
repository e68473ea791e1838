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

package cli

import (
	"github.com/spf13/cobra"

	"github.com/rackforge/factoryflow/internal/commands/factorymode"
	"github.com/rackforge/factoryflow/internal/commands/forceupdate"
	"github.com/rackforge/factoryflow/internal/commands/shared"
	"github.com/rackforge/factoryflow/internal/commands/showprogress"
	"github.com/rackforge/factoryflow/internal/commands/showversion"
	"github.com/rackforge/factoryflow/internal/commands/updatefw"
	"github.com/rackforge/factoryflow/internal/commands/validate"
)

// SetVersion sets the version information (called from main).
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for factoryflow.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "factoryflow",
		Short: "Out-of-band firmware update orchestration for rack-scale platforms",
		Long: `factoryflow drives firmware inventory, staging, activation and diagnostic
flows across compute and switch devices over Redfish and SSH, described as
declarative YAML flow files and executed by the Factory Flow Engine.

Run 'factoryflow factory_mode -c <config> -f <flow>' to execute a flow.
Run 'factoryflow validate -c <config> -f <flow>' to check one before running it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	verbose, quiet := shared.RegisterFlagPointers()
	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")

	cmd.AddCommand(
		factorymode.NewCommand(),
		showversion.NewCommand(),
		updatefw.NewCommand(),
		forceupdate.NewCommand(),
		showprogress.NewCommand(),
		validate.NewCommand(),
	)

	return cmd
}

// GetVersion returns version information.
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes.
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
