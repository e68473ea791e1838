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

/*
Package cli provides the root command and shared configuration for
factoryflow's CLI.

This package creates the main Cobra command tree and handles global concerns
like version information, persistent flags, and exit-code-carrying error
handling. Individual commands are implemented in the internal/commands
subpackages.

# Command Tree

The CLI is organized as:

	factoryflow
	├── factory_mode           Run a flow file end to end
	├── show_version           Query installed firmware inventory
	├── update_fw              Stage, poll and activate one component
	├── force_update           update_fw skipping the installed-version check
	├── show_update_progress   Inspect a flow's live or historical progress
	└── validate               Check a flow file without running it

# Usage

From main.go:

	cli.SetVersion(version, commit, date)
	rootCmd := cli.NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}

# Global Flags

All commands inherit:

	--verbose, -v    Enable verbose output
	--quiet, -q      Suppress non-error output

# Error Handling

Every RunE returns a *shared.ExitError carrying the process exit code it
wants; HandleExitError is the single os.Exit call site.
*/
package cli
