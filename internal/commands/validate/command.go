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

// Package validate implements validate: running the Flow Loader's
// validation passes over a configuration and flow file without executing
// anything, optionally re-validating on every save with --watch.
package validate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rackforge/factoryflow/internal/commands/shared"
	"github.com/rackforge/factoryflow/internal/config"
	"github.com/rackforge/factoryflow/pkg/flow"
	"github.com/rackforge/factoryflow/pkg/registry"
)

// NewCommand creates the validate command.
func NewCommand() *cobra.Command {
	var (
		configPath string
		flowPath   string
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration and flow file without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch {
				return watchAndValidate(cmd.OutOrStdout(), configPath, flowPath)
			}
			return runOnce(cmd.OutOrStdout(), configPath, flowPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration YAML (required)")
	cmd.Flags().StringVarP(&flowPath, "flow", "f", "", "Path to flow YAML (required)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-validate whenever either file is saved")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("flow")

	return cmd
}

// runOnce validates once and returns a non-nil error (suitable for
// shared.HandleExitError) on the first failure found.
func runOnce(out io.Writer, configPath, flowPath string) error {
	if err := validate(out, configPath, flowPath); err != nil {
		return &shared.ExitError{Code: shared.ExitConfigError, Message: "validation failed", Cause: err}
	}
	return nil
}

// validate loads configuration, reads and expands the flow file, and runs
// it through the Flow Loader, returning the first failure encountered.
func validate(out io.Writer, configPath, flowPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("%s: %w", configPath, err)
	}
	if err := config.ValidateDeviceClasses(cfg); err != nil {
		return fmt.Errorf("%s: %w", configPath, err)
	}

	data, err := os.ReadFile(flowPath)
	if err != nil {
		return fmt.Errorf("%s: %w", flowPath, err)
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%s: %w", flowPath, err)
	}

	expanded, err := flow.ExpandTree(raw, cfg.Variables)
	if err != nil {
		return fmt.Errorf("%s: %w", flowPath, err)
	}

	ops := registry.NewDefaultOperationRegistry()
	f, err := flow.Load(expanded, cfg, ops)
	if err != nil {
		return fmt.Errorf("%s: %w", flowPath, err)
	}

	fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("%s (%d top-level nodes)", flowPath, len(f.Steps))))
	return nil
}

// watchAndValidate validates once, then re-validates every time configPath
// or flowPath is written, until the process is interrupted.
func watchAndValidate(out io.Writer, configPath, flowPath string) error {
	if err := validate(out, configPath, flowPath); err != nil {
		fmt.Fprintln(out, shared.RenderError(err.Error()))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return &shared.ExitError{Code: shared.ExitConfigError, Message: "creating file watcher", Cause: err}
	}
	defer watcher.Close()

	watchedDirs := map[string]bool{}
	for _, p := range []string{configPath, flowPath} {
		dir := filepath.Dir(p)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return &shared.ExitError{Code: shared.ExitConfigError, Message: "watching " + dir, Cause: err}
		}
		watchedDirs[dir] = true
	}

	absConfig, _ := filepath.Abs(configPath)
	absFlow, _ := filepath.Abs(flowPath)

	fmt.Fprintln(out, "watching for changes, press Ctrl+C to stop")
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			abs, _ := filepath.Abs(event.Name)
			if abs != absConfig && abs != absFlow {
				continue
			}
			if err := validate(out, configPath, flowPath); err != nil {
				fmt.Fprintln(out, shared.RenderError(err.Error()))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(out, shared.RenderWarn("watcher error: "+err.Error()))
		}
	}
}
