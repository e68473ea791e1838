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

// Package factorymode implements factory_mode, the command that drives one
// flow file to completion through the Factory Flow Engine.
package factorymode

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rackforge/factoryflow/internal/commands/shared"
	"github.com/rackforge/factoryflow/internal/config"
	ffErrors "github.com/rackforge/factoryflow/internal/errors"
	internallog "github.com/rackforge/factoryflow/internal/log"
	"github.com/rackforge/factoryflow/pkg/engine"
	"github.com/rackforge/factoryflow/pkg/flow"
	"github.com/rackforge/factoryflow/pkg/progress"
	"github.com/rackforge/factoryflow/pkg/registry"
	"github.com/rackforge/factoryflow/pkg/telemetry"
)

// NewCommand creates the factory_mode command.
func NewCommand() *cobra.Command {
	var (
		configPath string
		flowPath   string
		logDir     string
		outputMode string
	)

	cmd := &cobra.Command{
		Use:   "factory_mode",
		Short: "Run a flow file through the Factory Flow Engine",
		Long: `factory_mode loads a configuration YAML and a flow YAML, runs the flow
to completion, and writes the log directory artifacts (orchestrator log,
per-device-type log, flow_progress.json).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, configPath, flowPath, logDir, outputMode)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration YAML (required)")
	cmd.Flags().StringVarP(&flowPath, "flow", "f", "", "Path to flow YAML")
	cmd.Flags().StringVarP(&logDir, "log-dir", "l", "", "Log directory, created if missing (required)")
	cmd.Flags().StringVar(&outputMode, "output-mode", "", "Override configuration.variables.output_mode (none|gui|log|json)")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("log-dir")

	return cmd
}

func run(cmd *cobra.Command, configPath, flowPath, logDir, outputModeFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return &shared.ExitError{Code: shared.ExitConfigError, Message: "loading configuration", Cause: err}
	}
	if err := config.ValidateDeviceClasses(cfg); err != nil {
		return &shared.ExitError{Code: shared.ExitConfigError, Message: "validating configuration", Cause: err}
	}

	resolvedFlowPath, err := resolveFlowPath(flowPath)
	if err != nil {
		return &shared.ExitError{Code: shared.ExitConfigError, Message: "resolving flow file", Cause: err}
	}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return &shared.ExitError{Code: shared.ExitConfigError, Message: "creating log directory", Cause: err}
	}

	orchestratorLog, closeLog, err := openOrchestratorLog(logDir)
	if err != nil {
		return &shared.ExitError{Code: shared.ExitConfigError, Message: "opening orchestrator log", Cause: err}
	}
	defer closeLog()

	logLevel := "info"
	if shared.GetVerbose() {
		logLevel = "debug"
	}
	logger := internallog.New(&internallog.Config{
		Level:  logLevel,
		Format: internallog.FormatJSON,
		Output: newDeviceSplittingWriter(orchestratorLog, logDir),
	})

	f, mode, err := loadFlow(resolvedFlowPath, cfg, outputModeFlag)
	if err != nil {
		return &shared.ExitError{Code: shared.ExitConfigError, Message: "loading flow", Cause: err}
	}

	tracker := progress.New()
	ops := registry.NewDefaultOperationRegistry()
	devices := registry.NewDeviceRegistry(cfg)
	handlers := registry.NewErrorHandlerRegistry()

	eng := engine.New(cfg, ops, devices, handlers, tracker, logger)
	eng.LogDir = logDir

	events := make(chan engine.Event, 256)
	presenterEvents := make(chan engine.Event, 256)
	eng.Events = events

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := engine.NewTracerProvider(ctx, "factoryflow", cfg.Settings)
	if err != nil {
		return &shared.ExitError{Code: shared.ExitConfigError, Message: "starting tracer", Cause: err}
	}
	eng.Tracer = tracerProvider.Tracer("factoryflow")
	defer func() { _ = tracerProvider.Shutdown(context.Background()) }()

	metricsRegistry := prometheus.NewRegistry()
	metrics := progress.NewMetrics(metricsRegistry)
	eng.Metrics = metrics
	if cfg.Settings.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Settings.MetricsAddr, metricsRegistry); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	pusher, err := telemetry.NewPusher(ctx, telemetry.Config{
		Endpoint: cfg.Settings.TelemetryEndpoint,
		Region:   cfg.Settings.TelemetryRegion,
	})
	if err != nil {
		return &shared.ExitError{Code: shared.ExitConfigError, Message: "starting telemetry pusher", Cause: err}
	}
	if pusher != nil {
		eng.Telemetry = pusher
	}

	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		defer close(presenterEvents)
		for ev := range events {
			writeProgressSnapshot(tracker, logDir)
			presenterEvents <- ev
		}
		writeProgressSnapshot(tracker, logDir)
	}()

	presenter := engine.NewPresenter(mode, logger, cmd.OutOrStdout())
	presenterDone := make(chan struct{})
	go func() {
		defer close(presenterDone)
		presenter.Run(ctx, presenterEvents)
	}()

	status, runErr := eng.Run(ctx, f)

	<-progressDone
	<-presenterDone

	exitCode := shared.ExitSuccess
	if status != flow.FlowCompleted {
		exitCode = shared.ExitFlowFailed
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Error Code: %d\n", exitCode)

	if exitCode != shared.ExitSuccess {
		msg := fmt.Sprintf("flow %q finished with status %s", resolvedFlowPath, status)
		return &shared.ExitError{Code: exitCode, Message: msg, Cause: runErr}
	}
	return nil
}

// loadFlow reads, expands, and loads one flow file, resolving the
// effective output mode in the precedence order spec.md §6 implies:
// explicit --output-mode flag, then configuration.variables.output_mode,
// then the Presenter's own "log" default.
func loadFlow(path string, cfg *flow.Configuration, outputModeFlag string) (*flow.Flow, engine.OutputMode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", &ffErrors.ConfigError{Key: path, Reason: "cannot read flow file", Cause: err}
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, "", &ffErrors.ConfigError{Key: path, Reason: "invalid flow YAML", Cause: err}
	}

	expanded, err := flow.ExpandTree(raw, cfg.Variables)
	if err != nil {
		return nil, "", err
	}

	ops := registry.NewDefaultOperationRegistry()
	f, err := flow.Load(expanded, cfg, ops)
	if err != nil {
		return nil, "", err
	}

	modeSource := outputModeFlag
	if modeSource == "" {
		if v, ok := cfg.Variables["output_mode"].(string); ok {
			modeSource = v
		}
	}
	return f, engine.ParseOutputMode(modeSource), nil
}

// resolveFlowPath returns flowPath unchanged if set; otherwise it globs the
// current directory for candidate flow files and, when more than one
// exists, prompts interactively (spec.md §6 EXPANSION) or fails outright in
// a non-interactive context.
func resolveFlowPath(flowPath string) (string, error) {
	if flowPath != "" {
		return flowPath, nil
	}
	return pickFlowFile(".")
}

func openOrchestratorLog(logDir string) (*os.File, func(), error) {
	path := filepath.Join(logDir, "factory_flow_orchestrator.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
