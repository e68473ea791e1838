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

// Package flow defines the Factory Flow Engine's data model: the
// Configuration surface, the four node kinds of the workflow DSL
// (FlowStep, ParallelStep, IndependentFlow, OptionalFlow), and the
// telemetry shapes the engine and progress tracker exchange.
package flow

import "time"

// DeviceType is the enumerated target class a step executes against.
type DeviceType string

const (
	DeviceCompute DeviceType = "compute"
	DeviceSwitch  DeviceType = "switch"
)

// ConnectionDescriptor is one entry of configuration.connection.<type>.<id>.
type ConnectionDescriptor struct {
	IP         string `yaml:"ip"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Port       int    `yaml:"port"`
	Protocol   string `yaml:"protocol"`
	TunnelPort int    `yaml:"tunnel_port"`
}

// Settings holds flow-wide and engine-wide defaults, overridable per flow.
type Settings struct {
	DefaultRetryCount       int    `yaml:"default_retry_count"`
	DefaultWaitAfterSeconds int    `yaml:"default_wait_after_seconds"`
	SSHTimeoutSeconds       int    `yaml:"ssh_timeout"`
	RedfishTimeoutSeconds   int    `yaml:"redfish_timeout"`
	ExecuteOnError          string `yaml:"execute_on_error"`
	LoopDetectionCap        int    `yaml:"loop_detection_cap"`
	MetricsAddr             string `yaml:"metrics_addr"`
	OtelEndpoint            string `yaml:"otel_endpoint"`
	OtelProtocol            string `yaml:"otel_protocol"`
	TelemetryEndpoint       string `yaml:"telemetry_endpoint"`
	TelemetryRegion         string `yaml:"telemetry_region"`
}

// Configuration is the immutable-after-load root of the variables,
// connections, and settings surfaces. DeviceClasses carries through
// unrecognized device-class namespaces (e.g. compute.DOT) verbatim since
// the core only consumes connection/settings/variables.
type Configuration struct {
	Variables     map[string]any                             `yaml:"variables"`
	Connection    map[DeviceType]map[string]ConnectionDescriptor `yaml:"connection"`
	Settings      Settings                                    `yaml:"settings"`
	DeviceClasses map[string]map[string]any                  `yaml:",inline"`
}

// StepKind discriminates the three node shapes a flow's step list holds.
type StepKind int

const (
	KindFlowStep StepKind = iota
	KindParallelStep
	KindIndependentGroup
)

// FlowStep is the atomic unit of work: one operation on one device.
type FlowStep struct {
	Name       string
	DeviceType DeviceType
	DeviceID   string
	Operation  string
	Parameters map[string]any

	Tag string

	RetryCount                int
	WaitAfterSeconds          int
	WaitBetweenRetriesSeconds int
	TimeoutSeconds            int

	JumpOnSuccess string
	JumpOnFailure string

	ExecuteOptionalFlow string
	ExecuteOnError      string

	// scopeIndex is this step's position within its owning scope, assigned
	// by the Flow Loader's scope-construction pass.
	scopeIndex int
}

// ScopeIndex returns the step's position within its owning scope, as
// assigned by the Flow Loader.
func (s *FlowStep) ScopeIndex() int { return s.scopeIndex }

// ParallelStep runs its children concurrently; it fails iff any child fails.
type ParallelStep struct {
	Name       string
	Children   []*FlowStep
	MaxWorkers int
}

// Node is one entry of a scope's ordered step list: exactly one of Step,
// Parallel, or Independent is non-nil.
type Node struct {
	Kind        StepKind
	Step        *FlowStep
	Parallel    *ParallelStep
	Independent *IndependentFlow
}

// IndependentFlow is a self-contained, tag-isolated sub-flow. Consecutive
// IndependentFlow entries at the top level are scheduled concurrently.
type IndependentFlow struct {
	Name  string
	Steps []Node
}

// OptionalFlow has the same shape as IndependentFlow but is named and
// triggerable by a FlowStep's execute_optional_flow.
type OptionalFlow struct {
	Name  string
	Steps []Node
}

// Flow is the top-level loaded graph: an ordered node list, a name-indexed
// map of optional flows, and an optional flow-level error handler.
type Flow struct {
	Steps          []Node
	OptionalFlows  map[string]*OptionalFlow
	ExecuteOnError string
	Settings       Settings
}

// JumpKind discriminates which jump field fired.
type JumpKind string

const (
	JumpSuccess JumpKind = "success"
	JumpFailure JumpKind = "failure"
)

// JumpRecord captures one jump taken during execution.
type JumpRecord struct {
	Kind   JumpKind `json:"kind"`
	From   string   `json:"from"`
	Target string   `json:"target"`
}

// StepStatus is the terminal classification of one StepExecution.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepExecution is one attempt-cluster's telemetry record.
type StepExecution struct {
	ExecutionID           string         `json:"execution_id"`
	StepName              string         `json:"step_name"`
	Operation             string         `json:"operation"`
	DeviceType            DeviceType     `json:"device_type"`
	DeviceID              string         `json:"device_id"`
	Parameters            map[string]any `json:"parameters"`
	StartTS               time.Time      `json:"start_ts"`
	Duration              time.Duration  `json:"duration"`
	RetryAttempts         int            `json:"retry_attempts"`
	FinalResult           bool           `json:"final_result"`
	Status                StepStatus     `json:"status"`
	ErrorMessages         []string       `json:"error_messages"`
	JumpTaken             *JumpRecord    `json:"jump_taken,omitempty"`
	OptionalFlowsTriggered []string      `json:"optional_flows_triggered,omitempty"`
}

// FlowState is the lifecycle status of a FlowInfo.
type FlowState string

const (
	FlowPending   FlowState = "Pending"
	FlowRunning   FlowState = "Running"
	FlowCompleted FlowState = "Completed"
	FlowFailed    FlowState = "Failed"
)

// FlowInfo is the telemetry aggregate for one IndependentFlow/OptionalFlow
// execution, including derived statistics recomputed at snapshot time.
type FlowInfo struct {
	Status        FlowState                `json:"status"`
	CurrentStep   string                    `json:"current_step"`
	CompletedSteps int                      `json:"completed_steps"`
	TotalSteps     int                      `json:"total_steps"`
	TotalTestTime  time.Duration            `json:"total_testtime"`
	StepsExecuted  []StepExecution          `json:"steps_executed"`
	OptionalFlows  map[string]*FlowInfo      `json:"optional_flows,omitempty"`

	// Caller is the name of the failing step that triggered this FlowInfo,
	// set only when this FlowInfo belongs to an OptionalFlow invocation.
	Caller string `json:"caller,omitempty"`

	RetriesExecuted        int           `json:"retries_executed"`
	JumpOnSuccessExecuted  int           `json:"jump_on_success_executed"`
	JumpOnFailureExecuted  int           `json:"jump_on_failure_executed"`
	FailedStepsCount       int           `json:"failed_steps_count"`
	AverageStepDuration    time.Duration `json:"average_step_duration"`
	LongestStepDuration    time.Duration `json:"longest_step_duration"`
	StepWithMostRetries    string        `json:"step_with_most_retries"`
}
