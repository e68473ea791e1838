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

// Package progress implements the Progress Tracker: a thread-safe,
// append-only record of step/flow executions, serializable to JSON (spec
// §4.4). It holds only plain records, never live references to engine
// state, which is what keeps snapshot() cheap and lock-friendly.
package progress

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rackforge/factoryflow/pkg/flow"
)

// Snapshot is the JSON document written to flow_progress.json.
type Snapshot struct {
	Flows map[string]*flow.FlowInfo `json:"flows"`
}

// Tracker accumulates execution telemetry behind a single monitor lock.
// All mutating operations acquire it; snapshots are taken under the same
// lock by deep-copying the aggregate, so a snapshot is never a torn read.
type Tracker struct {
	mu    sync.Mutex
	flows map[string]*flow.FlowInfo
	order []string
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{flows: make(map[string]*flow.FlowInfo)}
}

// FlowStarted registers a new top-level flow (an IndependentFlow, after
// the engine's batching/wrapping pass) with Pending->Running status.
func (t *Tracker) FlowStarted(flowKey string, totalSteps int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.flows[flowKey]; !exists {
		t.order = append(t.order, flowKey)
	}
	t.flows[flowKey] = &flow.FlowInfo{
		Status:     flow.FlowRunning,
		TotalSteps: totalSteps,
	}
}

// StepStarted records the current step for a running flow. attemptIndex
// is the 1-based attempt number within the step's retry cluster.
func (t *Tracker) StepStarted(flowKey string, step *flow.FlowStep, attemptIndex int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fi := t.flows[flowKey]
	if fi == nil {
		return
	}
	fi.CurrentStep = step.Name
}

// StepFinished appends a completed StepExecution record to the named
// flow and updates CompletedSteps.
func (t *Tracker) StepFinished(flowKey string, exec flow.StepExecution) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fi := t.flows[flowKey]
	if fi == nil {
		return
	}
	fi.StepsExecuted = append(fi.StepsExecuted, exec)
	if exec.Status == flow.StepCompleted {
		fi.CompletedSteps++
	}
	if exec.Status == flow.StepFailed {
		fi.FailedStepsCount++
	}
	if exec.RetryAttempts > 0 {
		fi.RetriesExecuted++
	}
}

// JumpRecorded records a jump against the flow's aggregate counters. The
// jump itself is also attached to the relevant StepExecution by the
// engine before calling StepFinished; this call only updates the
// aggregate tallies used by FlowInfo.
func (t *Tracker) JumpRecorded(flowKey string, kind flow.JumpKind) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fi := t.flows[flowKey]
	if fi == nil {
		return
	}
	switch kind {
	case flow.JumpSuccess:
		fi.JumpOnSuccessExecuted++
	case flow.JumpFailure:
		fi.JumpOnFailureExecuted++
	}
}

// OptionalFlowStarted creates (or resets) the nested FlowInfo for an
// optional flow invocation, linked to its parent via Caller.
func (t *Tracker) OptionalFlowStarted(parentFlowKey, callerStepName, optionalFlowKey string, totalSteps int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent := t.flows[parentFlowKey]
	if parent == nil {
		return
	}
	if parent.OptionalFlows == nil {
		parent.OptionalFlows = make(map[string]*flow.FlowInfo)
	}
	parent.OptionalFlows[optionalFlowKey] = &flow.FlowInfo{
		Status:     flow.FlowRunning,
		TotalSteps: totalSteps,
		Caller:     callerStepName,
	}
}

// OptionalFlowFinished sets the terminal status on a previously-started
// optional flow's FlowInfo.
func (t *Tracker) OptionalFlowFinished(parentFlowKey, optionalFlowKey string, status flow.FlowState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent := t.flows[parentFlowKey]
	if parent == nil || parent.OptionalFlows == nil {
		return
	}
	if of, ok := parent.OptionalFlows[optionalFlowKey]; ok {
		of.Status = status
	}
}

// StepStartedOptional records the current step for a running optional
// flow invocation nested under parentFlowKey.
func (t *Tracker) StepStartedOptional(parentFlowKey, optionalFlowKey string, step *flow.FlowStep, attemptIndex int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	of := t.optionalFlowInfoLocked(parentFlowKey, optionalFlowKey)
	if of == nil {
		return
	}
	of.CurrentStep = step.Name
}

// StepFinishedOptional appends a StepExecution to an optional flow
// invocation's nested FlowInfo, mirroring StepFinished.
func (t *Tracker) StepFinishedOptional(parentFlowKey, optionalFlowKey string, exec flow.StepExecution) {
	t.mu.Lock()
	defer t.mu.Unlock()

	of := t.optionalFlowInfoLocked(parentFlowKey, optionalFlowKey)
	if of == nil {
		return
	}
	of.StepsExecuted = append(of.StepsExecuted, exec)
	if exec.Status == flow.StepCompleted {
		of.CompletedSteps++
	}
	if exec.Status == flow.StepFailed {
		of.FailedStepsCount++
	}
	if exec.RetryAttempts > 0 {
		of.RetriesExecuted++
	}
}

// optionalFlowInfoLocked looks up a nested optional-flow FlowInfo. Callers
// must already hold t.mu.
func (t *Tracker) optionalFlowInfoLocked(parentFlowKey, optionalFlowKey string) *flow.FlowInfo {
	parent := t.flows[parentFlowKey]
	if parent == nil || parent.OptionalFlows == nil {
		return nil
	}
	return parent.OptionalFlows[optionalFlowKey]
}

// FlowFinished sets the terminal status on a top-level flow and computes
// its TotalTestTime from the first StepExecution's StartTS to now.
func (t *Tracker) FlowFinished(flowKey string, status flow.FlowState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fi := t.flows[flowKey]
	if fi == nil {
		return
	}
	fi.Status = status
	if len(fi.StepsExecuted) > 0 {
		first := fi.StepsExecuted[0].StartTS
		fi.TotalTestTime = time.Since(first)
	}
	recomputeAggregates(fi)
}

// Snapshot deep-copies the aggregate under the monitor lock and
// recomputes every FlowInfo's derived aggregates, so two consecutive
// snapshots with no intervening events produce byte-identical JSON.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]*flow.FlowInfo, len(t.flows))
	for _, key := range t.order {
		fi := t.flows[key]
		if fi == nil {
			continue
		}
		out[key] = deepCopyFlowInfo(fi)
	}
	return Snapshot{Flows: out}
}

// MarshalJSON renders the snapshot exactly as flow_progress.json.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type alias Snapshot
	return json.Marshal(alias(s))
}

func deepCopyFlowInfo(fi *flow.FlowInfo) *flow.FlowInfo {
	cp := *fi
	cp.StepsExecuted = append([]flow.StepExecution(nil), fi.StepsExecuted...)
	if fi.OptionalFlows != nil {
		cp.OptionalFlows = make(map[string]*flow.FlowInfo, len(fi.OptionalFlows))
		for k, v := range fi.OptionalFlows {
			cp.OptionalFlows[k] = deepCopyFlowInfo(v)
		}
	}
	recomputeAggregates(&cp)
	return &cp
}

// recomputeAggregates derives averages/longest/most-retried from
// StepsExecuted, per spec §4.4 ("the tracker recomputes derived
// aggregates ... at snapshot time").
func recomputeAggregates(fi *flow.FlowInfo) {
	if len(fi.StepsExecuted) == 0 {
		fi.AverageStepDuration = 0
		fi.LongestStepDuration = 0
		fi.StepWithMostRetries = ""
		return
	}

	var total time.Duration
	var longest time.Duration
	var mostRetries int
	var mostRetriedStep string

	for _, se := range fi.StepsExecuted {
		total += se.Duration
		if se.Duration > longest {
			longest = se.Duration
		}
		if se.RetryAttempts > mostRetries {
			mostRetries = se.RetryAttempts
			mostRetriedStep = se.StepName
		}
	}

	fi.AverageStepDuration = total / time.Duration(len(fi.StepsExecuted))
	fi.LongestStepDuration = longest
	fi.StepWithMostRetries = mostRetriedStep
}
