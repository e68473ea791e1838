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

package progress

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rackforge/factoryflow/pkg/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_HappyPathTwoSteps(t *testing.T) {
	tr := New()
	tr.FlowStarted("main", 2)

	s1 := &flow.FlowStep{Name: "s1"}
	tr.StepStarted("main", s1, 1)
	tr.StepFinished("main", flow.StepExecution{StepName: "s1", Status: flow.StepCompleted, FinalResult: true, StartTS: time.Now()})

	s2 := &flow.FlowStep{Name: "s2"}
	tr.StepStarted("main", s2, 1)
	tr.StepFinished("main", flow.StepExecution{StepName: "s2", Status: flow.StepCompleted, FinalResult: true, StartTS: time.Now()})

	tr.FlowFinished("main", flow.FlowCompleted)

	snap := tr.Snapshot()
	fi := snap.Flows["main"]
	require.NotNil(t, fi)
	assert.Equal(t, flow.FlowCompleted, fi.Status)
	assert.Equal(t, 2, fi.CompletedSteps)
	assert.Len(t, fi.StepsExecuted, 2)
}

func TestTracker_OptionalFlowNestedUnderParent(t *testing.T) {
	tr := New()
	tr.FlowStarted("main", 1)
	tr.OptionalFlowStarted("main", "A", "R", 1)
	tr.StepFinishedOptional("main", "R", flow.StepExecution{StepName: "r1", Status: flow.StepCompleted, StartTS: time.Now()})
	tr.OptionalFlowFinished("main", "R", flow.FlowCompleted)

	snap := tr.Snapshot()
	of := snap.Flows["main"].OptionalFlows["R"]
	require.NotNil(t, of)
	assert.Equal(t, "A", of.Caller)
	assert.Equal(t, flow.FlowCompleted, of.Status)
}

func TestTracker_SnapshotIsIdempotentWithNoInterveningEvents(t *testing.T) {
	tr := New()
	tr.FlowStarted("main", 1)
	tr.StepFinished("main", flow.StepExecution{StepName: "s1", Status: flow.StepCompleted, StartTS: time.Now(), Duration: 5 * time.Millisecond})
	tr.FlowFinished("main", flow.FlowCompleted)

	first, err := json.Marshal(tr.Snapshot())
	require.NoError(t, err)
	second, err := json.Marshal(tr.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTracker_AggregatesRecomputedAtSnapshot(t *testing.T) {
	tr := New()
	tr.FlowStarted("main", 3)
	tr.StepFinished("main", flow.StepExecution{StepName: "fast", Status: flow.StepCompleted, Duration: 10 * time.Millisecond})
	tr.StepFinished("main", flow.StepExecution{StepName: "slow", Status: flow.StepCompleted, Duration: 100 * time.Millisecond, RetryAttempts: 3})
	tr.StepFinished("main", flow.StepExecution{StepName: "mid", Status: flow.StepFailed, Duration: 50 * time.Millisecond, RetryAttempts: 1})

	snap := tr.Snapshot()
	fi := snap.Flows["main"]
	assert.Equal(t, 100*time.Millisecond, fi.LongestStepDuration)
	assert.Equal(t, "slow", fi.StepWithMostRetries)
	assert.Equal(t, 1, fi.FailedStepsCount)
}

func TestTracker_ConcurrentFlowsDoNotRace(t *testing.T) {
	tr := New()
	tr.FlowStarted("x", 1)
	tr.FlowStarted("y", 1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tr.StepFinished("x", flow.StepExecution{StepName: "x1", Status: flow.StepCompleted})
		tr.FlowFinished("x", flow.FlowCompleted)
	}()
	go func() {
		defer wg.Done()
		tr.StepFinished("y", flow.StepExecution{StepName: "y1", Status: flow.StepCompleted})
		tr.FlowFinished("y", flow.FlowCompleted)
	}()
	wg.Wait()

	snap := tr.Snapshot()
	assert.Contains(t, snap.Flows, "x")
	assert.Contains(t, snap.Flows, "y")
}
