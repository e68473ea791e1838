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

package engine

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rackforge/factoryflow/pkg/flow"
)

func TestParseOutputMode(t *testing.T) {
	assert.Equal(t, OutputNone, ParseOutputMode("none"))
	assert.Equal(t, OutputGUI, ParseOutputMode("GUI"))
	assert.Equal(t, OutputJSON, ParseOutputMode(" json "))
	assert.Equal(t, OutputLog, ParseOutputMode("log"))
	assert.Equal(t, OutputLog, ParseOutputMode("nonsense"))
}

func TestPresenter_JSONModePrintsOneLinePerStepFinished(t *testing.T) {
	var buf bytes.Buffer
	p := NewPresenter(OutputJSON, testLogger(), &buf)

	events := make(chan Event, 4)
	events <- Event{Kind: EventFlowStarted, FlowKey: "main"}
	events <- Event{Kind: EventStepFinished, FlowKey: "main", StepName: "s1", Status: flow.StepCompleted, Duration: 10 * time.Millisecond}
	events <- Event{Kind: EventStepFinished, FlowKey: "main", StepName: "s2", Status: flow.StepFailed, Duration: 5 * time.Millisecond}
	events <- Event{Kind: EventFlowFinished, FlowKey: "main", Final: flow.FlowFailed}
	close(events)

	p.Run(context.Background(), events)

	out := buf.String()
	assert.Contains(t, out, "[SUCCESS] - s1")
	assert.Contains(t, out, "[FAILED] - s2")
}

func TestPresenter_NoneModeDrainsWithoutPanicking(t *testing.T) {
	p := NewPresenter(OutputNone, testLogger(), &bytes.Buffer{})

	events := make(chan Event, 2)
	events <- Event{Kind: EventStepFinished, FlowKey: "main", StepName: "s1", Status: flow.StepCompleted}
	close(events)

	assert.NotPanics(t, func() { p.Run(context.Background(), events) })
}

func TestPresenter_GUIModeTracksPerFlowCounts(t *testing.T) {
	var buf bytes.Buffer
	p := NewPresenter(OutputGUI, testLogger(), &buf)

	events := make(chan Event, 4)
	events <- Event{Kind: EventFlowStarted, FlowKey: "X"}
	events <- Event{Kind: EventStepFinished, FlowKey: "X", StepName: "x1", Status: flow.StepCompleted}
	events <- Event{Kind: EventStepFinished, FlowKey: "X", StepName: "x2", Status: flow.StepFailed}
	events <- Event{Kind: EventFlowFinished, FlowKey: "X", Final: flow.FlowFailed}
	close(events)

	p.Run(context.Background(), events)

	row := p.rows["X"]
	assert.Equal(t, 1, row.completed)
	assert.Equal(t, 1, row.failed)
	assert.Equal(t, flow.FlowFailed, row.final)
	assert.Contains(t, buf.String(), "X")
}

func TestPresenter_RunStopsOnContextCancel(t *testing.T) {
	p := NewPresenter(OutputLog, testLogger(), &bytes.Buffer{})
	events := make(chan Event)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, events)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
