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

package sdk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rackforge/factoryflow/pkg/engine"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
connection:
  compute:
    node-1:
      ip: 10.0.0.1
      user: admin
      password: hunter2
`), 0o644))
	return path
}

func TestNew_DefaultsLogger(t *testing.T) {
	s := New()
	assert.NotNil(t, s)
}

func TestOnEvent_DispatchesToHandlers(t *testing.T) {
	s := New()

	var received []engine.EventKind
	s.OnEvent(func(ev engine.Event) {
		received = append(received, ev.Kind)
	})

	s.dispatch(engine.Event{Kind: engine.EventFlowStarted})
	assert.Equal(t, []engine.EventKind{engine.EventFlowStarted}, received)
}

func TestOnEvent_RecoversPanickingHandler(t *testing.T) {
	s := New()
	s.OnEvent(func(ev engine.Event) { panic("boom") })

	assert.NotPanics(t, func() {
		s.dispatch(engine.Event{Kind: engine.EventFlowStarted})
	})
}

func TestLoadConfig_UnreadablePathIsError(t *testing.T) {
	s := New()
	_, err := s.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadFlow_RejectsInvalidYAML(t *testing.T) {
	s := New()
	cfg, err := s.LoadConfig(writeConfig(t))
	require.NoError(t, err)

	_, err = s.LoadFlow([]byte("not: [valid"), cfg)
	require.Error(t, err)
}

func TestLoadFlow_ValidatesSteps(t *testing.T) {
	s := New()
	cfg, err := s.LoadConfig(writeConfig(t))
	require.NoError(t, err)

	_, err = s.LoadFlow([]byte(`
steps:
  - device_type: compute
    device_id: unknown-node
    operation: redfish.stage_firmware
`), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown-node")
}
