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

package validate

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
connection:
  compute:
    node-1:
      ip: 10.0.0.1
      user: admin
      password: hunter2
`

const validFlow = `
steps:
  - device_type: compute
    device_id: node-1
    operation: redfish.stage_firmware
    parameters:
      package: fw.pldm
  - device_type: compute
    device_id: node-1
    operation: redfish.activate
`

const invalidFlow = `
steps:
  - device_type: compute
    device_id: unknown-node
    operation: redfish.stage_firmware
`

func writeFiles(t *testing.T, configBody, flowBody string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	flowPath := filepath.Join(dir, "flow.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(configBody), 0o644))
	require.NoError(t, os.WriteFile(flowPath, []byte(flowBody), 0o644))
	return configPath, flowPath
}

func TestNewCommand_RegistersFlags(t *testing.T) {
	cmd := NewCommand()

	assert.Equal(t, "validate", cmd.Use)
	for _, name := range []string{"config", "flow", "watch"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "expected flag %q", name)
	}
}

func TestValidate_AcceptsWellFormedFlow(t *testing.T) {
	configPath, flowPath := writeFiles(t, validConfig, validFlow)

	var buf bytes.Buffer
	err := validate(&buf, configPath, flowPath)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓")
}

func TestValidate_ReportsUnknownDevice(t *testing.T) {
	configPath, flowPath := writeFiles(t, validConfig, invalidFlow)

	var buf bytes.Buffer
	err := validate(&buf, configPath, flowPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown-node")
}

func TestRunOnce_WrapsFailureAsExitError(t *testing.T) {
	configPath, flowPath := writeFiles(t, validConfig, invalidFlow)

	err := runOnce(&bytes.Buffer{}, configPath, flowPath)
	require.Error(t, err)
}
