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

package factorymode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommand_RegistersFlags(t *testing.T) {
	cmd := NewCommand()

	assert.Equal(t, "factory_mode", cmd.Use)
	for _, name := range []string{"config", "flow", "log-dir", "output-mode"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "expected flag %q", name)
	}
}

func TestRun_UnreadableConfigIsConfigError(t *testing.T) {
	cmd := NewCommand()
	logDir := filepath.Join(t.TempDir(), "logs")

	err := run(cmd, filepath.Join(t.TempDir(), "missing.yaml"), "", logDir, "")
	require.Error(t, err)
}

func TestOpenOrchestratorLog_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	f, closeLog, err := openOrchestratorLog(dir)
	require.NoError(t, err)
	defer closeLog()

	_, statErr := os.Stat(filepath.Join(dir, "factory_flow_orchestrator.log"))
	require.NoError(t, statErr)
	assert.NotNil(t, f)
}
