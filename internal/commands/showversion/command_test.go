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

package showversion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommand_RegistersFlags(t *testing.T) {
	cmd := NewCommand()

	assert.Equal(t, "show_version", cmd.Use)
	for _, name := range []string{"config", "device-type", "device-id", "json"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "expected flag %q", name)
	}
}

func TestRun_UnreadableConfigIsConfigError(t *testing.T) {
	cmd := NewCommand()

	err := run(cmd, filepath.Join(t.TempDir(), "missing.yaml"), "compute", "node1", false)
	require.Error(t, err)
}

func TestRun_UnknownDeviceIsNotFoundError(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("connection:\n  compute: {}\n"), 0o644))

	cmd := NewCommand()
	err := run(cmd, configPath, "compute", "node1", false)
	require.Error(t, err)
}
