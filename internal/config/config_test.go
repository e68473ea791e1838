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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	ffErrors "github.com/rackforge/factoryflow/internal/errors"
	"github.com/rackforge/factoryflow/pkg/flow"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesSettingsDefaults(t *testing.T) {
	path := writeConfig(t, `
variables:
  rack: rack-7
connection:
  compute:
    node-1:
      ip: 10.0.0.1
      user: admin
      password: hunter2
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, defaultSSHTimeout, cfg.Settings.SSHTimeoutSeconds)
	assert.Equal(t, defaultRedfishTimeout, cfg.Settings.RedfishTimeoutSeconds)
	assert.Equal(t, defaultLoopDetectionCap, cfg.Settings.LoopDetectionCap)
	assert.Equal(t, "rack-7", cfg.Variables["rack"])
}

func TestLoad_PreservesExplicitSettings(t *testing.T) {
	path := writeConfig(t, `
settings:
  ssh_timeout: 120
  loop_detection_cap: 5
connection: {}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.Settings.SSHTimeoutSeconds)
	assert.Equal(t, 5, cfg.Settings.LoopDetectionCap)
}

func TestLoad_UnreadableFileIsConfigError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	var cerr *ffErrors.ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestResolveCredentials_KeyringReference(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, keyring.Set("factoryflow-test", "node-1", "s3cr3t"))

	cfg := &flow.Configuration{
		Connection: map[flow.DeviceType]map[string]flow.ConnectionDescriptor{
			flow.DeviceCompute: {
				"node-1": {IP: "10.0.0.1", User: "admin", Password: "keyring:factoryflow-test/node-1"},
			},
		},
	}

	require.NoError(t, ResolveCredentials(cfg))
	assert.Equal(t, "s3cr3t", cfg.Connection[flow.DeviceCompute]["node-1"].Password)
}

func TestResolveCredentials_MissingKeyringEntryIsValidationError(t *testing.T) {
	keyring.MockInit()

	cfg := &flow.Configuration{
		Connection: map[flow.DeviceType]map[string]flow.ConnectionDescriptor{
			flow.DeviceCompute: {
				"node-1": {Password: "keyring:factoryflow-test/does-not-exist"},
			},
		},
	}

	err := ResolveCredentials(cfg)
	require.Error(t, err)
	var verr *ffErrors.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestResolveCredentials_MalformedReferenceIsValidationError(t *testing.T) {
	cfg := &flow.Configuration{
		Connection: map[flow.DeviceType]map[string]flow.ConnectionDescriptor{
			flow.DeviceCompute: {
				"node-1": {Password: "keyring:no-slash-here"},
			},
		},
	}

	err := ResolveCredentials(cfg)
	require.Error(t, err)
	var verr *ffErrors.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestValidateDeviceClasses_RejectsUnknownDeviceType(t *testing.T) {
	cfg := &flow.Configuration{
		Connection: map[flow.DeviceType]map[string]flow.ConnectionDescriptor{
			"storage": {"shelf-1": {IP: "10.0.0.9"}},
		},
	}

	err := ValidateDeviceClasses(cfg)
	require.Error(t, err)
	var verr *ffErrors.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestValidateDeviceClasses_AcceptsKnownDeviceTypes(t *testing.T) {
	cfg := &flow.Configuration{
		Connection: map[flow.DeviceType]map[string]flow.ConnectionDescriptor{
			flow.DeviceCompute: {"node-1": {}},
			flow.DeviceSwitch:  {"sw-1": {}},
		},
	}

	assert.NoError(t, ValidateDeviceClasses(cfg))
}
