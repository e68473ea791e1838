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

// Package config loads the configuration YAML surface named by every
// command's -c flag: variables, per-device-type connection descriptors,
// and engine-wide settings. It fills in the same defaults
// pkg/flow/loader.go applies to a flow's own settings override, and
// resolves keyring:service/account credential references before the
// Configuration is ever handed to the Variable Expander or Flow Loader.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	ffErrors "github.com/rackforge/factoryflow/internal/errors"
	"github.com/rackforge/factoryflow/pkg/flow"
)

const (
	defaultRetryCount       = 0
	defaultWaitAfterSeconds = 0
	defaultSSHTimeout       = 30
	defaultRedfishTimeout   = 60
	defaultLoopDetectionCap = 100
)

// Load reads path, parses it as a Configuration, applies engine-wide
// defaults, and resolves every connection.<type>.<id> credential that
// names a keyring or interactive-prompt reference. The returned
// Configuration is ready to hand to pkg/flow.ExpandTree/pkg/flow.Load.
func Load(path string) (*flow.Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ffErrors.ConfigError{Key: path, Reason: "cannot read configuration file", Cause: err}
	}

	var cfg flow.Configuration
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ffErrors.ConfigError{Key: path, Reason: "invalid configuration YAML", Cause: err}
	}

	ApplyDefaults(&cfg)

	if err := ResolveCredentials(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults fills every zero-valued Settings field with its documented
// default, mirroring the way the Flow Loader's applySettingsOverrides
// layers a flow's own settings block on top of these same defaults.
func ApplyDefaults(cfg *flow.Configuration) {
	s := &cfg.Settings
	if s.DefaultRetryCount == 0 {
		s.DefaultRetryCount = defaultRetryCount
	}
	if s.DefaultWaitAfterSeconds == 0 {
		s.DefaultWaitAfterSeconds = defaultWaitAfterSeconds
	}
	if s.SSHTimeoutSeconds == 0 {
		s.SSHTimeoutSeconds = defaultSSHTimeout
	}
	if s.RedfishTimeoutSeconds == 0 {
		s.RedfishTimeoutSeconds = defaultRedfishTimeout
	}
	if s.LoopDetectionCap == 0 {
		s.LoopDetectionCap = defaultLoopDetectionCap
	}
}

// ValidateDeviceClasses reports an error if a connection entry names a
// device type the built-in registries never seed a capability for,
// matching the Flow Loader's own policy of rejecting an unrecognized
// device_type at load time rather than discovering it lazily at engine
// run time. Namespaces outside connection/settings/variables (e.g. a
// compute.DOT extension block) are left untouched: cfg.DeviceClasses
// carries them through verbatim for consumers this core never defines.
func ValidateDeviceClasses(cfg *flow.Configuration) error {
	for deviceType := range cfg.Connection {
		switch deviceType {
		case flow.DeviceCompute, flow.DeviceSwitch:
		default:
			return &ffErrors.ValidationError{Path: fmt.Sprintf("connection.%s", deviceType), Message: "unrecognized device type"}
		}
	}
	return nil
}
