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

// Package registry implements the Factory Flow Engine's three dispatch
// tables: the Operation Registry, the Device Registry, and the
// Error-Handler Registry (spec §4.3).
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rackforge/factoryflow/internal/redfish"
	"github.com/rackforge/factoryflow/internal/sshclient"
	"github.com/rackforge/factoryflow/pkg/flow"
)

// DeviceHandle bundles the connection-bearing session state a Capability
// needs for one (device_type, device_id) pair. The Redfish client is
// always present for compute/switch devices; the SSH client is created
// lazily, independent of the Redfish session, only when a step actually
// invokes an ssh.* operation.
type DeviceHandle struct {
	DeviceType flow.DeviceType
	DeviceID   string

	Redfish *redfish.Client

	mu  sync.Mutex
	ssh *sshclient.Client
	cfg flow.ConnectionDescriptor
}

// SSH returns (creating if necessary) the SSH client for this device.
func (h *DeviceHandle) SSH() *sshclient.Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ssh == nil {
		h.ssh = sshclient.New(sshclient.Config{
			Host:     h.cfg.IP,
			Port:     h.cfg.TunnelPort,
			User:     h.cfg.User,
			Password: h.cfg.Password,
		})
	}
	return h.ssh
}

// Close releases every session this handle holds. Errors are logged and
// swallowed: teardown must proceed through every cached handle regardless
// of individual close failures.
func (h *DeviceHandle) Close(logger *slog.Logger) {
	if h.Redfish != nil {
		if err := h.Redfish.Close(context.Background()); err != nil {
			logger.Warn("closing redfish session", "device_type", h.DeviceType, "device_id", h.DeviceID, "error", err)
		}
	}
	h.mu.Lock()
	sshClient := h.ssh
	h.mu.Unlock()
	if sshClient != nil {
		if err := sshClient.Close(); err != nil {
			logger.Warn("closing ssh connection", "device_type", h.DeviceType, "device_id", h.DeviceID, "error", err)
		}
	}
}

// DeviceRegistry is a lock-protected lazy cache of DeviceHandle, keyed by
// (device_type, device_id). Handles are constructed from the
// Configuration's connection entries on first request and closed as a
// batch during engine teardown.
type DeviceRegistry struct {
	cfg *flow.Configuration

	mu      sync.Mutex
	handles map[string]*DeviceHandle
}

// NewDeviceRegistry constructs an empty registry bound to cfg's connection
// entries. No sessions are opened until Get is first called for a device.
func NewDeviceRegistry(cfg *flow.Configuration) *DeviceRegistry {
	return &DeviceRegistry{cfg: cfg, handles: make(map[string]*DeviceHandle)}
}

func deviceKey(deviceType flow.DeviceType, deviceID string) string {
	return string(deviceType) + "/" + deviceID
}

// Get returns the cached handle for (deviceType, deviceID), constructing
// it on first access from the Configuration's connection entry. The Flow
// Loader already guarantees the connection entry exists by the time the
// engine runs, so a missing entry here is a programming error, not a
// runtime condition callers need to branch on.
func (r *DeviceRegistry) Get(deviceType flow.DeviceType, deviceID string) (*DeviceHandle, error) {
	key := deviceKey(deviceType, deviceID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[key]; ok {
		return h, nil
	}

	conns, ok := r.cfg.Connection[deviceType]
	if !ok {
		return nil, fmt.Errorf("no connection entries for device_type %q", deviceType)
	}
	desc, ok := conns[deviceID]
	if !ok {
		return nil, fmt.Errorf("no connection entry for %s/%s", deviceType, deviceID)
	}

	timeout := time.Duration(r.cfg.Settings.RedfishTimeoutSeconds) * time.Second
	client := redfish.New(redfish.Config{
		BaseURL:  fmt.Sprintf("https://%s:%d", desc.IP, redfishPortOrDefault(desc.Port)),
		Username: desc.User,
		Password: desc.Password,
		Timeout:  timeout,
	})

	h := &DeviceHandle{
		DeviceType: deviceType,
		DeviceID:   deviceID,
		Redfish:    client,
		cfg:        desc,
	}
	r.handles[key] = h
	return h, nil
}

// CloseAll closes every cached handle, logging and swallowing individual
// errors, and is always called from the engine's teardown path regardless
// of how execution ended (completion, failure, cancellation, panic).
func (r *DeviceRegistry) CloseAll(logger *slog.Logger) {
	r.mu.Lock()
	handles := make([]*DeviceHandle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.Close(logger)
	}
}

func redfishPortOrDefault(port int) int {
	if port == 0 {
		return 443
	}
	return port
}
