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

package registry

import (
	"context"
	"testing"

	"github.com/rackforge/factoryflow/pkg/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationRegistry_HasAndGet(t *testing.T) {
	r := NewOperationRegistry()
	called := false
	r.Register(flow.DeviceCompute, "noop", func(ctx context.Context, h *DeviceHandle, params map[string]any) (bool, string) {
		called = true
		return true, ""
	})

	assert.True(t, r.Has(flow.DeviceCompute, "noop"))
	assert.False(t, r.Has(flow.DeviceSwitch, "noop"))

	capability, ok := r.Get(flow.DeviceCompute, "noop")
	require.True(t, ok)
	ok2, msg := capability(context.Background(), nil, nil)
	assert.True(t, ok2)
	assert.Empty(t, msg)
	assert.True(t, called)
}

func TestNewDefaultOperationRegistry_SeedsComputeAndSwitch(t *testing.T) {
	r := NewDefaultOperationRegistry()
	for _, dt := range []flow.DeviceType{flow.DeviceCompute, flow.DeviceSwitch} {
		assert.True(t, r.Has(dt, "redfish.get_firmware_inventory"))
		assert.True(t, r.Has(dt, "redfish.stage_firmware"))
		assert.True(t, r.Has(dt, "redfish.poll_update_task"))
		assert.True(t, r.Has(dt, "redfish.activate"))
		assert.True(t, r.Has(dt, "ssh.run_diagnostic"))
	}
	assert.False(t, r.Has(flow.DeviceCompute, "does_not_exist"))
}
