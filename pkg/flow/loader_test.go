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

package flow

import (
	"testing"

	ffErrors "github.com/rackforge/factoryflow/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOps map[string]bool

func (s stubOps) Has(dt DeviceType, op string) bool {
	return s[string(dt)+"/"+op]
}

func testConfig() *Configuration {
	return &Configuration{
		Variables: map[string]any{},
		Connection: map[DeviceType]map[string]ConnectionDescriptor{
			DeviceCompute: {"tray1": {IP: "10.0.0.1"}},
			DeviceSwitch:  {"sw1": {IP: "10.0.0.2"}},
		},
		Settings: Settings{DefaultRetryCount: 1, DefaultWaitAfterSeconds: 0},
	}
}

func testOps() stubOps {
	return stubOps{
		"compute/stage_firmware": true,
		"compute/activate":       true,
		"switch/stage_firmware":  true,
	}
}

func TestLoad_LinearFlow(t *testing.T) {
	tree := map[string]any{
		"steps": []any{
			map[string]any{"device_type": "compute", "device_id": "tray1", "operation": "stage_firmware", "tag": "s1"},
			map[string]any{"device_type": "compute", "device_id": "tray1", "operation": "activate", "tag": "s2"},
		},
	}

	f, err := Load(tree, testConfig(), testOps())
	require.NoError(t, err)
	require.Len(t, f.Steps, 2)
	assert.Equal(t, 1, f.Steps[0].Step.RetryCount) // inherited from settings default
}

func TestLoad_DuplicateTagInScopeFails(t *testing.T) {
	tree := map[string]any{
		"steps": []any{
			map[string]any{"device_type": "compute", "device_id": "tray1", "operation": "stage_firmware", "tag": "dup"},
			map[string]any{"device_type": "compute", "device_id": "tray1", "operation": "activate", "tag": "dup"},
		},
	}

	_, err := Load(tree, testConfig(), testOps())
	require.Error(t, err)
	var verr *ffErrors.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestLoad_UnresolvedJumpTargetFails(t *testing.T) {
	tree := map[string]any{
		"steps": []any{
			map[string]any{"device_type": "compute", "device_id": "tray1", "operation": "stage_firmware", "tag": "s1", "jump_on_failure": "nowhere"},
		},
	}

	_, err := Load(tree, testConfig(), testOps())
	require.Error(t, err)
	var verr *ffErrors.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestLoad_UnregisteredOperationFails(t *testing.T) {
	tree := map[string]any{
		"steps": []any{
			map[string]any{"device_type": "compute", "device_id": "tray1", "operation": "does_not_exist"},
		},
	}

	_, err := Load(tree, testConfig(), testOps())
	require.Error(t, err)
}

func TestLoad_UnknownDeviceIDFails(t *testing.T) {
	tree := map[string]any{
		"steps": []any{
			map[string]any{"device_type": "compute", "device_id": "unknown-tray", "operation": "stage_firmware"},
		},
	}

	_, err := Load(tree, testConfig(), testOps())
	require.Error(t, err)
}

func TestLoad_ParallelStepChildrenCannotJump(t *testing.T) {
	tree := map[string]any{
		"steps": []any{
			map[string]any{
				"name": "p1",
				"parallel": []any{
					map[string]any{"device_type": "compute", "device_id": "tray1", "operation": "stage_firmware", "jump_on_success": "x"},
				},
			},
		},
	}

	_, err := Load(tree, testConfig(), testOps())
	require.Error(t, err)
}

func TestLoad_OptionalFlowResolution(t *testing.T) {
	tree := map[string]any{
		"optional_flows": map[string]any{
			"recover": []any{
				map[string]any{"device_type": "compute", "device_id": "tray1", "operation": "stage_firmware"},
			},
		},
		"steps": []any{
			map[string]any{"device_type": "compute", "device_id": "tray1", "operation": "activate", "execute_optional_flow": "recover"},
		},
	}

	f, err := Load(tree, testConfig(), testOps())
	require.NoError(t, err)
	require.Contains(t, f.OptionalFlows, "recover")
}

func TestLoad_UndefinedOptionalFlowFails(t *testing.T) {
	tree := map[string]any{
		"steps": []any{
			map[string]any{"device_type": "compute", "device_id": "tray1", "operation": "activate", "execute_optional_flow": "missing"},
		},
	}

	_, err := Load(tree, testConfig(), testOps())
	require.Error(t, err)
}

func TestLoad_IndependentFlowGroupOwnScope(t *testing.T) {
	tree := map[string]any{
		"steps": []any{
			map[string]any{
				"name": "batch",
				"independent_flows": []any{
					map[string]any{
						"name": "x",
						"steps": []any{
							map[string]any{"device_type": "compute", "device_id": "tray1", "operation": "stage_firmware", "tag": "a", "jump_on_success": "a"},
						},
					},
				},
			},
		},
	}

	f, err := Load(tree, testConfig(), testOps())
	require.NoError(t, err)
	require.Len(t, f.Steps, 1)
	assert.Equal(t, KindIndependentGroup, f.Steps[0].Kind)
}

func TestLoad_EmptyStepsCompletesWithZeroSteps(t *testing.T) {
	tree := map[string]any{"steps": []any{}}
	f, err := Load(tree, testConfig(), testOps())
	require.NoError(t, err)
	assert.Empty(t, f.Steps)
}

func TestLoad_RetryCountZeroIsValid(t *testing.T) {
	tree := map[string]any{
		"steps": []any{
			map[string]any{"device_type": "compute", "device_id": "tray1", "operation": "stage_firmware", "retry_count": 0},
		},
	}
	f, err := Load(tree, testConfig(), testOps())
	require.NoError(t, err)
	assert.Equal(t, 0, f.Steps[0].Step.RetryCount)
}

func TestLoad_NegativeRetryCountFails(t *testing.T) {
	tree := map[string]any{
		"steps": []any{
			map[string]any{"device_type": "compute", "device_id": "tray1", "operation": "stage_firmware", "retry_count": -1},
		},
	}
	_, err := Load(tree, testConfig(), testOps())
	require.Error(t, err)
}
