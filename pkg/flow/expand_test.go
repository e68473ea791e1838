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

func TestExpandTree_SubstitutesScalarsRecursively(t *testing.T) {
	vars := map[string]any{
		"ip":  "10.0.0.5",
		"env": "prod",
	}
	tree := map[string]any{
		"target_uris": []any{"https://${ip}/redfish/v1", "${env}-cluster"},
		"nested": map[string]any{
			"label": "${env}",
		},
		"count": 3,
	}

	got, err := ExpandTree(tree, vars)
	require.NoError(t, err)

	m := got.(map[string]any)
	uris := m["target_uris"].([]any)
	assert.Equal(t, "https://10.0.0.5/redfish/v1", uris[0])
	assert.Equal(t, "prod-cluster", uris[1])
	assert.Equal(t, "prod", m["nested"].(map[string]any)["label"])
	assert.Equal(t, 3, m["count"])
}

func TestExpandTree_MultiplePlaceholdersLeftToRight(t *testing.T) {
	vars := map[string]any{"a": "1", "b": "2"}
	got, err := ExpandTree("${a}-${b}-${a}", vars)
	require.NoError(t, err)
	assert.Equal(t, "1-2-1", got)
}

func TestExpandTree_NoRecursiveReexpansion(t *testing.T) {
	// The replacement text for "x" itself contains a literal placeholder;
	// it must survive verbatim, not be re-scanned.
	vars := map[string]any{"x": "${y}", "y": "resolved"}
	got, err := ExpandTree("${x}", vars)
	require.NoError(t, err)
	assert.Equal(t, "${y}", got)
}

func TestExpandTree_EmptyStringIsLegalValue(t *testing.T) {
	vars := map[string]any{"empty": ""}
	got, err := ExpandTree("prefix-${empty}-suffix", vars)
	require.NoError(t, err)
	assert.Equal(t, "prefix--suffix", got)
}

func TestExpandTree_UndefinedVariableFails(t *testing.T) {
	_, err := ExpandTree(map[string]any{"k": "${missing}"}, map[string]any{})
	require.Error(t, err)

	var notDefined *ffErrors.VariableNotDefined
	require.ErrorAs(t, err, &notDefined)
	assert.Equal(t, "missing", notDefined.Name)
}

func TestExpandTree_NonStringScalarsPassThrough(t *testing.T) {
	got, err := ExpandTree(true, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, true, got)
}
