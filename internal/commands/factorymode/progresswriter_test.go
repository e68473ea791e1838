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
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rackforge/factoryflow/pkg/progress"
)

func TestWriteProgressSnapshot_WritesValidJSON(t *testing.T) {
	dir := t.TempDir()
	tracker := progress.New()
	tracker.FlowStarted("main", 2)

	writeProgressSnapshot(tracker, dir)

	data, err := os.ReadFile(filepath.Join(dir, "flow_progress.json"))
	require.NoError(t, err)

	var snapshot progress.Snapshot
	require.NoError(t, json.Unmarshal(data, &snapshot))
	assert.Contains(t, snapshot.Flows, "main")
}

func TestWriteProgressSnapshot_OverwritesOnSubsequentCalls(t *testing.T) {
	dir := t.TempDir()
	tracker := progress.New()
	tracker.FlowStarted("main", 1)
	writeProgressSnapshot(tracker, dir)

	tracker.FlowStarted("second", 3)
	writeProgressSnapshot(tracker, dir)

	data, err := os.ReadFile(filepath.Join(dir, "flow_progress.json"))
	require.NoError(t, err)

	var snapshot progress.Snapshot
	require.NoError(t, json.Unmarshal(data, &snapshot))
	assert.Contains(t, snapshot.Flows, "main")
	assert.Contains(t, snapshot.Flows, "second")
}
