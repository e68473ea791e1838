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
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceSplittingWriter_TeesToOrchestratorAlways(t *testing.T) {
	dir := t.TempDir()
	var orchestrator bytes.Buffer
	w := newDeviceSplittingWriter(&orchestrator, dir)

	line := []byte(`{"msg":"no device here"}` + "\n")
	_, err := w.Write(line)
	require.NoError(t, err)

	assert.Equal(t, string(line), orchestrator.String())
}

func TestDeviceSplittingWriter_SplitsByDeviceType(t *testing.T) {
	dir := t.TempDir()
	var orchestrator bytes.Buffer
	w := newDeviceSplittingWriter(&orchestrator, dir)

	line := []byte(`{"msg":"staging firmware","device_type":"compute","device_id":"node1"}` + "\n")
	_, err := w.Write(line)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "compute_factory_flow.log"))
	require.NoError(t, err)
	assert.Equal(t, string(line), string(data))
}
