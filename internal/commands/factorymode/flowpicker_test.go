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

func TestPickFlowFile_SingleCandidate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "update.yaml"), []byte("steps: []"), 0o644))

	path, err := pickFlowFile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "update.yaml"), path)
}

func TestPickFlowFile_NoCandidates(t *testing.T) {
	dir := t.TempDir()

	_, err := pickFlowFile(dir)
	assert.Error(t, err)
}

func TestPickFlowFile_MultipleCandidatesNonInteractive(t *testing.T) {
	t.Setenv("FACTORYFLOW_NON_INTERACTIVE", "true")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("steps: []"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("steps: []"), 0o644))

	_, err := pickFlowFile(dir)
	assert.Error(t, err)
}
