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

	"github.com/rackforge/factoryflow/pkg/progress"
)

// writeProgressSnapshot renders tracker's current state to
// <logDir>/flow_progress.json. It writes to a temporary file and renames
// into place so a concurrent show_update_progress reader never observes a
// partially-written document (spec.md §6's "snapshot after every step
// boundary; final write at teardown").
func writeProgressSnapshot(tracker *progress.Tracker, logDir string) {
	snapshot := tracker.Snapshot()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return
	}

	finalPath := filepath.Join(logDir, "flow_progress.json")
	tmpPath := finalPath + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmpPath, finalPath)
}
