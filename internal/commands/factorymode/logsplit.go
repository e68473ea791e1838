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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// deviceTypeRecord extracts the device_type field a JSON log line's slog
// handler already rendered, without re-parsing the whole record. It is a
// cheap heuristic, not a JSON decoder, since the handler's JSON output has
// a fixed, predictable shape.
var deviceTypeRecord = regexp.MustCompile(`"device_type":"([a-zA-Z0-9_]+)"`)

// deviceSplittingWriter tees every log line written to it into the shared
// orchestrator log and, when the line carries a device_type field, into
// that device type's own <device_type>_factory_flow.log (spec.md §6's log
// directory artifacts). Files are opened lazily and kept open for the
// life of the command.
type deviceSplittingWriter struct {
	orchestrator io.Writer
	logDir       string

	mu    sync.Mutex
	files map[string]*os.File
}

func newDeviceSplittingWriter(orchestrator io.Writer, logDir string) *deviceSplittingWriter {
	return &deviceSplittingWriter{
		orchestrator: orchestrator,
		logDir:       logDir,
		files:        make(map[string]*os.File),
	}
}

func (w *deviceSplittingWriter) Write(p []byte) (int, error) {
	n, err := w.orchestrator.Write(p)
	if err != nil {
		return n, err
	}

	if m := deviceTypeRecord.FindSubmatch(p); m != nil {
		if f := w.fileFor(string(m[1])); f != nil {
			_, _ = f.Write(p)
		}
	}
	return n, nil
}

func (w *deviceSplittingWriter) fileFor(deviceType string) *os.File {
	w.mu.Lock()
	defer w.mu.Unlock()

	if f, ok := w.files[deviceType]; ok {
		return f
	}

	path := filepath.Join(w.logDir, fmt.Sprintf("%s_factory_flow.log", deviceType))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		w.files[deviceType] = nil
		return nil
	}
	w.files[deviceType] = f
	return f
}
