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

package forceupdate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCommand_RegistersFlags(t *testing.T) {
	cmd := NewCommand()

	assert.Equal(t, "force_update", cmd.Use)
	for _, name := range []string{"config", "device-type", "device-id", "component", "package", "target-uris", "reset-type", "yes"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "expected flag %q", name)
	}
}

func TestSplitNonEmpty(t *testing.T) {
	assert.Nil(t, splitNonEmpty(""))
	assert.Equal(t, []string{"a", "b"}, splitNonEmpty("a, b"))
}
