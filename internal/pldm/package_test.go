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

package pldm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validHeader() []byte {
	h := make([]byte, 24)
	copy(h[0:16], pldmMagic[:])
	h[16] = 1 // header version
	h[17] = 24
	h[18] = 0
	return h
}

func TestParse_ValidHeader(t *testing.T) {
	pkg, err := Parse(validHeader())
	require.NoError(t, err)
	assert.Equal(t, uint8(1), pkg.HeaderVersion)
}

func TestParse_RejectsBadMagic(t *testing.T) {
	data := validHeader()
	data[0] = 0x00
	_, err := Parse(data)
	require.Error(t, err)
}

func TestParse_RejectsTooShort(t *testing.T) {
	_, err := Parse([]byte{1, 2, 3})
	require.Error(t, err)
}
