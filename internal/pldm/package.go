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

// Package pldm reads just enough of the PLDM firmware package format
// (DSP0267) to check a package's header identifier, version and size. It
// does not decode the component table, verify signatures or decode
// component images; the spec's non-goals
// explicitly exclude firmware verification cryptography and caching.
package pldm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
)

// pldmMagic is the first 16 bytes of a PLDM firmware package: a UUID
// identifying the package header format, per DSP0267 table 2.
var pldmMagic = [16]byte{
	0xf0, 0x18, 0x87, 0x8c, 0xcb, 0x7d, 0x49, 0x43,
	0x98, 0x00, 0xa0, 0x2f, 0x05, 0x9a, 0xca, 0x02,
}

// Component describes one firmware component targeted by a package, as
// recorded in the package's Firmware Device ID Records / Component Image
// Information table.
type Component struct {
	Classification uint16
	Identifier     uint16
	Version        string
}

// Package is the subset of a parsed PLDM package header this orchestrator
// needs: the header version and the raw bytes. Parse leaves Components
// empty; Redfish Targets come from the flow's parameters.
type Package struct {
	HeaderVersion uint8
	Components    []Component
	raw           []byte
}

// Load reads and parses a PLDM package's header from disk. The component
// image payloads themselves are not decoded; Stage passes the package's
// raw bytes straight through to the Redfish multipart push.
func Load(path string) (*Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pldm package %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a PLDM package header from an in-memory byte slice.
func Parse(data []byte) (*Package, error) {
	if len(data) < 20 {
		return nil, fmt.Errorf("pldm package too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[0:16], pldmMagic[:]) {
		return nil, fmt.Errorf("not a PLDM firmware package (bad header identifier)")
	}

	headerVersion := data[16]
	headerSize := binary.LittleEndian.Uint16(data[17:19])
	if int(headerSize) > len(data) {
		return nil, fmt.Errorf("pldm package header size %d exceeds file size %d", headerSize, len(data))
	}

	// The full Firmware Device ID Records / Component Image Information
	// table layout (DSP0267 §5) is intentionally not decoded field-by-field
	// here: the orchestrator only needs an opaque, already-built component
	// list for Redfish's Targets array, which for this platform's packages
	// is supplied by the flow's parameters rather than parsed out of the
	// binary component table.
	return &Package{
		HeaderVersion: headerVersion,
		raw:           data,
	}, nil
}

// Bytes returns the package's raw bytes, as handed to the Redfish
// multipart push.
func (p *Package) Bytes() []byte {
	return p.raw
}
