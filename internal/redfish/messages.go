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

package redfish

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
)

// extendedInfoQuery pulls every Message out of a Redfish error body's
// "@Message.ExtendedInfo" array. Parsed and compiled once; gojq code
// values are safe for concurrent Run calls.
var extendedInfoQuery = gojq.MustParse(`.error."@Message.ExtendedInfo"[]?.Message`)
var extendedInfoCode, _ = gojq.Compile(extendedInfoQuery)

// ExtractErrorMessage reduces a Redfish error response body to a single
// human-readable string. Falls back to the raw body (or the HTTP status)
// when the body isn't the expected extended-error shape.
func ExtractErrorMessage(statusCode int, body []byte) string {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		if len(body) == 0 {
			return fmt.Sprintf("redfish request failed with status %d", statusCode)
		}
		return fmt.Sprintf("redfish request failed with status %d: %s", statusCode, string(body))
	}

	if extendedInfoCode == nil {
		return fmt.Sprintf("redfish request failed with status %d", statusCode)
	}

	var messages []string
	iter := extendedInfoCode.Run(doc)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			_ = err
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			messages = append(messages, s)
		}
	}

	if len(messages) == 0 {
		return fmt.Sprintf("redfish request failed with status %d", statusCode)
	}
	return strings.Join(messages, "; ")
}
