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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractErrorMessage_ExtendedInfo(t *testing.T) {
	body := []byte(`{
		"error": {
			"code": "Base.1.0.GeneralError",
			"message": "A general error has occurred",
			"@Message.ExtendedInfo": [
				{"MessageId": "Base.1.0.ResourceNotFound", "Message": "The firmware component was not found."},
				{"MessageId": "Base.1.0.ActionNotSupported", "Message": "Activation requires a reboot."}
			]
		}
	}`)

	got := ExtractErrorMessage(400, body)
	assert.Contains(t, got, "firmware component was not found")
	assert.Contains(t, got, "requires a reboot")
}

func TestExtractErrorMessage_FallsBackOnNonExtendedErrorBody(t *testing.T) {
	got := ExtractErrorMessage(500, []byte("internal server error"))
	assert.Contains(t, got, "500")
}

func TestExtractErrorMessage_FallsBackOnEmptyBody(t *testing.T) {
	got := ExtractErrorMessage(503, nil)
	assert.Contains(t, got, "503")
}
