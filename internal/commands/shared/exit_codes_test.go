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

package shared

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitError_ErrorIncludesCause(t *testing.T) {
	e := &ExitError{Code: ExitConfigError, Message: "bad config", Cause: errors.New("permission denied")}
	assert.Equal(t, "bad config: permission denied", e.Error())
}

func TestExitError_ErrorWithoutCause(t *testing.T) {
	e := &ExitError{Code: ExitFlowFailed, Message: "flow failed"}
	assert.Equal(t, "flow failed", e.Error())
}

func TestExitError_UnwrapReturnsCause(t *testing.T) {
	cause := errors.New("boom")
	e := &ExitError{Cause: cause}
	assert.Same(t, cause, errors.Unwrap(e))
}

func TestExitError_ErrorsAsMatches(t *testing.T) {
	var err error = &ExitError{Code: ExitNotFound, Message: "no such run"}
	var target *ExitError
	assert.True(t, errors.As(err, &target))
	assert.Equal(t, ExitNotFound, target.Code)
}
