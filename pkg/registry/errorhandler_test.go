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

package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewErrorHandlerRegistry_SeedsBuiltins(t *testing.T) {
	r := NewErrorHandlerRegistry()
	assert.True(t, r.Has("default_error_handler"))
	assert.True(t, r.Has("error_handler_collect_nvdebug_logs"))
	assert.False(t, r.Has("not_registered"))
}

func TestDefaultErrorHandler_AlwaysReturnsFalse(t *testing.T) {
	r := NewErrorHandlerRegistry()
	h, ok := r.Get("default_error_handler")
	require.True(t, ok)

	recovered := h(context.Background(), nil, errors.New("boom"), HandlerContext{Logger: discardLogger()})
	assert.False(t, recovered)
}

func TestCollectNVDebugLogsHandler_SkipsWithoutConfiguredPath(t *testing.T) {
	r := NewErrorHandlerRegistry()
	h, ok := r.Get("error_handler_collect_nvdebug_logs")
	require.True(t, ok)

	recovered := h(context.Background(), nil, errors.New("boom"), HandlerContext{
		Variables: map[string]any{},
		Logger:    discardLogger(),
	})
	assert.False(t, recovered)
}
