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

package flow

import (
	"fmt"
	"strings"

	ffErrors "github.com/rackforge/factoryflow/internal/errors"
)

// placeholderStart/placeholderEnd delimit a ${name} reference.
const (
	placeholderStart = "${"
	placeholderEnd   = "}"
)

// ExpandTree rewrites every string scalar in tree by substituting ${name}
// references against vars. tree is typically the result of yaml.Unmarshal
// into map[string]any/[]any/scalars. The input is not mutated; a new tree
// with the same shape is returned.
//
// Expansion is one left-to-right pass per string: replacement text is never
// re-scanned for further placeholders, so a literal "${x}" inside a
// variable's own value survives verbatim in the output.
func ExpandTree(tree any, vars map[string]any) (any, error) {
	return expandNode(tree, vars, "$")
}

func expandNode(node any, vars map[string]any, path string) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			expanded, err := expandNode(val, vars, path+"."+key)
			if err != nil {
				return nil, err
			}
			out[key] = expanded
		}
		return out, nil
	case map[any]any:
		// yaml.v2-style untyped map keys, normalized to map[string]any.
		out := make(map[string]any, len(v))
		for key, val := range v {
			k := fmt.Sprintf("%v", key)
			expanded, err := expandNode(val, vars, path+"."+k)
			if err != nil {
				return nil, err
			}
			out[k] = expanded
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			expanded, err := expandNode(val, vars, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil
	case string:
		return expandString(v, vars, path)
	default:
		return v, nil
	}
}

// expandString performs one left-to-right substitution pass over s.
func expandString(s string, vars map[string]any, path string) (string, error) {
	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, placeholderStart)
		if start == -1 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start+len(placeholderStart):], placeholderEnd)
		if end == -1 {
			// No closing brace: treat the remainder as literal text.
			b.WriteString(rest)
			break
		}
		end += start + len(placeholderStart)

		b.WriteString(rest[:start])
		name := rest[start+len(placeholderStart) : end]

		val, ok := vars[name]
		if !ok {
			return "", &ffErrors.VariableNotDefined{Name: name, Path: path}
		}
		b.WriteString(fmt.Sprintf("%v", val))

		rest = rest[end+len(placeholderEnd):]
	}
	return b.String(), nil
}
