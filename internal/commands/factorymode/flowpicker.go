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
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/huh"

	"github.com/rackforge/factoryflow/internal/commands/shared"
)

var candidatePatterns = []string{"*.yaml", "*.yml"}

// pickFlowFile globs dir for candidate flow files. With exactly one match
// it is returned outright; with several, an interactive terminal gets a
// huh.NewSelect prompt (spec.md §6 EXPANSION) while a non-interactive one
// fails rather than guessing.
func pickFlowFile(dir string) (string, error) {
	var candidates []string
	for _, pattern := range candidatePatterns {
		matches, err := doublestar.FilepathGlob(dir + "/" + pattern)
		if err != nil {
			return "", fmt.Errorf("globbing %s: %w", pattern, err)
		}
		candidates = append(candidates, matches...)
	}
	sort.Strings(candidates)

	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("no flow file given and no *.yaml/*.yml files found in %s", dir)
	case 1:
		return candidates[0], nil
	}

	if shared.IsNonInteractive() {
		return "", fmt.Errorf("no flow file given and %d candidates found in %s; pass -f explicitly in a non-interactive context", len(candidates), dir)
	}

	var chosen string
	options := make([]huh.Option[string], len(candidates))
	for i, c := range candidates {
		options[i] = huh.NewOption(c, c)
	}
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Select a flow file").
			Options(options...).
			Value(&chosen),
	))
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("flow file selection: %w", err)
	}
	return chosen, nil
}
