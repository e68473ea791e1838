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

	ffErrors "github.com/rackforge/factoryflow/internal/errors"
)

// OperationResolver answers whether an operation is registered for a
// device type. Implemented by pkg/registry.OperationRegistry; declared
// here so the Flow Loader does not import the registry package (which
// itself imports pkg/flow for DeviceType/FlowStep).
type OperationResolver interface {
	Has(deviceType DeviceType, operation string) bool
}

// scope accumulates the tags seen while building one tag namespace (the
// main step list, one optional flow, one independent flow's step list,
// one parallel group). A parallel group's scope is never consulted for
// jump resolution, since parallel children cannot jump.
type scope struct {
	name string
	tags map[string]int // tag -> scope index
}

func newScope(name string) *scope {
	return &scope{name: name, tags: make(map[string]int)}
}

// Load consumes the post-expansion YAML tree and produces the typed Flow
// graph, performing all six validation passes in spec order. Any failure
// is fatal and reported with a dotted path; loading never partially
// succeeds; the Flow returned on error is nil.
func Load(tree any, cfg *Configuration, ops OperationResolver) (*Flow, error) {
	root, ok := tree.(map[string]any)
	if !ok {
		return nil, &ffErrors.ValidationError{Path: "$", Message: "flow document must be a mapping"}
	}

	settings := cfg.Settings
	if rawSettings, ok := root["settings"].(map[string]any); ok {
		applySettingsOverrides(&settings, rawSettings)
	}

	l := &loader{cfg: cfg, ops: ops, settings: settings}

	// Pass 1 (shape) happens inline during parse* calls below: every
	// required-field check and type assertion raises ValidationError with
	// the offending path as soon as it's encountered.
	optionalFlows := make(map[string]*OptionalFlow)
	if rawOptional, ok := root["optional_flows"].(map[string]any); ok {
		for name, rawSteps := range rawOptional {
			path := fmt.Sprintf("optional_flows.%s", name)
			stepsList, ok := rawSteps.([]any)
			if !ok {
				return nil, &ffErrors.ValidationError{Path: path, Message: "optional flow must be a list of steps"}
			}
			sc := newScope(path)
			nodes, err := l.parseNodeList(stepsList, path, sc)
			if err != nil {
				return nil, err
			}
			optionalFlows[name] = &OptionalFlow{Name: name, Steps: nodes}
		}
	}

	rawSteps, _ := root["steps"].([]any)
	mainScope := newScope("steps")
	mainNodes, err := l.parseNodeList(rawSteps, "steps", mainScope)
	if err != nil {
		return nil, err
	}

	flowErrorHandler, _ := root["execute_on_error"].(string)
	if flowErrorHandler == "" {
		flowErrorHandler = settings.ExecuteOnError
	}

	f := &Flow{
		Steps:          mainNodes,
		OptionalFlows:  optionalFlows,
		ExecuteOnError: flowErrorHandler,
		Settings:       settings,
	}

	// Pass 5 (reference resolution) for execute_optional_flow: optional
	// flow names resolve globally, so they are checked once the full
	// optional-flow set is known. execute_on_error handler names are not
	// checked by Load.
	if err := l.resolveGlobalReferences(f); err != nil {
		return nil, err
	}

	return f, nil
}

type loader struct {
	cfg      *Configuration
	ops      OperationResolver
	settings Settings
}

func applySettingsOverrides(base *Settings, raw map[string]any) {
	if v, ok := raw["default_retry_count"].(int); ok {
		base.DefaultRetryCount = v
	}
	if v, ok := raw["default_wait_after_seconds"].(int); ok {
		base.DefaultWaitAfterSeconds = v
	}
	if v, ok := raw["ssh_timeout"].(int); ok {
		base.SSHTimeoutSeconds = v
	}
	if v, ok := raw["redfish_timeout"].(int); ok {
		base.RedfishTimeoutSeconds = v
	}
	if v, ok := raw["execute_on_error"].(string); ok {
		base.ExecuteOnError = v
	}
	if v, ok := raw["loop_detection_cap"].(int); ok {
		base.LoopDetectionCap = v
	}
}

// parseNodeList builds one scope's ordered Node list (pass 1 shape +
// pass 3 scope-index assignment + pass 4 tag-uniqueness, all inline since
// they share the same traversal).
func (l *loader) parseNodeList(raw []any, path string, sc *scope) ([]Node, error) {
	nodes := make([]Node, 0, len(raw))
	for i, item := range raw {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		m, ok := item.(map[string]any)
		if !ok {
			return nil, &ffErrors.ValidationError{Path: itemPath, Message: "step must be a mapping"}
		}

		switch {
		case m["parallel"] != nil:
			node, err := l.parseParallelStep(m, itemPath)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
		case m["independent_flows"] != nil:
			node, err := l.parseIndependentGroup(m, itemPath)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
		default:
			step, err := l.parseFlowStep(m, itemPath, sc, i)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, Node{Kind: KindFlowStep, Step: step})
		}
	}
	return nodes, nil
}

func (l *loader) parseFlowStep(m map[string]any, path string, sc *scope, index int) (*FlowStep, error) {
	deviceType, ok := m["device_type"].(string)
	if !ok || deviceType == "" {
		return nil, &ffErrors.ValidationError{Path: path + ".device_type", Message: "device_type is required"}
	}
	dt := DeviceType(deviceType)
	if dt != DeviceCompute && dt != DeviceSwitch {
		return nil, &ffErrors.ValidationError{Path: path + ".device_type", Message: fmt.Sprintf("unknown device_type %q", deviceType)}
	}

	deviceID, ok := m["device_id"].(string)
	if !ok || deviceID == "" {
		return nil, &ffErrors.ValidationError{Path: path + ".device_id", Message: "device_id is required"}
	}

	operation, ok := m["operation"].(string)
	if !ok || operation == "" {
		return nil, &ffErrors.ValidationError{Path: path + ".operation", Message: "operation is required"}
	}

	// Pass 2 (registries): connection entry and operation registration.
	conns, ok := l.cfg.Connection[dt]
	if !ok {
		return nil, &ffErrors.ValidationError{Path: path, Message: fmt.Sprintf("no connection entries configured for device_type %q", dt)}
	}
	if _, ok := conns[deviceID]; !ok {
		return nil, &ffErrors.ValidationError{Path: path + ".device_id", Message: fmt.Sprintf("no connection entry for %s/%s", dt, deviceID)}
	}
	if l.ops != nil && !l.ops.Has(dt, operation) {
		return nil, &ffErrors.ValidationError{Path: path + ".operation", Message: fmt.Sprintf("operation %q not registered for device_type %q", operation, dt)}
	}

	name, _ := m["name"].(string)
	if name == "" {
		name = operation
	}

	params, _ := m["parameters"].(map[string]any)

	step := &FlowStep{
		Name:                      name,
		DeviceType:                dt,
		DeviceID:                  deviceID,
		Operation:                 operation,
		Parameters:                params,
		Tag:                       stringField(m, "tag"),
		RetryCount:                intFieldOr(m, "retry_count", l.settings.DefaultRetryCount),
		WaitAfterSeconds:          intFieldOr(m, "wait_after_seconds", l.settings.DefaultWaitAfterSeconds),
		WaitBetweenRetriesSeconds: intFieldOr(m, "wait_between_retries_seconds", 0),
		TimeoutSeconds:            intFieldOr(m, "timeout_seconds", 0),
		JumpOnSuccess:             stringField(m, "jump_on_success"),
		JumpOnFailure:             stringField(m, "jump_on_failure"),
		ExecuteOptionalFlow:       stringField(m, "execute_optional_flow"),
		ExecuteOnError:            stringField(m, "execute_on_error"),
		scopeIndex:                index,
	}

	if step.RetryCount < 0 {
		return nil, &ffErrors.ValidationError{Path: path + ".retry_count", Message: "retry_count must be non-negative"}
	}

	// Pass 4 (tag uniqueness per scope).
	if step.Tag != "" {
		if prev, exists := sc.tags[step.Tag]; exists {
			return nil, &ffErrors.ValidationError{Path: path + ".tag", Message: fmt.Sprintf("duplicate tag %q (first used at %s[%d])", step.Tag, sc.name, prev)}
		}
		sc.tags[step.Tag] = index
	}

	return step, nil
}

func (l *loader) parseParallelStep(m map[string]any, path string) (Node, error) {
	children, ok := m["parallel"].([]any)
	if !ok {
		return Node{}, &ffErrors.ValidationError{Path: path + ".parallel", Message: "parallel must be a list of steps"}
	}

	name, _ := m["name"].(string)
	maxWorkers := intFieldOr(m, "max_workers", len(children))
	if maxWorkers <= 0 {
		maxWorkers = len(children)
	}

	// Parallel children have no tags and cannot jump: give them a fresh,
	// anonymous scope that is never consulted for jump resolution.
	childScope := newScope(path + ".parallel")
	steps := make([]*FlowStep, 0, len(children))
	for i, c := range children {
		childPath := fmt.Sprintf("%s.parallel[%d]", path, i)
		cm, ok := c.(map[string]any)
		if !ok {
			return Node{}, &ffErrors.ValidationError{Path: childPath, Message: "parallel child must be a mapping"}
		}
		step, err := l.parseFlowStep(cm, childPath, childScope, i)
		if err != nil {
			return Node{}, err
		}
		if step.JumpOnSuccess != "" || step.JumpOnFailure != "" {
			return Node{}, &ffErrors.ValidationError{Path: childPath, Message: "parallel children cannot jump"}
		}
		steps = append(steps, step)
	}

	return Node{Kind: KindParallelStep, Parallel: &ParallelStep{Name: name, Children: steps, MaxWorkers: maxWorkers}}, nil
}

func (l *loader) parseIndependentGroup(m map[string]any, path string) (Node, error) {
	raw, ok := m["independent_flows"].([]any)
	if !ok {
		return Node{}, &ffErrors.ValidationError{Path: path + ".independent_flows", Message: "independent_flows must be a list"}
	}
	if len(raw) != 1 {
		return Node{}, &ffErrors.ValidationError{Path: path + ".independent_flows", Message: "each independent_flows entry must name exactly one flow; list consecutive entries for concurrent scheduling"}
	}

	entry, ok := raw[0].(map[string]any)
	if !ok {
		return Node{}, &ffErrors.ValidationError{Path: path + ".independent_flows[0]", Message: "independent flow entry must be a mapping"}
	}

	name, _ := entry["name"].(string)
	stepsRaw, _ := entry["steps"].([]any)

	sc := newScope(path + "." + name)
	nodes, err := l.parseNodeList(stepsRaw, path+".independent_flows[0].steps", sc)
	if err != nil {
		return Node{}, err
	}

	return Node{Kind: KindIndependentGroup, Independent: &IndependentFlow{Name: name, Steps: nodes}}, nil
}

// resolveGlobalReferences checks execute_optional_flow (pass 5's
// globally-scoped half) and intra-scope jump targets (the scope-local
// half) across the whole tree: the main steps, every optional flow, every
// independent flow and every parallel child. execute_on_error handler
// names are not checked here.
func (l *loader) resolveGlobalReferences(f *Flow) error {
	if err := resolveScopeJumps("steps", f.Steps); err != nil {
		return err
	}
	for name, of := range f.OptionalFlows {
		if err := resolveScopeJumps("optional_flows."+name, of.Steps); err != nil {
			return err
		}
	}

	var walk func(path string, nodes []Node) error
	walk = func(path string, nodes []Node) error {
		for i, n := range nodes {
			switch n.Kind {
			case KindFlowStep:
				s := n.Step
				if s.ExecuteOptionalFlow != "" {
					if _, ok := f.OptionalFlows[s.ExecuteOptionalFlow]; !ok {
						return &ffErrors.ValidationError{Path: fmt.Sprintf("%s[%d].execute_optional_flow", path, i), Message: fmt.Sprintf("undefined optional flow %q", s.ExecuteOptionalFlow)}
					}
				}
			case KindParallelStep:
				for j, c := range n.Parallel.Children {
					if _, ok := f.OptionalFlows[c.ExecuteOptionalFlow]; c.ExecuteOptionalFlow != "" && !ok {
						return &ffErrors.ValidationError{Path: fmt.Sprintf("%s[%d].parallel[%d].execute_optional_flow", path, i, j), Message: fmt.Sprintf("undefined optional flow %q", c.ExecuteOptionalFlow)}
					}
				}
			case KindIndependentGroup:
				scopePath := fmt.Sprintf("%s[%d].independent_flows[0].steps", path, i)
				if err := resolveScopeJumps(scopePath, n.Independent.Steps); err != nil {
					return err
				}
				if err := walk(scopePath, n.Independent.Steps); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for name, of := range f.OptionalFlows {
		if err := walk("optional_flows."+name, of.Steps); err != nil {
			return err
		}
	}
	return walk("steps", f.Steps)
}

// resolveScopeJumps validates jump_on_success/jump_on_failure targets
// resolve to a tag within the same scope (steps directly in nodes; nested
// parallel groups do not themselves own tags, so they are skipped, and
// nested independent-flow groups open their own scope, resolved by a
// separate call).
func resolveScopeJumps(scopeName string, nodes []Node) error {
	tags := make(map[string]bool)
	for _, n := range nodes {
		if n.Kind == KindFlowStep && n.Step.Tag != "" {
			tags[n.Step.Tag] = true
		}
	}
	for i, n := range nodes {
		if n.Kind != KindFlowStep {
			continue
		}
		s := n.Step
		if s.JumpOnSuccess != "" && !tags[s.JumpOnSuccess] {
			return &ffErrors.ValidationError{Path: fmt.Sprintf("%s[%d].jump_on_success", scopeName, i), Message: fmt.Sprintf("undefined tag %q in scope %q", s.JumpOnSuccess, scopeName)}
		}
		if s.JumpOnFailure != "" && !tags[s.JumpOnFailure] {
			return &ffErrors.ValidationError{Path: fmt.Sprintf("%s[%d].jump_on_failure", scopeName, i), Message: fmt.Sprintf("undefined tag %q in scope %q", s.JumpOnFailure, scopeName)}
		}
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func intFieldOr(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}
