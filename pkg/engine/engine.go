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

// Package engine implements the Execution Engine (spec §4.5): the unified
// scheduler that drives a loaded Flow to completion, honoring retries,
// jumps, optional flows, parallelism, and the multi-level failure
// protocol. Every top-level construct is walked through the same
// instruction-pointer loop — the single most important architectural
// decision for keeping the engine testable (spec §9).
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"go.opentelemetry.io/otel/trace"

	ffErrors "github.com/rackforge/factoryflow/internal/errors"
	"github.com/rackforge/factoryflow/pkg/flow"
	"github.com/rackforge/factoryflow/pkg/progress"
	"github.com/rackforge/factoryflow/pkg/registry"
)

const mainScopeKey = "main"

const defaultLoopDetectionCap = 100

// EventKind discriminates the engine's internal progress events,
// consumed by pkg/engine/output.go's presentation subscribers.
type EventKind string

const (
	EventFlowStarted  EventKind = "flow_started"
	EventStepFinished EventKind = "step_finished"
	EventFlowFinished EventKind = "flow_finished"
)

// Event is one notification posted to an Engine's Events channel, if one
// is configured. Emission never blocks the engine: a full or absent
// channel simply drops the event (spec §4.5.5's output modes are a
// presentation concern, never allowed to affect execution).
type Event struct {
	Kind     EventKind
	FlowKey  string
	StepName string
	Status   flow.StepStatus
	Duration time.Duration
	Final    flow.FlowState
}

// Engine drives one loaded Flow to completion. It holds no per-run
// mutable state of its own beyond a touched-device set for the nvdebug
// handler; a single Engine can run multiple Flows sequentially.
type Engine struct {
	Config   *flow.Configuration
	Ops      *registry.OperationRegistry
	Devices  *registry.DeviceRegistry
	Handlers *registry.ErrorHandlerRegistry
	Tracker  *progress.Tracker
	Metrics  *progress.Metrics
	Logger   *slog.Logger
	LogDir   string
	Events    chan<- Event
	Tracer    trace.Tracer
	Telemetry TelemetryPusher

	touchedMu sync.Mutex
	touched   map[string]registry.DeviceRef
}

// TelemetryPusher is implemented by pkg/telemetry.Pusher. Declared here as
// an interface, rather than importing that package directly, so the
// engine stays decoupled from the concrete SigV4 transport — the push is
// advisory and the engine must build and run identically whether or not
// telemetry is configured.
type TelemetryPusher interface {
	Push(ctx context.Context, flowKey string, payload []byte) error
}

func (e *Engine) emit(ev Event) {
	if e.Events == nil {
		return
	}
	select {
	case e.Events <- ev:
	default:
	}
}

// New constructs an Engine. Devices/Ops/Handlers/Tracker are required;
// Metrics may be nil (no-op).
func New(cfg *flow.Configuration, ops *registry.OperationRegistry, devices *registry.DeviceRegistry, handlers *registry.ErrorHandlerRegistry, tracker *progress.Tracker, logger *slog.Logger) *Engine {
	return &Engine{
		Config:   cfg,
		Ops:      ops,
		Devices:  devices,
		Handlers: handlers,
		Tracker:  tracker,
		Logger:   logger,
		touched:  make(map[string]registry.DeviceRef),
	}
}

func (e *Engine) loopDetectionCap() int {
	if e.Config.Settings.LoopDetectionCap > 0 {
		return e.Config.Settings.LoopDetectionCap
	}
	return defaultLoopDetectionCap
}

// Run drives f to completion. It performs the top-level batching pass
// (§4.5.1), the unified per-scope instruction-pointer loop (§4.5.2-4.5.4),
// and, on failure, invokes the flow-level error handler exactly once for
// cleanup/log collection. Device Registry teardown always runs, on every
// exit path.
func (e *Engine) Run(ctx context.Context, f *flow.Flow) (flow.FlowState, error) {
	defer e.Devices.CloseAll(e.Logger)

	status, err := e.runScope(ctx, f, topLevelSink{tracker: e.Tracker, key: mainScopeKey}, f.Steps)

	if status == flow.FlowFailed && f.ExecuteOnError != "" {
		e.invokeFlowLevelHandler(ctx, f, err)
	}

	e.pushTelemetry(ctx)

	return status, err
}

// pushTelemetry sends the finished run's full progress snapshot to the
// configured telemetry collector, if any. A push failure is logged and
// never affects the flow's outcome (spec.md §2 EXPANSION: advisory only).
func (e *Engine) pushTelemetry(ctx context.Context) {
	if e.Telemetry == nil {
		return
	}
	payload, err := json.Marshal(e.Tracker.Snapshot())
	if err != nil {
		e.Logger.Warn("telemetry: marshal progress snapshot", "error", err)
		return
	}
	if err := e.Telemetry.Push(ctx, mainScopeKey, payload); err != nil {
		e.Logger.Warn("telemetry: push failed", "error", err)
	}
}

// telemetrySink abstracts where a scope's StepExecution/FlowInfo records
// land: either a fresh top-level entry in the Progress Tracker (the main
// scope, or a concurrently-scheduled IndependentFlow) or a nested entry
// under a parent flow's OptionalFlows (an OptionalFlow invocation).
type telemetrySink interface {
	Started(totalSteps int)
	StepStarted(step *flow.FlowStep, attempt int)
	StepFinished(exec flow.StepExecution)
	Finished(status flow.FlowState)
	JumpRecorded(kind flow.JumpKind)
	Key() string
}

type topLevelSink struct {
	tracker *progress.Tracker
	key     string
}

func (s topLevelSink) Started(n int)                         { s.tracker.FlowStarted(s.key, n) }
func (s topLevelSink) StepStarted(step *flow.FlowStep, a int) { s.tracker.StepStarted(s.key, step, a) }
func (s topLevelSink) StepFinished(exec flow.StepExecution)   { s.tracker.StepFinished(s.key, exec) }
func (s topLevelSink) Finished(status flow.FlowState)         { s.tracker.FlowFinished(s.key, status) }
func (s topLevelSink) JumpRecorded(kind flow.JumpKind)        { s.tracker.JumpRecorded(s.key, kind) }
func (s topLevelSink) Key() string                            { return s.key }

type optionalSink struct {
	tracker    *progress.Tracker
	parentKey  string
	callerStep string
	key        string
}

func (s optionalSink) Started(n int) {
	s.tracker.OptionalFlowStarted(s.parentKey, s.callerStep, s.key, n)
}
func (s optionalSink) StepStarted(step *flow.FlowStep, a int) {
	s.tracker.StepStartedOptional(s.parentKey, s.key, step, a)
}
func (s optionalSink) StepFinished(exec flow.StepExecution) {
	s.tracker.StepFinishedOptional(s.parentKey, s.key, exec)
}
func (s optionalSink) Finished(status flow.FlowState) {
	s.tracker.OptionalFlowFinished(s.parentKey, s.key, status)
}
func (optionalSink) JumpRecorded(flow.JumpKind) {} // optional-flow jump tallies are not separately aggregated
func (s optionalSink) Key() string               { return s.parentKey + "/" + s.key }

// finishStep records a StepExecution against sink, feeds Prometheus, and
// posts a step_finished Event — the one choke point every call site
// funnels through so presentation/metrics never drift from the tracker.
func (e *Engine) finishStep(sink telemetrySink, exec flow.StepExecution) {
	sink.StepFinished(exec)
	if e.Metrics != nil {
		e.Metrics.ObserveStep(exec)
	}
	e.emit(Event{Kind: EventStepFinished, FlowKey: sink.Key(), StepName: exec.StepName, Status: exec.Status, Duration: exec.Duration})
}

// finishScope sets a scope's terminal status and posts a flow_finished
// Event.
func (e *Engine) finishScope(sink telemetrySink, status flow.FlowState) {
	sink.Finished(status)
	if e.Metrics != nil {
		e.Metrics.ObserveFlow(status)
	}
	e.emit(Event{Kind: EventFlowFinished, FlowKey: sink.Key(), Final: status})
}

// runScope performs the instruction-pointer loop over one tag scope:
// the main sequence, a single IndependentFlow's steps, or an
// OptionalFlow's steps. It is the one function every construct funnels
// through, per spec §9's "step wrapping for uniformity."
func (e *Engine) runScope(ctx context.Context, f *flow.Flow, sink telemetrySink, steps []flow.Node) (flow.FlowState, error) {
	sink.Started(len(steps))
	e.emit(Event{Kind: EventFlowStarted, FlowKey: sink.Key()})

	ctx, endSpan := e.startScopeSpan(ctx, sink)

	visitCounts := make(map[int]int)
	pointer := 0
	status := flow.FlowCompleted
	var lastErr error

	defer func() { endSpan(status) }()

	visitCap := e.loopDetectionCap()

loop:
	for pointer < len(steps) {
		if err := ctx.Err(); err != nil {
			status, lastErr = flow.FlowFailed, &ffErrors.Cancelled{}
			break
		}

		node := steps[pointer]
		visitCounts[pointer]++
		if visitCounts[pointer] > visitCap {
			status = flow.FlowFailed
			lastErr = &ffErrors.LoopDetected{StepTag: tagOf(node), Cap: visitCap}
			break
		}

		switch node.Kind {
		case flow.KindIndependentGroup:
			start := pointer
			end := pointer
			for end < len(steps) && steps[end].Kind == flow.KindIndependentGroup {
				end++
			}
			ok, err := e.runIndependentBatch(ctx, f, steps[start:end])
			if !ok {
				status, lastErr = flow.FlowFailed, err
				break loop
			}
			pointer = end

		case flow.KindParallelStep:
			ok, err := e.runParallelStep(ctx, f, node.Parallel)
			if !ok {
				status, lastErr = flow.FlowFailed, err
				break loop
			}
			pointer++

		case flow.KindFlowStep:
			next, failed, err := e.runFlowStepProtocol(ctx, f, sink, steps, pointer, node.Step)
			if failed {
				status, lastErr = flow.FlowFailed, err
				break loop
			}
			pointer = next
		}
	}

	e.finishScope(sink, status)
	return status, lastErr
}

// runIndependentBatch executes a maximal run of consecutive
// IndependentFlow entries: sequentially if the run has one member,
// concurrently (bounded by the run's size) otherwise. Siblings always
// run to completion; the batch fails if any member fails.
func (e *Engine) runIndependentBatch(ctx context.Context, f *flow.Flow, group []flow.Node) (bool, error) {
	if len(group) == 1 {
		indep := group[0].Independent
		status, err := e.runScope(ctx, f, topLevelSink{tracker: e.Tracker, key: indep.Name}, indep.Steps)
		return status == flow.FlowCompleted, err
	}

	var g errgroup.Group
	g.SetLimit(len(group))

	results := make([]error, len(group))
	statuses := make([]flow.FlowState, len(group))
	for i, node := range group {
		i, indep := i, node.Independent
		g.Go(func() error {
			status, err := e.runScope(ctx, f, topLevelSink{tracker: e.Tracker, key: indep.Name}, indep.Steps)
			statuses[i] = status
			results[i] = err
			return nil // never short-circuit siblings; collect below
		})
	}
	_ = g.Wait()

	for i, status := range statuses {
		if status != flow.FlowCompleted {
			return false, results[i]
		}
	}
	return true, nil
}

// runParallelStep executes a ParallelStep's children concurrently,
// bounded by max_workers. Children have no tags and cannot jump (enforced
// at load time); they still get retries and optional-flow rescue (Level
// A) and a step-level error handler (Level C), but never jumps (Level B)
// or a flow-level failure of their own (Level D) — a failing child simply
// fails the ParallelStep, which the caller treats as this generic step's
// own Level D.
func (e *Engine) runParallelStep(ctx context.Context, f *flow.Flow, p *flow.ParallelStep) (bool, error) {
	if len(p.Children) == 0 {
		return true, nil
	}

	maxWorkers := p.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = len(p.Children)
	}

	var g errgroup.Group
	g.SetLimit(maxWorkers)

	results := make([]bool, len(p.Children))
	errs := make([]error, len(p.Children))

	for i, child := range p.Children {
		i, child := i, child
		g.Go(func() error {
			ok, err := e.runParallelChild(ctx, f, child)
			results[i] = ok
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	for i, ok := range results {
		if !ok {
			return false, errs[i]
		}
	}
	return true, nil
}

// runParallelChild runs one ParallelStep child through retries and, on
// failure, Level A (optional flow rescue) and Level C (step handler), but
// never Level B/D. Its telemetry lands on the engine's shared Tracker
// under a synthetic per-child key so concurrent children don't collide.
func (e *Engine) runParallelChild(ctx context.Context, f *flow.Flow, step *flow.FlowStep) (bool, error) {
	sink := topLevelSink{tracker: e.Tracker, key: parallelChildKey(step)}
	sink.Started(1)

	exec := e.executeStepWithRetries(ctx, sink, step)
	if exec.FinalResult {
		e.finishStep(sink, exec)
		e.finishScope(sink, flow.FlowCompleted)
		return true, nil
	}

	var rescueErr error
	if step.ExecuteOptionalFlow != "" {
		rescued, retryExec, ofErr := e.attemptOptionalFlowRescue(ctx, f, sink, step, exec)
		e.finishStep(sink, retryExec)
		if rescued {
			e.finishScope(sink, flow.FlowCompleted)
			return true, nil
		}
		exec, rescueErr = retryExec, ofErr
	} else {
		e.finishStep(sink, exec)
	}

	if rescueErr == nil && step.ExecuteOnError != "" {
		if e.runStepErrorHandler(ctx, step, exec) {
			e.finishScope(sink, flow.FlowCompleted)
			return true, nil
		}
	}

	e.finishScope(sink, flow.FlowFailed)
	if rescueErr != nil {
		return false, rescueErr
	}
	return false, lastError(exec)
}

func parallelChildKey(step *flow.FlowStep) string {
	return fmt.Sprintf("parallel:%s:%s/%s", step.Name, step.DeviceType, step.DeviceID)
}

// runFlowStepProtocol executes one FlowStep and applies the full
// four-level failure protocol (spec §4.5.4) when it fails after
// exhausting its retries. Returns the instruction pointer's next value
// and whether the enclosing scope must fail.
func (e *Engine) runFlowStepProtocol(ctx context.Context, f *flow.Flow, sink telemetrySink, steps []flow.Node, pointer int, step *flow.FlowStep) (next int, scopeFailed bool, err error) {
	exec := e.executeStepWithRetries(ctx, sink, step)

	if exec.FinalResult {
		return e.advanceOnSuccess(ctx, sink, steps, pointer, step, exec)
	}

	// Level A — Optional Flow.
	if step.ExecuteOptionalFlow != "" {
		rescued, retryExec, ofErr := e.attemptOptionalFlowRescue(ctx, f, sink, step, exec)
		if ofErr != nil {
			// The optional flow itself failed: the main flow fails
			// immediately; Levels B-D do not run.
			e.finishStep(sink, retryExec)
			return pointer, true, ofErr
		}
		if rescued {
			return e.advanceOnSuccess(ctx, sink, steps, pointer, step, retryExec)
		}
		exec = retryExec
	}
	e.finishStep(sink, exec)

	// Level B — Jump on Failure.
	if step.JumpOnFailure != "" {
		target := findTagIndex(steps, step.JumpOnFailure)
		sink.JumpRecorded(flow.JumpFailure)
		return target, false, nil
	}

	// Level C — Step-level Error Handler.
	if step.ExecuteOnError != "" {
		if e.runStepErrorHandler(ctx, step, exec) {
			return pointer + 1, false, nil
		}
	}

	// Level D — Flow failed.
	return pointer, true, lastError(exec)
}

func (e *Engine) advanceOnSuccess(ctx context.Context, sink telemetrySink, steps []flow.Node, pointer int, step *flow.FlowStep, exec flow.StepExecution) (int, bool, error) {
	if step.JumpOnSuccess != "" {
		target := findTagIndex(steps, step.JumpOnSuccess)
		exec.JumpTaken = &flow.JumpRecord{Kind: flow.JumpSuccess, From: step.Tag, Target: step.JumpOnSuccess}
		e.finishStep(sink, exec)
		sink.JumpRecorded(flow.JumpSuccess)
		return target, false, nil
	}

	e.finishStep(sink, exec)
	if step.WaitAfterSeconds > 0 {
		if !sleepOrCancel(ctx, time.Duration(step.WaitAfterSeconds)*time.Second) {
			return pointer, false, nil
		}
	}
	return pointer + 1, false, nil
}

// attemptOptionalFlowRescue runs the named OptionalFlow as a sub-scope
// (spec §4.5.4 Level A). On the optional flow's success it resets the
// retry attempt count and re-executes the original step once more from
// scratch; the optional flow's own failure/success is orthogonal to the
// main step's retry counter (spec §9 open-question resolution 1).
// f is the owning Flow, passed down by main-scope, IndependentFlow and
// ParallelStep-child callers alike; it is only used to find the
// OptionalFlow's node list.
func (e *Engine) attemptOptionalFlowRescue(ctx context.Context, f *flow.Flow, sink telemetrySink, step *flow.FlowStep, failedExec flow.StepExecution) (rescued bool, finalExec flow.StepExecution, err error) {
	var ofSteps []flow.Node
	if f != nil {
		if of, ok := f.OptionalFlows[step.ExecuteOptionalFlow]; ok {
			ofSteps = of.Steps
		}
	}

	parentKey := "main"
	if tls, ok := sink.(topLevelSink); ok {
		parentKey = tls.key
	}
	ofSink := optionalSink{tracker: e.Tracker, parentKey: parentKey, callerStep: step.Name, key: step.ExecuteOptionalFlow}

	ofStatus, ofErr := e.runScope(ctx, f, ofSink, ofSteps)
	if ofStatus != flow.FlowCompleted {
		failedExec.ErrorMessages = append(failedExec.ErrorMessages, fmt.Sprintf("optional flow %q failed", step.ExecuteOptionalFlow))
		return false, failedExec, orDefault(ofErr, fmt.Errorf("optional flow %q failed", step.ExecuteOptionalFlow))
	}

	failedExec.OptionalFlowsTriggered = append(failedExec.OptionalFlowsTriggered, step.ExecuteOptionalFlow)
	e.finishStep(sink, failedExec)

	retryExec := e.executeStepWithRetries(ctx, sink, step)
	return retryExec.FinalResult, retryExec, nil
}

func orDefault(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}

// executeStepWithRetries is the single-step attempt loop (spec §4.5.3).
func (e *Engine) executeStepWithRetries(ctx context.Context, sink telemetrySink, step *flow.FlowStep) flow.StepExecution {
	ctx, endSpan := e.startStepSpan(ctx, step)

	start := time.Now()
	maxAttempts := 1 + step.RetryCount
	var errMessages []string
	var finalOK bool
	attemptsUsed := 0

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sink.StepStarted(step, attempt)
		attemptsUsed = attempt

		ok, msg := e.invokeCapability(ctx, step)
		if ok {
			finalOK = true
			break
		}
		errMessages = append(errMessages, msg)

		if attempt < maxAttempts {
			if step.WaitBetweenRetriesSeconds > 0 {
				if !sleepOrCancel(ctx, time.Duration(step.WaitBetweenRetriesSeconds)*time.Second) {
					break
				}
			}
		}
	}

	status := flow.StepCompleted
	if !finalOK {
		status = flow.StepFailed
	}

	exec := flow.StepExecution{
		ExecutionID:   uuid.NewString(),
		StepName:      step.Name,
		Operation:     step.Operation,
		DeviceType:    step.DeviceType,
		DeviceID:      step.DeviceID,
		Parameters:    step.Parameters,
		StartTS:       start,
		Duration:      time.Since(start),
		RetryAttempts: attemptsUsed - 1,
		FinalResult:   finalOK,
		Status:        status,
		ErrorMessages: errMessages,
	}
	endSpan(exec)
	return exec
}

// invokeCapability resolves the device handle and capability and invokes
// it, recovering a panic into a CapabilityError-shaped message (spec §7:
// "a step's Capability returned failure or raised").
func (e *Engine) invokeCapability(ctx context.Context, step *flow.FlowStep) (ok bool, errMessage string) {
	handle, err := e.Devices.Get(step.DeviceType, step.DeviceID)
	if err != nil {
		return false, err.Error()
	}
	e.markTouched(step.DeviceType, step.DeviceID)

	capability, found := e.Ops.Get(step.DeviceType, step.Operation)
	if !found {
		return false, fmt.Sprintf("operation %q not registered for device_type %q", step.Operation, step.DeviceType)
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if step.TimeoutSeconds > 0 {
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(step.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	return e.safeInvoke(callCtx, capability, handle, step)
}

func (e *Engine) safeInvoke(ctx context.Context, capability registry.Capability, handle *registry.DeviceHandle, step *flow.FlowStep) (ok bool, errMessage string) {
	defer func() {
		if r := recover(); r != nil {
			ok, errMessage = false, fmt.Sprintf("capability panicked: %v", r)
		}
	}()

	if ctx.Err() != nil {
		return false, ctx.Err().Error()
	}

	result, msg := capability(ctx, handle, step.Parameters)
	if ctx.Err() != nil && !result {
		return false, (&ffErrors.CapabilityTimeout{DeviceType: string(step.DeviceType), DeviceID: step.DeviceID, Operation: step.Operation, Duration: time.Duration(step.TimeoutSeconds) * time.Second}).Error()
	}
	return result, msg
}

func (e *Engine) markTouched(deviceType flow.DeviceType, deviceID string) {
	e.touchedMu.Lock()
	defer e.touchedMu.Unlock()
	e.touched[string(deviceType)+"/"+deviceID] = registry.DeviceRef{DeviceType: deviceType, DeviceID: deviceID}
}

func (e *Engine) touchedDevices() []registry.DeviceRef {
	e.touchedMu.Lock()
	defer e.touchedMu.Unlock()
	refs := make([]registry.DeviceRef, 0, len(e.touched))
	for _, r := range e.touched {
		refs = append(refs, r)
	}
	return refs
}

// runStepErrorHandler invokes a step-level handler (Level C). Its return
// value means "recover, continue flow"; a handler that itself raises is a
// HandlerError, logged and treated as if the handler had returned false.
func (e *Engine) runStepErrorHandler(ctx context.Context, step *flow.FlowStep, exec flow.StepExecution) (recovered bool) {
	handler, ok := e.Handlers.Get(step.ExecuteOnError)
	if !ok {
		e.Logger.Warn("execute_on_error names an unregistered handler", "handler", step.ExecuteOnError, "step", step.Name)
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			herr := &ffErrors.HandlerError{Handler: step.ExecuteOnError, Cause: fmt.Errorf("panic: %v", r)}
			e.Logger.Error("step error handler panicked", "error", herr)
			recovered = false
		}
	}()

	return handler(ctx, step, lastError(exec), registry.HandlerContext{
		Variables: e.Config.Variables,
		LogDir:    e.LogDir,
		Devices:   e.touchedDevices(),
		Logger:    e.Logger,
	})
}

// invokeFlowLevelHandler invokes the flow-level execute_on_error handler
// once, for cleanup/log collection only; its return value is ignored
// (Level D).
func (e *Engine) invokeFlowLevelHandler(ctx context.Context, f *flow.Flow, cause error) {
	handler, ok := e.Handlers.Get(f.ExecuteOnError)
	if !ok {
		e.Logger.Warn("flow-level execute_on_error names an unregistered handler", "handler", f.ExecuteOnError)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			e.Logger.Error("flow-level error handler panicked", "handler", f.ExecuteOnError, "panic", r)
		}
	}()

	handler(ctx, nil, cause, registry.HandlerContext{
		Variables: e.Config.Variables,
		LogDir:    e.LogDir,
		Devices:   e.touchedDevices(),
		Logger:    e.Logger,
	})
}

func lastError(exec flow.StepExecution) error {
	if len(exec.ErrorMessages) == 0 {
		return fmt.Errorf("step %q failed", exec.StepName)
	}
	return &ffErrors.CapabilityError{
		DeviceType: string(exec.DeviceType),
		DeviceID:   exec.DeviceID,
		Operation:  exec.Operation,
		Message:    exec.ErrorMessages[len(exec.ErrorMessages)-1],
	}
}

func findTagIndex(steps []flow.Node, tag string) int {
	for i, n := range steps {
		if n.Kind == flow.KindFlowStep && n.Step.Tag == tag {
			return i
		}
	}
	return len(steps) // unreachable once the Flow Loader has validated jump targets
}

func tagOf(node flow.Node) string {
	if node.Kind == flow.KindFlowStep {
		return node.Step.Tag
	}
	return ""
}

// sleepOrCancel sleeps for d or returns early (false) if ctx is cancelled
// first.
func sleepOrCancel(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
