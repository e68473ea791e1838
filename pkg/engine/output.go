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

package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/rackforge/factoryflow/pkg/flow"
)

// OutputMode selects how a Presenter renders the Engine's event stream to
// the console (spec §4.5.5). Every mode sees the same events; flow_progress.json
// and the file log are written by the Progress Tracker regardless of mode.
type OutputMode string

const (
	OutputNone OutputMode = "none"
	OutputGUI  OutputMode = "gui"
	OutputLog  OutputMode = "log"
	OutputJSON OutputMode = "json"
)

// ParseOutputMode resolves configuration.variables.output_mode (or an
// --output-mode override), defaulting to "log" for anything unrecognized.
func ParseOutputMode(s string) OutputMode {
	switch OutputMode(strings.ToLower(strings.TrimSpace(s))) {
	case OutputNone:
		return OutputNone
	case OutputGUI:
		return OutputGUI
	case OutputJSON:
		return OutputJSON
	default:
		return OutputLog
	}
}

var (
	styleOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	styleFail = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleInfo = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleHdr  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)

// flowRow is one Presenter-side tracked flow for the gui table — a cheap
// local mirror of the tracker's state, rebuilt from events only (the
// Presenter never reads the Tracker directly, keeping presentation strictly
// downstream of the event stream per spec §4.5.5).
type flowRow struct {
	key       string
	completed int
	failed    int
	lastStep  string
	final     flow.FlowState
}

// Presenter subscribes to an Engine's Events channel and renders them in
// one of the four output modes. It never influences execution: a slow or
// wedged Presenter can at worst miss events the Engine drops on a full
// channel (see Engine.emit).
type Presenter struct {
	mode   OutputMode
	logger *slog.Logger
	out    io.Writer

	mu    sync.Mutex
	order []string
	rows  map[string]*flowRow
}

// NewPresenter constructs a Presenter. out is used by the json/gui modes;
// the log mode writes through logger instead.
func NewPresenter(mode OutputMode, logger *slog.Logger, out io.Writer) *Presenter {
	return &Presenter{
		mode:   mode,
		logger: logger,
		out:    out,
		rows:   make(map[string]*flowRow),
	}
}

// Run consumes events until the channel closes or ctx is cancelled. Call it
// in its own goroutine, fed by the same channel passed as Engine.Events.
func (p *Presenter) Run(ctx context.Context, events <-chan Event) {
	if p.mode == OutputNone {
		// Still drain so the Engine's non-blocking send has somewhere to
		// land; otherwise a full buffered channel would silently drop
		// every event forever, which is harmless but wasteful.
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.handle(ev)
		}
	}
}

func (p *Presenter) handle(ev Event) {
	switch p.mode {
	case OutputJSON:
		p.handleJSON(ev)
	case OutputGUI:
		p.handleGUI(ev)
	default:
		p.handleLog(ev)
	}
}

// handleJSON implements the machine-readable adapter: one line per
// step_finished event, "[SUCCESS|FAILED] - <step_name> (<duration>)".
func (p *Presenter) handleJSON(ev Event) {
	if ev.Kind != EventStepFinished {
		return
	}
	result := "SUCCESS"
	if ev.Status == flow.StepFailed {
		result = "FAILED"
	}
	fmt.Fprintf(p.out, "[%s] - %s (%s)\n", result, ev.StepName, ev.Duration.Round(1e6))
}

// handleLog streams colored, structured lines through the shared slog
// logger — the same pattern internal/commands/shared uses for CLI output.
func (p *Presenter) handleLog(ev Event) {
	switch ev.Kind {
	case EventFlowStarted:
		p.logger.Info(styleInfo.Render("flow started"), "flow", ev.FlowKey)
	case EventStepFinished:
		if ev.Status == flow.StepFailed {
			p.logger.Warn(styleFail.Render("step failed"), "flow", ev.FlowKey, "step", ev.StepName, "duration", ev.Duration)
		} else {
			p.logger.Info(styleOK.Render("step completed"), "flow", ev.FlowKey, "step", ev.StepName, "duration", ev.Duration)
		}
	case EventFlowFinished:
		if ev.Final == flow.FlowFailed {
			p.logger.Error(styleFail.Render("flow failed"), "flow", ev.FlowKey)
		} else {
			p.logger.Info(styleOK.Render("flow completed"), "flow", ev.FlowKey)
		}
	}
}

// handleGUI maintains a small in-memory table keyed by flow and redraws it
// on every event.
func (p *Presenter) handleGUI(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	row, ok := p.rows[ev.FlowKey]
	if !ok {
		row = &flowRow{key: ev.FlowKey, final: flow.FlowRunning}
		p.rows[ev.FlowKey] = row
		p.order = append(p.order, ev.FlowKey)
	}

	switch ev.Kind {
	case EventStepFinished:
		row.lastStep = ev.StepName
		if ev.Status == flow.StepFailed {
			row.failed++
		} else {
			row.completed++
		}
	case EventFlowFinished:
		row.final = ev.Final
	}

	p.render()
}

func (p *Presenter) render() {
	sort.Strings(p.order)

	var b strings.Builder
	b.WriteString(styleHdr.Render("FLOW") + "\t" + styleHdr.Render("OK") + "\t" + styleHdr.Render("FAIL") + "\t" + styleHdr.Render("STATUS") + "\t" + styleHdr.Render("LAST STEP") + "\n")

	for _, key := range p.order {
		row := p.rows[key]
		status := styleDim.Render(string(row.final))
		switch row.final {
		case flow.FlowCompleted:
			status = styleOK.Render(string(row.final))
		case flow.FlowFailed:
			status = styleFail.Render(string(row.final))
		}
		fmt.Fprintf(&b, "%s\t%d\t%d\t%s\t%s\n", row.key, row.completed, row.failed, status, row.lastStep)
	}

	// Redraw in place: home the cursor and clear the screen, then print.
	fmt.Fprint(p.out, "\033[H\033[2J")
	fmt.Fprint(p.out, b.String())
}
