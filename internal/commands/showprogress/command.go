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

// Package showprogress implements show_update_progress: reading the latest
// flow_progress.json out of a log directory, or (with --history) querying
// the SQLite run-history store for past runs against that directory.
package showprogress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rackforge/factoryflow/internal/commands/shared"
	ffErrors "github.com/rackforge/factoryflow/internal/errors"
	"github.com/rackforge/factoryflow/pkg/flow"
	"github.com/rackforge/factoryflow/pkg/history"
	"github.com/rackforge/factoryflow/pkg/progress"
)

// NewCommand creates the show_update_progress command.
func NewCommand() *cobra.Command {
	var (
		logDir     string
		showHist   bool
		historyMax int
	)

	cmd := &cobra.Command{
		Use:   "show_update_progress",
		Short: "Show a flow's current progress, or past runs with --history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if showHist {
				return runHistory(cmd.OutOrStdout(), logDir, historyMax)
			}
			return runSnapshot(cmd.OutOrStdout(), logDir)
		},
	}

	cmd.Flags().StringVarP(&logDir, "log-dir", "l", "", "Log directory to read progress from (required)")
	cmd.Flags().BoolVar(&showHist, "history", false, "List past runs from the history store instead of the current snapshot")
	cmd.Flags().IntVar(&historyMax, "limit", 20, "Maximum number of history rows to list (0 = unbounded)")
	_ = cmd.MarkFlagRequired("log-dir")

	return cmd
}

func runSnapshot(out io.Writer, logDir string) error {
	path := filepath.Join(logDir, "flow_progress.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &shared.ExitError{Code: shared.ExitNotFound, Message: "progress snapshot", Cause: &ffErrors.NotFoundError{Resource: "flow_progress.json", ID: logDir}}
	}
	if err != nil {
		return &shared.ExitError{Code: shared.ExitConfigError, Message: "reading progress snapshot", Cause: err}
	}

	var snapshot progress.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return &shared.ExitError{Code: shared.ExitConfigError, Message: "parsing progress snapshot", Cause: err}
	}

	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "FLOW\tSTATUS\tSTEPS\tFAILED\tCURRENT STEP")
	for _, name := range sortedKeys(snapshot.Flows) {
		fi := snapshot.Flows[name]
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", name, shared.RenderFlowState(fi.Status), fi.TotalSteps, fi.FailedStepsCount, fi.CurrentStep)
	}
	return w.Flush()
}

func runHistory(out io.Writer, logDir string, limit int) error {
	store, err := history.Open(history.DefaultPath(logDir))
	if err != nil {
		return &shared.ExitError{Code: shared.ExitConfigError, Message: "opening history store", Cause: err}
	}
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), limit)
	if err != nil {
		return &shared.ExitError{Code: shared.ExitFlowFailed, Message: "listing history", Cause: err}
	}

	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFLOW\tSTATUS\tSTARTED\tCOMPLETED\tSTEPS\tFAILED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			run.ID, run.FlowName, run.Status,
			run.StartedAt.Format("2006-01-02T15:04:05"), run.CompletedAt.Format("2006-01-02T15:04:05"),
			run.TotalSteps, run.FailedSteps)
	}
	return w.Flush()
}

func sortedKeys(m map[string]*flow.FlowInfo) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
