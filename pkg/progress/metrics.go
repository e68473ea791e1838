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

package progress

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rackforge/factoryflow/pkg/flow"
)

// Metrics is a second, read-only consumer of the same mutations that
// produce StepExecution/FlowInfo records — it never becomes an alternate
// source of truth; flow_progress.json remains authoritative.
type Metrics struct {
	stepsTotal   *prometheus.CounterVec
	stepDuration prometheus.Histogram
	retriesTotal prometheus.Counter
	flowsTotal   *prometheus.CounterVec

	server *http.Server
}

// NewMetrics registers the factoryflow_* collectors against registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factoryflow_steps_total",
			Help: "Total number of step attempt-clusters by terminal status.",
		}, []string{"status"}),
		stepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "factoryflow_step_duration_seconds",
			Help:    "Duration of each step attempt-cluster.",
			Buckets: prometheus.DefBuckets,
		}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "factoryflow_retries_total",
			Help: "Total number of step retry attempts across all flows.",
		}),
		flowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factoryflow_flows_total",
			Help: "Total number of finished flows by terminal status.",
		}, []string{"status"}),
	}

	registry.MustRegister(m.stepsTotal, m.stepDuration, m.retriesTotal, m.flowsTotal)
	return m
}

// ObserveStep records one StepExecution's terminal status and duration.
func (m *Metrics) ObserveStep(exec flow.StepExecution) {
	m.stepsTotal.WithLabelValues(string(exec.Status)).Inc()
	m.stepDuration.Observe(exec.Duration.Seconds())
	if exec.RetryAttempts > 0 {
		m.retriesTotal.Add(float64(exec.RetryAttempts))
	}
}

// ObserveFlow records one finished flow's terminal status.
func (m *Metrics) ObserveFlow(status flow.FlowState) {
	m.flowsTotal.WithLabelValues(string(status)).Inc()
}

// Serve starts the /metrics HTTP endpoint for the duration of the run and
// blocks until ctx is cancelled; factory_mode starts it when
// settings.metrics_addr is set.
func (m *Metrics) Serve(ctx context.Context, addr string, registry *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	m.server = &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return m.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
