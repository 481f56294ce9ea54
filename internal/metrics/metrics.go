// ============================================================================
// Workflow Engine Metrics - Prometheus Monitoring
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collect and expose engine metrics for Prometheus monitoring
//
// Metric Categories:
//
//   1. Job Counters - Cumulative, monotonically increasing:
//      - engine_jobs_submitted_total: Total submitted jobs
//      - engine_jobs_dispatched_total: Total dispatched jobs
//      - engine_jobs_done_total: Total jobs that ran to completion
//      - engine_jobs_failed_total: Total jobs that exited non-zero or were killed
//      - engine_jobs_blocked_total: Total jobs permanently blocked by an ancestor failure
//
//   2. Transfer Counters:
//      - engine_transfers_registered_total: Total transfer nodes registered
//      - engine_transfers_completed_total: Total transfers that reached Transferred
//
//   3. Workflow Counters:
//      - engine_workflows_submitted_total
//      - engine_workflows_done_total
//
//   4. Performance Metrics (Histogram):
//      - engine_job_latency_seconds: time from submission to terminal status
//
//   5. Status Metrics (Gauge) - instantaneous values:
//      - engine_jobs_in_flight: currently queued or running jobs
//      - engine_jobs_ready: jobs whose dependencies are satisfied but not yet dispatched
//      - engine_workflows_running: workflows not yet settled
//
// Prometheus Query Examples:
//
//   # Jobs per minute
//   rate(engine_jobs_done_total[1m])
//
//   # 95th percentile latency
//   histogram_quantile(0.95, engine_job_latency_seconds_bucket)
//
//   # Failure rate
//   rate(engine_jobs_failed_total[5m]) / rate(engine_jobs_dispatched_total[5m])
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects Prometheus metrics for one engine instance.
type Collector struct {
	jobsSubmitted  prometheus.Counter
	jobsDispatched prometheus.Counter
	jobsDone       prometheus.Counter
	jobsFailed     prometheus.Counter
	jobsBlocked    prometheus.Counter

	transfersRegistered prometheus.Counter
	transfersCompleted  prometheus.Counter

	workflowsSubmitted prometheus.Counter
	workflowsDone      prometheus.Counter

	jobLatency prometheus.Histogram

	jobsInFlight     prometheus.Gauge
	jobsReady        prometheus.Gauge
	workflowsRunning prometheus.Gauge
}

// NewCollector creates and registers a new metrics collector.
func NewCollector() *Collector {
	c := &Collector{
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_jobs_submitted_total",
			Help: "Total number of jobs submitted",
		}),
		jobsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_jobs_dispatched_total",
			Help: "Total number of jobs dispatched to a scheduler backend",
		}),
		jobsDone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_jobs_done_total",
			Help: "Total number of jobs that exited with status zero",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_jobs_failed_total",
			Help: "Total number of jobs that exited non-zero or were killed",
		}),
		jobsBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_jobs_blocked_total",
			Help: "Total number of jobs permanently blocked by an ancestor failure",
		}),
		transfersRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_transfers_registered_total",
			Help: "Total number of transfer nodes registered",
		}),
		transfersCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_transfers_completed_total",
			Help: "Total number of transfers that reached the transferred status",
		}),
		workflowsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_workflows_submitted_total",
			Help: "Total number of workflows submitted",
		}),
		workflowsDone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_workflows_done_total",
			Help: "Total number of workflows that reached a settled state",
		}),
		jobLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_job_latency_seconds",
			Help:    "Time from job submission to terminal status, in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		jobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_jobs_in_flight",
			Help: "Current number of queued or running jobs",
		}),
		jobsReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_jobs_ready",
			Help: "Current number of jobs whose dependencies are satisfied but not dispatched",
		}),
		workflowsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_workflows_running",
			Help: "Current number of workflows not yet settled",
		}),
	}

	prometheus.MustRegister(
		c.jobsSubmitted, c.jobsDispatched, c.jobsDone, c.jobsFailed, c.jobsBlocked,
		c.transfersRegistered, c.transfersCompleted,
		c.workflowsSubmitted, c.workflowsDone,
		c.jobLatency,
		c.jobsInFlight, c.jobsReady, c.workflowsRunning,
	)

	return c
}

func (c *Collector) RecordJobSubmitted()  { c.jobsSubmitted.Inc() }
func (c *Collector) RecordJobDispatched() { c.jobsDispatched.Inc() }

// RecordJobDone records a successful terminal job with its submission-to-done latency.
func (c *Collector) RecordJobDone(latencySeconds float64) {
	c.jobsDone.Inc()
	c.jobLatency.Observe(latencySeconds)
}

func (c *Collector) RecordJobFailed(latencySeconds float64) {
	c.jobsFailed.Inc()
	c.jobLatency.Observe(latencySeconds)
}

func (c *Collector) RecordJobBlocked() { c.jobsBlocked.Inc() }

func (c *Collector) RecordTransferRegistered() { c.transfersRegistered.Inc() }
func (c *Collector) RecordTransferCompleted()  { c.transfersCompleted.Inc() }

func (c *Collector) RecordWorkflowSubmitted() { c.workflowsSubmitted.Inc() }
func (c *Collector) RecordWorkflowDone()      { c.workflowsDone.Inc() }

// UpdateGauges refreshes the instantaneous status gauges; the engine calls
// this once per sweep tick rather than on every state transition.
func (c *Collector) UpdateGauges(inFlight, ready, workflowsRunning int) {
	c.jobsInFlight.Set(float64(inFlight))
	c.jobsReady.Set(float64(ready))
	c.workflowsRunning.Set(float64(workflowsRunning))
}

// StartServer starts the Prometheus metrics HTTP server on the given port.
func StartServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, nil)
}
