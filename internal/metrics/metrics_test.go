package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector() *Collector {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	return NewCollector()
}

func TestNewCollector(t *testing.T) {
	c := newTestCollector()

	assert.NotNil(t, c)
	assert.NotNil(t, c.jobsSubmitted)
	assert.NotNil(t, c.jobsDispatched)
	assert.NotNil(t, c.jobsDone)
	assert.NotNil(t, c.jobsFailed)
	assert.NotNil(t, c.jobsBlocked)
	assert.NotNil(t, c.transfersRegistered)
	assert.NotNil(t, c.transfersCompleted)
	assert.NotNil(t, c.workflowsSubmitted)
	assert.NotNil(t, c.workflowsDone)
	assert.NotNil(t, c.jobLatency)
	assert.NotNil(t, c.jobsInFlight)
	assert.NotNil(t, c.jobsReady)
	assert.NotNil(t, c.workflowsRunning)
}

func TestRecordJobLifecycleCounters(t *testing.T) {
	c := newTestCollector()

	assert.NotPanics(t, func() {
		c.RecordJobSubmitted()
		c.RecordJobDispatched()
		c.RecordJobDone(0.5)
		c.RecordJobFailed(1.2)
		c.RecordJobBlocked()
	})
}

func TestRecordTransferCounters(t *testing.T) {
	c := newTestCollector()

	assert.NotPanics(t, func() {
		c.RecordTransferRegistered()
		c.RecordTransferCompleted()
	})
}

func TestRecordWorkflowCounters(t *testing.T) {
	c := newTestCollector()

	assert.NotPanics(t, func() {
		c.RecordWorkflowSubmitted()
		c.RecordWorkflowDone()
	})
}

func TestUpdateGauges(t *testing.T) {
	c := newTestCollector()

	cases := []struct {
		name                          string
		inFlight, ready, wfRunning    int
	}{
		{"zero values", 0, 0, 0},
		{"normal values", 10, 5, 2},
		{"high in-flight", 50, 8, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				c.UpdateGauges(tc.inFlight, tc.ready, tc.wfRunning)
			})
		})
	}
}

func TestConcurrentMetricUpdates(t *testing.T) {
	c := newTestCollector()

	done := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		go func() {
			c.RecordJobSubmitted()
			c.RecordJobDispatched()
			c.RecordJobDone(0.1)
			c.UpdateGauges(1, 2, 3)
			done <- true
		}()
	}
	for i := 0; i < 50; i++ {
		<-done
	}
}

func TestCollectorIsolation(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	c1 := NewCollector()
	require.NotNil(t, c1)

	// A process should register exactly one collector; a second one
	// against the same registry panics on duplicate metric names.
	assert.Panics(t, func() {
		NewCollector()
	})
}

func TestJobLifecycleSequence(t *testing.T) {
	c := newTestCollector()

	assert.NotPanics(t, func() {
		c.RecordJobSubmitted()
		c.UpdateGauges(0, 1, 1)

		c.RecordJobDispatched()
		c.UpdateGauges(1, 0, 1)

		c.RecordJobDone(0.3)
		c.UpdateGauges(0, 0, 0)
	})
}
