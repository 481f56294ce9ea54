package distributed

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somauser/workflow-engine/pkg/types"
)

func startMasterWithSlaves(t *testing.T, n int) (*Master, []*Slave) {
	t.Helper()

	m, err := newMasterListening(t, n)
	require.NoError(t, err)

	slaves := make([]*Slave, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		s, err := DialSlave(m.Addr(), 1)
		require.NoError(t, err)
		slaves[i] = s
		wg.Add(1)
		go func(s *Slave) {
			defer wg.Done()
			_ = s.Run()
		}(s)
	}
	t.Cleanup(wg.Wait)
	return m, slaves
}

// newMasterListening starts NewMaster in a goroutine since it blocks
// accepting n slave connections before returning.
func newMasterListening(t *testing.T, n int) (*Master, error) {
	t.Helper()
	type result struct {
		m   *Master
		err error
	}
	ch := make(chan result, 1)
	go func() {
		m, err := NewMaster("127.0.0.1:0", n)
		ch <- result{m, err}
	}()
	select {
	case r := <-ch:
		return r.m, r.err
	case <-time.After(5 * time.Second):
		t.Fatal("master did not start listening in time")
		return nil, nil
	}
}

func TestDistributed_SingleJobRoundTrip(t *testing.T) {
	m, _ := startMasterWithSlaves(t, 1)
	defer m.Clean()

	sid, err := m.Submit(&types.Job{ID: "j1", Command: []string{"/bin/echo", "hi"}})
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	var status types.JobStatus
	for time.Now().Before(deadline) {
		status, err = m.GetStatus(sid)
		require.NoError(t, err)
		if status.IsTerminal() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, types.JobDone, status)

	info, err := m.GetExitInfo(sid)
	require.NoError(t, err)
	assert.Equal(t, 0, info.Value)

	// Single-shot: a second call fails.
	_, err = m.GetExitInfo(sid)
	assert.Error(t, err)
}

// S7: the master's Clean() only returns after every slave has acked
// EXIT_SIGNAL, never sooner.
func TestDistributed_ShutdownWaitsForAllAcks(t *testing.T) {
	const n = 4
	m, _ := startMasterWithSlaves(t, n)

	for i := 0; i < 20; i++ {
		_, err := m.Submit(&types.Job{
			ID:      types.JobID("job-" + string(rune('a'+i))),
			Command: []string{"/bin/true"},
		})
		require.NoError(t, err)
	}

	done := make(chan struct{})
	go func() {
		_ = m.Clean()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("master Clean() did not return after all slaves acked")
	}
}

func TestDistributed_SubmitValidation(t *testing.T) {
	m, err := newMasterListening(t, 0)
	require.NoError(t, err)
	defer m.Clean()

	_, err = m.Submit(&types.Job{ID: "x"})
	assert.Error(t, err)

	_, err = m.Submit(&types.Job{Command: []string{"/bin/true"}})
	assert.Error(t, err)
}
