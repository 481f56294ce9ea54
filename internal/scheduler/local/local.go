// Package local implements the low-level scheduler interface as a fixed
// pool of worker slots running jobs as real OS subprocesses, directly
// descended from the teacher's internal/worker package: a bounded pool of
// goroutine workers pulling from a ready queue, tracking OS process
// handles, and reporting exit tuples. The teacher's simulated "random
// delay, 10% failure" work is replaced here with genuine exec.Cmd
// execution, stdio redirection, and working-directory handling per the
// specification's local-scheduler contract.
package local

import (
	"container/heap"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/somauser/workflow-engine/internal/scheduler"
	"github.com/somauser/workflow-engine/pkg/types"
)

// emptyQueueBackoff bounds how long the driver loop waits before
// re-checking the ready queue when it found nothing to dispatch.
const emptyQueueBackoff = 5 * time.Millisecond

type schedJobID = types.SchedulerJobID

type jobState struct {
	job      *types.Job
	status   types.JobStatus
	proc     *process
	exitInfo *types.ExitInfo
	killed   bool
}

// Local is the local worker-pool scheduler: C in the component table.
type Local struct {
	mu       sync.Mutex
	log      *slog.Logger
	workers  int
	queue    priorityQueue
	jobs     map[schedJobID]*jobState
	inFlight map[schedJobID]*process
	sleeping bool
	closed   bool

	nextID   uint64
	freeSlot chan struct{}

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewLocal creates a local scheduler with a fixed pool of workerCount
// slots, mirroring the teacher's worker.Pool sizing.
func NewLocal(workerCount int) *Local {
	if workerCount <= 0 {
		workerCount = 1
	}
	l := &Local{
		log:      slog.Default().With("component", "scheduler.local"),
		workers:  workerCount,
		jobs:     make(map[schedJobID]*jobState),
		inFlight: make(map[schedJobID]*process),
		freeSlot: make(chan struct{}, workerCount),
		stopCh:   make(chan struct{}),
	}
	for i := 0; i < workerCount; i++ {
		l.freeSlot <- struct{}{}
	}
	l.wg.Add(1)
	go l.driverLoop()
	return l
}

func (l *Local) Submit(job *types.Job) (types.SchedulerJobID, error) {
	if job == nil || job.ID == "" || len(job.Command) == 0 {
		return "", scheduler.ErrInvalidJob
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return "", scheduler.ErrClosed
	}
	l.nextID++
	id := schedJobID(fmt.Sprintf("local-%d", l.nextID))
	l.jobs[id] = &jobState{job: job, status: types.JobQueuedActive}
	heap.Push(&l.queue, queuedJob{id: id, priority: job.Priority, submitOrder: job.SubmitOrder})
	return id, nil
}

func (l *Local) GetStatus(id types.SchedulerJobID) (types.JobStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.jobs[id]
	if !ok {
		return "", scheduler.ErrUnknownJob
	}
	return st.status, nil
}

// GetExitInfo returns and consumes the exit tuple: single-shot, matching
// §8 invariant 5.
func (l *Local) GetExitInfo(id types.SchedulerJobID) (types.ExitInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.jobs[id]
	if !ok || st.exitInfo == nil {
		return types.ExitInfo{}, scheduler.ErrUnknownJob
	}
	info := *st.exitInfo
	delete(l.jobs, id)
	return info, nil
}

func (l *Local) Kill(id types.SchedulerJobID) error {
	l.mu.Lock()
	st, ok := l.jobs[id]
	if !ok {
		l.mu.Unlock()
		return nil // idempotent: unknown-but-already-gone is not an error
	}
	if st.status.IsTerminal() || st.killed {
		l.mu.Unlock()
		return nil
	}
	st.killed = true
	proc := st.proc
	l.mu.Unlock()

	if proc != nil {
		proc.Kill()
	}
	return nil
}

func (l *Local) Sleep() {
	l.mu.Lock()
	l.sleeping = true
	l.mu.Unlock()
}

func (l *Local) Wake() {
	l.mu.Lock()
	l.sleeping = false
	l.mu.Unlock()
}

func (l *Local) Clean() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.stopCh)
	l.wg.Wait()
	return nil
}

// driverLoop is the single driver loop §4.2 describes: dispatch while
// slots are free and the queue is non-empty, sleep otherwise.
func (l *Local) driverLoop() {
	defer l.wg.Done()
	for {
		select {
		case <-l.stopCh:
			return
		case <-l.freeSlot:
			job, ok := l.popReady()
			if !ok {
				l.freeSlot <- struct{}{}
				select {
				case <-l.stopCh:
					return
				case <-time.After(emptyQueueBackoff):
				}
				continue
			}
			l.wg.Add(1)
			go l.runJob(job)
		}
	}
}

func (l *Local) popReady() (schedJobID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sleeping || l.queue.Len() == 0 {
		return "", false
	}
	entry := heap.Pop(&l.queue).(queuedJob)
	return entry.id, true
}

func (l *Local) runJob(id schedJobID) {
	defer l.wg.Done()
	defer func() { l.freeSlot <- struct{}{} }()

	l.mu.Lock()
	st, ok := l.jobs[id]
	if !ok {
		l.mu.Unlock()
		return
	}
	if st.killed {
		st.status = types.JobFailed
		st.exitInfo = &types.ExitInfo{Status: types.ExitNotRun}
		l.mu.Unlock()
		return
	}
	job := st.job
	st.status = types.JobRunning
	proc, err := newProcess(job)
	if err != nil {
		st.status = types.JobFailed
		st.exitInfo = &types.ExitInfo{Status: types.ExitAborted}
		l.mu.Unlock()
		l.log.Error("job start failed", "job_id", job.ID, "err", err)
		return
	}
	st.proc = proc
	l.mu.Unlock()

	info := proc.Wait()

	l.mu.Lock()
	if info.Status == types.ExitFinishedRegularly && info.Value == 0 {
		st.status = types.JobDone
	} else {
		st.status = types.JobFailed
	}
	st.exitInfo = &info
	l.mu.Unlock()
}

var _ scheduler.Scheduler = (*Local)(nil)
