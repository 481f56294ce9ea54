// Package engine implements the workflow engine / DAG driver (F): the
// direct generalization of the teacher's internal/controller.Controller.
// Three ticking loops (dispatch, which also reaps results / timeout-sweep /
// snapshot),
// generalized from a single flat job queue to a DAG of heterogeneous job
// and transfer nodes gated by dependency readiness.
package engine

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/somauser/workflow-engine/internal/metrics"
	"github.com/somauser/workflow-engine/internal/scheduler"
	"github.com/somauser/workflow-engine/internal/snapshot"
	"github.com/somauser/workflow-engine/internal/storage/wal"
	"github.com/somauser/workflow-engine/internal/workflowdb"
	"github.com/somauser/workflow-engine/pkg/types"
)

var (
	ErrUnknownWorkflow = errors.New("engine: unknown workflow")
	ErrUnknownJob      = errors.New("engine: unknown job")
	ErrUnknownTransfer = errors.New("engine: unknown transfer")
	ErrPermissionDenied = errors.New("engine: permission denied")
)

// Config mirrors the shape of the teacher's controller.Config: tunable
// intervals plus WAL/snapshot paths, loaded from internal/config.
type Config struct {
	TickInterval     time.Duration
	SweepInterval    time.Duration
	SnapshotInterval time.Duration
	WALPath          string
	SnapshotPath     string
	WALBufferSize    int
	WALFlushInterval time.Duration
	TransferBaseDir  string
}

func (c *Config) setDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = 20 * time.Millisecond
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Second
	}
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = 30 * time.Second
	}
	if c.WALBufferSize <= 0 {
		c.WALBufferSize = 100
	}
	if c.WALFlushInterval <= 0 {
		c.WALFlushInterval = 10 * time.Millisecond
	}
	if c.TransferBaseDir == "" {
		c.TransferBaseDir = "/tmp/workflow-transfers"
	}
}

// Engine is the workflow engine / DAG driver.
type Engine struct {
	mu     sync.Mutex
	log    *slog.Logger
	db     *workflowdb.DB
	sched  scheduler.Scheduler
	wal    *wal.WAL
	snap   *snapshot.Manager
	config Config

	stopCh chan struct{}
	wg     sync.WaitGroup
	stopped bool

	stdoutOffsets map[types.JobID]int64
	stderrOffsets map[types.JobID]int64

	// releasedRefs guards releaseJobTransferRefs against double-releasing a
	// settled job's hold on its transfers — a job can be observed settled
	// on more than one tick.
	releasedRefs map[types.JobID]bool

	metrics *metrics.Collector
}

// SetMetrics attaches a Prometheus collector; nil-safe call sites elsewhere
// in the package skip recording when this is left unset.
func (e *Engine) SetMetrics(c *metrics.Collector) { e.metrics = c }

// NewEngine wires a workflow database, a scheduler backend, and the
// WAL/snapshot pair together, the same construction shape as the
// teacher's controller.NewController.
func NewEngine(cfg Config, sched scheduler.Scheduler) (*Engine, error) {
	cfg.setDefaults()

	w, err := wal.New(cfg.WALPath, false, cfg.WALBufferSize, cfg.WALFlushInterval)
	if err != nil {
		return nil, err
	}
	snapMgr := snapshot.NewManager(cfg.SnapshotPath)

	e := &Engine{
		log:    slog.Default().With("component", "engine"),
		db:     workflowdb.New(),
		sched:  sched,
		wal:    w,
		snap:   snapMgr,
		config: cfg,
		stopCh: make(chan struct{}),

		stdoutOffsets: make(map[types.JobID]int64),
		stderrOffsets: make(map[types.JobID]int64),
		releasedRefs:  make(map[types.JobID]bool),
	}
	return e, nil
}

// Start recovers state from the snapshot + WAL (if any), then launches
// the dispatch, timeout-sweep, and snapshot loops.
func (e *Engine) Start() error {
	if err := e.recover(); err != nil {
		return err
	}

	e.wg.Add(1)
	go e.dispatchLoop()
	e.wg.Add(1)
	go e.sweepLoop()
	e.wg.Add(1)
	go e.snapshotLoop()
	return nil
}

func (e *Engine) recover() error {
	data, err := e.snap.Load()
	if err != nil && !errors.Is(err, snapshot.ErrSnapshotNotFound) {
		return err
	}
	if err == nil {
		e.db.Restore(data)
	}
	return e.wal.Replay(func(ev *wal.Event) error {
		return e.applyEvent(ev)
	})
}

func (e *Engine) applyEvent(ev *wal.Event) error {
	switch ev.Type {
	case wal.EventJobSubmitted:
		if _, err := e.db.GetJob(types.JobID(ev.NodeID)); err != nil {
			// Job data lives only in the snapshot; a submitted-but-
			// unsnapshotted job we can't reconstruct is left absent,
			// mirroring the teacher's "WAL only records ids" tradeoff.
			return nil
		}
	case wal.EventJobDispatched:
		_ = e.db.UpdateJobStatus(types.JobID(ev.NodeID), types.JobRunning)
	case wal.EventJobDone:
		_ = e.db.UpdateJobStatus(types.JobID(ev.NodeID), types.JobDone)
	case wal.EventJobFailed:
		_ = e.db.UpdateJobStatus(types.JobID(ev.NodeID), types.JobFailed)
	case wal.EventTransferStatus:
		_ = e.db.UpdateTransferStatus(types.TransferID(ev.NodeID), types.TransferStatus(ev.Detail))
	case wal.EventWorkflowDone:
		_ = e.db.UpdateWorkflowStatus(types.WorkflowID(ev.NodeID), types.WorkflowDone)
	}
	return nil
}

// Stop drains the loops, takes a final snapshot, and closes the WAL —
// ordered the same careful way as the teacher's Controller.Stop.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	e.mu.Unlock()

	close(e.stopCh)
	e.wg.Wait()

	if err := e.takeSnapshot(); err != nil {
		e.log.Error("final snapshot failed", "err", err)
	}
	return e.wal.Close()
}

func (e *Engine) takeSnapshot() error {
	e.mu.Lock()
	data := e.db.Snapshot()
	data.LastSeq = e.wal.GetLastSeq()
	e.mu.Unlock()

	if err := e.snap.Write(data); err != nil {
		return err
	}
	return e.wal.Rotate()
}
