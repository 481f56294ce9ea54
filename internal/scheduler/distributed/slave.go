package distributed

import (
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/somauser/workflow-engine/internal/executil"
	"github.com/somauser/workflow-engine/pkg/types"
)

// noJobBackoff bounds the slave's re-request rate after a NO_JOB reply,
// the bounded sleep §4.3/§9 requires to avoid a tight request loop.
const noJobBackoff = time.Second

// Slave is one distributed-scheduler worker process (rank 1..N-1). It
// requests work, runs it as a real subprocess via executil, and reports
// results, mirroring original_source/.../testmpi2.py's slave_loop.
type Slave struct {
	log  *slog.Logger
	conn *conn

	mu       sync.Mutex
	running  map[types.JobID]*executil.Process
	capacity int
}

// DialSlave connects to the master at addr and returns a Slave ready to
// Run.
func DialSlave(addr string, capacity int) (*Slave, error) {
	if capacity <= 0 {
		capacity = runtime.NumCPU()
	}
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("distributed: slave dial: %w", err)
	}
	return &Slave{
		log:      slog.Default().With("component", "scheduler.distributed.slave"),
		conn:     newConn(c),
		running:  make(map[types.JobID]*executil.Process),
		capacity: capacity,
	}, nil
}

// Run blocks, servicing the master until it receives EXIT_SIGNAL, acks it,
// and returns.
func (s *Slave) Run() error {
	for {
		if err := s.conn.send(TagJobRequest, jobRequestMsg{FreeSlots: s.capacity}); err != nil {
			return err
		}

		env, err := s.conn.recv()
		if err != nil {
			return err
		}

		switch env.Tag {
		case TagJobSending:
			var batch jobSendingMsg
			if err := decodePayload(env.Payload, &batch); err != nil {
				return err
			}
			s.runBatch(batch.Jobs)

		case TagNoJob:
			time.Sleep(noJobBackoff)

		case TagJobKill:
			var kill jobKillMsg
			if err := decodePayload(env.Payload, &kill); err != nil {
				return err
			}
			s.mu.Lock()
			proc := s.running[kill.JobID]
			s.mu.Unlock()
			if proc != nil {
				proc.Kill()
			}

		case TagExitSignal:
			_ = s.conn.send(TagExitSignal, nil)
			s.log.Info("exit signal acked")
			return nil

		default:
			return fmt.Errorf("distributed: slave received unknown tag %d", env.Tag)
		}
	}
}

func (s *Slave) runBatch(jobs []types.Job) {
	results := make([]jobResultEntry, 0, len(jobs))
	for i := range jobs {
		job := jobs[i]
		proc, err := executil.Start(&job)
		if err != nil {
			results = append(results, jobResultEntry{JobID: job.ID, Ok: false, Info: types.ExitInfo{Status: types.ExitAborted}})
			continue
		}
		s.mu.Lock()
		s.running[job.ID] = proc
		s.mu.Unlock()

		info := proc.Wait()

		s.mu.Lock()
		delete(s.running, job.ID)
		s.mu.Unlock()

		ok := info.Status == types.ExitFinishedRegularly && info.Value == 0
		results = append(results, jobResultEntry{JobID: job.ID, Ok: ok, Info: info})
	}
	if len(results) > 0 {
		_ = s.conn.send(TagJobResult, jobResultMsg{Results: results})
	}
}
