// Package distributed implements the message-passing low-level scheduler:
// a master process (rank 0) handing batches of work to remote slave
// processes (ranks 1..N-1) over typed messages, per §4.3. Grounded in the
// teacher's internal/raft RPC layer by shape (transport.go's
// dial-and-cache client, rpc.go's argument/reply pairs) but without
// leader election or consensus: rank 0 is always master, fixed at process
// start — see DESIGN.md for why the teacher's raft package itself isn't
// reused here. Tag taxonomy and master/slave iteration logic are grounded
// directly in original_source/python/soma/workflow/testmpi2.py's
// MPIScheduler.
package distributed

import "github.com/somauser/workflow-engine/pkg/types"

// Tag identifies the kind of message carried on the wire, exactly the
// taxonomy in §4.3's table.
type Tag int

const (
	TagJobRequest Tag = iota + 1 // slave -> master: "I can take work"
	TagJobSending                // master -> slave: take this batch
	TagNoJob                     // master -> slave: nothing pending, back off
	TagJobResult                 // slave -> master: batch finished
	TagJobKill                   // master -> slave: cancel a running job
	TagExitSignal                // master <-> slave: shut down / ack
)

// envelope is the wire frame: a tag plus a gob-encoded payload specific
// to that tag. Framed length-prefixed over net.Conn by transport.go.
type envelope struct {
	Tag     Tag
	Payload []byte
}

// jobRequestMsg is the JOB_REQUEST payload: the slave's free-cpu count.
type jobRequestMsg struct {
	FreeSlots int
}

// jobSendingMsg is the JOB_SENDING payload: a non-empty batch of jobs.
type jobSendingMsg struct {
	Jobs []types.Job
}

// jobResultEntry is one entry of a JOB_RESULT batch: Ok=true (zero exit)
// maps to DONE; Ok=false maps to FAILED, keeping the slave's Info.Status
// (EXIT_ABORTED only when the slave left it empty).
type jobResultEntry struct {
	JobID  types.JobID
	Ok     bool
	Info   types.ExitInfo
}

type jobResultMsg struct {
	Results []jobResultEntry
}

// jobKillMsg is the JOB_KILL payload: the target job id.
type jobKillMsg struct {
	JobID types.JobID
}
