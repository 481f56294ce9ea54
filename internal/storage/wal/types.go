package wal

// ============================================================================
// WAL Type Definitions
// Generalized from the teacher's job-only event log to cover job,
// transfer, and workflow state transitions the engine drives.
// ============================================================================

// EventType identifies the kind of state transition an Event records.
type EventType string

const (
	EventJobSubmitted   EventType = "JOB_SUBMITTED"
	EventJobDispatched  EventType = "JOB_DISPATCHED"
	EventJobDone        EventType = "JOB_DONE"
	EventJobFailed      EventType = "JOB_FAILED"
	EventTransferStatus EventType = "TRANSFER_STATUS"
	EventWorkflowDone   EventType = "WORKFLOW_DONE"
)

// Event is a WAL record. NodeID is the job/transfer/workflow id the event
// concerns (as a plain string so the WAL doesn't need to import the
// engine's node-kind tagging); Detail carries event-specific data too
// small to warrant its own field (e.g. the new transfer status).
type Event struct {
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	NodeID    string    `json:"node_id"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp int64     `json:"timestamp"`
	Checksum  uint32    `json:"checksum"`
}

// EventHandler processes a replayed event, applying it to in-memory state.
type EventHandler func(event *Event) error
