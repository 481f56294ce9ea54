// Package snapshot checkpoints engine state (workflows, jobs, transfers) to
// disk so a restart can recover without replaying the full WAL. It is the
// generalization of the teacher's job-queue snapshot manager to the DAG
// engine's three-table state.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/somauser/workflow-engine/pkg/types"
)

var (
	ErrCorruptedSnapshot   = errors.New("snapshot file is corrupted")
	ErrIncompatibleVersion = errors.New("snapshot schema version is incompatible")
	ErrSnapshotNotFound    = errors.New("snapshot file not found")
)

const schemaVersion = 1

// Manager persists types.SnapshotData to a single file via write-temp-then-rename.
type Manager struct {
	path string
	mu   sync.Mutex
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Write atomically replaces the snapshot file: write to path+".tmp", then
// os.Rename onto path so a reader never observes a partial file.
func (m *Manager) Write(data types.SnapshotData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data.SchemaVer = schemaVersion

	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, jsonBytes, 0644); err != nil {
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot file. ErrSnapshotNotFound on first startup is
// returned alongside an empty, ready-to-use snapshot.
func (m *Manager) Load() (types.SnapshotData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var data types.SnapshotData

	jsonBytes, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return emptySnapshot(), ErrSnapshotNotFound
		}
		return data, fmt.Errorf("read snapshot: %w", err)
	}

	if err := json.Unmarshal(jsonBytes, &data); err != nil {
		return data, fmt.Errorf("%w: %v", ErrCorruptedSnapshot, err)
	}

	if data.SchemaVer != schemaVersion {
		return data, fmt.Errorf("%w: got %d, want %d", ErrIncompatibleVersion, data.SchemaVer, schemaVersion)
	}

	if data.Jobs == nil {
		data.Jobs = make(map[types.JobID]*types.Job)
	}
	if data.Transfers == nil {
		data.Transfers = make(map[types.TransferID]*types.Transfer)
	}
	if data.Workflows == nil {
		data.Workflows = make(map[types.WorkflowID]*types.Workflow)
	}

	return data, nil
}

func emptySnapshot() types.SnapshotData {
	return types.SnapshotData{
		Jobs:      make(map[types.JobID]*types.Job),
		Transfers: make(map[types.TransferID]*types.Transfer),
		Workflows: make(map[types.WorkflowID]*types.Workflow),
		SchemaVer: schemaVersion,
	}
}

// Exists reports whether a snapshot file is present.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

func (m *Manager) GetPath() string {
	return m.path
}

// WriteWithBackup renames any existing snapshot aside (timestamped) before
// writing the new one, so a corrupt write leaves a recoverable prior copy.
func (m *Manager) WriteWithBackup(data types.SnapshotData, keepBackups int) error {
	m.mu.Lock()
	if m.Exists() {
		backupPath := fmt.Sprintf("%s.%s", m.path, time.Now().Format("20060102_150405"))
		if err := os.Rename(m.path, backupPath); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("backup old snapshot: %w", err)
		}
	}
	m.mu.Unlock()

	return m.Write(data)
}
