package wal

// ============================================================================
// WAL Error Definitions
// ============================================================================

import "errors"

var (
	ErrCorruptedWAL     = errors.New("wal: file is corrupted")
	ErrChecksumMismatch = errors.New("wal: checksum mismatch")
	ErrEmptyWAL         = errors.New("wal: file is empty")
	ErrWALClosed        = errors.New("wal: already closed")
)
