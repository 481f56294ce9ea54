package wal

// ============================================================================
// Checksum Calculation
// Responsibility: Calculate and verify CRC32 checksum for WAL events
// ============================================================================

import "hash/crc32"

// CalculateChecksum calculates the CRC32 checksum for an event's key
// fields (type, node id, seq). Timestamp is excluded, same as the
// teacher's rationale: it is irrelevant to replay correctness and would
// make every recomputation sensitive to wall-clock skew.
func CalculateChecksum(eventType EventType, nodeID string, seq uint64) uint32 {
	data := string(eventType) + nodeID + itoa(seq)
	return crc32.ChecksumIEEE([]byte(data))
}

// VerifyChecksum reports whether event's stored checksum matches its
// recomputed one.
func VerifyChecksum(event Event) bool {
	return event.Checksum == CalculateChecksum(event.Type, event.NodeID, event.Seq)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
