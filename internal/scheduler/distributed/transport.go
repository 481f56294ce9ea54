package distributed

import (
	"bufio"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"net"
	"sync"
)

// conn wraps a net.Conn with length-prefixed gob framing and a mutex so
// one goroutine's Write never interleaves with another's, the same shape
// as the teacher's raft GrpcTransport wrapping a cached *grpc.ClientConn
// per peer.
type conn struct {
	mu  sync.Mutex
	rw  *bufio.ReadWriter
	raw net.Conn
}

func newConn(c net.Conn) *conn {
	return &conn{
		rw:  bufio.NewReadWriter(bufio.NewReader(c), bufio.NewWriter(c)),
		raw: c,
	}
}

func (c *conn) send(tag Tag, payload interface{}) error {
	var buf []byte
	if payload != nil {
		w := &byteWriter{}
		if err := gob.NewEncoder(w).Encode(payload); err != nil {
			return fmt.Errorf("distributed: encode payload: %w", err)
		}
		buf = w.buf
	}
	env := envelope{Tag: tag, Payload: buf}

	c.mu.Lock()
	defer c.mu.Unlock()

	w := &byteWriter{}
	if err := gob.NewEncoder(w).Encode(env); err != nil {
		return fmt.Errorf("distributed: encode envelope: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(w.buf)))
	if _, err := c.rw.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := c.rw.Write(w.buf); err != nil {
		return err
	}
	return c.rw.Flush()
}

func (c *conn) recv() (envelope, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.rw, lenBuf[:]); err != nil {
		return envelope{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.rw, buf); err != nil {
		return envelope{}, err
	}
	var env envelope
	if err := gob.NewDecoder(&byteReader{buf: buf}).Decode(&env); err != nil {
		return envelope{}, fmt.Errorf("distributed: decode envelope: %w", err)
	}
	return env, nil
}

func decodePayload(buf []byte, out interface{}) error {
	return gob.NewDecoder(&byteReader{buf: buf}).Decode(out)
}

func (c *conn) close() error { return c.raw.Close() }

// byteWriter/byteReader avoid importing bytes.Buffer twice over for a
// trivial accumulate-then-frame pattern.
type byteWriter struct{ buf []byte }

func (w *byteWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

type byteReader struct {
	buf []byte
	off int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.off >= len(r.buf) {
		return 0, io.EOF
	}
	n := copy(p, r.buf[r.off:])
	r.off += n
	return n, nil
}
