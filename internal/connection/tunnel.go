// Package connection implements H: secure-shell tunnelling, the startup
// banner scan, bounded connectivity probing, and the client-side heartbeat
// thread, grounded on python/soma/workflow/connection.py's
// RemoteConnection/Tunnel/ConnectionHolder trio.
package connection

import (
	"fmt"
	"io"
	"log/slog"
	"net"

	"golang.org/x/crypto/ssh"
)

// Tunnel forwards a local TCP listener to remoteAddr on the other end of
// an established ssh.Client, the same local-port-forward shape as the
// original's paramiko-based Tunnel thread.
type Tunnel struct {
	client     *ssh.Client
	localLn    net.Listener
	remoteAddr string
	log        *slog.Logger
	closeCh    chan struct{}
}

// NewTunnel binds a local port (0 = any free port) and returns a Tunnel
// ready to Serve.
func NewTunnel(client *ssh.Client, remoteAddr string, log *slog.Logger) (*Tunnel, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("tunnel: bind local port: %w", err)
	}
	return &Tunnel{client: client, localLn: ln, remoteAddr: remoteAddr, log: log, closeCh: make(chan struct{})}, nil
}

// LocalAddr is the "localhost:<port>" address proxies get rewritten to
// point at, per §4.5's tunnelling rule.
func (t *Tunnel) LocalAddr() string { return t.localLn.Addr().String() }

// Serve accepts local connections and relays bytes through a direct-tcpip
// channel opened over the ssh transport. Runs until Close.
func (t *Tunnel) Serve() {
	for {
		conn, err := t.localLn.Accept()
		if err != nil {
			select {
			case <-t.closeCh:
				return
			default:
				t.log.Error("tunnel accept failed", "err", err)
				return
			}
		}
		go t.relay(conn)
	}
}

func (t *Tunnel) relay(local net.Conn) {
	remote, err := t.client.Dial("tcp", t.remoteAddr)
	if err != nil {
		t.log.Error("tunnel dial remote failed", "err", err)
		local.Close()
		return
	}
	go func() {
		defer local.Close()
		defer remote.Close()
		io.Copy(remote, local)
	}()
	io.Copy(local, remote)
}

func (t *Tunnel) Close() error {
	close(t.closeCh)
	return t.localLn.Close()
}
