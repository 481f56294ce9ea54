package connection

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/somauser/workflow-engine/internal/host"
	"github.com/somauser/workflow-engine/internal/rpc"
)

// insecureCreds is the tunnel's transport credential: the SSH channel
// already provides confidentiality, so the grpc leg inside it runs
// in plaintext, same trust boundary as the original's Pyro-over-tunnel link.
func insecureCreds() credentials.TransportCredentials {
	return insecure.NewCredentials()
}

// ErrConnection is the *ConnectionError* kind from §7: startup banner
// unreadable, or tunnel probe exhausted.
var ErrConnection = errors.New("connection: failed")

const (
	probeAttempts = 10
	probeSpacing  = time.Second
	heartbeatInterval = 2 * time.Second
)

// Config describes how to reach and launch the engine host process.
type Config struct {
	Login         string // remote user; also the banner label suffix
	ClusterAddr   string // "host:22"
	ResourceID    string
	ObjectName    string
	LogTag        string
	SSHConfig     *ssh.ClientConfig
	RemoteCommand string // defaults to the standard single-binary invocation
}

// RemoteConnection is H's remote variant: it launches G over ssh, reads
// the startup banner, opens a tunnel, probes it, and starts the client
// heartbeat — the Go analogue of connection.py's RemoteConnection.
type RemoteConnection struct {
	log           *slog.Logger
	sshClient     *ssh.Client
	tunnel        *Tunnel
	checkerClient *host.CheckerClient
	grpcConn      *grpc.ClientConn
	stopCh        chan struct{}
}

// Connect launches the engine on the remote resource, tunnels to it, and
// starts heartbeating. The returned RemoteConnection's GRPCConn can build
// an rpc.Client.
func Connect(cfg Config) (*RemoteConnection, error) {
	log := slog.Default().With("component", "connection")

	sshClient, err := ssh.Dial("tcp", cfg.ClusterAddr, cfg.SSHConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: ssh dial: %v", ErrConnection, err)
	}

	session, err := sshClient.NewSession()
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("%w: ssh session: %v", ErrConnection, err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrConnection, err)
	}

	cmd := cfg.RemoteCommand
	if cmd == "" {
		cmd = fmt.Sprintf("workflow-engine run %s %s %s", cfg.ResourceID, cfg.ObjectName, cfg.LogTag)
	}
	if err := session.Start(cmd); err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("%w: start engine: %v", ErrConnection, err)
	}

	objectLabel := "workflow_engine_" + cfg.Login
	engineAddr, checkerAddr, err := scanBanner(stdout, objectLabel)
	if err != nil {
		sshClient.Close()
		return nil, err
	}

	engineTunnel, err := NewTunnel(sshClient, engineAddr, log)
	if err != nil {
		sshClient.Close()
		return nil, err
	}
	go engineTunnel.Serve()

	checkerTunnel, err := NewTunnel(sshClient, checkerAddr, log)
	if err != nil {
		engineTunnel.Close()
		sshClient.Close()
		return nil, err
	}
	go checkerTunnel.Serve()

	grpcConn, checkerClient, err := probeTunnel(engineTunnel.LocalAddr(), checkerTunnel.LocalAddr())
	if err != nil {
		engineTunnel.Close()
		checkerTunnel.Close()
		sshClient.Close()
		return nil, err
	}

	rc := &RemoteConnection{
		log:           log,
		sshClient:     sshClient,
		tunnel:        engineTunnel,
		checkerClient: checkerClient,
		grpcConn:      grpcConn,
		stopCh:        make(chan struct{}),
	}
	go rc.heartbeatLoop()
	return rc, nil
}

// scanBanner reads stdout line-by-line until both labelled URIs are
// found, ignoring any other lines in between, per §4.5's startup contract.
func scanBanner(r interface{ Read([]byte) (int, error) }, engineLabel string) (engineAddr, checkerAddr string, err error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		switch fields[0] {
		case engineLabel:
			engineAddr = fields[1]
		case "connection_checker":
			checkerAddr = fields[1]
		}
		if engineAddr != "" && checkerAddr != "" {
			return engineAddr, checkerAddr, nil
		}
	}
	return "", "", fmt.Errorf("%w: could not read startup banner", ErrConnection)
}

// probeTunnel retries a trivial engine call up to probeAttempts times,
// probeSpacing apart, per §4.5's bounded-retry rule.
func probeTunnel(engineAddr, checkerAddr string) (*grpc.ClientConn, *host.CheckerClient, error) {
	var lastErr error
	for attempt := 1; attempt <= probeAttempts; attempt++ {
		conn, err := grpc.NewClient(engineAddr, grpc.WithTransportCredentials(insecureCreds()))
		if err == nil {
			client := rpc.NewClient(conn)
			ctx, cancel := context.WithTimeout(context.Background(), probeSpacing)
			_, probeErr := client.Jobs(ctx)
			cancel()
			if probeErr == nil {
				checkerClient, cErr := host.DialChecker(checkerAddr)
				if cErr == nil {
					return conn, checkerClient, nil
				}
				lastErr = cErr
			} else {
				lastErr = probeErr
			}
			conn.Close()
		} else {
			lastErr = err
		}
		time.Sleep(probeSpacing)
	}
	return nil, nil, fmt.Errorf("%w: tunnel probe exhausted after %d attempts: %v", ErrConnection, probeAttempts, lastErr)
}

// heartbeatLoop signals the connection checker every heartbeatInterval,
// the Go analogue of ConnectionHolder.run.
func (rc *RemoteConnection) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rc.stopCh:
			return
		case <-ticker.C:
			if err := rc.checkerClient.Signal(); err != nil {
				rc.log.Warn("heartbeat signal failed", "err", err)
			}
		}
	}
}

// GRPCConn exposes the tunnelled connection for building an rpc.Client.
func (rc *RemoteConnection) GRPCConn() *grpc.ClientConn { return rc.grpcConn }

func (rc *RemoteConnection) IsValid() bool {
	ok, err := rc.checkerClient.IsConnected()
	return err == nil && ok
}

// Stop tears the heartbeat, tunnel, and transport down; test-only in the
// original, kept general-purpose here.
func (rc *RemoteConnection) Stop() error {
	close(rc.stopCh)
	_ = rc.checkerClient.Close()
	_ = rc.grpcConn.Close()
	_ = rc.tunnel.Close()
	return rc.sshClient.Close()
}
