package connection

import (
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"google.golang.org/grpc"

	"github.com/somauser/workflow-engine/internal/host"
	"github.com/somauser/workflow-engine/internal/rpc"
)

// LocalConfig launches the engine as a child process on the same host
// instead of over ssh, the Go analogue of connection.py's LocalConnection.
// No tunnel is needed: the banner's advertised addresses are dialled
// directly.
type LocalConfig struct {
	Login      string
	Command    string
	Args       []string
	ObjectName string // defaults to "workflow_engine_<login>"
}

// LocalConnection holds a spawned engine subprocess plus its probed grpc
// and heartbeat channels.
type LocalConnection struct {
	log           *slog.Logger
	cmd           *exec.Cmd
	checkerClient *host.CheckerClient
	grpcConn      *grpc.ClientConn
	stopCh        chan struct{}
}

// ConnectLocal starts cfg.Command, scans its startup banner, dials the
// advertised addresses directly (no tunnel), and starts heartbeating.
func ConnectLocal(cfg LocalConfig) (*LocalConnection, error) {
	log := slog.Default().With("component", "connection")

	objectLabel := cfg.ObjectName
	if objectLabel == "" {
		objectLabel = "workflow_engine_" + cfg.Login
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrConnection, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start engine: %v", ErrConnection, err)
	}

	engineAddr, checkerAddr, err := scanBanner(stdout, objectLabel)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}

	grpcConn, checkerClient, err := probeTunnel(engineAddr, checkerAddr)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}

	lc := &LocalConnection{
		log:           log,
		cmd:           cmd,
		checkerClient: checkerClient,
		grpcConn:      grpcConn,
		stopCh:        make(chan struct{}),
	}
	go lc.heartbeatLoop()
	return lc, nil
}

func (lc *LocalConnection) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-lc.stopCh:
			return
		case <-ticker.C:
			if err := lc.checkerClient.Signal(); err != nil {
				lc.log.Warn("heartbeat signal failed", "err", err)
			}
		}
	}
}

func (lc *LocalConnection) GRPCConn() *grpc.ClientConn { return lc.grpcConn }

func (lc *LocalConnection) Client() *rpc.Client { return rpc.NewClient(lc.grpcConn) }

func (lc *LocalConnection) Stop() error {
	close(lc.stopCh)
	_ = lc.checkerClient.Close()
	_ = lc.grpcConn.Close()
	return lc.cmd.Process.Kill()
}
