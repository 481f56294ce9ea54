package host

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/user"
	"time"

	"google.golang.org/grpc"

	"github.com/somauser/workflow-engine/internal/engine"
	"github.com/somauser/workflow-engine/internal/rpc"
)

// Config configures a Host's listeners and the login label its banner
// advertises, per §4.5's "workflow_engine_<login>" label rule.
type Config struct {
	Login           string
	EngineAddr      string
	CheckerAddr     string
	Interval        time.Duration
	ControlInterval time.Duration
}

// Host is the engine host process (G): it owns the workflow engine, the
// grpc server exposing it, and the connection-checker that tears the
// process down once the client's heartbeat goes quiet.
type Host struct {
	cfg        Config
	log        *slog.Logger
	engine     *engine.Engine
	grpcServer *grpc.Server
	checker    *ConnectionChecker
	checkerLn  net.Listener
	engineLn   net.Listener
}

func New(cfg Config, eng *engine.Engine) (*Host, error) {
	if cfg.Login == "" {
		if u, err := user.Current(); err == nil {
			cfg.Login = u.Username
		} else {
			cfg.Login = "unknown"
		}
	}

	h := &Host{cfg: cfg, log: slog.Default().With("component", "host"), engine: eng}
	h.checker = NewConnectionChecker(cfg.Interval, cfg.ControlInterval, h.onDisconnect)
	return h, nil
}

// Run starts the engine, binds both listeners, prints the two-line
// startup banner G's contract requires, and returns; the grpc server and
// connection checker continue running in the background until Stop is
// called (directly, or via the connection checker's disconnection
// callback) — the caller is responsible for blocking, e.g. on a signal
// channel, for as long as the host should stay up.
func (h *Host) Run() error {
	if err := h.engine.Start(); err != nil {
		return fmt.Errorf("engine start: %w", err)
	}

	engineLn, err := net.Listen("tcp", h.cfg.EngineAddr)
	if err != nil {
		return fmt.Errorf("listen engine: %w", err)
	}
	h.engineLn = engineLn

	checkerLn, err := net.Listen("tcp", h.cfg.CheckerAddr)
	if err != nil {
		return fmt.Errorf("listen checker: %w", err)
	}
	h.checkerLn = checkerLn

	h.grpcServer = grpc.NewServer()
	rpc.Register(h.grpcServer, &rpc.EngineServer{Engine: h.engine})

	go func() {
		if err := h.grpcServer.Serve(engineLn); err != nil {
			h.log.Error("grpc serve stopped", "err", err)
		}
	}()
	go ServeChecker(checkerLn, h.checker, h.log)

	h.checker.Start()

	// Startup contract (§6): exactly two labelled lines, label then uri,
	// extra log output before/between is permitted but ignored by H.
	fmt.Printf("workflow_engine_%s %s\n", h.cfg.Login, engineLn.Addr().String())
	fmt.Printf("connection_checker %s\n", checkerLn.Addr().String())
	os.Stdout.Sync()

	return nil
}

// onDisconnect is the connection checker's disconnection callback: it
// shuts the whole host down, per §7's "G recovers from client heartbeat
// timeout by self-terminating (no retry)".
func (h *Host) onDisconnect() {
	h.log.Warn("client heartbeat lost, shutting down")
	_ = h.Stop()
}

func (h *Host) Stop() error {
	h.checker.Stop()
	if h.grpcServer != nil {
		h.grpcServer.GracefulStop()
	}
	if h.checkerLn != nil {
		_ = h.checkerLn.Close()
	}
	return h.engine.Stop()
}
