// ============================================================================
// Workflow Engine CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Operator-facing command line interface based on Cobra
//
// Command Structure:
//   workflow-engine                      # Root command
//   ├── run                              # Start the engine host (G)
//   │   └── --config, -c                # Specify config file
//   ├── submit                           # Submit a standalone job
//   │   └── --file, -f                  # JSON job spec
//   │   └── --addr                      # Engine grpc address
//   ├── workflow                         # Submit a workflow
//   │   └── --file, -f                  # JSON workflow spec
//   │   └── --addr                      # Engine grpc address
//   ├── status                           # View jobs/workflows on a running engine
//   │   └── --addr                      # Engine grpc address
//   ├── --version                        # Display version information
//   └── --help                          # Display help information
//
// Configuration Management:
//   Uses YAML format config file (default: configs/default.yaml), loaded
//   through internal/config.
//
// run Command:
//   Starts the engine host, including:
//   1. Load config file
//   2. Build the scheduler backend (local worker pool or distributed master)
//   3. Create and start the engine
//   4. Start Metrics HTTP server (if enabled)
//   5. Start the host (grpc server, connection checker, startup banner)
//   6. Listen for system signals (SIGINT, SIGTERM)
//   7. Gracefully shut down
//
// ============================================================================

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/somauser/workflow-engine/internal/config"
	"github.com/somauser/workflow-engine/internal/engine"
	"github.com/somauser/workflow-engine/internal/host"
	"github.com/somauser/workflow-engine/internal/metrics"
	"github.com/somauser/workflow-engine/internal/rpc"
	"github.com/somauser/workflow-engine/internal/scheduler"
	"github.com/somauser/workflow-engine/internal/scheduler/distributed"
	"github.com/somauser/workflow-engine/internal/scheduler/local"
	"github.com/somauser/workflow-engine/pkg/types"
)

var configFile string

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "workflow-engine",
		Short: "workflow-engine: a DAG-driven distributed workflow execution engine",
		Long: `workflow-engine runs a dependency-ordered DAG of jobs and file
transfers against a pluggable low-level scheduler (a local worker pool, a
distributed master/slave cluster, or a DRM adapter), with:
- WAL-based durability
- Snapshot-based recovery
- Prometheus metrics`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildSubmitCommand())
	rootCmd.AddCommand(buildWorkflowCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the engine host",
		Long:  "Start the engine, the scheduler backend it drives, and the grpc host serving §6's RPC surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngineHost()
		},
	}
	return cmd
}

func buildSchedulerBackend(cfg *config.Config) (scheduler.Scheduler, error) {
	switch cfg.Scheduler.Backend {
	case "local", "":
		return local.NewLocal(cfg.Scheduler.LocalWorkers), nil
	case "distributed":
		return distributed.NewMaster(cfg.Scheduler.MasterAddr, cfg.Scheduler.ExpectedSlaves)
	default:
		return nil, fmt.Errorf("unsupported scheduler backend %q (DRM backends wire a concrete external client, not this CLI)", cfg.Scheduler.Backend)
	}
}

func runEngineHost() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log.Printf("Starting workflow engine (scheduler backend: %s)\n", cfg.Scheduler.Backend)

	sched, err := buildSchedulerBackend(cfg)
	if err != nil {
		return fmt.Errorf("failed to build scheduler backend: %w", err)
	}

	engCfg := engine.Config{
		TickInterval:     cfg.EngineTickInterval(),
		SweepInterval:    cfg.EngineSweepInterval(),
		SnapshotInterval: cfg.EngineSnapshotInterval(),
		WALPath:          cfg.WAL.Dir,
		SnapshotPath:     cfg.Snapshot.Dir,
		WALBufferSize:    cfg.WAL.BufferSize,
		WALFlushInterval: cfg.WALFlushInterval(),
		TransferBaseDir:  cfg.Engine.TransferBaseDir,
	}

	eng, err := engine.NewEngine(engCfg, sched)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	if cfg.Metrics.Enabled {
		eng.SetMetrics(metrics.NewCollector())
		go func() {
			log.Printf("Starting metrics server on :%d\n", cfg.Metrics.Port)
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				log.Printf("Metrics server error: %v\n", err)
			}
		}()
	}

	h, err := host.New(host.Config{
		Login:           cfg.Host.Login,
		EngineAddr:      cfg.Host.EngineAddr,
		CheckerAddr:     cfg.Host.CheckerAddr,
		Interval:        cfg.HostInterval(),
		ControlInterval: cfg.HostControlInterval(),
	}, eng)
	if err != nil {
		return fmt.Errorf("failed to create host: %w", err)
	}

	if err := h.Run(); err != nil {
		return fmt.Errorf("failed to run host: %w", err)
	}

	log.Println("Engine host started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("\nReceived shutdown signal, stopping gracefully...")
	if err := h.Stop(); err != nil {
		log.Printf("shutdown error: %v\n", err)
	}
	log.Println("Engine host stopped. Goodbye!")
	return nil
}

func dialEngine(addr string) (*rpc.Client, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to engine at %s: %w", addr, err)
	}
	return rpc.NewClient(conn), conn, nil
}

func buildSubmitCommand() *cobra.Command {
	var jobFile, addr string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a standalone job from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobFile == "" {
				return fmt.Errorf("job file is required (use --file or -f)")
			}
			return submitJob(jobFile, addr)
		},
	}
	cmd.Flags().StringVarP(&jobFile, "file", "f", "", "JSON file containing a job spec")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7890", "engine grpc address")
	cmd.MarkFlagRequired("file")
	return cmd
}

func submitJob(filePath, addr string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read job file: %w", err)
	}
	var job types.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("failed to parse job file: %w", err)
	}

	client, conn, err := dialEngine(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := client.Submit(ctx, job)
	if err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}
	fmt.Printf("Submitted job %s\n", id)
	return nil
}

// workflowSpecFile is the JSON-friendly shape a client hands the workflow
// command; engine.WorkflowSpec itself is what gets marshalled over grpc.
type workflowSpecFile struct {
	Name         string                 `json:"name"`
	Jobs         []types.Job            `json:"jobs"`
	Transfers    []types.Transfer       `json:"transfers"`
	Dependencies []types.DependencyEdge `json:"dependencies"`
	Groups       []types.DisplayGroup   `json:"groups"`
}

func buildWorkflowCommand() *cobra.Command {
	var specFile, addr string

	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Submit a workflow from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if specFile == "" {
				return fmt.Errorf("workflow spec file is required (use --file or -f)")
			}
			return submitWorkflow(specFile, addr)
		},
	}
	cmd.Flags().StringVarP(&specFile, "file", "f", "", "JSON file containing a workflow spec")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7890", "engine grpc address")
	cmd.MarkFlagRequired("file")
	return cmd
}

func submitWorkflow(filePath, addr string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read workflow file: %w", err)
	}
	var in workflowSpecFile
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("failed to parse workflow file: %w", err)
	}

	spec := engine.WorkflowSpec{
		Name:         in.Name,
		Jobs:         in.Jobs,
		Transfers:    in.Transfers,
		Dependencies: in.Dependencies,
		Groups:       in.Groups,
	}

	client, conn, err := dialEngine(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wf, err := client.SubmitWorkflow(ctx, spec)
	if err != nil {
		return fmt.Errorf("submit_workflow failed: %w", err)
	}
	fmt.Printf("Submitted workflow %s (%d jobs, %d transfers)\n", wf.ID, len(wf.Jobs), len(wf.Transfers))
	return nil
}

func buildStatusCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show running engine status",
		Long:  "Connect to a running engine host and display job/workflow counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7890", "engine grpc address")
	return cmd
}

func showStatus(addr string) error {
	client, conn, err := dialEngine(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	jobIDs, err := client.Jobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}
	workflowIDs, err := client.Workflows(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workflows: %w", err)
	}

	fmt.Println("\n╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║              Workflow Engine Status                       ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	fmt.Println("📋 Connection:")
	fmt.Printf("  └─ Engine Address:  %s\n", addr)
	fmt.Println()

	fmt.Println("📊 Inventory:")
	fmt.Printf("  ├─ Jobs:       %d\n", len(jobIDs))
	fmt.Printf("  └─ Workflows:  %d\n", len(workflowIDs))
	fmt.Println()

	terminal := 0
	for _, id := range jobIDs {
		st, err := client.Status(ctx, id)
		if err == nil && st.IsTerminal() {
			terminal++
		}
	}
	if len(jobIDs) > 0 {
		fmt.Printf("📈 Terminal Jobs: %d/%d\n", terminal, len(jobIDs))
		fmt.Println()
	}

	fmt.Println("═══════════════════════════════════════════════════════════")
	return nil
}
