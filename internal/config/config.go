// Package config loads the engine host's YAML configuration, the same
// shape and loader the teacher's internal/cli used for its own Config.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine host configuration structure.
type Config struct {
	Engine struct {
		TickIntervalMs     int    `yaml:"tick_interval_ms"`
		SweepIntervalMs    int    `yaml:"sweep_interval_ms"`
		SnapshotIntervalMs int    `yaml:"snapshot_interval_ms"`
		TransferBaseDir    string `yaml:"transfer_base_dir"`
	} `yaml:"engine"`

	WAL struct {
		Dir             string `yaml:"dir"`
		BufferSize      int    `yaml:"buffer_size"`
		FlushIntervalMs int    `yaml:"flush_interval_ms"`
	} `yaml:"wal"`

	Snapshot struct {
		Dir string `yaml:"dir"`
	} `yaml:"snapshot"`

	Scheduler struct {
		Backend        string `yaml:"backend"` // "local", "distributed", "drm"
		LocalWorkers   int    `yaml:"local_workers"`
		MasterAddr     string `yaml:"master_addr"`
		ExpectedSlaves int    `yaml:"expected_slaves"`
	} `yaml:"scheduler"`

	Host struct {
		Login           string `yaml:"login"`
		EngineAddr      string `yaml:"engine_addr"`
		CheckerAddr     string `yaml:"checker_addr"`
		IntervalMs      int    `yaml:"interval_ms"`
		ControlInterval int    `yaml:"control_interval_ms"`
	} `yaml:"host"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

// Load reads and parses a YAML config file from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Engine.TickIntervalMs <= 0 {
		c.Engine.TickIntervalMs = 20
	}
	if c.Engine.SweepIntervalMs <= 0 {
		c.Engine.SweepIntervalMs = 1000
	}
	if c.Engine.SnapshotIntervalMs <= 0 {
		c.Engine.SnapshotIntervalMs = 30000
	}
	if c.Engine.TransferBaseDir == "" {
		c.Engine.TransferBaseDir = "/tmp/workflow-transfers"
	}
	if c.WAL.Dir == "" {
		c.WAL.Dir = "data/wal"
	}
	if c.WAL.BufferSize <= 0 {
		c.WAL.BufferSize = 100
	}
	if c.WAL.FlushIntervalMs <= 0 {
		c.WAL.FlushIntervalMs = 10
	}
	if c.Snapshot.Dir == "" {
		c.Snapshot.Dir = "data/snapshot"
	}
	if c.Scheduler.Backend == "" {
		c.Scheduler.Backend = "local"
	}
	if c.Scheduler.LocalWorkers <= 0 {
		c.Scheduler.LocalWorkers = 8
	}
	if c.Host.EngineAddr == "" {
		c.Host.EngineAddr = "127.0.0.1:0"
	}
	if c.Host.CheckerAddr == "" {
		c.Host.CheckerAddr = "127.0.0.1:0"
	}
	if c.Host.IntervalMs <= 0 {
		c.Host.IntervalMs = 2000
	}
	if c.Host.ControlInterval <= 0 {
		c.Host.ControlInterval = 3000
	}
	if c.Metrics.Port <= 0 {
		c.Metrics.Port = 9090
	}
}

// EngineTickInterval and friends translate the millisecond yaml fields
// into time.Duration for engine.Config.
func (c *Config) EngineTickInterval() time.Duration {
	return time.Duration(c.Engine.TickIntervalMs) * time.Millisecond
}
func (c *Config) EngineSweepInterval() time.Duration {
	return time.Duration(c.Engine.SweepIntervalMs) * time.Millisecond
}
func (c *Config) EngineSnapshotInterval() time.Duration {
	return time.Duration(c.Engine.SnapshotIntervalMs) * time.Millisecond
}
func (c *Config) WALFlushInterval() time.Duration {
	return time.Duration(c.WAL.FlushIntervalMs) * time.Millisecond
}
func (c *Config) HostInterval() time.Duration {
	return time.Duration(c.Host.IntervalMs) * time.Millisecond
}
func (c *Config) HostControlInterval() time.Duration {
	return time.Duration(c.Host.ControlInterval) * time.Millisecond
}
