package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.yaml")

	configContent := `
engine:
  tick_interval_ms: 10
  snapshot_interval_ms: 5000
  transfer_base_dir: "/tmp/xfer"

wal:
  dir: "./test_wal"
  buffer_size: 50

snapshot:
  dir: "./test_snapshot"

scheduler:
  backend: "local"
  local_workers: 4

metrics:
  enabled: true
  port: 8080
`

	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err, "Load should not return an error")
	require.NotNil(t, cfg)

	assert.Equal(t, 10, cfg.Engine.TickIntervalMs)
	assert.Equal(t, "/tmp/xfer", cfg.Engine.TransferBaseDir)
	assert.Equal(t, "./test_wal", cfg.WAL.Dir)
	assert.Equal(t, 50, cfg.WAL.BufferSize)
	assert.Equal(t, "./test_snapshot", cfg.Snapshot.Dir)
	assert.Equal(t, "local", cfg.Scheduler.Backend)
	assert.Equal(t, 4, cfg.Scheduler.LocalWorkers)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 8080, cfg.Metrics.Port)
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml")

	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := "engine:\n  tick_interval_ms: \"not a number\"\n  broken\n    indentation\n"
	require.NoError(t, os.WriteFile(configPath, []byte(invalidYAML), 0644))

	cfg, err := Load(configPath)

	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config YAML")
}

func TestLoad_AppliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "empty.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(""), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Engine.TickIntervalMs)
	assert.Equal(t, 1000, cfg.Engine.SweepIntervalMs)
	assert.Equal(t, "/tmp/workflow-transfers", cfg.Engine.TransferBaseDir)
	assert.Equal(t, "data/wal", cfg.WAL.Dir)
	assert.Equal(t, 100, cfg.WAL.BufferSize)
	assert.Equal(t, "local", cfg.Scheduler.Backend)
	assert.Equal(t, 8, cfg.Scheduler.LocalWorkers)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoad_PartialConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.yaml")

	partial := "scheduler:\n  backend: distributed\n  expected_slaves: 3\n"
	require.NoError(t, os.WriteFile(configPath, []byte(partial), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "distributed", cfg.Scheduler.Backend)
	assert.Equal(t, 3, cfg.Scheduler.ExpectedSlaves)
	assert.Empty(t, cfg.Host.Login, "unset fields should keep zero values")
}
