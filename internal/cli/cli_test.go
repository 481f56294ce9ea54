package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "workflow-engine", cmd.Use, "Root command should be 'workflow-engine'")
	assert.Equal(t, "1.0.0", cmd.Version, "Version should be 1.0.0")

	commands := cmd.Commands()
	assert.Len(t, commands, 4, "Should have 4 subcommands")

	commandNames := make(map[string]bool)
	for _, c := range commands {
		commandNames[c.Name()] = true
	}

	assert.True(t, commandNames["run"], "Should have 'run' command")
	assert.True(t, commandNames["submit"], "Should have 'submit' command")
	assert.True(t, commandNames["workflow"], "Should have 'workflow' command")
	assert.True(t, commandNames["status"], "Should have 'status' command")

	configFlag := cmd.PersistentFlags().Lookup("config")
	assert.NotNil(t, configFlag, "Should have --config flag")
	assert.Equal(t, "configs/default.yaml", configFlag.DefValue, "Default config path should be configs/default.yaml")
}

func TestBuildRunCommand(t *testing.T) {
	cmd := buildRunCommand()

	assert.NotNil(t, cmd, "buildRunCommand should return a non-nil command")
	assert.Equal(t, "run", cmd.Use, "Command should be 'run'")
	assert.Contains(t, cmd.Short, "Start", "Short description should mention 'Start'")
	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestBuildSubmitCommand(t *testing.T) {
	cmd := buildSubmitCommand()

	assert.NotNil(t, cmd, "buildSubmitCommand should return a non-nil command")
	assert.Equal(t, "submit", cmd.Use, "Command should be 'submit'")

	fileFlag := cmd.Flags().Lookup("file")
	assert.NotNil(t, fileFlag, "Should have --file flag")
	assert.Equal(t, "f", fileFlag.Shorthand, "Should have -f shorthand")

	addrFlag := cmd.Flags().Lookup("addr")
	assert.NotNil(t, addrFlag, "Should have --addr flag")

	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestBuildWorkflowCommand(t *testing.T) {
	cmd := buildWorkflowCommand()

	assert.NotNil(t, cmd, "buildWorkflowCommand should return a non-nil command")
	assert.Equal(t, "workflow", cmd.Use, "Command should be 'workflow'")

	fileFlag := cmd.Flags().Lookup("file")
	assert.NotNil(t, fileFlag, "Should have --file flag")

	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestBuildStatusCommand(t *testing.T) {
	cmd := buildStatusCommand()

	assert.NotNil(t, cmd, "buildStatusCommand should return a non-nil command")
	assert.Equal(t, "status", cmd.Use, "Command should be 'status'")
	assert.Contains(t, cmd.Short, "status", "Short description should mention 'status'")
	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestSubmitJob_InvalidFile(t *testing.T) {
	err := submitJob("/nonexistent/job.json", "127.0.0.1:0")

	assert.Error(t, err, "submitJob should return error for nonexistent file")
	assert.Contains(t, err.Error(), "failed to read job file", "Error should mention file reading failure")
}

func TestSubmitJob_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	jobFile := filepath.Join(tmpDir, "invalid.json")

	if err := os.WriteFile(jobFile, []byte(`{"invalid json structure`), 0644); err != nil {
		t.Fatalf("failed to write invalid JSON: %v", err)
	}

	err := submitJob(jobFile, "127.0.0.1:0")

	assert.Error(t, err, "submitJob should return error for invalid JSON")
	assert.Contains(t, err.Error(), "failed to parse job file", "Error should mention JSON parsing failure")
}

func TestSubmitWorkflow_InvalidFile(t *testing.T) {
	err := submitWorkflow("/nonexistent/workflow.json", "127.0.0.1:0")

	assert.Error(t, err, "submitWorkflow should return error for nonexistent file")
	assert.Contains(t, err.Error(), "failed to read workflow file", "Error should mention file reading failure")
}
