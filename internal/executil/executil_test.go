package executil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somauser/workflow-engine/pkg/types"
)

func TestStart_EmptyCommandErrors(t *testing.T) {
	_, err := Start(&types.Job{})
	assert.Error(t, err)
}

func TestProcess_SuccessfulExit(t *testing.T) {
	p, err := Start(&types.Job{Command: []string{"/bin/true"}})
	require.NoError(t, err)

	info := p.Wait()
	assert.Equal(t, types.ExitFinishedRegularly, info.Status)
	assert.Equal(t, 0, info.Value)
}

func TestProcess_NonZeroExit(t *testing.T) {
	p, err := Start(&types.Job{Command: []string{"/bin/false"}})
	require.NoError(t, err)

	info := p.Wait()
	assert.Equal(t, types.ExitFinishedRegularly, info.Status)
	assert.Equal(t, 1, info.Value)
}

func TestProcess_KilledBySignal(t *testing.T) {
	p, err := Start(&types.Job{Command: []string{"/bin/sleep", "30"}})
	require.NoError(t, err)

	p.Kill()
	info := p.Wait()
	assert.Equal(t, types.ExitUserKilled, info.Status)
	assert.NotZero(t, info.Signal)
}

func TestStart_RedirectsStdoutToFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")

	p, err := Start(&types.Job{Command: []string{"/bin/echo", "hello"}, StdoutFile: out})
	require.NoError(t, err)
	p.Wait()

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestStart_JoinStderrOut(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "combined.txt")

	p, err := Start(&types.Job{
		Command:       []string{"/bin/sh", "-c", "echo out; echo err 1>&2"},
		StdoutFile:    out,
		JoinStderrOut: true,
	})
	require.NoError(t, err)
	info := p.Wait()
	assert.Equal(t, types.ExitFinishedRegularly, info.Status)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "out")
	assert.Contains(t, string(data), "err")
}

func TestStart_StdinFromFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	out := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(in, []byte("piped input\n"), 0644))

	p, err := Start(&types.Job{Command: []string{"/bin/cat"}, Stdin: in, StdoutFile: out})
	require.NoError(t, err)
	p.Wait()

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "piped input\n", string(data))
}

func TestStart_WorkingDirHonored(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "pwd.txt")

	p, err := Start(&types.Job{Command: []string{"/bin/pwd"}, WorkingDir: dir, StdoutFile: out})
	require.NoError(t, err)
	p.Wait()

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), dir)
}
