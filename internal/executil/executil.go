// Package executil runs a job as a real OS subprocess with stdio
// redirection and working-directory handling, and maps its termination to
// the exit tuple the scheduler interface returns. Shared by the local and
// distributed scheduler backends so both run jobs identically.
package executil

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/somauser/workflow-engine/pkg/types"
)

// Process wraps a started subprocess.
type Process struct {
	cmd       *exec.Cmd
	startedAt time.Time
	files     []*os.File
}

// Start launches job's command with its configured stdio redirection and
// working directory.
func Start(job *types.Job) (*Process, error) {
	if len(job.Command) == 0 {
		return nil, errors.New("executil: empty command")
	}
	cmd := exec.Command(job.Command[0], job.Command[1:]...)
	cmd.Dir = job.WorkingDir

	p := &Process{startedAt: time.Now()}

	if job.Stdin != "" {
		f, err := os.Open(job.Stdin)
		if err != nil {
			return nil, err
		}
		cmd.Stdin = f
		p.files = append(p.files, f)
	}

	stdout, err := openRedirect(job.StdoutFile)
	if err != nil {
		p.closeFiles()
		return nil, err
	}
	if stdout != nil {
		cmd.Stdout = stdout
		p.files = append(p.files, stdout)
	}

	if job.JoinStderrOut {
		cmd.Stderr = cmd.Stdout
	} else {
		stderr, err := openRedirect(job.StderrFile)
		if err != nil {
			p.closeFiles()
			return nil, err
		}
		if stderr != nil {
			cmd.Stderr = stderr
			p.files = append(p.files, stderr)
		}
	}

	if err := cmd.Start(); err != nil {
		p.closeFiles()
		return nil, err
	}
	p.cmd = cmd
	return p, nil
}

func openRedirect(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	return os.Create(path)
}

func (p *Process) closeFiles() {
	for _, f := range p.files {
		f.Close()
	}
}

// Kill requests termination via SIGTERM.
func (p *Process) Kill() {
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
}

// Wait blocks until the process exits and maps the result to the exit
// tuple: a nonzero exit status maps to a FINISHED_REGULARLY tuple with
// the OS exit code in Value; a signal-terminated process maps to
// USER_KILLED with the signal number in Signal.
func (p *Process) Wait() types.ExitInfo {
	defer p.closeFiles()

	err := p.cmd.Wait()
	usage := types.ResourceUsage{WallTime: time.Since(p.startedAt)}

	if err == nil {
		return types.ExitInfo{Status: types.ExitFinishedRegularly, Value: 0, Usage: usage}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return types.ExitInfo{
					Status: types.ExitUserKilled,
					Signal: int(status.Signal()),
					Usage:  usage,
				}
			}
			return types.ExitInfo{
				Status: types.ExitFinishedRegularly,
				Value:  status.ExitStatus(),
				Usage:  usage,
			}
		}
		return types.ExitInfo{Status: types.ExitFinishedRegularly, Value: exitErr.ExitCode(), Usage: usage}
	}

	return types.ExitInfo{Status: types.ExitUndetermined, Usage: usage}
}
