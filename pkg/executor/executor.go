// Package executor spawns job commands as external shell processes
// with a hard wall-clock timeout. The whole process group is killed
// at the deadline so child processes cannot outlive the run.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// Result contains the outcome of one command invocation. Success,
// non-zero exit and timeout are all reported through it; an error is
// returned only when the process could not be started at all.
type Result struct {
	// Output is the combined stdout+stderr text.
	Output string
	// ExitCode is the process exit code; -1 when killed.
	ExitCode int
	// TimedOut is set when the hard timeout killed the process.
	TimedOut bool
}

// Succeeded reports a clean exit within the timeout.
func (r Result) Succeeded() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Shell runs commands through "sh -c".
type Shell struct {
	// WorkDir is the working directory for spawned commands.
	// Empty means the process inherits the service's directory.
	WorkDir string
}

func NewShell() *Shell {
	return &Shell{}
}

// Run executes the command and waits for completion or the timeout,
// whichever comes first.
func (s *Shell) Run(ctx context.Context, command string, timeout time.Duration) (Result, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = s.WorkDir

	// Own process group so the entire tree can be killed on timeout.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("failed to start command: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	timedOut := false
	select {
	case <-runCtx.Done():
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		timedOut = errors.Is(runCtx.Err(), context.DeadlineExceeded)
		waitErr = runCtx.Err()
	case waitErr = <-done:
	}

	exitCode := 0
	if waitErr != nil {
		exitCode = -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
	}

	res := Result{
		Output:   output.String(),
		ExitCode: exitCode,
		TimedOut: timedOut,
	}
	if timedOut {
		res.Output += fmt.Sprintf("\ncommand timed out after %s", timeout)
	}
	return res, nil
}
