// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

package shell

import (
	"context"
	"errors"
	"io"
	"maps"
	"os"
	"os/exec"
	"slices"
	"syscall"
	"time"

	"github.com/waterci/executor/lib/protocol"
)

// containerWorkspace is where the job workspace is mounted inside a
// container.
const containerWorkspace = "/workspace"

// shellCommand describes one step invocation.
type shellCommand struct {
	run       string
	workspace string

	// image selects container execution when non-empty.
	image   string
	runtime string

	// env holds NAME=value entries added to the step's environment.
	env []string
}

// argv returns the program and arguments that run the step.
func (c shellCommand) argv() (string, []string) {
	if c.image == "" {
		return "sh", []string{"-c", c.run}
	}
	args := []string{
		"run", "--rm",
		"-v", c.workspace + ":" + containerWorkspace,
		"-w", containerWorkspace,
	}
	for _, entry := range c.env {
		args = append(args, "-e", entry)
	}
	args = append(args, c.image, "sh", "-c", c.run)
	return c.runtime, args
}

// runShellCommand runs command with stdout and stderr both written to
// output and returns its exit code. A non-zero exit is not an error;
// err is set only when the command could not be started or did not
// exit on its own (cancellation, timeout).
func runShellCommand(ctx context.Context, command shellCommand, output io.Writer, gracePeriod time.Duration) (int, error) {
	name, args := command.argv()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = command.workspace
	cmd.Stdout = output
	cmd.Stderr = output

	// Own process group so signals reach the shell and everything it
	// started.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if gracePeriod > 0 {
		cmd.Cancel = func() error {
			processGroupID := -cmd.Process.Pid
			if err := syscall.Kill(processGroupID, syscall.SIGTERM); err != nil {
				return syscall.Kill(processGroupID, syscall.SIGKILL)
			}
			go func() {
				time.Sleep(gracePeriod)
				// ESRCH from an already exited group is harmless.
				_ = syscall.Kill(processGroupID, syscall.SIGKILL)
			}()
			return nil
		}
		cmd.WaitDelay = 2 * gracePeriod
	} else {
		cmd.Cancel = func() error {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
	}

	if command.image == "" {
		cmd.Env = append(os.Environ(), command.env...)
	}

	err := cmd.Run()
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	if err == nil {
		return 0, nil
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		return exitError.ExitCode(), nil
	}
	return -1, err
}

// stepEnvironment returns the variables every step of request sees:
// the job's env sorted by name, then the executor's own.
func stepEnvironment(request protocol.JobBuildRequest, runID, commit string) []string {
	env := make([]string, 0, len(request.Job.Env)+5)
	for _, name := range slices.Sorted(maps.Keys(request.Job.Env)) {
		env = append(env, name+"="+request.Job.Env[name])
	}
	return append(env,
		"CI=true",
		"WATERCI_JOB="+request.Job.Name,
		"WATERCI_RUN_ID="+runID,
		"WATERCI_REPO_URL="+request.RepoURL,
		"WATERCI_COMMIT="+commit,
	)
}
