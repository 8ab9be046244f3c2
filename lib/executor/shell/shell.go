// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

// Package shell is the executor that runs jobs on this machine. Each
// job gets a fresh clone of the repository in its own workspace; its
// steps run one after another with sh -c, either directly on the host
// or inside a container when the job names an image.
package shell

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/waterci/executor/lib/clock"
	"github.com/waterci/executor/lib/git"
	"github.com/waterci/executor/lib/protocol"
)

// Config controls how jobs are run.
type Config struct {
	// WorkspaceRoot is the directory under which per-job workspaces are
	// created. It is created if missing.
	WorkspaceRoot string

	// KeepWorkspaces leaves workspaces on disk after the job finishes.
	KeepWorkspaces bool

	// DefaultImage is the container image for jobs that do not name
	// one. Empty runs such jobs directly on the host.
	DefaultImage string

	// ContainerRuntime is the CLI used to run containers ("docker",
	// "podman").
	ContainerRuntime string

	// StepTimeout bounds each step. Zero means no limit.
	StepTimeout time.Duration

	// KillGracePeriod is the time between SIGTERM and SIGKILL when a
	// step is cancelled. Zero kills immediately.
	KillGracePeriod time.Duration

	// OutputLimit is the number of bytes of step output kept.
	OutputLimit int

	// OutputCompression is the encoding applied to kept output when it
	// makes it smaller.
	OutputCompression protocol.OutputEncoding
}

// Executor runs jobs in local workspaces. It implements
// executor.Executor. Each Execute call owns its workspace, so calls
// share no state.
type Executor struct {
	config Config
	logger *slog.Logger
	clock  clock.Clock
}

// New returns an Executor. A nil clock uses the real clock.
func New(config Config, logger *slog.Logger, c clock.Clock) *Executor {
	if c == nil {
		c = clock.Real()
	}
	if config.ContainerRuntime == "" {
		config.ContainerRuntime = "docker"
	}
	return &Executor{config: config, logger: logger, clock: c}
}

// Execute clones the repository, checks out the requested reference,
// and runs the job's steps in order. The first failing step fails the
// job and the steps after it are reported as skipped. An error is
// returned only when the job could not be run at all: the workspace
// could not be created, the checkout failed, or ctx was cancelled.
func (e *Executor) Execute(ctx context.Context, request protocol.JobBuildRequest) (protocol.JobResult, error) {
	runID := uuid.NewString()
	digest := Digest(request)
	started := e.clock.Now()

	logger := e.logger.With("job", request.Job.Name, "run_id", runID)

	if err := os.MkdirAll(e.config.WorkspaceRoot, 0o755); err != nil {
		return protocol.JobResult{}, fmt.Errorf("creating workspace root: %w", err)
	}
	workspace := filepath.Join(e.config.WorkspaceRoot, digest[:16]+"-"+runID[:8])
	if e.config.KeepWorkspaces {
		logger.InfoContext(ctx, "keeping workspace", "workspace", workspace)
	} else {
		defer func() {
			if err := os.RemoveAll(workspace); err != nil {
				logger.WarnContext(ctx, "removing workspace failed", "workspace", workspace, "error", err)
			}
		}()
	}

	logger.DebugContext(ctx, "cloning repository",
		"repo_url", request.RepoURL,
		"reference", request.Reference,
		"workspace", workspace,
	)
	repository, err := git.Clone(ctx, request.RepoURL, workspace)
	if err != nil {
		return protocol.JobResult{}, fmt.Errorf("checking out %s: %w", request.RepoURL, err)
	}
	commit, err := repository.Checkout(ctx, request.Reference)
	if err != nil {
		return protocol.JobResult{}, fmt.Errorf("checking out %s at %q: %w", request.RepoURL, request.Reference, err)
	}

	result := protocol.JobResult{
		Job:         request.Job.Name,
		RunID:       runID,
		Digest:      digest,
		Commit:      commit,
		Status:      protocol.JobSuccess,
		StartedAtMS: started.UnixMilli(),
		Steps:       make([]protocol.StepResult, 0, len(request.Job.Steps)),
	}

	image := request.Job.Image
	if image == "" {
		image = e.config.DefaultImage
	}
	env := stepEnvironment(request, runID, commit)

	for index, step := range request.Job.Steps {
		if result.Status == protocol.JobFailure {
			result.Steps = append(result.Steps, protocol.StepResult{
				Name:   step.DisplayName(),
				Status: protocol.StepSkipped,
			})
			continue
		}

		stepResult := e.runStep(ctx, workspace, image, env, step)
		if ctx.Err() != nil {
			return protocol.JobResult{}, fmt.Errorf("job interrupted during step %d: %w", index, context.Cause(ctx))
		}
		logger.InfoContext(ctx, "step finished",
			"step", stepResult.Name,
			"status", stepResult.Status,
			"exit_code", stepResult.ExitCode,
			"duration_ms", stepResult.DurationMS,
		)
		if stepResult.Status == protocol.StepFailure {
			result.Status = protocol.JobFailure
		}
		result.Steps = append(result.Steps, stepResult)
	}

	result.DurationMS = clock.Since(e.clock, started).Milliseconds()
	return result, nil
}

// runStep runs one step and reports its outcome. Failures to start or
// finish the command are reported as a failed step with exit code -1
// and the error text appended to the output.
func (e *Executor) runStep(ctx context.Context, workspace, image string, env []string, step protocol.Step) protocol.StepResult {
	if e.config.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.StepTimeout)
		defer cancel()
	}

	output := newLimitedBuffer(e.config.OutputLimit)
	command := shellCommand{
		run:       step.Run,
		workspace: workspace,
		image:     image,
		runtime:   e.config.ContainerRuntime,
		env:       env,
	}

	start := e.clock.Now()
	exitCode, err := runShellCommand(ctx, command, output, e.config.KillGracePeriod)
	duration := clock.Since(e.clock, start)

	result := protocol.StepResult{
		Name:       step.DisplayName(),
		Status:     protocol.StepSuccess,
		ExitCode:   exitCode,
		DurationMS: duration.Milliseconds(),
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("step timed out after %s", e.config.StepTimeout)
		}
		fmt.Fprintf(output, "\nwaterci: %v\n", err)
		result.ExitCode = -1
	}
	if result.ExitCode != 0 {
		result.Status = protocol.StepFailure
	}

	kept := output.Bytes()
	encoded, encoding, err := compressOutput(kept, e.config.OutputCompression)
	if err != nil {
		encoded, encoding = kept, protocol.OutputPlain
	}
	result.Output = encoded
	result.OutputEncoding = encoding
	result.OutputSize = len(kept)
	result.Truncated = output.Truncated()
	return result
}

// Digest identifies a job definition on a repository reference. Two
// requests with the same repository, reference, and job definition
// share a digest.
func Digest(request protocol.JobBuildRequest) string {
	hasher := blake3.New()
	field := func(value string) {
		var length [8]byte
		binary.BigEndian.PutUint64(length[:], uint64(len(value)))
		hasher.Write(length[:])
		hasher.Write([]byte(value))
	}
	field(request.RepoURL)
	field(request.Reference)
	field(request.Job.Name)
	field(request.Job.Image)
	for _, name := range slices.Sorted(maps.Keys(request.Job.Env)) {
		field(name)
		field(request.Job.Env[name])
	}
	for _, step := range request.Job.Steps {
		field(step.Name)
		field(step.Run)
	}
	return hex.EncodeToString(hasher.Sum(nil))
}
