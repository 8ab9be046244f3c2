// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

package shell

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/waterci/executor/lib/clock"
	"github.com/waterci/executor/lib/protocol"
	"github.com/waterci/executor/lib/testutil"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestExecutor(t *testing.T, modify func(*Config)) (*Executor, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "workspaces")
	config := Config{
		WorkspaceRoot:     root,
		OutputLimit:       1 << 20,
		OutputCompression: protocol.OutputZstd,
	}
	if modify != nil {
		modify(&config)
	}
	fake := clock.Fake(epoch)
	fake.SetStep(time.Second)
	return New(config, slog.New(slog.DiscardHandler), fake), root
}

func request(repoURL string, steps ...string) protocol.JobBuildRequest {
	job := protocol.Job{Name: "test-job"}
	for _, run := range steps {
		job.Steps = append(job.Steps, protocol.Step{Run: run})
	}
	return protocol.JobBuildRequest{RepoURL: repoURL, Job: job}
}

func stepOutput(t *testing.T, step protocol.StepResult) string {
	t.Helper()
	output, err := decodeOutput(step)
	if err != nil {
		t.Fatalf("decodeOutput(%s): %v", step.Name, err)
	}
	return string(output)
}

func TestExecuteSuccess(t *testing.T) {
	source, commit := testutil.GitRepository(t, map[string]string{"README": "hello from the repo\n"})
	executor, root := newTestExecutor(t, nil)

	result, err := executor.Execute(t.Context(), request("file://"+source, "cat README", "echo done >&2"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if result.Status != protocol.JobSuccess {
		t.Errorf("Status = %s, want success", result.Status)
	}
	if result.Job != "test-job" {
		t.Errorf("Job = %q", result.Job)
	}
	if result.Commit != commit {
		t.Errorf("Commit = %q, want %q", result.Commit, commit)
	}
	if result.RunID == "" || len(result.Digest) != 64 {
		t.Errorf("RunID = %q, Digest = %q", result.RunID, result.Digest)
	}
	if result.StartedAtMS != epoch.UnixMilli() {
		t.Errorf("StartedAtMS = %d, want %d", result.StartedAtMS, epoch.UnixMilli())
	}
	// Six clock reads one second apart: job start, two per step, job end.
	if result.DurationMS != 5000 {
		t.Errorf("DurationMS = %d, want 5000", result.DurationMS)
	}

	if len(result.Steps) != 2 {
		t.Fatalf("got %d step results, want 2", len(result.Steps))
	}
	if got := stepOutput(t, result.Steps[0]); got != "hello from the repo\n" {
		t.Errorf("step 0 output = %q", got)
	}
	if got := stepOutput(t, result.Steps[1]); got != "done\n" {
		t.Errorf("step 1 output = %q (stderr should be captured)", got)
	}
	for _, step := range result.Steps {
		if step.Status != protocol.StepSuccess || step.ExitCode != 0 || step.DurationMS != 1000 {
			t.Errorf("step %s = %+v", step.Name, step)
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("reading workspace root: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace root has %d entries after the job, want 0", len(entries))
	}
}

func TestExecuteFailureSkipsRemainingSteps(t *testing.T) {
	source, _ := testutil.GitRepository(t, map[string]string{"README": "x\n"})
	executor, _ := newTestExecutor(t, nil)

	result, err := executor.Execute(t.Context(), request("file://"+source,
		"true", "echo broken; exit 3", "echo never"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != protocol.JobFailure {
		t.Errorf("Status = %s, want failure", result.Status)
	}

	want := []struct {
		status   protocol.StepStatus
		exitCode int
	}{
		{protocol.StepSuccess, 0},
		{protocol.StepFailure, 3},
		{protocol.StepSkipped, 0},
	}
	if len(result.Steps) != len(want) {
		t.Fatalf("got %d step results, want %d", len(result.Steps), len(want))
	}
	for i, w := range want {
		step := result.Steps[i]
		if step.Status != w.status || step.ExitCode != w.exitCode {
			t.Errorf("step %d = (%s, %d), want (%s, %d)", i, step.Status, step.ExitCode, w.status, w.exitCode)
		}
	}
	if got := stepOutput(t, result.Steps[1]); got != "broken\n" {
		t.Errorf("failed step output = %q", got)
	}
	if result.Steps[2].Name != "echo never" {
		t.Errorf("skipped step name = %q, want the command", result.Steps[2].Name)
	}
}

func TestExecuteEnvironment(t *testing.T) {
	source, commit := testutil.GitRepository(t, map[string]string{"README": "x\n"})
	executor, _ := newTestExecutor(t, nil)

	req := request("file://"+source, `printf '%s %s %s %s' "$GREETING" "$CI" "$WATERCI_JOB" "$WATERCI_COMMIT"`)
	req.Job.Env = map[string]string{"GREETING": "hi"}

	result, err := executor.Execute(t.Context(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := "hi true test-job " + commit
	if got := stepOutput(t, result.Steps[0]); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestExecuteCheckoutFailure(t *testing.T) {
	source, _ := testutil.GitRepository(t, map[string]string{"README": "x\n"})
	executor, _ := newTestExecutor(t, nil)

	if _, err := executor.Execute(t.Context(), request("file://"+filepath.Join(source, "missing"), "true")); err == nil {
		t.Error("Execute succeeded for a missing repository")
	}

	req := request("file://"+source, "true")
	req.Reference = "no-such-branch"
	if _, err := executor.Execute(t.Context(), req); err == nil {
		t.Error("Execute succeeded for an unknown reference")
	}
}

func TestExecuteKeepWorkspaces(t *testing.T) {
	source, _ := testutil.GitRepository(t, map[string]string{"README": "x\n"})
	executor, root := newTestExecutor(t, func(c *Config) { c.KeepWorkspaces = true })

	result, err := executor.Execute(t.Context(), request("file://"+source, "touch built"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	workspace := filepath.Join(root, result.Digest[:16]+"-"+result.RunID[:8])
	if _, err := os.Stat(filepath.Join(workspace, "built")); err != nil {
		t.Errorf("step output file missing from kept workspace: %v", err)
	}
}

func TestExecuteStepTimeout(t *testing.T) {
	source, _ := testutil.GitRepository(t, map[string]string{"README": "x\n"})
	executor, _ := newTestExecutor(t, func(c *Config) { c.StepTimeout = 200 * time.Millisecond })

	result, err := executor.Execute(t.Context(), request("file://"+source, "sleep 30", "echo never"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != protocol.JobFailure {
		t.Errorf("Status = %s, want failure", result.Status)
	}
	step := result.Steps[0]
	if step.ExitCode != -1 || step.Status != protocol.StepFailure {
		t.Errorf("timed out step = (%s, %d), want (failure, -1)", step.Status, step.ExitCode)
	}
	if got := stepOutput(t, step); !strings.Contains(got, "timed out") {
		t.Errorf("output = %q, want a timeout note", got)
	}
	if result.Steps[1].Status != protocol.StepSkipped {
		t.Errorf("step after timeout = %s, want skipped", result.Steps[1].Status)
	}
}

func TestExecuteCancelled(t *testing.T) {
	source, _ := testutil.GitRepository(t, map[string]string{"README": "x\n"})
	executor, _ := newTestExecutor(t, nil)

	ctx, cancel := context.WithCancel(t.Context())
	req := request("file://"+source, "sleep 30")
	done := make(chan error, 1)
	go func() {
		_, err := executor.Execute(ctx, req)
		done <- err
	}()

	time.Sleep(100 * time.Millisecond) //nolint:realclock let the step start
	cancel()
	if err := testutil.RequireReceive(t, done, 10*time.Second, "Execute returning after cancel"); err == nil {
		t.Error("Execute returned no error after cancellation")
	}
}

func TestDigest(t *testing.T) {
	base := request("https://example.com/repo.git", "make")
	base.Reference = "main"

	same := request("https://example.com/repo.git", "make")
	same.Reference = "main"
	if Digest(base) != Digest(same) {
		t.Error("identical requests have different digests")
	}

	variants := map[string]func(*protocol.JobBuildRequest){
		"reference": func(r *protocol.JobBuildRequest) { r.Reference = "dev" },
		"job name":  func(r *protocol.JobBuildRequest) { r.Job.Name = "other" },
		"image":     func(r *protocol.JobBuildRequest) { r.Job.Image = "alpine" },
		"step":      func(r *protocol.JobBuildRequest) { r.Job.Steps[0].Run = "make test" },
		"env":       func(r *protocol.JobBuildRequest) { r.Job.Env = map[string]string{"A": "1"} },
		// Field boundaries are length-prefixed.
		"shifted": func(r *protocol.JobBuildRequest) {
			r.RepoURL = "https://example.com/repo.gitm"
			r.Reference = "ain"
		},
	}
	for name, modify := range variants {
		t.Run(name, func(t *testing.T) {
			variant := request("https://example.com/repo.git", "make")
			variant.Reference = "main"
			modify(&variant)
			if Digest(variant) == Digest(base) {
				t.Errorf("changing %s did not change the digest", name)
			}
		})
	}
}
