// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// GitRepository creates a git repository in a temporary directory,
// writes files into it, and commits them on branch "main". It returns
// the repository directory and the full commit hash. The test is
// skipped when no git binary is available.
//
//	dir, commit := testutil.GitRepository(t, map[string]string{"README": "hello\n"})
func GitRepository(t *testing.T, files map[string]string) (string, string) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("creating directory for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}

	runGit(t, dir, "init", "--quiet", "--initial-branch=main")
	runGit(t, dir, "add", "--all")
	runGit(t, dir, "-c", "user.name=test", "-c", "user.email=test@example.invalid",
		"commit", "--quiet", "--allow-empty", "-m", "initial")
	commit := strings.TrimSpace(runGit(t, dir, "rev-parse", "HEAD"))
	return dir, commit
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	cmd.Env = append(os.Environ(), "GIT_CONFIG_GLOBAL=/dev/null", "GIT_CONFIG_NOSYSTEM=1")
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, output)
	}
	return string(output)
}
