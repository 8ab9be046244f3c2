// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git CLI for the checkouts
// the executor builds from. Every Repository method targets its
// directory via the -C flag, so callers never depend on the process
// working directory.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Repository represents a git working tree at a specific directory.
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting the given directory.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Clone clones url into dir, which must not exist or be empty, and
// returns the resulting repository. The default branch is checked out;
// use Checkout to move to a specific reference.
func Clone(ctx context.Context, url, dir string) (*Repository, error) {
	var stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", "clone", "--quiet", "--", url, dir)
	command.Env = gitEnvironment()
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("git clone %s: %w (stderr: %s)",
			url, err, strings.TrimSpace(stderr.String()))
	}
	return NewRepository(dir), nil
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and included in error messages
// on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Env = gitEnvironment()
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// ResolveCommit returns the full commit hash that reference names.
// Branch names are looked up among the remote-tracking branches of
// origin when no local ref matches, since a fresh clone only has a
// local branch for the remote's default.
func (r *Repository) ResolveCommit(ctx context.Context, reference string) (string, error) {
	candidates := []string{reference}
	if !strings.HasPrefix(reference, "refs/") {
		candidates = append(candidates, "origin/"+reference)
	}

	var firstErr error
	for _, candidate := range candidates {
		output, err := r.Run(ctx, "rev-parse", "--verify", "--quiet", candidate+"^{commit}")
		if err == nil {
			return strings.TrimSpace(output), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return "", fmt.Errorf("resolving %q: %w", reference, firstErr)
}

// Checkout detaches HEAD at reference and returns the commit checked
// out. An empty reference leaves the current checkout in place.
func (r *Repository) Checkout(ctx context.Context, reference string) (string, error) {
	if reference == "" {
		return r.Head(ctx)
	}
	commit, err := r.ResolveCommit(ctx, reference)
	if err != nil {
		return "", err
	}
	if _, err := r.Run(ctx, "checkout", "--quiet", "--detach", commit); err != nil {
		return "", err
	}
	return commit, nil
}

// Head returns the commit hash HEAD points at.
func (r *Repository) Head(ctx context.Context) (string, error) {
	output, err := r.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// gitEnvironment disables interactive credential prompts: a clone that
// needs credentials fails instead of blocking the executor.
func gitEnvironment() []string {
	return append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
}
