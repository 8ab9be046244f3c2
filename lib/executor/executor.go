// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

// Package executor defines the capability the session hands jobs to.
//
// The session calls [Executor.Execute] once per job, in order, and waits
// for it to return before reading anything else from the core. An
// implementation may do whatever it likes internally (clone, launch a
// container, stream logs) but must present that synchronous boundary.
//
// A job whose commands fail is a successful Execute call returning a
// result with status failure. Execute returns an error only when the job
// could not be run at all; the session treats that as fatal for the
// whole connection. Cancelling ctx is the only way to interrupt a
// running job, and implementations are expected to honor it.
//
// The shell subpackage provides the production implementation.
package executor

import (
	"context"

	"github.com/waterci/executor/lib/protocol"
)

// Executor runs one job.
type Executor interface {
	Execute(ctx context.Context, request protocol.JobBuildRequest) (protocol.JobResult, error)
}

// Func adapts an ordinary function to Executor.
type Func func(ctx context.Context, request protocol.JobBuildRequest) (protocol.JobResult, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, request protocol.JobBuildRequest) (protocol.JobResult, error) {
	return f(ctx, request)
}
