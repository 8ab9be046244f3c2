// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/waterci/executor/lib/executor"
	"github.com/waterci/executor/lib/protocol"
)

// Serve runs the dispatch loop until the session closes. It returns a
// CloseReason with a nil error when the core closed the session, the
// core disconnected between messages, or ctx was cancelled. Any other
// outcome is a *ProtocolError or *ExecutionError and the connection
// must not be used again.
//
// Jobs run synchronously on the calling goroutine. Cancelling ctx
// cancels the running job (through the context passed to the executor)
// and unblocks a pending read.
func (s *Session) Serve(ctx context.Context, jobs executor.Executor) (CloseReason, error) {
	ctx, span := s.tracer.Start(ctx, "executor.session",
		trace.WithAttributes(attribute.String("executor.id", s.id)))
	defer span.End()

	stop := context.AfterFunc(ctx, func() {
		s.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	for {
		s.logger.DebugContext(ctx, "waiting on message from core")
		message, err := s.readMessage()
		if err != nil {
			if ctx.Err() != nil {
				return s.interrupted(ctx)
			}
			reason, err := classifyReadError(err)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "protocol violation")
				return reason, err
			}
			s.logger.WarnContext(ctx, "core has disconnected")
			return reason, nil
		}

		closed, err := s.dispatch(ctx, message, jobs)
		if err != nil {
			if ctx.Err() != nil {
				return s.interrupted(ctx)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return ReasonNone, err
		}
		if closed {
			return ClosedByCore, nil
		}
	}
}

func (s *Session) interrupted(ctx context.Context) (CloseReason, error) {
	s.logger.WarnContext(ctx, "session interrupted", "cause", context.Cause(ctx))
	return Interrupted, nil
}

// dispatch handles one message in the Idle state. It reports whether the
// message closed the session.
func (s *Session) dispatch(ctx context.Context, message protocol.Message, jobs executor.Executor) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "executor.dispatch",
		trace.WithAttributes(attribute.String("message.kind", string(message.Kind))))
	defer span.End()

	s.logger.DebugContext(ctx, "got message from core", "message", message.String())

	if err := message.Validate(); err != nil {
		return false, &ProtocolError{Op: "dispatch", Kind: message.Kind, Err: err}
	}

	switch message.Kind {
	case protocol.KindBuildRequest:
		return false, s.runBuild(ctx, message.Build, jobs)

	case protocol.KindStatusQuery:
		return false, s.send(protocol.StatusResponse(protocol.StatusAvailable))

	case protocol.KindCloseConnection:
		// The id is advisory; a mismatch is logged but still honored.
		if message.ID != s.id {
			s.logger.WarnContext(ctx, "close_connection names another executor, closing anyway",
				"requested_id", message.ID)
		}
		s.logger.InfoContext(ctx, "core closed the connection")
		return true, nil

	default:
		return false, &ProtocolError{
			Op:   "dispatch",
			Kind: message.Kind,
			Err:  fmt.Errorf("%s is not valid after registration", message.Kind),
		}
	}
}

// runBuild executes the jobs of build in order, sending each result
// before starting the next job. The first executor error aborts the
// build.
func (s *Session) runBuild(ctx context.Context, build *protocol.BuildRequest, jobs executor.Executor) error {
	requests := build.JobRequests()
	s.logger.InfoContext(ctx, "build request received",
		"repo_url", build.RepoURL,
		"reference", build.Reference,
		"jobs", len(requests),
	)

	for index, request := range requests {
		result, err := s.runJob(ctx, request, jobs)
		if err != nil {
			return &ExecutionError{Job: request.Job.Name, Index: index, Err: err}
		}
		if err := s.send(protocol.JobResultMessage(result)); err != nil {
			return err
		}
	}
	return nil
}

// runJob calls the executor for one job inside its own span.
func (s *Session) runJob(ctx context.Context, request protocol.JobBuildRequest, jobs executor.Executor) (protocol.JobResult, error) {
	ctx, span := s.tracer.Start(ctx, "executor.job", trace.WithAttributes(
		attribute.String("job.name", request.Job.Name),
		attribute.String("repo.url", request.RepoURL),
		attribute.String("repo.reference", request.Reference),
	))
	defer span.End()

	logger := s.logger.With("job", request.Job.Name)
	logger.InfoContext(ctx, "executing job", "steps", len(request.Job.Steps))

	result, err := jobs.Execute(ctx, request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "job could not be executed", "error", err)
		return protocol.JobResult{}, err
	}
	if result.Job == "" {
		result.Job = request.Job.Name
	}

	span.SetAttributes(attribute.String("job.status", string(result.Status)))
	logger.InfoContext(ctx, "job finished",
		"status", result.Status,
		"duration_ms", result.DurationMS,
	)
	return result, nil
}
