// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"

	"github.com/waterci/executor/lib/protocol"
)

// CloseReason records why a session ended without error.
type CloseReason int

const (
	// ReasonNone accompanies a fatal error.
	ReasonNone CloseReason = iota

	// ClosedByCore means the core sent close_connection.
	ClosedByCore

	// PeerDisconnected means the core went away while the executor was
	// waiting for its next command.
	PeerDisconnected

	// Interrupted means the caller's context was cancelled.
	Interrupted
)

func (r CloseReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ClosedByCore:
		return "closed by core"
	case PeerDisconnected:
		return "peer disconnected"
	case Interrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("CloseReason(%d)", int(r))
	}
}

// ConnectError is returned when the transport connection to the core
// cannot be established.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connecting to core at %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// HandshakeError is returned when registration does not complete: the
// request could not be sent, the response could not be decoded, or the
// core answered with something other than a valid register_response.
type HandshakeError struct {
	// Received is the kind of the message the core sent, if one was
	// decoded.
	Received protocol.Kind
	Err      error
}

func (e *HandshakeError) Error() string {
	if e.Received != "" {
		return fmt.Sprintf("registration handshake: got %s: %v", e.Received, e.Err)
	}
	return fmt.Sprintf("registration handshake: %v", e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// ProtocolError is a fatal violation of the protocol after registration:
// an undecodable or truncated message, a message that is not legal in
// the Idle state, or a failure writing a response.
type ProtocolError struct {
	// Op is "read", "dispatch", or "write".
	Op string

	// Kind is the message being read or written, when known.
	Kind protocol.Kind

	Err error
}

func (e *ProtocolError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("protocol violation (%s %s): %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("protocol violation (%s): %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ExecutionError is returned when the executor could not run a job. The
// jobs after it in the same build request are not attempted and no
// result is sent for it.
type ExecutionError struct {
	Job string

	// Index is the job's position in the build request.
	Index int

	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("executing job %q (index %d): %v", e.Job, e.Index, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// readError is a failed read of the next message.
type readError struct {
	err error

	// started is set when at least one byte of the message had been
	// received before the failure.
	started bool
}

func (e *readError) Error() string {
	if e.started {
		return fmt.Sprintf("reading message (partially received): %v", e.err)
	}
	return fmt.Sprintf("reading message: %v", e.err)
}

func (e *readError) Unwrap() error { return e.err }

// isDisconnect reports whether err is the transport telling us the peer
// is gone.
func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, unix.ECONNRESET) ||
		errors.Is(err, unix.ECONNABORTED)
}

// classifyReadError decides what a failed read means. A disconnect
// between messages is a graceful end of the session; anything else is
// a protocol error.
func classifyReadError(err error) (CloseReason, error) {
	var failure *readError
	if errors.As(err, &failure) && !failure.started && isDisconnect(failure.err) {
		return PeerDisconnected, nil
	}
	return ReasonNone, &ProtocolError{Op: "read", Err: err}
}
