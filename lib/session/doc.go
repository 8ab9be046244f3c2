// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements the executor side of the core protocol:
// the registration handshake, the dispatch loop, and the classification
// of read failures.
//
// A session's life is:
//
//  1. [Dial] opens the transport connection ([ConnectError] on failure)
//     and runs [Handshake]: send register_request, read exactly one
//     message, require register_response with an id ([HandshakeError]
//     otherwise). Nothing else may be written before this completes.
//  2. [Session.Serve] loops in the Idle state: read one message, act on
//     it, write any response, repeat. A build request runs its jobs one
//     at a time through the [executor.Executor] and sends each job's
//     result before starting the next. A status query is answered with
//     "available". A close_connection ends the loop.
//  3. The loop ends in Closed with a [CloseReason] and a nil error
//     (orderly close, peer disconnect, or local interruption), or with
//     one of the fatal errors: [ProtocolError] or [ExecutionError].
//
// Everything happens on the caller's goroutine. There is one connection
// and at most one request in flight, so the session needs no locks.
// Neither reads nor executor calls time out: a hung core or a hung job
// blocks the loop until the process is interrupted. The only bound
// available is the optional handshake timeout.
//
// # Disconnect classification
//
// A read failure ends the session gracefully only when the transport
// reports the peer went away (EOF, connection reset, connection
// aborted) before any byte of the next message arrived. The same errors
// in the middle of a message mean the core died mid-write or sent a
// truncated frame, and are protocol errors like any other decode
// failure.
//
// The session never retries. Reconnecting is the caller's decision.
package session
