// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/waterci/executor/lib/protocol"
	"github.com/waterci/executor/transport"
)

// Dial connects to the core at address and registers. On any failure
// the connection is closed and no session is returned; nothing is
// retried.
func Dial(ctx context.Context, dialer transport.Dialer, address string, options Options) (*Session, error) {
	conn, err := dialer.DialContext(ctx, address)
	if err != nil {
		return nil, &ConnectError{Address: address, Err: err}
	}

	session, err := Handshake(ctx, conn, options)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return session, nil
}

// Handshake registers over an already open connection: it sends
// register_request and requires the next message to be a
// register_response carrying an id. The caller keeps ownership of conn
// if Handshake fails.
func Handshake(ctx context.Context, conn net.Conn, options Options) (*Session, error) {
	session, err := newSession(conn, options)
	if err != nil {
		return nil, err
	}

	// Cancelling ctx unblocks the response read below.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	session.logger.DebugContext(ctx, "connected to core, registering",
		"remote", conn.RemoteAddr().String(),
		"format", session.format,
	)
	if err := session.send(protocol.RegisterRequest()); err != nil {
		return nil, &HandshakeError{Err: fmt.Errorf("sending register_request: %w", err)}
	}

	if options.HandshakeTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(options.HandshakeTimeout))
	}
	response, err := session.readMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &HandshakeError{Err: err}
	}
	if options.HandshakeTimeout > 0 {
		conn.SetReadDeadline(time.Time{})
	}

	if response.Kind != protocol.KindRegisterResponse {
		return nil, &HandshakeError{
			Received: response.Kind,
			Err:      errors.New("expected register_response"),
		}
	}
	if err := response.Validate(); err != nil {
		return nil, &HandshakeError{Received: response.Kind, Err: err}
	}

	session.id = response.ID
	session.logger = session.logger.With("executor_id", session.id)
	session.logger.InfoContext(ctx, "registered with core")
	return session, nil
}
