// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
	"time"
)

// Compile-time interface check.
var _ Dialer = (*TCPDialer)(nil)

// TCPDialer opens TCP connections to the core.
type TCPDialer struct {
	// Timeout is the maximum time to wait for the connection to be
	// established. Zero means no standalone timeout: only the context
	// deadline applies.
	Timeout time.Duration

	// KeepAlive is the TCP keep-alive period. Zero uses the net
	// package default; negative disables keep-alives. A session can
	// sit idle between build requests for hours, and keep-alives are
	// what eventually surface a silently vanished core as a reset.
	KeepAlive time.Duration
}

// DialContext opens a TCP connection to address (host:port).
func (d *TCPDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	return dialer.DialContext(ctx, "tcp", address)
}

// TCPListener accepts TCP connections. It plays the core's side of the
// connection for tests and local tooling.
type TCPListener struct {
	listener net.Listener
}

// NewTCPListener listens on address (e.g., "127.0.0.1:0" for a random
// loopback port).
func NewTCPListener(address string) (*TCPListener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return &TCPListener{listener: listener}, nil
}

// Accept waits for the next connection. Cancelling ctx closes the
// listener, which unblocks a pending Accept.
func (l *TCPListener) Accept(ctx context.Context) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		l.listener.Close()
	})
	defer stop()

	conn, err := l.listener.Accept()
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return conn, err
}

// Address returns the listening address in "host:port" format.
func (l *TCPListener) Address() string {
	return l.listener.Addr().String()
}

// Close stops listening.
func (l *TCPListener) Close() error {
	return l.listener.Close()
}
