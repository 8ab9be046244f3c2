// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
	"strconv"
)

// Dialer opens connections to the core.
type Dialer interface {
	// DialContext opens a connection to the core at address
	// ("host:port").
	DialContext(ctx context.Context, address string) (net.Conn, error)
}

// Address formats a host and port as a dialable "host:port" string,
// bracketing IPv6 literals.
func Address(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
