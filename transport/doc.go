// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport opens the byte stream between an executor and the
// core.
//
// The session layer only needs a reliable, ordered, bidirectional
// stream, so the package exposes a single [Dialer] interface that
// returns a net.Conn. The production implementation, [TCPDialer], dials
// the core's TCP port. [TCPListener] is the matching accept side; the
// executor never listens, but tests and local tooling that stand in for
// the core use it.
//
// There are no retries at this layer. A failed dial is reported to the
// caller unchanged.
package transport
