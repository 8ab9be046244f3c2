// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// fataler is the subset of testing.TB the helpers need.
type fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive waits for one value from ch, such as the error a fake
// core goroutine reports, and fails the test after timeout.
//
//	err := testutil.RequireReceive(t, coreErrors, 5*time.Second, "core handshake")
func RequireReceive[T any](t fataler, ch <-chan T, timeout time.Duration, what string, args ...any) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("%s: channel closed without a value", fmt.Sprintf(what, args...))
		}
		return v
	case <-time.After(timeout): //nolint:realclock test hang prevention
		t.Fatalf("%s: timed out after %v", fmt.Sprintf(what, args...), timeout)
	}
	panic("unreachable")
}

// RequireClosed waits for a goroutine's done channel to close and fails
// the test after timeout.
//
//	testutil.RequireClosed(t, coreDone, 5*time.Second, "core side finishing")
func RequireClosed(t fataler, ch <-chan struct{}, timeout time.Duration, what string, args ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout): //nolint:realclock test hang prevention
		t.Fatalf("%s: timed out after %v", fmt.Sprintf(what, args...), timeout)
	}
}
