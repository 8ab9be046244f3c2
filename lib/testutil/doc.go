// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for WaterCI packages.
//
// [RequireReceive] and [RequireClosed] wait on the channels that fake
// core and executor goroutines report through, with a wall-clock
// timeout so a hung session fails the test instead of the run.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation, such as executor ids handed out by a fake core.
//
// [GitRepository] creates a throwaway local git repository with one
// commit, so executor tests can clone over file:// without network
// access.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
