// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts wall-clock reads so that job timing is
// testable.
//
// Production code takes a [Clock] and is handed [Real]. Tests hand it a
// [FakeClock], whose time only moves when the test says so, so reported
// start times and durations are exact.
//
// This package has no other internal dependencies.
package clock
