// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the messages exchanged between an executor
// and the core scheduler.
//
// Every message on the connection is a [Message]: a single struct
// discriminated by [Kind], with the variant's payload in an optional
// field. The exchange is strictly half-duplex:
//
//	executor                       core
//	   |-- register_request ------->|
//	   |<------- register_response --|   (assigns the executor id)
//	   |<------- build_request ------|
//	   |-- job_result (job 1) ----->|
//	   |-- job_result (job N) ----->|
//	   |<------- status_query -------|
//	   |-- status_response -------->|
//	   |<------- close_connection ---|
//
// A [BuildRequest] is never executed as a unit. [BuildRequest.JobRequests]
// splits it into one [JobBuildRequest] per job, in the order the core
// listed them, and each job produces exactly one [JobResult].
//
// This package has no dependencies on the transport or the codec; the
// struct tags name the fields for both wire formats supported by
// lib/codec.
package protocol
