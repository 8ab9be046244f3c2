// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

// JobStatus is the overall outcome of a job.
type JobStatus string

const (
	JobSuccess JobStatus = "success"
	JobFailure JobStatus = "failure"
)

// StepStatus is the outcome of one step.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepFailure StepStatus = "failure"

	// StepSkipped marks steps after the first failure in a job.
	StepSkipped StepStatus = "skipped"
)

// OutputEncoding names the compression applied to StepResult.Output.
type OutputEncoding string

const (
	OutputPlain OutputEncoding = "none"
	OutputLZ4   OutputEncoding = "lz4"
	OutputZstd  OutputEncoding = "zstd"
)

// JobResult is the outcome of one job. The session only looks at
// Status; everything else is metadata for the core.
type JobResult struct {
	// Job is the name of the job this result belongs to.
	Job string `cbor:"job" msgpack:"job"`

	// RunID uniquely identifies this execution of the job.
	RunID string `cbor:"run_id,omitempty" msgpack:"run_id,omitempty"`

	// Digest is a content hash of the repository reference and job
	// definition. Identical job definitions on the same reference share
	// a digest across runs.
	Digest string `cbor:"digest,omitempty" msgpack:"digest,omitempty"`

	// Commit is the commit the reference resolved to at checkout.
	Commit string `cbor:"commit,omitempty" msgpack:"commit,omitempty"`

	Status JobStatus `cbor:"status" msgpack:"status"`

	// StartedAtMS is the Unix time in milliseconds the job started.
	StartedAtMS int64 `cbor:"started_at_ms,omitempty" msgpack:"started_at_ms,omitempty"`

	DurationMS int64 `cbor:"duration_ms" msgpack:"duration_ms"`

	Steps []StepResult `cbor:"steps,omitempty" msgpack:"steps,omitempty"`
}

// Succeeded reports whether the job completed successfully.
func (r JobResult) Succeeded() bool {
	return r.Status == JobSuccess
}

// StepResult is the outcome of one step of a job.
type StepResult struct {
	Name   string     `cbor:"name" msgpack:"name"`
	Status StepStatus `cbor:"status" msgpack:"status"`

	// ExitCode is the command's exit status, or -1 when the command
	// could not be run or was killed. Zero for skipped steps.
	ExitCode int `cbor:"exit_code" msgpack:"exit_code"`

	DurationMS int64 `cbor:"duration_ms" msgpack:"duration_ms"`

	// Output is the combined stdout and stderr, encoded per
	// OutputEncoding.
	Output []byte `cbor:"output,omitempty" msgpack:"output,omitempty"`

	OutputEncoding OutputEncoding `cbor:"output_encoding,omitempty" msgpack:"output_encoding,omitempty"`

	// OutputSize is the length of Output before compression.
	OutputSize int `cbor:"output_size,omitempty" msgpack:"output_size,omitempty"`

	// Truncated is set when the command produced more output than the
	// executor keeps. Output then holds the beginning of it.
	Truncated bool `cbor:"truncated,omitempty" msgpack:"truncated,omitempty"`
}
