// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"fmt"
)

// Kind discriminates the variants of Message.
type Kind string

const (
	// KindRegisterRequest is the executor's first message on a new
	// connection: "assign me an identity". No payload.
	KindRegisterRequest Kind = "register_request"

	// KindRegisterResponse is the core's answer to a register request.
	// Carries the executor id in Message.ID.
	KindRegisterResponse Kind = "register_response"

	// KindBuildRequest asks the executor to run every job of a
	// repository checkout. Carries Message.Build.
	KindBuildRequest Kind = "build_request"

	// KindJobResult reports the outcome of one job. Carries
	// Message.Result.
	KindJobResult Kind = "job_result"

	// KindStatusQuery is a health probe from the core. No payload.
	KindStatusQuery Kind = "status_query"

	// KindStatusResponse answers a status query. Carries
	// Message.Status.
	KindStatusResponse Kind = "status_response"

	// KindCloseConnection asks the executor to end the session. Carries
	// the id the core believes it is talking to in Message.ID.
	KindCloseConnection Kind = "close_connection"
)

// Known reports whether k is one of the defined kinds.
func (k Kind) Known() bool {
	switch k {
	case KindRegisterRequest, KindRegisterResponse, KindBuildRequest, KindJobResult,
		KindStatusQuery, KindStatusResponse, KindCloseConnection:
		return true
	}
	return false
}

// ExecutorStatus is the executor's self-reported availability. The set
// is open: cores must tolerate values they do not recognize.
type ExecutorStatus string

const (
	// StatusAvailable means the executor is idle and can accept work.
	// It is the only status this executor reports: a status query is
	// only ever read between build requests.
	StatusAvailable ExecutorStatus = "available"
)

// Message is one protocol message. Exactly the fields belonging to Kind
// are set; Validate enforces that the required ones are present.
type Message struct {
	// Kind selects the variant.
	Kind Kind `cbor:"kind" msgpack:"kind"`

	// ID is the executor identity. Set on register_response (the
	// assigned id) and close_connection (the id being closed).
	ID string `cbor:"id,omitempty" msgpack:"id,omitempty"`

	// Build is the payload of a build_request.
	Build *BuildRequest `cbor:"build,omitempty" msgpack:"build,omitempty"`

	// Result is the payload of a job_result.
	Result *JobResult `cbor:"result,omitempty" msgpack:"result,omitempty"`

	// Status is the payload of a status_response.
	Status ExecutorStatus `cbor:"status,omitempty" msgpack:"status,omitempty"`
}

// RegisterRequest returns the executor's registration message.
func RegisterRequest() Message {
	return Message{Kind: KindRegisterRequest}
}

// RegisterResponse returns the core's registration answer binding id.
func RegisterResponse(id string) Message {
	return Message{Kind: KindRegisterResponse, ID: id}
}

// Build wraps request in a build_request message.
func Build(request BuildRequest) Message {
	return Message{Kind: KindBuildRequest, Build: &request}
}

// JobResultMessage wraps result in a job_result message.
func JobResultMessage(result JobResult) Message {
	return Message{Kind: KindJobResult, Result: &result}
}

// StatusQuery returns a status probe.
func StatusQuery() Message {
	return Message{Kind: KindStatusQuery}
}

// StatusResponse returns a status answer reporting status.
func StatusResponse(status ExecutorStatus) Message {
	return Message{Kind: KindStatusResponse, Status: status}
}

// CloseConnection returns a session termination request for id.
func CloseConnection(id string) Message {
	return Message{Kind: KindCloseConnection, ID: id}
}

// Validate checks that the payload required by Kind is present. It does
// not check whether the kind is legal in the receiver's current state;
// that is the session's job.
func (m Message) Validate() error {
	switch m.Kind {
	case "":
		return errors.New("message has no kind")
	case KindRegisterRequest, KindStatusQuery, KindCloseConnection:
		return nil
	case KindRegisterResponse:
		if m.ID == "" {
			return errors.New("register_response has an empty id")
		}
	case KindBuildRequest:
		if m.Build == nil {
			return errors.New("build_request has no build payload")
		}
	case KindJobResult:
		if m.Result == nil {
			return errors.New("job_result has no result payload")
		}
	case KindStatusResponse:
		if m.Status == "" {
			return errors.New("status_response has no status")
		}
	default:
		return fmt.Errorf("unknown message kind %q", m.Kind)
	}
	return nil
}

// String renders a short description for logs. Payloads are summarized,
// never dumped: a build request can carry arbitrarily many jobs.
func (m Message) String() string {
	switch m.Kind {
	case KindRegisterResponse, KindCloseConnection:
		return fmt.Sprintf("%s(id=%s)", m.Kind, m.ID)
	case KindBuildRequest:
		if m.Build == nil {
			return string(m.Kind)
		}
		return fmt.Sprintf("%s(repo=%s ref=%s jobs=%d)", m.Kind,
			m.Build.RepoURL, m.Build.Reference, len(m.Build.RepoConfig.Jobs))
	case KindJobResult:
		if m.Result == nil {
			return string(m.Kind)
		}
		return fmt.Sprintf("%s(job=%s status=%s)", m.Kind, m.Result.Job, m.Result.Status)
	case KindStatusResponse:
		return fmt.Sprintf("%s(%s)", m.Kind, m.Status)
	default:
		return string(m.Kind)
	}
}
