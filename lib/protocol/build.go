// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

// BuildRequest asks the executor to run every job defined for one
// checkout of a repository.
type BuildRequest struct {
	// RepoURL is the clone URL of the repository.
	RepoURL string `cbor:"repo_url" msgpack:"repo_url"`

	// Reference is the branch, tag, or commit to check out.
	Reference string `cbor:"reference" msgpack:"reference"`

	// RepoConfig is the repository's CI configuration as resolved by
	// the core.
	RepoConfig RepoConfig `cbor:"repo_config" msgpack:"repo_config"`
}

// RepoConfig is the CI configuration of a repository.
type RepoConfig struct {
	// Jobs run in this order, one at a time.
	Jobs []Job `cbor:"jobs" msgpack:"jobs"`
}

// Job is one unit of build work within a checkout.
type Job struct {
	// Name identifies the job within its repository configuration.
	Name string `cbor:"name" msgpack:"name"`

	// Image is the container image the steps run in. Empty means the
	// executor's default (which may be the host shell).
	Image string `cbor:"image,omitempty" msgpack:"image,omitempty"`

	// Env is added to the environment of every step.
	Env map[string]string `cbor:"env,omitempty" msgpack:"env,omitempty"`

	// Steps run sequentially. The first failing step fails the job.
	Steps []Step `cbor:"steps" msgpack:"steps"`
}

// Step is a single shell command within a job.
type Step struct {
	// Name labels the step in results. Defaults to the command.
	Name string `cbor:"name,omitempty" msgpack:"name,omitempty"`

	// Run is passed to "sh -c".
	Run string `cbor:"run" msgpack:"run"`
}

// DisplayName returns the step's name, falling back to its command.
func (s Step) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Run
}

// JobBuildRequest is the unit handed to an executor: the shared
// repository context of a BuildRequest paired with one of its jobs.
// It is derived locally and never sent on the wire.
type JobBuildRequest struct {
	RepoURL   string
	Reference string
	Job       Job
}

// JobRequests pairs the request's repository context with each job, in
// the order the jobs are listed.
func (r *BuildRequest) JobRequests() []JobBuildRequest {
	requests := make([]JobBuildRequest, 0, len(r.RepoConfig.Jobs))
	for _, job := range r.RepoConfig.Jobs {
		requests = append(requests, JobBuildRequest{
			RepoURL:   r.RepoURL,
			Reference: r.Reference,
			Job:       job,
		})
	}
	return requests
}
