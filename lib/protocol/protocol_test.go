// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"strings"
	"testing"

	"github.com/waterci/executor/lib/codec"
)

func sampleBuild() BuildRequest {
	return BuildRequest{
		RepoURL:   "https://git.example.com/acme/widgets.git",
		Reference: "refs/heads/main",
		RepoConfig: RepoConfig{Jobs: []Job{
			{Name: "lint", Steps: []Step{{Run: "make lint"}}},
			{Name: "test", Image: "golang:1.25", Env: map[string]string{"CGO_ENABLED": "0"},
				Steps: []Step{{Name: "unit", Run: "go test ./..."}}},
			{Name: "package", Steps: []Step{{Run: "make dist"}}},
		}},
	}
}

func TestJobRequestsPreserveOrderAndContext(t *testing.T) {
	build := sampleBuild()
	requests := build.JobRequests()

	if len(requests) != 3 {
		t.Fatalf("got %d job requests, want 3", len(requests))
	}
	for index, want := range []string{"lint", "test", "package"} {
		request := requests[index]
		if request.Job.Name != want {
			t.Errorf("request %d: job = %q, want %q", index, request.Job.Name, want)
		}
		if request.RepoURL != build.RepoURL {
			t.Errorf("request %d: repo_url = %q, want %q", index, request.RepoURL, build.RepoURL)
		}
		if request.Reference != build.Reference {
			t.Errorf("request %d: reference = %q, want %q", index, request.Reference, build.Reference)
		}
	}
}

func TestJobRequestsEmpty(t *testing.T) {
	build := BuildRequest{RepoURL: "https://git.example.com/empty.git"}
	if requests := build.JobRequests(); len(requests) != 0 {
		t.Errorf("got %d job requests for a build with no jobs", len(requests))
	}
}

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		message Message
		wantErr string
	}{
		{name: "register request", message: RegisterRequest()},
		{name: "register response", message: RegisterResponse("executor-7")},
		{name: "register response without id", message: RegisterResponse(""), wantErr: "empty id"},
		{name: "build request", message: Build(sampleBuild())},
		{name: "build request without payload", message: Message{Kind: KindBuildRequest}, wantErr: "no build payload"},
		// Job contents are the executor's concern; an unusable job fails
		// when it runs, not when it is decoded.
		{name: "build request without repo", message: Build(BuildRequest{})},
		{
			name: "build request with unnamed job",
			message: Build(BuildRequest{RepoURL: "x", RepoConfig: RepoConfig{Jobs: []Job{
				{Name: "a"}, {},
			}}}),
		},
		{name: "job result", message: JobResultMessage(JobResult{Job: "a", Status: JobSuccess})},
		{name: "job result without payload", message: Message{Kind: KindJobResult}, wantErr: "no result payload"},
		{name: "status query", message: StatusQuery()},
		{name: "status response", message: StatusResponse(StatusAvailable)},
		{name: "status response without status", message: Message{Kind: KindStatusResponse}, wantErr: "no status"},
		{name: "close connection", message: CloseConnection("executor-7")},
		{name: "close connection without id", message: CloseConnection("")},
		{name: "missing kind", message: Message{}, wantErr: "no kind"},
		{name: "unknown kind", message: Message{Kind: "reboot"}, wantErr: "unknown message kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.message.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestKindKnown(t *testing.T) {
	for _, kind := range []Kind{
		KindRegisterRequest, KindRegisterResponse, KindBuildRequest, KindJobResult,
		KindStatusQuery, KindStatusResponse, KindCloseConnection,
	} {
		if !kind.Known() {
			t.Errorf("%q.Known() = false", kind)
		}
	}
	if Kind("shutdown").Known() {
		t.Error(`"shutdown".Known() = true`)
	}
}

// TestWireFieldNames pins the field names a core sees, in both formats.
// Decoding into a generic map exercises the tags without depending on
// this package's own decoding.
func TestWireFieldNames(t *testing.T) {
	message := Build(sampleBuild())

	for _, format := range []codec.Format{codec.FormatCBOR, codec.FormatMsgpack} {
		t.Run(string(format), func(t *testing.T) {
			data, err := codec.Marshal(format, message)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			var generic map[string]any
			if err := codec.Unmarshal(format, data, &generic); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}

			if generic["kind"] != "build_request" {
				t.Errorf("kind = %v, want build_request", generic["kind"])
			}
			for _, absent := range []string{"id", "result", "status"} {
				if _, ok := generic[absent]; ok {
					t.Errorf("empty field %q present on the wire", absent)
				}
			}
			build, ok := generic["build"].(map[string]any)
			if !ok {
				t.Fatalf("build = %T, want map", generic["build"])
			}
			for _, field := range []string{"repo_url", "reference", "repo_config"} {
				if _, ok := build[field]; !ok {
					t.Errorf("build payload missing %q", field)
				}
			}
		})
	}
}

// TestEnumTaggedLayoutRejected pins that the envelope is keyed by
// "kind" in both formats. Variant-named layouts (a bare variant string,
// or a single-key map holding the variant's fields) never decode into a
// valid message.
func TestEnumTaggedLayoutRejected(t *testing.T) {
	layouts := map[string]any{
		"unit variant":  "ExecutorRegister",
		"tuple variant": map[string]any{"ExecutorRegisterResponse": []any{"executor-1"}},
	}

	for _, format := range []codec.Format{codec.FormatCBOR, codec.FormatMsgpack} {
		for name, layout := range layouts {
			t.Run(string(format)+"/"+name, func(t *testing.T) {
				data, err := codec.Marshal(format, layout)
				if err != nil {
					t.Fatalf("Marshal: %v", err)
				}
				var decoded Message
				if err := codec.Unmarshal(format, data, &decoded); err != nil {
					return
				}
				if err := decoded.Validate(); err == nil {
					t.Errorf("decoded %+v validated, want error", decoded)
				}
			})
		}

		t.Run(string(format)+"/register request is a keyed map", func(t *testing.T) {
			data, err := codec.Marshal(format, RegisterRequest())
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			var generic map[string]any
			if err := codec.Unmarshal(format, data, &generic); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if len(generic) != 1 || generic["kind"] != "register_request" {
				t.Errorf("register request on the wire = %v, want only kind", generic)
			}
		})
	}
}

func TestMessageRoundtrip(t *testing.T) {
	original := JobResultMessage(JobResult{
		Job:        "test",
		RunID:      "3f7c",
		Status:     JobFailure,
		DurationMS: 1500,
		Steps: []StepResult{
			{Name: "unit", Status: StepFailure, ExitCode: 2, Output: []byte("FAIL\n"), OutputEncoding: OutputPlain, OutputSize: 5},
			{Name: "cover", Status: StepSkipped},
		},
	})

	for _, format := range []codec.Format{codec.FormatCBOR, codec.FormatMsgpack} {
		t.Run(string(format), func(t *testing.T) {
			data, err := codec.Marshal(format, original)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			var decoded Message
			if err := codec.Unmarshal(format, data, &decoded); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if err := decoded.Validate(); err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if decoded.Result.Job != "test" || decoded.Result.Status != JobFailure {
				t.Errorf("decoded result = %+v", decoded.Result)
			}
			if len(decoded.Result.Steps) != 2 || decoded.Result.Steps[0].ExitCode != 2 ||
				string(decoded.Result.Steps[0].Output) != "FAIL\n" {
				t.Errorf("decoded steps = %+v", decoded.Result.Steps)
			}
		})
	}
}

func TestMessageString(t *testing.T) {
	tests := []struct {
		message Message
		want    string
	}{
		{RegisterResponse("x1"), "register_response(id=x1)"},
		{StatusQuery(), "status_query"},
		{StatusResponse(StatusAvailable), "status_response(available)"},
		{Build(sampleBuild()), "build_request(repo=https://git.example.com/acme/widgets.git ref=refs/heads/main jobs=3)"},
		{JobResultMessage(JobResult{Job: "lint", Status: JobSuccess}), "job_result(job=lint status=success)"},
	}
	for _, tt := range tests {
		if got := tt.message.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestStepDisplayName(t *testing.T) {
	if got := (Step{Run: "make"}).DisplayName(); got != "make" {
		t.Errorf("DisplayName() = %q, want command fallback", got)
	}
	if got := (Step{Name: "build", Run: "make"}).DisplayName(); got != "build" {
		t.Errorf("DisplayName() = %q, want name", got)
	}
}
