package diag

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/os-autoinst/jobgroupsync/internal/openqa"
)

func init() {
	// Keep expected output free of terminal escape sequences.
	color.NoColor = true
}

func TestEncode(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
	}{
		{in: "plain", want: "plain"},
		{in: "50% done", want: "50%25 done"},
		{in: "line1\nline2", want: "line1%0Aline2"},
		{in: "line1\r\nline2", want: "line1%0D%0Aline2"},
		{in: "%\n\r", want: "%25%0A%0D"},
	} {
		if got := Encode(tc.in); got != tc.want {
			t.Errorf("Encode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestErrorf_Plain(t *testing.T) {
	var out, errOut bytes.Buffer
	e := NewEmitter(false, &out, &errOut)

	e.Errorf("job_groups/foo.yaml", "Found orphaned file: %s", "job_groups/foo.yaml")

	if out.Len() != 0 {
		t.Errorf("plain mode must not write to stdout, got %q", out.String())
	}
	if got := errOut.String(); got != "Found orphaned file: job_groups/foo.yaml\n" {
		t.Errorf("stderr = %q", got)
	}
	if !e.Failed() {
		t.Error("emitter should report failure")
	}
	if !errors.Is(e.Err(), ErrDiscrepancies) {
		t.Errorf("Err() = %v", e.Err())
	}
}

func TestErrorf_GitHub(t *testing.T) {
	var out, errOut bytes.Buffer
	e := NewEmitter(true, &out, &errOut)

	e.Errorf("job_groups/foo.yaml", "first\nsecond %d%%", 50)

	if errOut.Len() != 0 {
		t.Errorf("github mode must not write to stderr, got %q", errOut.String())
	}
	want := "::error file=job_groups/foo.yaml::first%0Asecond 50%25\n"
	if got := out.String(); got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}
}

func TestEmitter_CleanRun(t *testing.T) {
	e := NewEmitter(false, &bytes.Buffer{}, &bytes.Buffer{})
	if e.Failed() {
		t.Error("fresh emitter reports failure")
	}
	if err := e.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestShowServerError_Structured(t *testing.T) {
	var out, errOut bytes.Buffer
	e := NewEmitter(false, &out, &errOut)

	result := &openqa.ApplyResult{
		Status: 400,
		Error: openqa.ErrorPayload{Entries: []openqa.ErrorEntry{
			{Path: "/products/foo", Message: "unknown product"},
			{Message: "a bare string problem"},
		}},
	}
	e.ShowServerError(result, "job_groups/foo.yaml")

	got := errOut.String()
	if !strings.Contains(got, "Error 400:\n  YAML Path: /products/foo\n  Message: unknown product") {
		t.Errorf("structured entry not rendered: %q", got)
	}
	if !strings.Contains(got, "Error 400:\na bare string problem") {
		t.Errorf("string entry not rendered: %q", got)
	}
}

func TestShowServerError_Flat(t *testing.T) {
	var out, errOut bytes.Buffer
	e := NewEmitter(false, &out, &errOut)

	result := &openqa.ApplyResult{
		Status: 403,
		Error:  openqa.ErrorPayload{Flat: "api key expired"},
	}
	e.ShowServerError(result, "job_groups/foo.yaml")

	if got := errOut.String(); got != "Error 403: api key expired\n" {
		t.Errorf("stderr = %q", got)
	}
}

func TestShowServerError_GitHubSingleLine(t *testing.T) {
	var out, errOut bytes.Buffer
	e := NewEmitter(true, &out, &errOut)

	result := &openqa.ApplyResult{
		Status: 400,
		Error: openqa.ErrorPayload{Entries: []openqa.ErrorEntry{
			{Path: "/scenarios", Message: "missing machine"},
		}},
	}
	e.ShowServerError(result, "job_groups/foo.yaml")

	got := out.String()
	if strings.Count(got, "\n") != 1 {
		t.Errorf("annotation must be a single line, got %q", got)
	}
	if !strings.HasPrefix(got, "::error file=job_groups/foo.yaml::") {
		t.Errorf("missing annotation prefix: %q", got)
	}
	if !strings.Contains(got, "%0A") {
		t.Errorf("newlines must be escaped: %q", got)
	}
}
