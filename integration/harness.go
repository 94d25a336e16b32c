//go:build integration

// Package integration exercises the built jobgroupsync binary end to end
// against a stub openqa-cli, covering the full mode surface without a
// real server.
package integration

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
)

// Harness provides a throwaway repository directory, a stub openqa-cli
// and the binary under test.
type Harness struct {
	t       *testing.T
	Bin     string // jobgroupsync binary
	RepoDir string // working directory for invocations
	stubDir string // directory holding the stub openqa-cli
}

// NewHarness builds the binary once per test and prepares a fresh
// repository directory.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	h := &Harness{
		t:       t,
		RepoDir: t.TempDir(),
		stubDir: t.TempDir(),
	}
	h.Bin = filepath.Join(t.TempDir(), "jobgroupsync")

	build := exec.Command("go", "build", "-o", h.Bin, "github.com/os-autoinst/jobgroupsync/cmd/jobgroupsync")
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("failed to build binary: %v: %s", err, out)
	}
	return h
}

// StubListing installs a stub openqa-cli whose job_groups listing returns
// the given JSON. POST calls answer with postResponse (default: no-op).
func (h *Harness) StubListing(listing, postResponse string) {
	h.t.Helper()
	if postResponse == "" {
		postResponse = "{}"
	}

	listingFile := filepath.Join(h.stubDir, "listing.json")
	postFile := filepath.Join(h.stubDir, "post.json")
	if err := os.WriteFile(listingFile, []byte(listing), 0644); err != nil {
		h.t.Fatal(err)
	}
	if err := os.WriteFile(postFile, []byte(postResponse), 0644); err != nil {
		h.t.Fatal(err)
	}

	script := fmt.Sprintf(`#!/bin/sh
case "$*" in
	*POST*) cat %s ;;
	*) cat %s ;;
esac
`, postFile, listingFile)
	if err := os.WriteFile(filepath.Join(h.stubDir, "openqa-cli"), []byte(script), 0755); err != nil {
		h.t.Fatal(err)
	}
}

// Run invokes the binary in the repository directory and returns stdout,
// stderr and the exit code.
func (h *Harness) Run(args ...string) (stdout, stderr string, exitCode int) {
	h.t.Helper()

	cmd := exec.Command(h.Bin, args...)
	cmd.Dir = h.RepoDir
	cmd.Env = append(os.Environ(),
		"PATH="+h.stubDir+":"+os.Getenv("PATH"),
		"APIKEY=integrationkey",
		"APISECRET=integrationsecret",
	)

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	code := 0
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			h.t.Fatalf("failed to run %s: %v", h.Bin, err)
		}
		code = exitErr.ExitCode()
	}

	h.t.Logf("jobgroupsync %v: exit %s\nstdout:\n%s\nstderr:\n%s",
		args, strconv.Itoa(code), outBuf.String(), errBuf.String())
	return outBuf.String(), errBuf.String(), code
}

// WriteFile writes a file relative to the repository directory.
func (h *Harness) WriteFile(rel, content string) {
	h.t.Helper()
	path := filepath.Join(h.RepoDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		h.t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		h.t.Fatal(err)
	}
}

// ReadFile reads a file relative to the repository directory.
func (h *Harness) ReadFile(rel string) string {
	h.t.Helper()
	data, err := os.ReadFile(filepath.Join(h.RepoDir, rel))
	if err != nil {
		h.t.Fatalf("failed to read %s: %v", rel, err)
	}
	return string(data)
}
