package openqa

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// writeStubCLI creates a fake openqa-cli that records its arguments and
// prints a canned response.
func writeStubCLI(t *testing.T, dir, response string, exitCode int) (bin, argsFile string) {
	t.Helper()
	argsFile = filepath.Join(dir, "args.txt")
	bin = filepath.Join(dir, "openqa-cli")
	script := "#!/bin/sh\n" +
		"printf '%s\\n' \"$@\" > " + argsFile + "\n" +
		"cat <<'EOF'\n" + response + "\nEOF\n" +
		"exit " + strconv.Itoa(exitCode) + "\n"
	if err := os.WriteFile(bin, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return bin, argsFile
}

func newTestClient(t *testing.T, bin string) *ShellClient {
	t.Helper()
	t.Setenv("APIKEY", "key")
	t.Setenv("APISECRET", "secret")
	creds := NewCredentialSource("openqa.opensuse.org", testLogger())
	return NewShellClient(bin, "openqa.opensuse.org", "JobTemplates-01.yaml", creds, testLogger())
}

func recordedArgs(t *testing.T, argsFile string) []string {
	t.Helper()
	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestListJobGroups(t *testing.T) {
	response := `[{"id":3,"name":"Three","template":null},{"id":1,"name":"One","template":"foo"}]`
	bin, argsFile := writeStubCLI(t, t.TempDir(), response, 0)
	client := newTestClient(t, bin)

	groups, err := client.ListJobGroups(context.Background())
	if err != nil {
		t.Fatalf("ListJobGroups failed: %v", err)
	}

	// Sorted ascending by id regardless of server order.
	if len(groups) != 2 || groups[0].ID != 1 || groups[1].ID != 3 {
		t.Errorf("groups = %+v", groups)
	}
	if groups[0].Template == nil || *groups[0].Template != "foo" {
		t.Error("template for id 1 not decoded")
	}
	if groups[1].Template != nil {
		t.Error("null template should decode as nil")
	}

	args := recordedArgs(t, argsFile)
	for _, want := range []string{"api", "--host", "openqa.opensuse.org", "-q", "--apikey", "key", "--apisecret", "secret", "job_groups"} {
		if !contains(args, want) {
			t.Errorf("argument %q not passed, got %v", want, args)
		}
	}
}

func TestListJobGroups_NonZeroExitStillParsed(t *testing.T) {
	bin, _ := writeStubCLI(t, t.TempDir(), `[{"id":5,"name":"Five","template":null}]`, 1)
	client := newTestClient(t, bin)

	groups, err := client.ListJobGroups(context.Background())
	if err != nil {
		t.Fatalf("non-zero exit should be tolerated, got: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != 5 {
		t.Errorf("groups = %+v", groups)
	}
}

func TestListJobGroups_NonJSONIsFatal(t *testing.T) {
	bin, _ := writeStubCLI(t, t.TempDir(), "<html>Bad Gateway</html>", 0)
	client := newTestClient(t, bin)

	if _, err := client.ListJobGroups(context.Background()); err == nil {
		t.Fatal("expected error for non-JSON listing, got nil")
	}
}

func TestListJobGroups_MissingBinary(t *testing.T) {
	client := newTestClient(t, filepath.Join(t.TempDir(), "does-not-exist"))

	if _, err := client.ListJobGroups(context.Background()); err == nil {
		t.Fatal("expected error for missing binary, got nil")
	}
}

func TestApplyTemplate(t *testing.T) {
	response := `{"error_status":400,"error":[{"path":"/products","message":"bad product"}]}`
	bin, argsFile := writeStubCLI(t, t.TempDir(), response, 1)
	client := newTestClient(t, bin)

	result, err := client.ApplyTemplate(context.Background(), 42, "job_groups/foo.yaml", true)
	if err != nil {
		t.Fatalf("ApplyTemplate failed: %v", err)
	}

	if result.Status != 400 {
		t.Errorf("status = %d", result.Status)
	}
	if len(result.Error.Entries) != 1 || result.Error.Entries[0].Path != "/products" {
		t.Errorf("entries = %+v", result.Error.Entries)
	}

	args := recordedArgs(t, argsFile)
	for _, want := range []string{
		"-X", "POST", "job_templates_scheduling/42",
		"schema=JobTemplates-01.yaml", "preview=1",
		"--param-file", "template=job_groups/foo.yaml",
	} {
		if !contains(args, want) {
			t.Errorf("argument %q not passed, got %v", want, args)
		}
	}
}

func TestApplyTemplate_LivePreviewFlag(t *testing.T) {
	bin, argsFile := writeStubCLI(t, t.TempDir(), `{"changes":"something"}`, 0)
	client := newTestClient(t, bin)

	result, err := client.ApplyTemplate(context.Background(), 7, "job_groups/bar.yaml", false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Changes != "something" {
		t.Errorf("changes = %q", result.Changes)
	}

	args := recordedArgs(t, argsFile)
	if !contains(args, "preview=0") {
		t.Errorf("live push must pass preview=0, got %v", args)
	}
	if contains(args, "preview=1") {
		t.Error("live push must not pass preview=1")
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
