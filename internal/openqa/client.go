// Package openqa talks to an openQA instance through the openqa-cli
// binary. The transport is deliberately a subprocess: openqa-cli owns the
// request signing, and its JSON output is the interface.
package openqa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
)

// Client performs remote openQA API operations.
type Client interface {
	// ListJobGroups returns every job group on the server, ascending by id.
	ListJobGroups(ctx context.Context) ([]JobGroup, error)
	// ApplyTemplate posts the template file for one job group. With
	// preview set the server validates without committing.
	ApplyTemplate(ctx context.Context, id int, templatePath string, preview bool) (*ApplyResult, error)
}

// ShellClient implements Client by shelling out to openqa-cli.
type ShellClient struct {
	binary string
	host   string
	schema string
	creds  *CredentialSource
	logger *slog.Logger
}

// NewShellClient creates a client that uses the given openqa-cli binary.
func NewShellClient(binary, host, schema string, creds *CredentialSource, logger *slog.Logger) *ShellClient {
	return &ShellClient{
		binary: binary,
		host:   host,
		schema: schema,
		creds:  creds,
		logger: logger,
	}
}

// ListJobGroups fetches the full job group directory in a single request.
func (c *ShellClient) ListJobGroups(ctx context.Context) ([]JobGroup, error) {
	output, err := c.api(ctx, "job_groups")
	if err != nil {
		return nil, err
	}

	var groups []JobGroup
	if err := json.Unmarshal(output, &groups); err != nil {
		return nil, fmt.Errorf("%s returned an unparseable job group listing: %w: %s",
			c.binary, err, excerpt(output))
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}

// ApplyTemplate posts templatePath for job group id.
func (c *ShellClient) ApplyTemplate(ctx context.Context, id int, templatePath string, preview bool) (*ApplyResult, error) {
	previewArg := "preview=0"
	if preview {
		previewArg = "preview=1"
	}

	output, err := c.api(ctx, "-X", "POST", fmt.Sprintf("job_templates_scheduling/%d", id),
		"schema="+c.schema, previewArg, "--param-file", "template="+templatePath)
	if err != nil {
		return nil, err
	}

	result, err := parseApplyResult(output)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", c.binary, err, excerpt(output))
	}
	return result, nil
}

// api runs a single "openqa-cli api" invocation and returns its stdout.
// A non-zero exit code is tolerated: the server mirrors errors into the
// JSON body, which the caller still needs to inspect.
func (c *ShellClient) api(ctx context.Context, args ...string) ([]byte, error) {
	creds, err := c.creds.Resolve()
	if err != nil {
		return nil, err
	}

	cmdArgs := []string{"api", "--host", c.host, "-q"}
	cmdArgs = append(cmdArgs, "--apikey", creds.Key, "--apisecret", creds.Secret)
	cmdArgs = append(cmdArgs, args...)

	cmd := exec.CommandContext(ctx, c.binary, cmdArgs...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			c.logger.Warn("API call exited non-zero",
				"args", strings.Join(args, " "),
				"code", exitErr.ExitCode())
			return output, nil
		}
		return nil, fmt.Errorf("failed to run %s: %w", c.binary, err)
	}
	return output, nil
}

// excerpt shortens raw command output for inclusion in error messages.
func excerpt(output []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(output))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
