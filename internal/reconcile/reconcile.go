// Package reconcile implements the five sync modes over three sources of
// truth: the remote job group snapshot, the local manifest, and the local
// file set.
package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/os-autoinst/jobgroupsync/internal/config"
	"github.com/os-autoinst/jobgroupsync/internal/diag"
	"github.com/os-autoinst/jobgroupsync/internal/header"
	"github.com/os-autoinst/jobgroupsync/internal/manifest"
	"github.com/os-autoinst/jobgroupsync/internal/openqa"
)

// emptyScaffold replaces a template the server has never configured.
const emptyScaffold = "---\nproducts: {}\nscenarios: {}\n"

// Options narrow a run to a subset of job groups.
type Options struct {
	// DryRun prevents all writes (local files, manifest, server commits).
	DryRun bool
	// IDFilter restricts processing to one job group id. Zero means all.
	IDFilter int
	// NameFilter restricts processing to one slug or file name.
	NameFilter string
}

// Engine orchestrates the sync modes.
type Engine struct {
	cfg     *config.Config
	client  openqa.Client
	header  *header.Codec
	emitter *diag.Emitter
	logger  *slog.Logger
	out     io.Writer // machine-readable output (gendb echo lines)
	errOut  io.Writer // free-form progress text (push change summaries)
	opts    Options

	// remote snapshot, listed at most once per run
	remote []openqa.JobGroup
	byID   map[int]openqa.JobGroup
}

// NewEngine creates an engine for one invocation.
func NewEngine(cfg *config.Config, client openqa.Client, emitter *diag.Emitter,
	logger *slog.Logger, out, errOut io.Writer, opts Options) *Engine {
	return &Engine{
		cfg:     cfg,
		client:  client,
		header:  header.NewCodec(cfg.Header.ProjectURL),
		emitter: emitter,
		logger:  logger,
		out:     out,
		errOut:  errOut,
		opts:    opts,
	}
}

// snapshot lists the remote job groups, at most once per run. Every mode
// that needs remote state works against this immutable listing.
func (e *Engine) snapshot(ctx context.Context) ([]openqa.JobGroup, error) {
	if e.byID != nil {
		return e.remote, nil
	}

	groups, err := e.client.ListJobGroups(ctx)
	if err != nil {
		return nil, err
	}

	e.remote = groups
	e.byID = make(map[int]openqa.JobGroup, len(groups))
	for _, g := range groups {
		e.byID[g.ID] = g
	}
	return e.remote, nil
}

// entry is one manifest row selected for processing.
type entry struct {
	id   int
	slug string
}

// selected returns the manifest entries to process, ascending by id,
// honoring the id and name filters.
func (e *Engine) selected(m manifest.Manifest) []entry {
	var entries []entry
	for _, id := range m.IDs() {
		slug := m[id]
		if e.opts.IDFilter != 0 && e.opts.IDFilter != id {
			continue
		}
		if !e.matchesName(slug) {
			continue
		}
		entries = append(entries, entry{id: id, slug: slug})
	}
	return entries
}

// matchesName checks the name filter against a slug, accepting the bare
// slug or its file name, with or without a leading directory.
func (e *Engine) matchesName(slug string) bool {
	if e.opts.NameFilter == "" {
		return true
	}
	base := filepath.Base(e.opts.NameFilter)
	return base == slug || base == manifest.FileName(slug)
}

// GenerateManifest rebuilds the manifest from the remote snapshot. Without
// an id filter the store is replaced wholesale: every remote group gets an
// entry and stale local-only entries are dropped. With an id filter only
// that entry is computed and appended, and only if not yet tracked.
// Every processed entry is echoed as its one-line serialization.
func (e *Engine) GenerateManifest(ctx context.Context) error {
	groups, err := e.snapshot(ctx)
	if err != nil {
		return err
	}

	current, err := manifest.Load(e.cfg.Paths.Manifest)
	if err != nil {
		return err
	}

	if e.opts.IDFilter != 0 {
		for _, g := range groups {
			if g.ID != e.opts.IDFilter {
				continue
			}
			slug := manifest.NormalizeName(g.Name)
			fmt.Fprintln(e.out, manifest.Line(g.ID, slug))
			if e.opts.DryRun {
				continue
			}
			if _, tracked := current[g.ID]; tracked {
				e.logger.Info("job group already tracked, not appending", "id", g.ID)
				continue
			}
			if err := manifest.Append(e.cfg.Paths.Manifest, g.ID, slug); err != nil {
				return err
			}
		}
		return nil
	}

	rebuilt := manifest.Manifest{}
	for _, g := range groups {
		slug := manifest.NormalizeName(g.Name)
		rebuilt[g.ID] = slug
		fmt.Fprintln(e.out, manifest.Line(g.ID, slug))
	}

	if e.opts.DryRun {
		e.logger.Info("dry-run, manifest not written", "entries", len(rebuilt))
		return nil
	}
	return rebuilt.Save(e.cfg.Paths.Manifest)
}

// Fetch downloads the template of every tracked job group into its body
// file, stamping the header when missing. Writes are whole-file overwrites
// and byte-idempotent against an unchanged remote snapshot. A manifest id
// absent from the snapshot is reported and the remaining entries are still
// processed.
func (e *Engine) Fetch(ctx context.Context) error {
	if _, err := e.snapshot(ctx); err != nil {
		return err
	}

	m, err := manifest.Load(e.cfg.Paths.Manifest)
	if err != nil {
		return err
	}

	if !e.opts.DryRun {
		if err := os.MkdirAll(e.cfg.Paths.GroupsDir, 0755); err != nil {
			return fmt.Errorf("failed to create groups directory: %w", err)
		}
	}

	for _, ent := range e.selected(m) {
		e.logger.Info("fetching job group", "id", ent.id, "slug", ent.slug)

		group, ok := e.byID[ent.id]
		if !ok {
			e.emitter.Errorf(e.cfg.Paths.Manifest,
				"Job group '%d' in %s doesn't exist on the server", ent.id, e.cfg.Paths.Manifest)
			continue
		}
		if e.opts.DryRun {
			continue
		}

		template := emptyScaffold
		if group.Template != nil {
			template = *group.Template
		}

		path := e.cfg.GroupFilePath(ent.slug)
		if err := os.WriteFile(path, []byte(e.header.Stamp(template, path)), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return e.emitter.Err()
}

// Push submits every tracked body file to the server. In dry-run mode the
// server validates without committing and all errors are accumulated so
// the user sees them at once. In live mode the batch stops at the first
// server error to avoid a partially-applied state.
func (e *Engine) Push(ctx context.Context) error {
	if _, err := e.snapshot(ctx); err != nil {
		return err
	}

	m, err := manifest.Load(e.cfg.Paths.Manifest)
	if err != nil {
		return err
	}

	for _, ent := range e.selected(m) {
		path := e.cfg.GroupFilePath(ent.slug)

		if _, ok := e.byID[ent.id]; !ok {
			e.emitter.Errorf(e.cfg.Paths.Manifest,
				"Job group '%d' in %s doesn't exist on the server", ent.id, e.cfg.Paths.Manifest)
			if !e.opts.DryRun {
				return e.emitter.Err()
			}
			continue
		}

		if e.opts.DryRun {
			e.logger.Info("checking job group", "slug", ent.slug, "id", ent.id)
		} else {
			e.logger.Info("pushing job group", "slug", ent.slug, "id", ent.id)
		}

		result, err := e.client.ApplyTemplate(ctx, ent.id, path, e.opts.DryRun)
		if err != nil {
			return err
		}

		if !result.Error.IsZero() {
			e.emitter.ShowServerError(result, path)
			if !e.opts.DryRun {
				// first committed error halts the batch
				return e.emitter.Err()
			}
			continue
		}

		if result.Changes != "" {
			fmt.Fprintln(e.errOut, "  "+strings.ReplaceAll(result.Changes, "\n", "\n  "))
		}
	}
	return e.emitter.Err()
}
