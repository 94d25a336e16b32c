package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/os-autoinst/jobgroupsync/internal/header"
	"github.com/os-autoinst/jobgroupsync/internal/manifest"
)

// Orphans runs the three consistency checks between the file set, the
// manifest and the remote snapshot. All findings are accumulated; the mode
// never stops at the first discrepancy.
func (e *Engine) Orphans(ctx context.Context) error {
	if _, err := e.snapshot(ctx); err != nil {
		return err
	}

	m, err := manifest.Load(e.cfg.Paths.Manifest)
	if err != nil {
		return err
	}

	files, err := listGroupFiles(e.cfg.Paths.GroupsDir)
	if err != nil {
		return err
	}

	// local files not referenced by the manifest
	tracked := m.Files()
	for _, name := range files {
		if _, ok := tracked[name]; !ok {
			path := filepath.Join(e.cfg.Paths.GroupsDir, name)
			e.emitter.Errorf(path, "Found orphaned file: %s", path)
		}
	}

	for _, id := range m.IDs() {
		// manifest ids missing on the server
		if _, ok := e.byID[id]; !ok {
			e.emitter.Errorf(e.cfg.Paths.Manifest,
				"Job group '%d' in %s doesn't exist on the server", id, e.cfg.Paths.Manifest)
		}

		// manifest entries missing their backing file
		path := e.cfg.GroupFilePath(m[id])
		if _, err := os.Stat(path); err != nil {
			e.emitter.Errorf(e.cfg.Paths.Manifest,
				"Job group file '%s' referenced by %s doesn't exist", path, e.cfg.Paths.Manifest)
		}
	}
	return e.emitter.Err()
}

// Headers verifies that every body file starts with its own banner and
// carries it exactly once. Purely local: no remote call is made.
func (e *Engine) Headers() error {
	files, err := listGroupFiles(e.cfg.Paths.GroupsDir)
	if err != nil {
		return err
	}

	for _, name := range files {
		path := filepath.Join(e.cfg.Paths.GroupsDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		text := string(data)

		if !e.header.Has(text, path) {
			e.emitter.Errorf(path,
				"Job group '%s' doesn't have a valid header - expected:\n%s", path, e.header.Render(path))
		}
		if header.CountMarkers(text) > 1 {
			e.emitter.Errorf(path, "Job group '%s' has multiple headers", path)
		}
	}
	return e.emitter.Err()
}

// listGroupFiles returns the YAML file names directly inside dir, sorted.
// Subdirectories and other extensions are ignored.
func listGroupFiles(dir string) ([]string, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var files []string
	for _, dirent := range dirents {
		if dirent.IsDir() {
			continue
		}
		if filepath.Ext(dirent.Name()) == ".yaml" {
			files = append(files, dirent.Name())
		}
	}
	return files, nil
}
