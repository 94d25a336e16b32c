// Package manifest handles the job_groups.yaml store: the mapping of
// server-side job group ids to local file name slugs. The manifest is the
// single source of truth for which remote groups the repository tracks.
package manifest

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest maps job group ids to filesystem slugs.
type Manifest map[int]string

// Load reads the manifest from path. An absent file is not an error: the
// first run of a fresh repository starts with an empty manifest.
func Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if m == nil {
		m = Manifest{}
	}
	return m, nil
}

// Save overwrites the store at path with the canonical serialization:
// one entry per line, ids ascending.
func (m Manifest) Save(path string) error {
	var b strings.Builder
	for _, id := range m.IDs() {
		b.WriteString(Line(id, m[id]))
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// Append adds a single entry to the end of the store without rewriting
// existing content. Used under single-id filtering so a partial update
// cannot clobber the rest of the file.
func Append(path string, id int, slug string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open manifest for append: %w", err)
	}
	_, werr := f.WriteString(Line(id, slug) + "\n")
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("failed to append to manifest: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("failed to close manifest: %w", cerr)
	}
	return nil
}

// Line returns the canonical one-entry YAML serialization, without a
// trailing newline. The same form is echoed to stdout by gendb and written
// by Save and Append.
func Line(id int, slug string) string {
	// Marshaling a map[int]string cannot fail.
	out, _ := yaml.Marshal(Manifest{id: slug})
	return strings.TrimSpace(string(out))
}

// IDs returns the manifest's ids in ascending order.
func (m Manifest) IDs() []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Files returns the inverse mapping of expected file names to ids.
func (m Manifest) Files() map[string]int {
	files := make(map[string]int, len(m))
	for id, slug := range m {
		files[FileName(slug)] = id
	}
	return files
}

// FileName returns the file name a slug is stored under.
func FileName(slug string) string {
	return slug + ".yaml"
}

var (
	deprecatedRe = regexp.MustCompile(`(?i)\[deprecated\]|DEPRECATED`)
	underscoreRe = regexp.MustCompile(`_+`)
)

// NormalizeName derives the filesystem slug for a job group display name:
// lowercased, spaces to underscores, punctuation stripped, runs of
// underscores collapsed, and a [deprecated] marker rewritten to an
// uppercase DEPRECATED suffix. Normalizing an already-normalized slug is
// a no-op.
func NormalizeName(name string) string {
	// Hide the deprecation marker behind a sentinel so the uppercase
	// suffix survives the lowercasing below.
	const sentinel = "\x00"
	s := deprecatedRe.ReplaceAllString(name, sentinel)
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	for _, drop := range []string{"(", ")", ":", "/", ",", "+"} {
		s = strings.ReplaceAll(s, drop, "")
	}
	s = strings.ReplaceAll(s, "_-_", "-")
	s = underscoreRe.ReplaceAllString(s, "_")
	return strings.ReplaceAll(s, sentinel, "DEPRECATED")
}
