package header

import "strings"

// MarkerTitle is the fixed notice line every stamped header contains.
// It is also the substring used to detect duplicate stamping.
const MarkerTitle = "This file is managed in GIT!"

// DefaultProjectURL is the repository URL embedded in rendered headers.
const DefaultProjectURL = "https://github.com/os-autoinst/opensuse-jobgroups"

// separator is the YAML document separator some files legitimately carry
// in front of the banner.
const separator = "---\n"

// minWidth is the minimum banner width in border characters.
const minWidth = 58

// Codec renders and recognizes the warning banner stamped at the top of
// every tracked job group file. Rendering is a pure function of the file
// path: two invocations with the same path produce byte-identical output.
type Codec struct {
	projectURL string
}

// NewCodec creates a codec. An empty projectURL selects DefaultProjectURL.
func NewCodec(projectURL string) *Codec {
	if projectURL == "" {
		projectURL = DefaultProjectURL
	}
	return &Codec{projectURL: projectURL}
}

// Render returns the banner for the given file path, without a trailing
// newline.
func (c *Codec) Render(filename string) string {
	content := []string{
		"WARNING",
		"",
		MarkerTitle,
		"Any changes via the openQA WebUI will get overwritten!",
		"",
		c.projectURL,
		filename,
	}

	width := minWidth
	for _, line := range content {
		if len(line)+4 > width {
			width = len(line) + 4
		}
	}

	border := strings.Repeat("#", width)
	lines := make([]string, 0, len(content)+2)
	lines = append(lines, border)
	lines = append(lines, content...)
	lines = append(lines, border)

	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		// Center with the shorter run of spaces on the left.
		pad := width - len(line)
		b.WriteByte('#')
		b.WriteString(strings.Repeat(" ", pad/2))
		b.WriteString(line)
		b.WriteString(strings.Repeat(" ", pad-pad/2))
		b.WriteByte('#')
	}
	return b.String()
}

// Has reports whether text begins with the banner for filename, either
// directly or after a single leading document separator line.
func (c *Codec) Has(text, filename string) bool {
	banner := c.Render(filename)
	return strings.HasPrefix(text, banner) || strings.HasPrefix(text, separator+banner)
}

// Stamp returns text with the banner for filename prepended, unless the
// text already starts with it. Stamping is idempotent.
func (c *Codec) Stamp(text, filename string) string {
	if c.Has(text, filename) {
		return text
	}
	return c.Render(filename) + "\n" + text
}

// CountMarkers counts occurrences of the banner's notice line in text.
// A count above one means a file was stamped repeatedly.
func CountMarkers(text string) int {
	return strings.Count(text, MarkerTitle)
}
