// Package frontmatter renders and parses the YAML metadata block that
// prefixes an editable post document.
package frontmatter

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

const delim = "---"

// Meta is the metadata carried in the front-matter block.
type Meta struct {
	Title string `yaml:"title"`
}

// Document is a parsed post document.
type Document struct {
	// Meta is nil when the document has no (valid) front-matter block.
	Meta *Meta
	// Extra holds any other front-matter keys, preserved for display.
	Extra map[string]any
	Body  string
}

// Title returns the front-matter title, or fallback when absent or empty.
func (d *Document) Title(fallback string) string {
	if d.Meta != nil && d.Meta.Title != "" {
		return d.Meta.Title
	}
	return fallback
}

// Render writes title into a front-matter block followed by body verbatim.
func Render(title, body string) ([]byte, error) {
	fm, err := yaml.Marshal(Meta{Title: title})
	if err != nil {
		return nil, fmt.Errorf("frontmatter: marshal: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(fm) + len(body) + 8)
	buf.WriteString(delim + "\n")
	buf.Write(fm)
	buf.WriteString(delim + "\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// Parse separates the front-matter block (between leading --- delimiters)
// from the body. The body is everything after the closing delimiter line,
// so Parse(Render(t, b)) returns exactly t and b. Without a block, or with
// invalid YAML, the entire content is body.
func Parse(data []byte) *Document {
	whole := &Document{Body: string(data)}

	trimmed := bytes.TrimLeft(data, "\r\n")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return whole
	}
	rest := trimmed[len(delim):]
	// The opening delimiter must end its line.
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 || len(bytes.TrimSpace(rest[:nl])) != 0 {
		return whole
	}
	rest = rest[nl+1:]

	var yamlBlock, body []byte
	switch {
	case bytes.HasPrefix(rest, []byte(delim)):
		// Empty block.
		body = afterLine(rest)
	default:
		idx := bytes.Index(rest, []byte("\n"+delim))
		if idx < 0 {
			return whole
		}
		yamlBlock = rest[:idx+1]
		body = afterLine(rest[idx+1:])
	}

	var raw map[string]any
	if err := yaml.Unmarshal(yamlBlock, &raw); err != nil {
		return whole
	}
	var meta Meta
	if err := yaml.Unmarshal(yamlBlock, &meta); err != nil {
		// A non-string title; keep the body split but drop the title.
		meta = Meta{}
	}
	delete(raw, "title")
	if len(raw) == 0 {
		raw = nil
	}
	return &Document{Meta: &meta, Extra: raw, Body: string(body)}
}

// afterLine returns b after its first line (the delimiter line).
func afterLine(b []byte) []byte {
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return nil
	}
	return b[i+1:]
}
