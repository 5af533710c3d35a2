// Package markdown reads and writes Markdown notes with YAML frontmatter and
// tool-managed blocks that sit next to user-written text.
package markdown

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	separator      = "---\n"
	closeSeparator = "\n---\n"
)

// Document is a note split into its frontmatter and body.
type Document struct {
	Meta map[string]any
	Body string
}

// Parse splits content into frontmatter and body. Content without a leading
// separator has empty metadata. Windows line endings are normalised.
func Parse(content string) (Document, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(content, separator) {
		return Document{Meta: map[string]any{}, Body: content}, nil
	}
	rest := strings.TrimPrefix(content, separator)
	var raw, body string
	switch idx := strings.Index(rest, closeSeparator); {
	case strings.HasPrefix(rest, separator):
		body = strings.TrimPrefix(rest, separator)
	case idx >= 0:
		raw, body = rest[:idx], rest[idx+len(closeSeparator):]
	default:
		return Document{}, fmt.Errorf("invalid frontmatter: missing closing separator")
	}
	meta := map[string]any{}
	if err := yaml.Unmarshal([]byte(raw), &meta); err != nil {
		return Document{}, fmt.Errorf("unmarshal frontmatter: %w", err)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return Document{Meta: meta, Body: body}, nil
}

// Merge copies values into the frontmatter, overwriting keys it owns and
// leaving every other key alone.
func (d *Document) Merge(values map[string]any) {
	if d.Meta == nil {
		d.Meta = map[string]any{}
	}
	for k, v := range values {
		d.Meta[k] = v
	}
}

func (d Document) Render() (string, error) {
	meta := d.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal frontmatter: %w", err)
	}
	buf := bytes.Buffer{}
	buf.WriteString(separator)
	buf.Write(raw)
	buf.WriteString(separator)
	if !strings.HasPrefix(d.Body, "\n") {
		buf.WriteString("\n")
	}
	buf.WriteString(d.Body)
	return buf.String(), nil
}
