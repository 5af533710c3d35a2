package markdown

import "strings"

// Block is a region of a note owned by pledge, delimited by HTML comments so
// it stays invisible in rendered Markdown.
type Block struct {
	Name string
}

func (b Block) Start() string { return "<!-- pledge:" + b.Name + ":start -->" }
func (b Block) End() string   { return "<!-- pledge:" + b.Name + ":end -->" }

// Replace swaps the block's content for generated, appending the block when
// the body has none yet.
func (b Block) Replace(body, generated string) string {
	block := b.Start() + "\n" + strings.TrimRight(generated, "\n") + "\n" + b.End()
	if start, end, ok := b.bounds(body); ok {
		return body[:start] + block + body[end:]
	}
	switch {
	case strings.TrimSpace(body) == "":
		return block + "\n"
	case strings.HasSuffix(body, "\n"):
		return body + "\n" + block + "\n"
	default:
		return body + "\n\n" + block + "\n"
	}
}

// Content returns what is currently inside the block.
func (b Block) Content(body string) (string, bool) {
	start, end, ok := b.bounds(body)
	if !ok {
		return "", false
	}
	inner := body[start+len(b.Start()) : end-len(b.End())]
	return strings.Trim(inner, "\n"), true
}

func (b Block) bounds(body string) (int, int, bool) {
	start := strings.Index(body, b.Start())
	if start < 0 {
		return 0, 0, false
	}
	rel := strings.Index(body[start:], b.End())
	if rel < 0 {
		return 0, 0, false
	}
	return start, start + rel + len(b.End()), true
}
