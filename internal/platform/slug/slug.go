package slug

import "strings"

const maxLen = 64

// Make joins parts into a lowercase, dash-separated file-name stem. Runs of
// anything outside [a-z0-9] collapse to one dash; the result is cut at a dash
// once it passes maxLen.
func Make(parts ...string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.Join(parts, " ")) {
		if ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	s := b.String()
	if len(s) > maxLen {
		s = s[:maxLen]
		if i := strings.LastIndexByte(s, '-'); i > 0 {
			s = s[:i]
		}
	}
	if s == "" {
		return "untitled"
	}
	return s
}
