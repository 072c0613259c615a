package content

import "strings"

// DeriveLink builds the shareable link for a newsletter title. The title is
// percent-encoded the way browsers' encodeURIComponent does it, so links
// generated here match the ones already handed out by the web front end.
func DeriveLink(baseURL, title string) string {
	return strings.TrimSuffix(baseURL, "/") + "/?=" + encodeURIComponent(title)
}

const upperHex = "0123456789ABCDEF"

func encodeURIComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if keepUnescaped(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&0x0f])
	}
	return b.String()
}

func keepUnescaped(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
