package workbook

import (
	"html"
	"net/url"
	"strings"
)

// DecodeValue undoes the layers of escaping that chat transports apply to
// tool arguments before they reach us: backslash escape sequences, HTML
// entities, then URL percent-encoding. Each layer is best-effort; input
// that is not encoded in a given layer passes through unchanged.
func DecodeValue(value string) string {
	value = unescapeBackslashes(value)
	value = html.UnescapeString(value)
	if decoded, err := url.QueryUnescape(value); err == nil {
		value = decoded
	}
	return value
}

// unescapeBackslashes resolves the common C-style escape sequences models
// tend to leave in string arguments. Unknown sequences keep the backslash.
func unescapeBackslashes(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '"':
			b.WriteByte('"')
		case '\'':
			b.WriteByte('\'')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
