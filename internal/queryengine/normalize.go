package queryengine

import (
	"strings"
)

// Normalize strips `--` line comments and `/* */` block comments (nesting
// is not supported; the first `*/` closes a block), trims surrounding
// whitespace, and takes only the text preceding the first `;`. discarded
// reports whether any statement text followed that first `;`, so the
// caller can log a warning while still proceeding with the first
// statement.
func Normalize(raw string) (normalized string, discarded bool) {
	stripped := stripComments(raw)

	if idx := strings.IndexByte(stripped, ';'); idx >= 0 {
		rest := strings.TrimSpace(stripped[idx+1:])
		return strings.TrimSpace(stripped[:idx]), rest != ""
	}

	return strings.TrimSpace(stripped), false
}

// stripComments removes `--` line comments and non-nesting `/* */` block
// comments from sql.
//
// This intentionally does NOT honor string literals: a `--` or `/*`
// appearing inside a quoted string is still treated as a comment marker
// and stripped. That is a known quirk, reproduced faithfully rather than
// fixed.
func stripComments(sql string) string {
	var out strings.Builder
	out.Grow(len(sql))

	for i := 0; i < len(sql); i++ {
		c := sql[i]

		switch {
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			nl := strings.IndexByte(sql[i:], '\n')
			if nl < 0 {
				return out.String()
			}
			i += nl - 1
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				// Unterminated block comment: drop the remainder.
				return out.String()
			}
			i += 2 + end + 1
		default:
			out.WriteByte(c)
		}
	}

	return out.String()
}
