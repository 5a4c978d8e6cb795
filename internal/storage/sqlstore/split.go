package sqlstore

import "strings"

// SplitStatements splits a SQL script on semicolons that are outside string
// literals, quoted identifiers and comments. Empty statements and comment-only
// fragments are dropped; the trailing semicolon is not included.
func SplitStatements(script string) []string {
	var (
		out     []string
		cur     strings.Builder
		quote   rune // active quote char: ' " ` or [
		inLine  bool // -- comment
		inBlock bool // /* */ comment
		hasCode bool
	)
	flush := func() {
		s := strings.TrimSpace(cur.String())
		if s != "" && hasCode {
			out = append(out, s)
		}
		cur.Reset()
		hasCode = false
	}

	rs := []rune(script)
	for i := 0; i < len(rs); i++ {
		c := rs[i]
		var next rune
		if i+1 < len(rs) {
			next = rs[i+1]
		}

		switch {
		case inLine:
			if c == '\n' {
				inLine = false
			}
			cur.WriteRune(c)
			continue
		case inBlock:
			cur.WriteRune(c)
			if c == '*' && next == '/' {
				cur.WriteRune(next)
				i++
				inBlock = false
			}
			continue
		case quote != 0:
			cur.WriteRune(c)
			closer := quote
			if quote == '[' {
				closer = ']'
			}
			if c == closer {
				if next == closer {
					// escaped by doubling
					cur.WriteRune(next)
					i++
				} else {
					quote = 0
				}
			}
			continue
		}

		switch {
		case c == '-' && next == '-':
			inLine = true
			cur.WriteRune(c)
		case c == '/' && next == '*':
			inBlock = true
			cur.WriteRune(c)
		case c == '\'' || c == '"' || c == '`' || c == '[':
			quote = c
			hasCode = true
			cur.WriteRune(c)
		case c == ';':
			flush()
		default:
			if !isSpace(c) {
				hasCode = true
			}
			cur.WriteRune(c)
		}
	}
	flush()
	return out
}

func isSpace(c rune) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
