package interpreter

import (
	"regexp"
	"strings"
)

// tokenPattern matches {{NAME}} or {name}. Alternation is tried left to
// right at each position, so a double-brace token is never read as a
// single-brace token wrapped in stray braces.
var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}|\{\s*([A-Za-z0-9_.\-]+)\s*\}`)

// resolveTokens substitutes every placeholder in s. Unresolved tokens
// become empty strings and are reported through miss.
func resolveTokens(s string, b *binding, miss func(name string, p Presence)) string {
	matches := tokenPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	var out strings.Builder
	out.Grow(len(s))
	last := 0
	for _, m := range matches {
		out.WriteString(s[last:m[0]])

		var name string
		if m[2] >= 0 {
			name = s[m[2]:m[3]]
		} else {
			name = s[m[4]:m[5]]
		}

		value, presence := lookup(b, name)
		if presence != Present && miss != nil {
			miss(name, presence)
		}
		out.WriteString(value)
		last = m[1]
	}
	out.WriteString(s[last:])

	return out.String()
}
