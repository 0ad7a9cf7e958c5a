package store

import (
	"fmt"
	"regexp"
	"strings"
)

// Matcher reports whether keys match a Redis KEYS/SCAN style glob.
type Matcher struct {
	pattern string
	re      *regexp.Regexp
}

// CompileGlob translates a glob into an anchored regular expression.
// Supported syntax mirrors Redis: * matches any run (including separators
// such as ':' and '/'), ? matches one character, [abc], [^a] and [a-z] are
// character classes (reversed ranges are swapped), and a backslash escapes
// the next character. Wildcards also match newlines.
func CompileGlob(pattern string) (*Matcher, error) {
	var b strings.Builder
	b.WriteString(`^(?s)`)

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		case '\\':
			if i+1 < len(runes) {
				i++
				b.WriteString(regexp.QuoteMeta(string(runes[i])))
			} else {
				b.WriteString(`\\`)
			}
		case '[':
			end := i + 1
			if end < len(runes) && runes[end] == '^' {
				end++
			}
			// a ']' right after the opening bracket is a literal member
			if end < len(runes) && runes[end] == ']' {
				end++
			}
			for end < len(runes) && runes[end] != ']' {
				if runes[end] == '\\' {
					end++
				}
				end++
			}
			if end >= len(runes) {
				return nil, fmt.Errorf("invalid pattern %q: unterminated character class", pattern)
			}
			writeClass(&b, runes[i+1:end])
			i = end
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}

	b.WriteString(`$`)
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return &Matcher{pattern: pattern, re: re}, nil
}

// writeClass emits a bracket expression. Ranges given high-to-low are
// swapped, as Redis does.
func writeClass(b *strings.Builder, class []rune) {
	b.WriteString(`[`)
	j := 0
	if j < len(class) && class[j] == '^' {
		b.WriteRune('^')
		j++
	}
	member := func() rune {
		c := class[j]
		if c == '\\' && j+1 < len(class) {
			j++
			c = class[j]
		}
		j++
		return c
	}
	for j < len(class) {
		lo := member()
		if j+1 < len(class) && class[j] == '-' {
			j++
			hi := member()
			if lo > hi {
				lo, hi = hi, lo
			}
			writeClassRune(b, lo)
			b.WriteRune('-')
			writeClassRune(b, hi)
			continue
		}
		writeClassRune(b, lo)
	}
	b.WriteString(`]`)
}

func writeClassRune(b *strings.Builder, r rune) {
	switch r {
	case '\\', ']', '[', '^', '-':
		b.WriteRune('\\')
	}
	b.WriteRune(r)
}

// Match reports whether key matches the glob
func (m *Matcher) Match(key string) bool {
	return m.re.MatchString(key)
}

func (m *Matcher) String() string {
	return m.pattern
}
