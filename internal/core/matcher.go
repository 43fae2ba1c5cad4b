package core

import (
	"regexp"
	"strings"
)

// TextMatcher matches log text case-insensitively. Patterns wrapped in /.../
// are regular expressions; anything else is a substring.
type TextMatcher struct {
	raw     string
	pattern *regexp.Regexp
	lowered string
}

// NewMatcher compiles s. A malformed regular expression is ValidationFailed.
func NewMatcher(s string) (TextMatcher, error) {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) >= 3 && strings.HasPrefix(trimmed, "/") && strings.HasSuffix(trimmed, "/") {
		re, err := regexp.Compile("(?i)" + trimmed[1:len(trimmed)-1])
		if err != nil {
			return TextMatcher{}, Errorf(ValidationFailed, "", "invalid pattern %q: %v", s, err)
		}
		return TextMatcher{raw: s, pattern: re}, nil
	}
	return TextMatcher{raw: s, lowered: strings.ToLower(trimmed)}, nil
}

// Match reports whether line matches. An empty matcher matches everything.
func (m TextMatcher) Match(line string) bool {
	if m.pattern != nil {
		return m.pattern.MatchString(line)
	}
	return strings.Contains(strings.ToLower(line), m.lowered)
}

// Raw returns the pattern as given.
func (m TextMatcher) Raw() string { return m.raw }

// IsRegex reports whether the pattern is a regular expression.
func (m TextMatcher) IsRegex() bool { return m.pattern != nil }
