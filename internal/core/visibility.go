package core

// LineQuery selects log lines. Zero values select everything.
type LineQuery struct {
	// Include keeps lines matching any of the matchers.
	Include []TextMatcher
	// Exclude drops lines matching any of the matchers.
	Exclude []TextMatcher
	// MinLevel drops lines with a known level below it. Lines with no
	// detected level are kept.
	MinLevel Severity
}

// Empty reports whether q selects every line.
func (q LineQuery) Empty() bool {
	return len(q.Include) == 0 && len(q.Exclude) == 0 && q.MinLevel == SevUnknown
}

// Keep reports whether l passes q.
func (q LineQuery) Keep(l LogLine) bool {
	if q.MinLevel != SevUnknown && l.Level != SevUnknown && l.Level < q.MinLevel {
		return false
	}
	for _, m := range q.Exclude {
		if m.Match(l.Text) {
			return false
		}
	}
	if len(q.Include) == 0 {
		return true
	}
	for _, m := range q.Include {
		if m.Match(l.Text) {
			return true
		}
	}
	return false
}

// FilterLines returns the lines that pass q, in order.
func FilterLines(lines []LogLine, q LineQuery) []LogLine {
	if q.Empty() {
		return lines
	}
	out := make([]LogLine, 0, len(lines))
	for _, l := range lines {
		if q.Keep(l) {
			out = append(out, l)
		}
	}
	return out
}
