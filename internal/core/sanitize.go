package core

import (
	"regexp"
	"strings"
)

// Escape sequence families stripped from container output:
// CSI (ESC [ ... final), OSC (ESC ] ... BEL|ST), DCS/SOS/PM/APC (ESC P|X|^|_ ... ST)
// and two-byte ESC sequences.
var (
	reCSI       = regexp.MustCompile("\x1b\x5b[0-?]*[ -/]*[@-~]")
	reOSC       = regexp.MustCompile("\x1b\x5d[\x20-\x7e]*(?:\x07|\x1b\\\\)")
	reDCSLike   = regexp.MustCompile("\x1b[P^_X](?s:.*?)(?:\x1b\\\\|\x07)")
	reSingleESC = regexp.MustCompile("\x1b[0-9A-Za-z]")
)

// SanitizeLine strips terminal control sequences from a log line and trims the
// trailing line terminator. Remaining C0 control characters other than TAB
// become spaces. The function is idempotent.
func SanitizeLine(s string) string {
	s = strings.TrimRight(s, "\r\n")
	if s == "" {
		return s
	}

	// OSC/DCS blocks first: they may contain CSI-like bytes.
	s = reOSC.ReplaceAllString(s, "")
	s = reDCSLike.ReplaceAllString(s, "")
	s = reCSI.ReplaceAllString(s, "")
	s = reSingleESC.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\b", "")

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch < 0x20 && ch != '\t' {
			b.WriteByte(' ')
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}
