package core

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Severity is the level detected in a container log line.
type Severity uint8

const (
	SevUnknown Severity = iota
	SevDebug
	SevInfo
	SevWarn
	SevError
)

var severityNames = [...]string{"", "debug", "info", "warn", "error"}

func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}
	return ""
}

// MarshalText lets Severity appear as its name in JSON.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	*s = severityOf(string(b))
	return nil
}

// ParseSeverity maps a level name to a Severity. Unknown names yield
// ValidationFailed.
func ParseSeverity(s string) (Severity, error) {
	if sev := severityOf(s); sev != SevUnknown {
		return sev, nil
	}
	return SevUnknown, Errorf(ValidationFailed, "", "unknown log level %q: use debug, info, warn or error", s)
}

var (
	levelKeys   = []string{"level", "lvl", "severity", "sev", "log.level", "priority"}
	bracketedRe = regexp.MustCompile(`(?i)(?:[\[\(<]|\b)(DEBUG|TRACE|INFO|NOTICE|WARN|WARNING|ERROR|ERR|FATAL|CRITICAL|PANIC)(?:[\]\)>]|\b|:)`)
)

// DetectSeverity extracts the level of a log line. JSON objects are checked
// for a level field first, then logfmt pairs, then bracketed or bare level
// words.
func DetectSeverity(line string) Severity {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		if sev, ok := detectJSON(trimmed); ok {
			return sev
		}
	}
	if sev, ok := detectLogfmt(trimmed); ok {
		return sev
	}
	if m := bracketedRe.FindStringSubmatch(line); len(m) > 1 {
		return severityOf(m[1])
	}
	return SevUnknown
}

func detectJSON(line string) (Severity, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		return SevUnknown, false
	}
	for _, key := range levelKeys {
		for k, v := range obj {
			if !strings.EqualFold(k, key) {
				continue
			}
			switch v := v.(type) {
			case string:
				return severityOf(v), true
			case float64:
				return syslogSeverity(int(v)), true
			}
		}
	}
	return SevUnknown, false
}

func detectLogfmt(line string) (Severity, bool) {
	for _, part := range strings.Fields(line) {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"'`)
		if value == "" {
			continue
		}
		key = strings.ToLower(key)
		for _, lk := range levelKeys {
			if key == lk {
				return severityOf(value), true
			}
		}
	}
	return SevUnknown, false
}

// syslog priorities 0-7
func syslogSeverity(p int) Severity {
	switch {
	case p >= 0 && p <= 3:
		return SevError
	case p == 4:
		return SevWarn
	case p == 5 || p == 6:
		return SevInfo
	case p == 7:
		return SevDebug
	default:
		return SevUnknown
	}
}

func severityOf(s string) Severity {
	switch strings.ToUpper(strings.Trim(s, "[]<>(): ")) {
	case "TRACE", "DEBUG":
		return SevDebug
	case "INFO", "NOTICE":
		return SevInfo
	case "WARN", "WARNING":
		return SevWarn
	case "ERROR", "ERR", "FATAL", "CRITICAL", "PANIC":
		return SevError
	default:
		return SevUnknown
	}
}
