package telemetry

import (
	"regexp"
)

// secretPatterns catches the shapes of credential that end up in tool
// output or platform error bodies often enough to be worth stripping
// before a log line is written: bearer tokens and key=value style
// secrets.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+[a-z0-9._-]+`),
	regexp.MustCompile(`(?i)(token|password|secret|api[_-]?key)\s*[:=]\s*\S+`),
}

const redacted = "[REDACTED]"

// Redact scrubs s of any recognized secret pattern. Call sites that
// log strings sourced from tool output or platform error bodies
// should run their message through this before logging it.
func Redact(s string) string {
	for _, re := range secretPatterns {
		s = re.ReplaceAllString(s, redacted)
	}
	return s
}
