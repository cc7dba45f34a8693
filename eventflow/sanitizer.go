package eventflow

import (
	"regexp"
	"strings"
)

// Error text persisted to last_error columns is redacted and length-bounded
// before storage (CWE-209).
const (
	maxStoredErrorLength = 512
	truncatedSuffix      = "... (truncated)"
	redactedValue        = "[REDACTED]"
)

var storedErrorRedactions = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{
		// credentials embedded in connection URLs
		pattern:     regexp.MustCompile(`(?i)\b([a-z][a-z0-9+.-]*://[^:\s/]+):([^@\s]+)@`),
		replacement: `$1:` + redactedValue + `@`,
	},
	{
		pattern:     regexp.MustCompile(`(?i)\bbearer\s+[a-z0-9\-._~+/]+=*\b`),
		replacement: "Bearer " + redactedValue,
	},
	{
		pattern:     regexp.MustCompile(`(?i)\b(api[-_ ]?key|access[-_ ]?token|refresh[-_ ]?token|password|secret)\s*[:=]\s*([^\s,;]+)`),
		replacement: `$1=` + redactedValue,
	},
	{
		pattern:     regexp.MustCompile(`(?i)([?&](?:password|pass|pwd|token|api[_-]?key)=)([^&\s]+)`),
		replacement: `$1` + redactedValue,
	},
}

func sanitizeErrorForStorage(err error) string {
	if err == nil {
		return ""
	}

	return SanitizeErrorMessage(err.Error())
}

// SanitizeErrorMessage redacts sensitive values and enforces a bounded length
// so raw error text is safe to persist in last_error columns.
func SanitizeErrorMessage(msg string) string {
	redacted := strings.TrimSpace(msg)
	for _, redaction := range storedErrorRedactions {
		redacted = redaction.pattern.ReplaceAllString(redacted, redaction.replacement)
	}

	return truncateStoredError(redacted, maxStoredErrorLength)
}

func truncateStoredError(msg string, maxRunes int) string {
	runes := []rune(msg)
	if len(runes) <= maxRunes {
		return msg
	}

	suffix := []rune(truncatedSuffix)
	if maxRunes <= len(suffix) {
		return string(runes[:maxRunes])
	}

	return string(runes[:maxRunes-len(suffix)]) + truncatedSuffix
}
