package logging

import (
	"regexp"
	"strings"
)

// Driver messages are free text and routinely carry rider PII (phone
// numbers, emails, street addresses dictated over the radio). Log lines
// that include body text must pass through Snippet first.

var piiPatterns = []*regexp.Regexp{
	// Phone numbers, with optional country code and common separators.
	regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`),
	// Email addresses.
	regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
}

// RedactedValue is the replacement for redacted spans.
const RedactedValue = "[REDACTED]"

// Redact replaces PII-looking spans in a string.
func Redact(s string) string {
	result := s
	for _, pattern := range piiPatterns {
		result = pattern.ReplaceAllString(result, RedactedValue)
	}
	return result
}

// Snippet returns a redacted, length-bounded form of a message body
// suitable for a log field.
func Snippet(body string, max int) string {
	if max <= 0 {
		max = 48
	}
	s := Redact(strings.TrimSpace(body))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
