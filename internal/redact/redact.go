// Package redact masks personally-identifiable and payment data in audit
// event values. It is applied on every write path before persistence and
// again on the read path for callers whose permissions do not entitle them to
// the full value, so a raw pattern never survives either direction.
//
// All functions are deterministic, side-effect-free, and never fail: a value
// that cannot be inspected passes through unchanged rather than aborting the
// write.
package redact

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxStringLength = 1000
	truncateLength  = 997

	minCardDigits = 13
	maxCardDigits = 19

	RedactedCreditCard = "[REDACTED_CC]"
	RedactedSSN        = "[REDACTED_SSN]"
	RedactedEmail      = "[REDACTED_EMAIL]"
	// Redacted replaces whole fields the caller may not see at all.
	Redacted = "[REDACTED]"
)

var (
	ssnDashed = regexp.MustCompile(`^\d{3}-\d{2}-\d{4}$`)
	ssnPlain  = regexp.MustCompile(`^\d{9}$`)
	nonDigits = regexp.MustCompile(`\D`)
)

// Value sanitizes a single value. Detection order, first match wins: email,
// credit card, SSN, oversized string. Non-string values are checked against
// their string form; when no pattern matches the original value is returned
// untouched. Idempotent: Value(Value(x)) == Value(x).
func Value(v any) any {
	if v == nil {
		return nil
	}

	s := stringify(v)

	if isPotentialEmail(s) {
		return redactEmail(s)
	}
	if isPotentialCreditCard(s) {
		return RedactedCreditCard
	}
	if isPotentialSSN(s) {
		return RedactedSSN
	}
	if len(s) > maxStringLength {
		return s[:truncateLength] + "..."
	}
	return v
}

// String is Value restricted to strings, for callers sanitizing free-text
// fields rather than detail entries.
func String(s string) string {
	return stringify(Value(s))
}

// Map sanitizes every value of m into a new map. Keys are kept as-is and no
// entry is ever dropped. A nil map yields an empty map.
func Map(m map[string]any) map[string]any {
	sanitized := make(map[string]any, len(m))
	for k, v := range m {
		sanitized[k] = Value(v)
	}
	return sanitized
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func isPotentialEmail(s string) bool {
	return strings.Contains(s, "@") && strings.Contains(s, ".")
}

// redactEmail keeps the first and last character of the local part and the
// full domain: "johnathan@example.com" -> "j*******n@example.com". Local
// parts of length <= 2 collapse to "**".
func redactEmail(s string) string {
	at := strings.Index(s, "@")
	if at <= 0 {
		return RedactedEmail
	}

	local := s[:at]
	domain := s[at:]

	if len(local) <= 2 {
		return "**" + domain
	}
	return string(local[0]) + strings.Repeat("*", len(local)-2) + string(local[len(local)-1]) + domain
}

func isPotentialCreditCard(s string) bool {
	digits := nonDigits.ReplaceAllString(s, "")
	return len(digits) >= minCardDigits && len(digits) <= maxCardDigits
}

func isPotentialSSN(s string) bool {
	return ssnDashed.MatchString(s) || ssnPlain.MatchString(s)
}
