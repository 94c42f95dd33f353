// Package phone holds local phone number sanitization and validation.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Sanitize strips every character except digits and a single leading plus.
func Sanitize(number string) string {
	var b strings.Builder
	for i, r := range number {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Valid reports whether a sanitized number carries 10 to 15 digits.
// This is the rule that gates device contact; anything failing it must
// never reach the provider.
func Valid(number string) bool {
	clean := Sanitize(number)
	clean = strings.TrimPrefix(clean, "+")
	if len(clean) < 10 || len(clean) > 15 {
		return false
	}
	for _, r := range clean {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NormalizeE164 formats a number to E.164 for display and registry keys.
// If parsing fails the sanitized input is returned unchanged; this is a
// best-effort formatter, not a validity gate.
func NormalizeE164(number, region string) string {
	clean := Sanitize(number)
	if clean == "" {
		return clean
	}

	parsed, err := phonenumbers.Parse(clean, region)
	if err != nil {
		return clean
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return clean
	}
	return phonenumbers.Format(parsed, phonenumbers.E164)
}
