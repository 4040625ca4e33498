// Package ids provides the recipient-id sanitization rule shared by every
// store that namespaces a directory or filename by recipient id.
package ids

import "strings"

// Sanitize strips any character outside [A-Za-z0-9_-] from value. An input
// that sanitizes to the empty string signals the caller should reject the
// operation (or route it to a block-reason notice) rather than silently
// writing into a shared, unnamespaced directory.
func Sanitize(value string) string {
	value = strings.TrimSpace(value)
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Valid reports whether value is already in sanitized form and non-empty.
func Valid(value string) bool {
	if value == "" {
		return false
	}
	return Sanitize(value) == value
}
