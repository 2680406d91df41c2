package engine

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeKey trims and upper-cases s without locale-specific rules, so "i" never becomes
// a dotted capital. Codes and SKUs are compared only in this form.
func NormalizeKey(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	// cases.Caser is stateful and must not be shared between goroutines.
	return cases.Upper(language.Und).String(s)
}
