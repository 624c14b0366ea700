package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims input, folds control characters into single spaces and
// cuts it to at most maxLen runes. Adjustment reasons go through it before they
// reach the audit trail.
func SanitizeString(input string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(input))
	pendingSpace := false
	runes := 0
	for _, r := range strings.TrimSpace(input) {
		if unicode.IsControl(r) {
			pendingSpace = true
			continue
		}
		if pendingSpace {
			if maxLen > 0 && runes >= maxLen {
				break
			}
			b.WriteRune(' ')
			runes++
			pendingSpace = false
		}
		if maxLen > 0 && runes >= maxLen {
			break
		}
		b.WriteRune(r)
		runes++
	}
	return strings.TrimSpace(b.String())
}
