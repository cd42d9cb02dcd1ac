package observability

import (
	"strings"
	"unicode"
)

const unmatchedRoute = "unmatched"

// logSafe removes control characters, which would let a caller forge log lines, and
// keeps at most limit runes.
func logSafe(value string, limit int) string {
	var b strings.Builder
	kept := 0
	for _, r := range value {
		if kept == limit {
			break
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		kept++
	}
	return b.String()
}

// routeLabel is the metric label for a request. Unmatched requests share one label
// so probing random paths cannot grow the series count.
func routeLabel(pattern string) string {
	if pattern == "" {
		return unmatchedRoute
	}
	return logSafe(pattern, 180)
}
