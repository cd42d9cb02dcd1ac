package textutil

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var strictPolicy = bluemonday.StrictPolicy()

// PlainText strips markup from user supplied free text, collapses runs of
// whitespace and truncates to limit runes (0 means unlimited).
func PlainText(value string, limit int) string {
	cleaned := html.UnescapeString(strictPolicy.Sanitize(value))
	cleaned = strings.Join(strings.FieldsFunc(cleaned, unicode.IsSpace), " ")
	if limit > 0 {
		runes := []rune(cleaned)
		if len(runes) > limit {
			cleaned = strings.TrimSpace(string(runes[:limit]))
		}
	}
	return cleaned
}

// PlainTextPtr applies PlainText to an optional value. Blank results become nil.
func PlainTextPtr(value *string, limit int) *string {
	if value == nil {
		return nil
	}
	cleaned := PlainText(*value, limit)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

// NormalizeEmail folds compatibility characters and case so uniqueness checks
// treat full-width and ASCII forms alike.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(email)))
}

// NormalizePhone keeps a leading plus and the digits of a phone number.
func NormalizePhone(phone string) string {
	folded := norm.NFKC.String(strings.TrimSpace(phone))
	var b strings.Builder
	for i, r := range folded {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeStrings trims entries, drops blanks and duplicates, and keeps order.
func NormalizeStrings(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = PlainText(value, 64)
		if value == "" {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
