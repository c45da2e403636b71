package utils

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Pointer returns a pointer to the given value
func Pointer[T any](v T) *T {
	return &v
}

// Norm lowercases, trims, and collapses inner whitespace for robust
// comparisons of CRM values.
func Norm(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

var (
	bracketRe = regexp.MustCompile(`\[[^\]]*\]`)
	brRe      = regexp.MustCompile(`(?i)<br\s*/?>`)
	tagRe     = regexp.MustCompile(`<[^>]+>`)
)

// RemoveBrackets strips [placeholder] fragments the generator may have
// left in a subject or body.
func RemoveBrackets(s string) string {
	return bracketRe.ReplaceAllString(s, "")
}

// StripHTMLTags converts <br> to newlines and drops all other markup.
func StripHTMLTags(s string) string {
	s = brRe.ReplaceAllString(s, "\n")
	return tagRe.ReplaceAllString(s, "")
}

// OneParagraph collapses the text to a single whitespace-normalized
// paragraph, the storage form used for bodies and fingerprints.
func OneParagraph(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d.Hours() >= 24 {
		days := int(d.Hours() / 24)
		return fmt.Sprintf("%d days", days)
	} else if d.Hours() >= 1 {
		return fmt.Sprintf("%.1f hours", d.Hours())
	} else if d.Minutes() >= 1 {
		return fmt.Sprintf("%.1f minutes", d.Minutes())
	}
	return fmt.Sprintf("%.1f seconds", d.Seconds())
}
