// Package textutil provides filesystem-safe name helpers for staged and
// published artifacts.
package textutil

import "strings"

var fileNameReplacer = strings.NewReplacer(
	"/", "-", "\\", "-", ":", "-", "*", "-",
	"?", "", "\"", "", "<", "", ">", "", "|", "",
)

// SanitizeFileName strips path separators and reserved characters from name
// and collapses whitespace runs. Hearing titles arrive from scraped pages and
// routinely carry newlines and double spaces.
func SanitizeFileName(name string) string {
	name = fileNameReplacer.Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	return strings.Trim(name, ". ")
}

// TruncateRunes caps s at max runes. A max of 0 or less leaves s unchanged.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max]))
}
