package ocr

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// UnknownName is returned when no line looks like a trainer name.
const UnknownName = "Unknown"

// Words from the profile screen chrome. "RIENDS" catches misreads of FRIENDS.
var skipWords = []string{"FRIENDS", "RIENDS", "PARTY", "STYLE", "SCRAPBOOK", "JOURNAL", "BUDDY", "HISTORY"}

// Stat lines and labels carry at least one of these.
const skipChars = ",/:%"

// Lines splits recognized text into trimmed, non-empty lines in order.
func Lines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// ExtractName picks the first line that could be a trainer name. The result
// is a guess and must be confirmed by the user.
func ExtractName(lines []string) string {
	for _, line := range lines {
		upper := strings.ToUpper(line)
		if containsAny(upper, skipWords) {
			continue
		}
		if strings.ContainsAny(line, skipChars) {
			continue
		}
		if isAlnum(strings.ReplaceAll(line, " ", "")) && utf8.RuneCountInString(line) > 2 {
			return line
		}
	}
	return UnknownName
}

// NameFromText is ExtractName(Lines(text)).
func NameFromText(text string) string {
	return ExtractName(Lines(text))
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func isAlnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			return false
		}
	}
	return true
}
