package validation

import (
	"regexp"
	"strings"
)

// MaxFieldLength is the cap, in characters, for free-text entry fields
const MaxFieldLength = 25

var (
	dangerousChars = strings.NewReplacer(
		"<", "", ">", "", "'", "", `"`, "", `\`, "", "/", "",
		"{", "", "}", "", "[", "", "]", "", ";", "",
	)
	scriptPattern = regexp.MustCompile(`(?i)script`)
)

// Sanitize normalizes a free-text field: strips HTML/SQL meta characters,
// removes "--" and "script" (any case), trims whitespace and caps the result
// at MaxFieldLength characters. Removals repeat until nothing changes, so the
// result is stable under a second call.
func Sanitize(text string) string {
	s := strings.ToValidUTF8(text, "")

	for {
		next := dangerousChars.Replace(s)
		next = strings.ReplaceAll(next, "--", "")
		next = scriptPattern.ReplaceAllString(next, "")
		if next == s {
			break
		}
		s = next
	}

	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > MaxFieldLength {
		s = strings.TrimSpace(string(r[:MaxFieldLength]))
	}
	return s
}
