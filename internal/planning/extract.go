package planning

import (
	"strings"
	"unicode/utf8"
)

// maxTaskLen caps extracted task descriptions so a rambling model answer
// does not become the session's current task verbatim.
const maxTaskLen = 100

// taskPrefixes are stripped from the front of a candidate line, in order.
var taskPrefixes = []string{
	"The next step is to ",
	"You should ",
	"First, ",
	"1. ",
	"- ",
}

// ExtractTask pulls a short task description out of a free-form model
// answer: the first line longer than ten characters after trimming, with
// known lead-in prefixes stripped and the result truncated to maxTaskLen
// characters. Lengths count runes, not bytes, so truncation never splits a
// multi-byte character. Returns "" when no line qualifies; callers treat
// that as extraction failure, not an error.
func ExtractTask(answer string) string {
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) <= 10 {
			continue
		}
		for _, prefix := range taskPrefixes {
			if strings.HasPrefix(line, prefix) {
				line = line[len(prefix):]
			}
		}
		if runes := []rune(line); len(runes) > maxTaskLen {
			line = string(runes[:maxTaskLen])
		}
		return line
	}
	return ""
}
