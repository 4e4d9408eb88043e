package memory

import (
	"strings"
	"unicode/utf8"

	"github.com/recallkit/recall/pkg/storage"
)

// transcript renders messages as "[role] text" lines.
func transcript(msgs []*storage.Message) string {
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = "[" + m.Role + "] " + m.Text()
	}
	return strings.Join(lines, "\n")
}

// truncate cuts s to at most max characters.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}

// truncateAtSentence cuts s to max characters, ending at the last '.' or
// newline inside the window when that boundary lies past half of max. The
// boundary character is kept.
func truncateAtSentence(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	cut := []rune(truncate(s, max))
	breakAt := -1
	for i := len(cut) - 1; i >= 0; i-- {
		if cut[i] == '.' || cut[i] == '\n' {
			breakAt = i
			break
		}
	}
	if float64(breakAt) > float64(max)*0.5 {
		return string(cut[:breakAt+1])
	}
	return string(cut)
}

func charLen(s string) int {
	return utf8.RuneCountInString(s)
}
