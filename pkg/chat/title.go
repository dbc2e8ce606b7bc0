package chat

import "strings"

// maxTitleLength bounds how much of a message ends up in a derived title.
const maxTitleLength = 30

// DeriveTitle produces a short display title from the first user message
// of a conversation. It is a pure function and is applied at most once
// per conversation; later renames go through the session manager's
// explicit title update and never re-derive.
//
// Rules, first match wins:
//  1. short messages are used verbatim
//  2. questions are cut at the question mark (bounded at 30 runes)
//  3. statements are cut at the first sentence
//  4. otherwise the first 30 runes are kept
func DeriveTitle(message string) string {
	runes := []rune(message)

	var title string
	switch {
	case len(runes) <= maxTitleLength:
		title = message
	case strings.ContainsRune(message, '?'):
		idx := runeIndexOf(runes, '?')
		if idx > maxTitleLength {
			idx = maxTitleLength
		}
		title = string(runes[:idx]) + "..."
	case strings.ContainsRune(message, '.'):
		firstSentence := runes[:runeIndexOf(runes, '.')]
		if len(firstSentence) <= maxTitleLength {
			title = string(firstSentence)
		} else {
			title = string(firstSentence[:maxTitleLength-3]) + "..."
		}
	default:
		title = string(runes[:maxTitleLength]) + "..."
	}

	return strings.TrimSpace(title)
}

func runeIndexOf(runes []rune, r rune) int {
	for i, c := range runes {
		if c == r {
			return i
		}
	}
	return -1
}
