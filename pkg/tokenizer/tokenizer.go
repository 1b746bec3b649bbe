// Package tokenizer provides a cheap word-level token count used to keep
// embedding inputs under a model's token limit. It approximates, on purpose:
// the limit check only needs to be conservative, not exact.
package tokenizer

import "regexp"

// Words and hyphen/underscore compounds count as one token each, any other
// non-space rune counts on its own.
var tokenPattern = regexp.MustCompile(`\w+(?:[-_]\w+)*|\S`)

// Count returns the number of tokens in text.
func Count(text string) int {
	return len(tokenPattern.FindAllStringIndex(text, -1))
}

// Truncate cuts text down to at most maxTokens tokens, on a token boundary.
func Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	idx := tokenPattern.FindAllStringIndex(text, -1)
	if len(idx) <= maxTokens {
		return text
	}
	return text[:idx[maxTokens-1][1]]
}
