// Package tokens normalizes vendor token usage and estimates counts when a
// vendor does not report them.
package tokens

import "unicode/utf8"

// charsPerToken is the rule-of-thumb ratio for English text.
const charsPerToken = 4

// Estimate returns a rough token count for text: 0 for empty text and at
// least 1 otherwise.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text) / charsPerToken
	if n < 1 {
		return 1
	}
	return n
}
