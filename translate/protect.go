package translate

import (
	"fmt"
	"regexp"
	"strconv"
)

// Links, mentions and $markers must reach the reader untouched
var protectedToken = regexp.MustCompile(`https?://\S+|[@$]\w+`)

// Providers sometimes change case or pad the placeholder with spaces
var placeholderPattern = regexp.MustCompile(`(?i)__\s*tok\s*(\d+)\s*__`)

func placeholder(i int) string {
	return fmt.Sprintf("__TOK%d__", i)
}

// protect replaces every protected token with a positional placeholder
func protect(text string) (string, []string) {
	var tokens []string
	masked := protectedToken.ReplaceAllStringFunc(text, func(match string) string {
		tokens = append(tokens, match)
		return placeholder(len(tokens) - 1)
	})
	return masked, tokens
}

// restore puts the original tokens back in place of their placeholders
func restore(text string, tokens []string) string {
	if len(tokens) == 0 {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		i, err := strconv.Atoi(sub[1])
		if err != nil || i < 0 || i >= len(tokens) {
			return match
		}
		return tokens[i]
	})
}
