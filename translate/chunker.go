package translate

import (
	"regexp"
	"unicode"
)

// MaxChunkSize is the largest segment any provider is sent
const MaxChunkSize = 400

func isSentenceEnding(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// Masked placeholders travel to a provider whole or not at all
var maskedPlaceholder = regexp.MustCompile(`__TOK\d+__`)

// EffectiveLimit clamps a configured chunk size into [1, MaxChunkSize]
func EffectiveLimit(configured int) int {
	if configured < 1 {
		return 1
	}
	if configured > MaxChunkSize {
		return MaxChunkSize
	}
	return configured
}

// segmentSentences splits text after each run of terminators plus any
// trailing whitespace. The tail without a terminator is its own sentence.
func segmentSentences(text []rune) [][]rune {
	var sentences [][]rune
	start := 0
	for start < len(text) {
		end := start
		for end < len(text) && !isSentenceEnding(text[end]) {
			end++
		}
		for end < len(text) && isSentenceEnding(text[end]) {
			end++
		}
		for end < len(text) && unicode.IsSpace(text[end]) {
			end++
		}
		if end == start {
			end = start + 1
		}
		sentences = append(sentences, text[start:end])
		start = end
	}
	return sentences
}

// tokenize splits into alternating runs of whitespace and non-whitespace.
// Placeholders inside a non-whitespace run become tokens of their own.
func tokenize(segment []rune) [][]rune {
	var tokens [][]rune
	start := 0
	for i := 1; i <= len(segment); i++ {
		if i == len(segment) || unicode.IsSpace(segment[i]) != unicode.IsSpace(segment[start]) {
			tokens = append(tokens, splitPlaceholders(segment[start:i])...)
			start = i
		}
	}
	return tokens
}

func splitPlaceholders(run []rune) [][]rune {
	text := string(run)
	matches := maskedPlaceholder.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return [][]rune{run}
	}
	var parts [][]rune
	last := 0
	for _, m := range matches {
		if m[0] > last {
			parts = append(parts, []rune(text[last:m[0]]))
		}
		parts = append(parts, []rune(text[m[0]:m[1]]))
		last = m[1]
	}
	if last < len(text) {
		parts = append(parts, []rune(text[last:]))
	}
	return parts
}

func isPlaceholder(token []rune) bool {
	loc := maskedPlaceholder.FindStringIndex(string(token))
	return loc != nil && loc[0] == 0 && loc[1] == len(string(token))
}

// splitByTokens packs words greedily, hard-splitting words longer than
// limit. A placeholder is never split and may exceed limit on its own.
func splitByTokens(segment []rune, limit int) []string {
	var chunks []string
	var current []rune

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, string(current))
			current = nil
		}
	}

	for _, token := range tokenize(segment) {
		if len(current)+len(token) <= limit {
			current = append(current, token...)
			continue
		}
		flush()
		if len(token) <= limit {
			current = append([]rune(nil), token...)
			continue
		}
		if isPlaceholder(token) {
			chunks = append(chunks, string(token))
			continue
		}
		for start := 0; start < len(token); start += limit {
			end := min(start+limit, len(token))
			chunks = append(chunks, string(token[start:end]))
		}
	}
	flush()
	return chunks
}

// splitIntoChunks packs sentences into chunks of at most limit runes.
// Concatenating the result always reproduces text.
func splitIntoChunks(text string, limit int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if limit <= 0 {
		return []string{text}
	}

	var chunks []string
	var current []rune
	for _, sentence := range segmentSentences(runes) {
		if len(sentence) > limit {
			if len(current) > 0 {
				chunks = append(chunks, string(current))
				current = nil
			}
			chunks = append(chunks, splitByTokens(sentence, limit)...)
			continue
		}
		if len(current)+len(sentence) <= limit {
			current = append(current, sentence...)
			continue
		}
		if len(current) > 0 {
			chunks = append(chunks, string(current))
		}
		current = append([]rune(nil), sentence...)
	}
	if len(current) > 0 {
		chunks = append(chunks, string(current))
	}
	return chunks
}
