package translate

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSplitIntoChunks(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		limit    int
		expected []string
	}{
		{name: "empty", text: "", limit: 10, expected: nil},
		{name: "fits", text: "One. Two.", limit: 10, expected: []string{"One. Two."}},
		{name: "sentences packed", text: "One. Two. Three.", limit: 10, expected: []string{"One. Two. ", "Three."}},
		{name: "full width terminators", text: "你好。世界！再見？", limit: 3, expected: []string{"你好。", "世界！", "再見？"}},
		{name: "words hard split", text: "Hello world", limit: 3, expected: []string{"Hel", "lo", " ", "wor", "ld"}},
		{name: "tail without terminator", text: "Done! and then some", limit: 6, expected: []string{"Done! ", "and ", "then ", "some"}},
		{name: "placeholder kept whole", text: "hi __TOK0__ ok", limit: 5, expected: []string{"hi ", "__TOK0__", " ok"}},
		{name: "placeholder inside long word", text: "ab__TOK1__cd", limit: 3, expected: []string{"ab", "__TOK1__", "cd"}},
		{name: "non positive limit", text: "abc", limit: 0, expected: []string{"abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, splitIntoChunks(tt.text, tt.limit))
		})
	}
}

func TestSplitIntoChunksCoversInput(t *testing.T) {
	text := "First sentence here. Second one is a bit longer!  Third?? " +
		strings.Repeat("x", 37) + " tail without end"

	for _, limit := range []int{1, 3, 7, 16, 40, 400} {
		chunks := splitIntoChunks(text, limit)
		assert.Equal(t, text, strings.Join(chunks, ""), "limit %d", limit)
		for _, c := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(c), limit, "limit %d chunk %q", limit, c)
		}
	}
}

func TestEffectiveLimit(t *testing.T) {
	assert.Equal(t, 1, EffectiveLimit(0))
	assert.Equal(t, 1, EffectiveLimit(-5))
	assert.Equal(t, 3, EffectiveLimit(3))
	assert.Equal(t, MaxChunkSize, EffectiveLimit(1000))
}

func TestProtectRestore(t *testing.T) {
	text := "hi @alice, $FOO is up. see https://example.com/a?b=c now"
	masked, tokens := protect(text)

	assert.Equal(t, "hi __TOK0__, __TOK1__ is up. see __TOK2__ now", masked)
	assert.Equal(t, []string{"@alice", "$FOO", "https://example.com/a?b=c"}, tokens)
	assert.Equal(t, text, restore(masked, tokens))

	// Providers may mangle case and spacing of placeholders
	assert.Equal(t, "@alice $FOO", restore("__tok0__ __ TOK 1 __", tokens))
	// Unknown indexes are left alone
	assert.Equal(t, "__TOK9__", restore("__TOK9__", tokens))
}
