package textclean

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bold and italic", "A **red** *car* and __big__ _dog_.", "A red car and big dog."},
		{"headings", "## Scene\nA room.", "Scene\nA room."},
		{"bullets", "- one\n* two\n+ three", "one\ntwo\nthree"},
		{"numbered list kept", "1. first\n2. second", "1. first\n2. second"},
		{"links and images", "See [the docs](http://x) and ![a cat](c.png).", "See the docs and a cat."},
		{"code fence", "```text\nhello\n```", "hello"},
		{"inline code", "press `enter`", "press enter"},
		{"quote and rule", "> said\n---\nend", "said\n\nend"},
		{"snake_case survives", "file_name_here", "file_name_here"},
		{"blank lines collapse", "a\n\n\n\n\nb", "a\n\nb"},
		{"crlf", "a\r\nb", "a\nb"},
		{"trailing spaces", "a   \nb", "a\nb"},
		{"strikethrough", "~~old~~ new", "old new"},
		{"table separator", "| a | b |\n|---|---|\n| 1 | 2 |", "| a | b |\n\n| 1 | 2 |"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Strip(tt.in))
		})
	}
}

func TestClean_Empty(t *testing.T) {
	assert.Empty(t, Clean("", 10))
	assert.Empty(t, Clean("  **  ** \n\n", 10))
}

func TestClean_ShortTextIsOneChunk(t *testing.T) {
	assert.Equal(t, []string{"Uma pessoa sorrindo."}, Clean("**Uma pessoa** sorrindo.", 100))
}

func TestClean_ChunksRespectLimit(t *testing.T) {
	text := strings.Repeat("# Title\n**Descrição** da _imagem_ com acentuação.\n", 200)

	chunks := Clean(text, 120)
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 120)
		assert.NotContains(t, c, "**")
		assert.NotContains(t, c, "#")
		assert.Equal(t, strings.TrimSpace(c), c)
	}
}

func TestSplit(t *testing.T) {
	t.Run("prefers paragraph break", func(t *testing.T) {
		got := Split("aaaa bbbb\n\ncccc dddd", 15)
		assert.Equal(t, []string{"aaaa bbbb", "cccc dddd"}, got)
	})

	t.Run("word boundary", func(t *testing.T) {
		got := Split("one two three four", 9)
		assert.Equal(t, []string{"one two", "three", "four"}, got)
	})

	t.Run("separator exactly at limit", func(t *testing.T) {
		got := Split("abcde fgh", 5)
		assert.Equal(t, []string{"abcde", "fgh"}, got)
	})

	t.Run("long word is hard split", func(t *testing.T) {
		got := Split("abcdefghij", 4)
		assert.Equal(t, []string{"abcd", "efgh", "ij"}, got)
	})

	t.Run("multibyte runes counted as one", func(t *testing.T) {
		got := Split("ááá ééé", 3)
		assert.Equal(t, []string{"ááá", "ééé"}, got)
	})

	t.Run("default limit", func(t *testing.T) {
		got := Split(strings.Repeat("x", DefaultMaxLen+1), 0)
		require.Len(t, got, 2)
		assert.Len(t, got[1], 1)
	})
}
