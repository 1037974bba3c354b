// Package textclean turns model output into plain text a screen reader can
// read aloud and splits it into bounded chunks.
package textclean

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxLen bounds a chunk when the caller passes no limit. It matches
// the size of a chat message.
const DefaultMaxLen = 4000

type rule struct {
	re   *regexp.Regexp
	repl string
}

// Applied in order; later rules assume earlier ones already ran.
var rules = []rule{
	{regexp.MustCompile("(?m)^\\s*```[^\\n]*$\\n?"), ""},
	{regexp.MustCompile("`([^`\\n]*)`"), "$1"},
	{regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`), "$1"},
	{regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`), "$1"},
	{regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]+`), ""},
	{regexp.MustCompile(`(?m)^[ \t]*>[ \t]?`), ""},
	{regexp.MustCompile(`(?m)^[ \t]*([-*_][ \t]*){3,}$`), ""},
	{regexp.MustCompile(`(?m)^[ \t]*\|?[ \t]*:?-{3,}:?[ \t]*(\|[ \t]*:?-{3,}:?[ \t]*)*\|?[ \t]*$`), ""},
	{regexp.MustCompile(`(?m)^[ \t]*[-*+•][ \t]+`), ""},
	{regexp.MustCompile(`\*\*|__|~~`), ""},
	{regexp.MustCompile(`\*`), ""},
	{regexp.MustCompile(`(^|[^\p{L}\p{N}])_([^_\n]+)_([^\p{L}\p{N}]|$)`), "$1$2$3"},
	{regexp.MustCompile(`(?m)[ \t]+$`), ""},
	{regexp.MustCompile(`\n{3,}`), "\n\n"},
}

// Strip removes formatting markers and normalizes whitespace.
func Strip(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, r := range rules {
		text = r.re.ReplaceAllString(text, r.repl)
	}
	return strings.TrimSpace(text)
}

// Clean strips text and splits it into chunks of at most maxLen runes.
// Splits prefer paragraph breaks, then line breaks, then spaces; a word
// longer than maxLen is cut. Empty input yields no chunks.
func Clean(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return Split(Strip(text), maxLen)
}

// Split chunks already clean text. See Clean.
func Split(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}

	rest := []rune(strings.TrimSpace(text))
	var chunks []string

	for len(rest) > 0 {
		if len(rest) <= maxLen {
			chunks = appendChunk(chunks, rest)
			break
		}

		cut := splitPoint(rest[:maxLen+1], maxLen)
		chunks = appendChunk(chunks, rest[:cut])
		rest = []rune(strings.TrimLeft(string(rest[cut:]), " \t\n"))
	}

	return chunks
}

// splitPoint picks where to cut window; window holds one rune past the
// limit so a separator sitting right at the limit is found too.
func splitPoint(window []rune, maxLen int) int {
	for _, sep := range []string{"\n\n", "\n", " "} {
		if i := lastIndex(window, []rune(sep)); i > 0 && i <= maxLen {
			return i
		}
	}
	return maxLen
}

func lastIndex(s, sep []rune) int {
	for i := len(s) - len(sep); i >= 0; i-- {
		match := true
		for j := range sep {
			if s[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func appendChunk(chunks []string, r []rune) []string {
	if c := strings.TrimSpace(string(r)); c != "" {
		return append(chunks, c)
	}
	return chunks
}
