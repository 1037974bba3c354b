package assistant

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/audiodesc/internal/ai"
	"github.com/dmitrijs2005/audiodesc/internal/session"
)

var defaultPrompts = map[ai.Kind]map[string]string{
	ai.KindImage: {
		session.StyleShort: "Describe this image briefly: the main subject, the setting and any visible text.",
		session.StyleLong:  "Describe this image in detail: people, objects, colors, layout, expressions and any visible text, from the most to the least important.",
	},
	ai.KindAudio: {
		session.StyleShort: "Summarize what is said in this audio and mention relevant background sounds.",
		session.StyleLong:  "Transcribe this audio and describe relevant background sounds, music and tone of voice.",
	},
	ai.KindDocument: {
		session.StyleShort: "Summarize this document: its type, purpose and key information.",
		session.StyleLong:  "Read this document in full, keeping its structure, and describe any images or tables it contains.",
	},
}

var videoPrompts = map[string]string{
	session.VideoSummary:  "Summarize this video: what happens, who appears and where it takes place.",
	session.VideoDetailed: "Describe this video scene by scene, including actions, on-screen text and relevant sounds.",
}

// DefaultPrompt is asked when a media job carries no question.
func DefaultPrompt(kind ai.Kind, p session.Preferences) string {
	if kind == ai.KindVideo {
		if s, ok := videoPrompts[p.VideoMode]; ok {
			return s
		}
		return videoPrompts[session.VideoSummary]
	}
	byStyle, ok := defaultPrompts[kind]
	if !ok {
		return ""
	}
	if s, ok := byStyle[p.Style]; ok {
		return s
	}
	return byStyle[session.StyleShort]
}

// BuildQuestion returns the text actually sent to the model.
func BuildQuestion(kind ai.Kind, question string, p session.Preferences) string {
	q := strings.TrimSpace(question)
	if q == "" {
		q = DefaultPrompt(kind, p)
	}
	if p.Language != "" {
		q = fmt.Sprintf("%s\nAnswer in %s.", q, p.Language)
	}
	return q
}
