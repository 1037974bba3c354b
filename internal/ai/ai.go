// Package ai is the port to a remote vision/language model. Media is
// uploaded once and addressed afterwards through an opaque Reference, so
// follow-up questions about the same file do not re-send its bytes.
package ai

import (
	"context"
	"fmt"
	"strings"
)

// Kind classifies a job's input.
type Kind string

const (
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindDocument Kind = "document"
	// KindText is a plain text question with no media attached.
	KindText Kind = "text"
)

// IsMedia reports whether jobs of this kind carry bytes to upload.
func (k Kind) IsMedia() bool {
	switch k {
	case KindImage, KindVideo, KindAudio, KindDocument:
		return true
	}
	return false
}

// ParseKind accepts the kind names used on the wire.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindImage, KindVideo, KindAudio, KindDocument, KindText:
		return k, nil
	case "text_question", "question":
		return KindText, nil
	default:
		return "", fmt.Errorf("unknown kind %q", s)
	}
}

// KindFromMime maps a MIME type to the media kind used for prompting.
// Anything that is not image, video or audio is treated as a document.
func KindFromMime(mime string) Kind {
	mime = strings.ToLower(mime)
	switch {
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case strings.HasPrefix(mime, "video/"):
		return KindVideo
	case strings.HasPrefix(mime, "audio/"):
		return KindAudio
	default:
		return KindDocument
	}
}

// Reference is an opaque handle to media already uploaded to the backend.
// The zero value means "no file".
type Reference string

// Turn is one question/answer exchange kept as conversational history.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Backend is a remote multimodal model.
//
// Upload and Ask may be re-issued safely; the retry policy relies on that.
// Ask returns an error matching ErrReferenceExpired when ref no longer
// resolves on the backend side.
type Backend interface {
	Upload(ctx context.Context, data []byte, kind Kind, mime string) (Reference, error)
	Ask(ctx context.Context, ref Reference, question string, history []Turn) (string, error)
}
