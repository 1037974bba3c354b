// Package session keeps per-user conversational state: the last uploaded
// file reference, the recent question/answer turns, preferences and terms
// consent. Every value is sealed before it reaches the repository.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/audiodesc/internal/ai"
)

// ErrInvalidPreferences rejects unknown preference values.
var ErrInvalidPreferences = errors.New("invalid preferences")

// DefaultHistoryLimit is how many turns a session keeps.
const DefaultHistoryLimit = 10

// Session is the decrypted state of one user's exchange.
type Session struct {
	UserID        string       `json:"user_id"`
	LastReference ai.Reference `json:"last_reference,omitempty"`
	LastKind      ai.Kind      `json:"last_kind,omitempty"`
	LastDigest    string       `json:"last_digest,omitempty"`
	Turns         []ai.Turn    `json:"turns,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// HasReference reports whether a file is cached for follow-ups.
func (s *Session) HasReference() bool {
	return s != nil && s.LastReference != ""
}

func (s *Session) clone() *Session {
	c := *s
	c.Turns = append([]ai.Turn(nil), s.Turns...)
	return &c
}

func (s *Session) clearReference() {
	s.LastReference = ""
	s.LastKind = ""
	s.LastDigest = ""
}

// Artifact is the media carried by a job.
type Artifact struct {
	Data []byte
	Kind ai.Kind
	Mime string
	// Fresh forces a new exchange even for identical bytes.
	Fresh bool
}

// Digest is the hex sha256 of the artifact bytes.
func (a Artifact) Digest() string {
	sum := sha256.Sum256(a.Data)
	return hex.EncodeToString(sum[:])
}

// Uploader sends an artifact to the backend. It is normally
// ai.Backend.Upload wrapped in the retry policy.
type Uploader func(ctx context.Context, data []byte, kind ai.Kind, mime string) (ai.Reference, error)

// Answer styles.
const (
	StyleShort = "short"
	StyleLong  = "long"
)

// Video description modes.
const (
	VideoSummary  = "summary"
	VideoDetailed = "detailed"
)

// Preferences tune the default prompts.
type Preferences struct {
	Style     string `json:"style"`
	VideoMode string `json:"video_mode"`
	Language  string `json:"language,omitempty"`
}

// DefaultPreferences are used until the user stores their own.
func DefaultPreferences() Preferences {
	return Preferences{Style: StyleShort, VideoMode: VideoSummary}
}

// Normalize fills empty fields with defaults and rejects unknown values.
func (p Preferences) Normalize() (Preferences, error) {
	d := DefaultPreferences()
	if p.Style == "" {
		p.Style = d.Style
	}
	if p.VideoMode == "" {
		p.VideoMode = d.VideoMode
	}
	if p.Style != StyleShort && p.Style != StyleLong {
		return p, fmt.Errorf("%w: style %q", ErrInvalidPreferences, p.Style)
	}
	if p.VideoMode != VideoSummary && p.VideoMode != VideoDetailed {
		return p, fmt.Errorf("%w: video mode %q", ErrInvalidPreferences, p.VideoMode)
	}
	return p, nil
}

// Consent records acceptance of the data processing terms.
type Consent struct {
	Accepted   bool      `json:"accepted"`
	AcceptedAt time.Time `json:"accepted_at"`
}
