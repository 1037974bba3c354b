package assistant

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/audiodesc/internal/ai"
	"github.com/dmitrijs2005/audiodesc/internal/cryptox"
	"github.com/dmitrijs2005/audiodesc/internal/queue"
	"github.com/dmitrijs2005/audiodesc/internal/session"
)

// Error kinds reported to producers.
const (
	KindTransient        = "transient"
	KindPermanent        = "permanent"
	KindReferenceExpired = "reference_expired"
	KindIntegrity        = "integrity"
	KindQueueFull        = "queue_full"
	KindCancelled        = "cancelled"
	KindDiscarded        = "discarded"
	KindSpooled          = "spooled"
	KindDraining         = "draining"
	KindInvalid          = "invalid"
	KindInternal         = "internal"
)

// ErrorKind maps a job error to a stable kind. Nil maps to "".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ai.ErrReferenceExpired):
		return KindReferenceExpired
	case errors.Is(err, cryptox.ErrIntegrity):
		return KindIntegrity
	case errors.Is(err, queue.ErrQueueFull):
		return KindQueueFull
	case errors.Is(err, queue.ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, queue.ErrDiscarded):
		return KindDiscarded
	case errors.Is(err, queue.ErrSpooled):
		return KindSpooled
	case errors.Is(err, queue.ErrDraining):
		return KindDraining
	case errors.Is(err, queue.ErrInvalidJob), errors.Is(err, session.ErrInvalidPreferences):
		return KindInvalid
	case errors.Is(err, ai.ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	case errors.Is(err, ai.ErrPermanent):
		return KindPermanent
	default:
		return KindInternal
	}
}

var friendly = map[string]string{
	KindTransient:        "The description service is busy right now. Please try again in a moment.",
	KindPermanent:        "This request could not be processed. Try a different file or question.",
	KindReferenceExpired: "The previous file is no longer available. Please send it again.",
	KindIntegrity:        "Your saved conversation could not be read. Use reset to start over.",
	KindQueueFull:        "Too many requests are waiting. Please try again shortly.",
	KindCancelled:        "The request was cancelled.",
	KindDiscarded:        "The service restarted before your request was processed. Please send it again.",
	KindSpooled:          "The service is restarting. Your request will be processed when it is back.",
	KindDraining:         "The service is restarting. Please try again shortly.",
	KindInvalid:          "The request is incomplete or invalid.",
	KindInternal:         "Something went wrong. Please try again.",
}

// FriendlyMessage is the text shown to a user for an error kind. Backend
// error text is never shown.
func FriendlyMessage(kind string) string {
	if m, ok := friendly[kind]; ok {
		return m
	}
	return friendly[KindInternal]
}
