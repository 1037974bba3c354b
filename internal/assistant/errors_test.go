package assistant

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/audiodesc/internal/ai"
	"github.com/dmitrijs2005/audiodesc/internal/cryptox"
	"github.com/dmitrijs2005/audiodesc/internal/queue"
	"github.com/dmitrijs2005/audiodesc/internal/retry"
	"github.com/stretchr/testify/assert"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ai.Expired("ask", nil), KindReferenceExpired},
		{fmt.Errorf("load: %w", cryptox.ErrIntegrity), KindIntegrity},
		{queue.ErrQueueFull, KindQueueFull},
		{queue.ErrCancelled, KindCancelled},
		{context.Canceled, KindCancelled},
		{queue.ErrDiscarded, KindDiscarded},
		{queue.ErrSpooled, KindSpooled},
		{queue.ErrDraining, KindDraining},
		{fmt.Errorf("%w: x", queue.ErrInvalidJob), KindInvalid},
		{&retry.ExhaustedError{Attempts: 3, Err: ai.Transient("ask", errors.New("503"))}, KindTransient},
		{ai.Permanent("ask", errors.New("400")), KindPermanent},
		{errors.New("???"), KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorKind(tt.err), "%v", tt.err)
	}
}

func TestFriendlyMessage(t *testing.T) {
	assert.Equal(t, friendly[KindQueueFull], FriendlyMessage(KindQueueFull))
	assert.Equal(t, friendly[KindInternal], FriendlyMessage("nope"))
	for kind, msg := range friendly {
		assert.NotEmpty(t, msg, kind)
	}
}
