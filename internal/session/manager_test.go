package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/audiodesc/internal/ai"
	"github.com/dmitrijs2005/audiodesc/internal/cryptox"
	"github.com/dmitrijs2005/audiodesc/internal/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *records.MemoryRepository) {
	t.Helper()
	sealer, err := cryptox.NewAESGCM(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	repo := records.NewMemoryRepository()
	return NewManager(repo, sealer, 3), repo
}

type countingUploader struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (u *countingUploader) upload(_ context.Context, _ []byte, kind ai.Kind, _ string) (ai.Reference, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	if u.err != nil {
		return "", u.err
	}
	return ai.Reference(fmt.Sprintf("ref-%s-%d", kind, u.calls)), nil
}

func TestResolveContext_EmptySessionNotPersisted(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	s, err := m.ResolveContext(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", s.UserID)
	assert.False(t, s.HasReference())
	assert.Empty(t, s.Turns)

	keys, err := repo.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestResolveContext_EmptyUser(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.ResolveContext(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyUser)
}

func TestGetOrUploadReference_UploadOnce(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	up := &countingUploader{}

	video := Artifact{Data: []byte("video-bytes"), Kind: ai.KindVideo, Mime: "video/mp4"}

	ref1, err := m.GetOrUploadReference(ctx, "u1", video, up.upload)
	require.NoError(t, err)
	assert.Equal(t, 1, up.calls)

	require.NoError(t, m.RecordTurn(ctx, "u1", "q", "a"))

	t.Run("same exchange reuses the reference", func(t *testing.T) {
		ref, err := m.GetOrUploadReference(ctx, "u1", video, up.upload)
		require.NoError(t, err)
		assert.Equal(t, ref1, ref)
		assert.Equal(t, 1, up.calls)

		s, err := m.ResolveContext(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, s.Turns, 1)
	})

	t.Run("kind mismatch uploads once and resets history", func(t *testing.T) {
		img := Artifact{Data: []byte("video-bytes"), Kind: ai.KindImage, Mime: "image/png"}
		ref, err := m.GetOrUploadReference(ctx, "u1", img, up.upload)
		require.NoError(t, err)
		assert.NotEqual(t, ref1, ref)
		assert.Equal(t, 2, up.calls)

		s, err := m.ResolveContext(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, s.Turns)
		assert.Equal(t, ai.KindImage, s.LastKind)
		assert.Equal(t, ref, s.LastReference)
	})

	t.Run("fresh flag uploads once", func(t *testing.T) {
		img := Artifact{Data: []byte("video-bytes"), Kind: ai.KindImage, Mime: "image/png", Fresh: true}
		_, err := m.GetOrUploadReference(ctx, "u1", img, up.upload)
		require.NoError(t, err)
		assert.Equal(t, 3, up.calls)
	})

	t.Run("different bytes upload once", func(t *testing.T) {
		img := Artifact{Data: []byte("other"), Kind: ai.KindImage, Mime: "image/png"}
		_, err := m.GetOrUploadReference(ctx, "u1", img, up.upload)
		require.NoError(t, err)
		assert.Equal(t, 4, up.calls)
	})
}

func TestGetOrUploadReference_UploadFailureKeepsSession(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	good := &countingUploader{}

	art := Artifact{Data: []byte("a"), Kind: ai.KindImage, Mime: "image/png"}
	ref, err := m.GetOrUploadReference(ctx, "u1", art, good.upload)
	require.NoError(t, err)

	bad := &countingUploader{err: errors.New("boom")}
	_, err = m.GetOrUploadReference(ctx, "u1", Artifact{Data: []byte("b"), Kind: ai.KindImage, Mime: "image/png"}, bad.upload)
	require.Error(t, err)

	s, err := m.ResolveContext(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ref, s.LastReference)
}

func TestRefreshReference(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	up := &countingUploader{}

	art := Artifact{Data: []byte("img"), Kind: ai.KindImage, Mime: "image/png"}
	ref1, err := m.GetOrUploadReference(ctx, "u1", art, up.upload)
	require.NoError(t, err)
	require.NoError(t, m.RecordTurn(ctx, "u1", "q", "a"))

	ref2, err := m.RefreshReference(ctx, "u1", art, up.upload)
	require.NoError(t, err)
	assert.NotEqual(t, ref1, ref2)
	assert.Equal(t, 2, up.calls)

	s, err := m.ResolveContext(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ref2, s.LastReference)
	assert.Len(t, s.Turns, 1)

	t.Run("failed refresh drops the stale reference", func(t *testing.T) {
		bad := &countingUploader{err: errors.New("down")}
		_, err := m.RefreshReference(ctx, "u1", art, bad.upload)
		require.Error(t, err)

		s, err := m.ResolveContext(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, s.HasReference())
	})
}

func TestRecordTurn_TrimsHistory(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, m.RecordTurn(ctx, "u1", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i)))
	}

	s, err := m.ResolveContext(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, s.Turns, 3)
	assert.Equal(t, "q3", s.Turns[0].Question)
	assert.Equal(t, "a5", s.Turns[2].Answer)
}

func TestSessionIsStoredEncrypted(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.RecordTurn(ctx, "u1", "secret question", "secret answer"))
	up := &countingUploader{}
	_, err := m.GetOrUploadReference(ctx, "u1", Artifact{Data: []byte("x"), Kind: ai.KindAudio, Mime: "audio/ogg"}, up.upload)
	require.NoError(t, err)

	rec, err := repo.Load(ctx, records.SessionKey("u1"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "u1", rec.Owner)
	assert.NotContains(t, string(rec.Ciphertext), "ref-audio")
	assert.NotContains(t, string(rec.Ciphertext), "secret")
}

func TestTamperedSessionSurfacesIntegrityError(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.RecordTurn(ctx, "u1", "q", "a"))

	rec, err := repo.Load(ctx, records.SessionKey("u1"))
	require.NoError(t, err)
	rec.Ciphertext[0] ^= 0xff
	require.NoError(t, repo.Save(ctx, records.SessionKey("u1"), rec))

	_, err = m.ResolveContext(ctx, "u1")
	assert.ErrorIs(t, err, cryptox.ErrIntegrity)

	// never auto-corrected
	err = m.RecordTurn(ctx, "u1", "q2", "a2")
	assert.ErrorIs(t, err, cryptox.ErrIntegrity)
}

func TestRecordMovedToAnotherUser(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.RecordTurn(ctx, "u1", "q", "a"))
	rec, err := repo.Load(ctx, records.SessionKey("u1"))
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, records.SessionKey("u2"), rec))

	_, err = m.ResolveContext(ctx, "u2")
	assert.ErrorIs(t, err, cryptox.ErrIntegrity)
}

func TestClearReference(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	up := &countingUploader{}

	_, err := m.GetOrUploadReference(ctx, "u1", Artifact{Data: []byte("x"), Kind: ai.KindImage, Mime: "image/png"}, up.upload)
	require.NoError(t, err)
	require.NoError(t, m.ClearReference(ctx, "u1"))

	s, err := m.ResolveContext(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, s.HasReference())
	assert.Empty(t, s.LastKind)

	// no-op on an empty session
	require.NoError(t, m.ClearReference(ctx, "u9"))
}

func TestResetAndForget(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.RecordTurn(ctx, "u1", "q", "a"))
	_, err := m.SetPreferences(ctx, "u1", Preferences{Style: StyleLong})
	require.NoError(t, err)
	_, err = m.AcceptTerms(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, m.RecordTurn(ctx, "u2", "q", "a"))

	require.NoError(t, m.Reset(ctx, "u1"))
	s, err := m.ResolveContext(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, s.Turns)

	p, err := m.Preferences(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StyleLong, p.Style)

	require.NoError(t, m.Forget(ctx, "u1"))
	keys, err := repo.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{records.SessionKey("u2")}, keys)

	ok, err := m.HasAcceptedTerms(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentTurnsAreNotLost(t *testing.T) {
	sealer, err := cryptox.NewAESGCM(bytes.Repeat([]byte{1}, 16))
	require.NoError(t, err)
	m := NewManager(records.NewMemoryRepository(), sealer, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, m.RecordTurn(ctx, "u1", fmt.Sprintf("q%d", i), "a"))
		}(i)
	}
	wg.Wait()

	s, err := m.ResolveContext(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, s.Turns, 20)
	assert.Zero(t, m.locks.size())
}

func TestUpdatedAtUsesClock(t *testing.T) {
	m, _ := newTestManager(t)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	require.NoError(t, m.RecordTurn(context.Background(), "u1", "q", "a"))
	s, err := m.ResolveContext(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, fixed.Equal(s.UpdatedAt))
}
