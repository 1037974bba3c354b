package app

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/audiodesc/internal/ai"
	"github.com/dmitrijs2005/audiodesc/internal/ai/providers"
	"github.com/dmitrijs2005/audiodesc/internal/artifacts"
	"github.com/dmitrijs2005/audiodesc/internal/config"
	"github.com/dmitrijs2005/audiodesc/internal/cryptox"
	"github.com/dmitrijs2005/audiodesc/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	mu        sync.Mutex
	uploads   []string
	questions []string
}

func (s *stubBackend) Upload(_ context.Context, _ []byte, kind ai.Kind, mime string) (ai.Reference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, string(kind)+" "+mime)
	return ai.Reference("ref-1"), nil
}

func (s *stubBackend) Ask(_ context.Context, _ ai.Reference, question string, _ []ai.Turn) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = append(s.questions, question)
	return "## Scene\n\n**A cat** on a sofa.", nil
}

func withBackend(t *testing.T, b ai.Backend) {
	t.Helper()
	orig := newBackend
	t.Cleanup(func() { newBackend = orig })
	newBackend = func(providers.Config, artifacts.Store) (ai.Backend, error) { return b, nil }
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.LoadDefaults()
	c.EncryptionKey = cryptox.EncodeKey(bytes.Repeat([]byte{9}, 32))
	c.StorageDriver = "memory"
	c.LogFormat = "text"
	return c
}

func TestNewApp_Errors(t *testing.T) {
	t.Run("bad key", func(t *testing.T) {
		c := testConfig(t)
		c.EncryptionKey = "short"
		_, err := NewApp(context.Background(), c, io.Discard)
		require.ErrorIs(t, err, cryptox.ErrInvalidKey)
	})

	t.Run("bad log format", func(t *testing.T) {
		c := testConfig(t)
		c.LogFormat = "xml"
		_, err := NewApp(context.Background(), c, io.Discard)
		require.Error(t, err)
	})

	t.Run("unknown provider", func(t *testing.T) {
		c := testConfig(t)
		c.AIProvider = "hal"
		_, err := NewApp(context.Background(), c, io.Discard)
		require.ErrorContains(t, err, "ai backend")
	})

	t.Run("unknown artifact store", func(t *testing.T) {
		c := testConfig(t)
		c.ArtifactStore = "ftp"
		_, err := NewApp(context.Background(), c, io.Discard)
		require.ErrorContains(t, err, "artifact store")
	})
}

func TestRunConsole_EndToEnd(t *testing.T) {
	backend := &stubBackend{}
	withBackend(t, backend)

	img := filepath.Join(t.TempDir(), "cat.png")
	require.NoError(t, os.WriteFile(img, []byte("\x89PNG\r\n\x1a\nfake"), 0o600))

	a, err := NewApp(context.Background(), testConfig(t), io.Discard)
	require.NoError(t, err)
	defer a.Close()

	in := strings.NewReader(strings.Join([]string{
		"send " + img + " what is it?",
		"accept",
		"send " + img + " what is it?",
		"ask and the colour?",
		"exit",
	}, "\n"))
	var out bytes.Buffer

	require.NoError(t, a.RunConsole(context.Background(), in, &out))

	assert.Equal(t, []string{"image image/png"}, backend.uploads, "follow-up question reuses the upload")
	require.Len(t, backend.questions, 2)
	assert.Contains(t, backend.questions[0], "what is it?")
	assert.Equal(t, "and the colour?", backend.questions[1])

	s := out.String()
	assert.Contains(t, s, "Type 'accept' to continue.")
	assert.Contains(t, s, "Scene\n\nA cat on a sofa.")
	assert.NotContains(t, s, "**")
	assert.Contains(t, s, "Bye!")

	stats := a.queue.Stats()
	assert.EqualValues(t, 2, stats.Completed)
}

func TestPersistDrain_SurvivesRestart(t *testing.T) {
	withBackend(t, &stubBackend{})

	c := testConfig(t)
	c.StorageDriver = "sqlite"
	c.StorageDSN = filepath.Join(t.TempDir(), "data", "audiodesc.db")
	c.DrainPolicy = "persist"

	first, err := NewApp(context.Background(), c, io.Discard)
	require.NoError(t, err)

	for _, q := range []string{"one", "two"} {
		_, err := first.queue.Submit(queue.Job{UserID: "u1", Kind: ai.KindText, Question: q})
		require.NoError(t, err)
	}
	require.NoError(t, first.queue.Shutdown(context.Background()))
	assert.EqualValues(t, 2, first.queue.Stats().Spooled)
	require.NoError(t, first.Close())

	second, err := NewApp(context.Background(), c, io.Discard)
	require.NoError(t, err)
	defer second.Close()

	n, err := second.queue.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, second.queue.Len())
}
