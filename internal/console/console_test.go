package console

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/audiodesc/internal/ai"
	"github.com/dmitrijs2005/audiodesc/internal/filex"
	"github.com/dmitrijs2005/audiodesc/internal/queue"
	"github.com/dmitrijs2005/audiodesc/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	mu       sync.Mutex
	accepted bool
}

func (f *fakeSessions) AcceptTerms(context.Context, string) (session.Consent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = true
	return session.Consent{Accepted: true, AcceptedAt: time.Now()}, nil
}

func (f *fakeSessions) HasAcceptedTerms(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accepted, nil
}

type recorder struct {
	mu   sync.Mutex
	jobs []queue.Job
}

func (r *recorder) Process(_ context.Context, job queue.Job) queue.Result {
	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	r.mu.Unlock()

	switch {
	case job.Reset:
		return queue.Result{Chunks: []string{"cleared"}}
	case job.Question == "boom":
		return queue.Result{Err: ai.Transient("ask", errors.New("503 from upstream"))}
	default:
		return queue.Result{Chunks: []string{"first " + string(job.Kind), "second"}}
	}
}

func (r *recorder) all() []queue.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]queue.Job(nil), r.jobs...)
}

func newConsole(t *testing.T, sessions *fakeSessions) (*Console, *recorder, *bytes.Buffer) {
	t.Helper()
	rec := &recorder{}
	q := queue.New(rec)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = q.Run(ctx) }()

	var out bytes.Buffer
	c := New(q, sessions, "local", 1<<10, &out, nil)
	c.readMedia = func(path string, limit int64) ([]byte, string, error) {
		switch path {
		case "photo.jpg":
			return []byte{0xff, 0xd8}, "image/jpeg", nil
		case "huge.mp4":
			return nil, "", filex.ErrTooLarge
		default:
			return nil, "", errors.New("no such file")
		}
	}
	return c, rec, &out
}

func run(t *testing.T, c *Console, lines ...string) {
	t.Helper()
	require.NoError(t, c.Run(context.Background(), strings.NewReader(strings.Join(lines, "\n"))))
}

func TestConsole_RequiresConsent(t *testing.T) {
	c, rec, out := newConsole(t, &fakeSessions{})

	run(t, c, "ask hello", "exit")

	assert.Empty(t, rec.all())
	assert.Contains(t, out.String(), "Type 'accept' to continue.")
	assert.Contains(t, out.String(), "Bye!")
}

func TestConsole_Commands(t *testing.T) {
	c, rec, out := newConsole(t, &fakeSessions{})

	run(t, c,
		"help",
		"accept",
		"",
		"ask",
		"ask what is this?",
		"send photo.jpg who is there?",
		"new photo.jpg",
		"send",
		"send huge.mp4",
		"send missing.png",
		"ask boom",
		"reset",
		"dance",
	)

	jobs := rec.all()
	require.Len(t, jobs, 5)

	assert.Equal(t, ai.KindText, jobs[0].Kind)
	assert.Equal(t, "what is this?", jobs[0].Question)

	assert.Equal(t, ai.KindImage, jobs[1].Kind)
	assert.Equal(t, "image/jpeg", jobs[1].Mime)
	assert.Equal(t, "who is there?", jobs[1].Question)
	assert.False(t, jobs[1].Fresh)

	assert.True(t, jobs[2].Fresh)
	assert.Empty(t, jobs[2].Question)

	assert.Equal(t, "boom", jobs[3].Question)
	assert.True(t, jobs[4].Reset)

	for _, j := range jobs {
		assert.Equal(t, "local", j.UserID)
	}

	s := out.String()
	assert.Contains(t, s, "Available commands:")
	assert.Contains(t, s, "Terms accepted.")
	assert.Contains(t, s, "Usage: ask <question>")
	assert.Contains(t, s, "first text\n\nsecond\n")
	assert.Contains(t, s, "first image")
	assert.Contains(t, s, "Usage: send <path> [question]")
	assert.Contains(t, s, "File is too large.")
	assert.Contains(t, s, "Cannot read file:")
	assert.Contains(t, s, "The description service is busy right now.")
	assert.NotContains(t, s, "503")
	assert.Contains(t, s, "cleared")
	assert.Contains(t, s, "Unknown command: dance")
}

func TestConsole_QueueErrorsAreFriendly(t *testing.T) {
	sessions := &fakeSessions{accepted: true}
	q := queue.New(queue.ProcessorFunc(func(context.Context, queue.Job) queue.Result { return queue.Result{} }))
	require.NoError(t, q.Shutdown(context.Background()))

	var out bytes.Buffer
	c := New(q, sessions, "local", 0, &out, nil)
	require.NoError(t, c.Run(context.Background(), strings.NewReader("ask hi\n")))

	assert.Contains(t, out.String(), "The service is restarting.")
}
