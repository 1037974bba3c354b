package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/audiodesc/internal/ai"
)

var (
	ErrQueueFull  = errors.New("queue is full")
	ErrDraining   = errors.New("queue is shutting down")
	ErrCancelled  = errors.New("job cancelled")
	ErrDiscarded  = errors.New("job discarded at shutdown")
	ErrSpooled    = errors.New("job spooled at shutdown")
	ErrInvalidJob = errors.New("invalid job")
)

// Job is one unit of work. It must not be changed after Submit.
type Job struct {
	ID       string  `json:"id"`
	UserID   string  `json:"user_id"`
	Kind     ai.Kind `json:"kind"`
	Data     []byte  `json:"data,omitempty"`
	Mime     string  `json:"mime,omitempty"`
	Question string  `json:"question,omitempty"`
	// Fresh starts a new exchange even when the media is unchanged.
	Fresh bool `json:"fresh,omitempty"`
	// Reset clears the user's session instead of asking anything.
	Reset      bool      `json:"reset,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Validate checks the fields a producer must fill.
func (j Job) Validate() error {
	if j.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidJob)
	}
	if j.Reset {
		return nil
	}
	if _, err := ai.ParseKind(string(j.Kind)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if j.Kind.IsMedia() {
		if len(j.Data) == 0 {
			return fmt.Errorf("%w: empty %s", ErrInvalidJob, j.Kind)
		}
		if j.Mime == "" {
			return fmt.Errorf("%w: missing mime type", ErrInvalidJob)
		}
		return nil
	}
	if j.Question == "" {
		return fmt.Errorf("%w: empty question", ErrInvalidJob)
	}
	return nil
}

// Result is the outcome of a job. Err is nil on success.
type Result struct {
	JobID      string
	UserID     string
	Chunks     []string
	Err        error
	FinishedAt time.Time
}

// Processor runs one job end to end.
type Processor interface {
	Process(ctx context.Context, job Job) Result
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, job Job) Result

func (f ProcessorFunc) Process(ctx context.Context, job Job) Result { return f(ctx, job) }

// Spool keeps jobs across restarts.
type Spool interface {
	Put(ctx context.Context, jobs []Job) error
	// Take returns spooled jobs in enqueue order and removes them.
	Take(ctx context.Context) ([]Job, error)
}

// Handle tracks a submitted job.
type Handle struct {
	id     string
	userID string
	done   chan struct{}
	result Result
}

func newHandle(job Job) *Handle {
	return &Handle{id: job.ID, userID: job.UserID, done: make(chan struct{})}
}

func (h *Handle) ID() string     { return h.id }
func (h *Handle) UserID() string { return h.userID }

// Done is closed once the result is available.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result returns the outcome. It is the zero Result until Done is closed.
func (h *Handle) Result() Result {
	select {
	case <-h.done:
		return h.result
	default:
		return Result{}
	}
}

// Wait blocks until the job finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// resolve must be called exactly once per handle.
func (h *Handle) resolve(r Result) {
	h.result = r
	close(h.done)
}
