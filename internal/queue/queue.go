// Package queue serializes every request through one FIFO drained by a
// single worker. The worker is the only caller of the processor, so remote
// calls never overlap.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/audiodesc/internal/logging"
	"github.com/google/uuid"
)

// DrainPolicy decides what happens to queued jobs at shutdown.
type DrainPolicy string

const (
	DrainDiscard DrainPolicy = "discard"
	DrainPersist DrainPolicy = "persist"
)

func ParseDrainPolicy(s string) (DrainPolicy, error) {
	switch p := DrainPolicy(strings.ToLower(s)); p {
	case DrainDiscard, DrainPersist:
		return p, nil
	case "":
		return DrainDiscard, nil
	default:
		return "", fmt.Errorf("unknown drain policy %q", s)
	}
}

// Stats are cumulative counters plus the current backlog.
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Cancelled uint64 `json:"cancelled"`
	Discarded uint64 `json:"discarded"`
	Spooled   uint64 `json:"spooled"`
	Pending   int    `json:"pending"`
}

type entry struct {
	job    Job
	handle *Handle
}

type Option func(*Queue)

// WithCapacity bounds the backlog. Zero means unbounded.
func WithCapacity(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

func WithDrainPolicy(p DrainPolicy) Option { return func(q *Queue) { q.policy = p } }

func WithSpool(s Spool) Option { return func(q *Queue) { q.spool = s } }

func WithLogger(l logging.Logger) Option { return func(q *Queue) { q.log = l } }

// WithResultHook is called from the worker after every processed job,
// before its handle resolves.
func WithResultHook(fn func(Result)) Option { return func(q *Queue) { q.onResult = fn } }

type Queue struct {
	processor Processor
	capacity  int
	policy    DrainPolicy
	spool     Spool
	log       logging.Logger
	onResult  func(Result)
	now       func() time.Time

	mu       sync.Mutex
	pending  []*entry
	draining bool
	stats    Stats
	working  sync.WaitGroup
	notify   chan struct{}
}

func New(processor Processor, opts ...Option) *Queue {
	q := &Queue{
		processor: processor,
		policy:    DrainDiscard,
		log:       logging.Nop(),
		now:       time.Now,
		notify:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Submit appends job and returns at once. ID and EnqueuedAt are assigned
// when empty.
func (q *Queue) Submit(job Job) (*Handle, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = q.now().UTC()
	}
	return q.enqueue(job, false)
}

func (q *Queue) enqueue(job Job, restored bool) (*Handle, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.draining {
		return nil, ErrDraining
	}
	if !restored && q.capacity > 0 && len(q.pending) >= q.capacity {
		return nil, ErrQueueFull
	}

	h := newHandle(job)
	q.pending = append(q.pending, &entry{job: job, handle: h})
	q.stats.Submitted++
	q.wake()
	return h, nil
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Cancel removes a job that has not started yet. It reports false when the
// job is unknown, running or finished.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	var found *entry
	for i, e := range q.pending {
		if e.job.ID == id {
			found = e
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			q.stats.Cancelled++
			break
		}
	}
	q.mu.Unlock()

	if found == nil {
		return false
	}
	found.handle.resolve(Result{
		JobID:      found.job.ID,
		UserID:     found.job.UserID,
		Err:        ErrCancelled,
		FinishedAt: q.now().UTC(),
	})
	return true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.Pending = len(q.pending)
	return s
}

// next pops the head of the queue and marks the worker busy.
func (q *Queue) next() (*entry, bool, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.draining {
		return nil, false, true
	}
	if len(q.pending) == 0 {
		return nil, false, false
	}
	e := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.working.Add(1)
	return e, true, false
}

// Run is the worker loop. It processes one job at a time in submission
// order and returns when ctx is done or Shutdown has started.
func (q *Queue) Run(ctx context.Context) error {
	q.log.Info(ctx, "queue worker started", "capacity", q.capacity, "drain_policy", string(q.policy))
	defer q.log.Info(ctx, "queue worker stopped")

	for {
		e, ok, draining := q.next()
		if draining {
			return nil
		}
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.notify:
				continue
			}
		}
		q.process(ctx, e)
	}
}

func (q *Queue) process(ctx context.Context, e *entry) {
	defer q.working.Done()

	start := q.now()
	res := q.safeProcess(ctx, e.job)
	res.JobID = e.job.ID
	res.UserID = e.job.UserID
	if res.FinishedAt.IsZero() {
		res.FinishedAt = q.now().UTC()
	}

	q.mu.Lock()
	if res.Err != nil {
		q.stats.Failed++
	} else {
		q.stats.Completed++
	}
	q.mu.Unlock()

	args := []any{"job_id", e.job.ID, "kind", string(e.job.Kind), "duration", q.now().Sub(start).String()}
	if res.Err != nil {
		q.log.Warn(ctx, "job failed", append(args, "error", res.Err.Error())...)
	} else {
		q.log.Info(ctx, "job done", append(args, "chunks", len(res.Chunks))...)
	}

	if q.onResult != nil {
		q.onResult(res)
	}
	e.handle.resolve(res)
}

func (q *Queue) safeProcess(ctx context.Context, job Job) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("job panicked: %v", r)}
		}
	}()
	return q.processor.Process(ctx, job)
}

// Shutdown stops accepting jobs, waits for the running one and then
// discards or spools the backlog according to the drain policy. Handles
// of jobs left behind resolve with ErrDiscarded or ErrSpooled.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return q.waitIdle(ctx)
	}
	q.draining = true
	backlog := q.pending
	q.pending = nil
	q.mu.Unlock()

	// unblock an idle worker
	q.wake()

	if err := q.waitIdle(ctx); err != nil {
		// the backlog is still handled below; the running job is abandoned
		q.log.Warn(ctx, "running job did not finish before shutdown deadline")
	}

	return q.drain(ctx, backlog)
}

// waitIdle blocks until no job is running or ctx ends. On ctx expiry the
// waiter goroutine stays parked until the running job returns.
func (q *Queue) waitIdle(ctx context.Context) error {
	idle := make(chan struct{})
	go func() {
		q.working.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) drain(ctx context.Context, backlog []*entry) error {
	if len(backlog) == 0 {
		return nil
	}

	policy := q.policy
	if policy == DrainPersist && q.spool == nil {
		q.log.Warn(ctx, "persist drain policy without spool, discarding backlog", "jobs", len(backlog))
		policy = DrainDiscard
	}

	var spoolErr error
	if policy == DrainPersist {
		jobs := make([]Job, len(backlog))
		for i, e := range backlog {
			jobs[i] = e.job
		}
		if spoolErr = q.spool.Put(ctx, jobs); spoolErr != nil {
			q.log.Error(ctx, "failed to spool backlog", "jobs", len(jobs), "error", spoolErr.Error())
		}
	}

	outcome, counter := ErrDiscarded, &q.stats.Discarded
	if policy == DrainPersist && spoolErr == nil {
		outcome, counter = ErrSpooled, &q.stats.Spooled
		q.log.Info(ctx, "backlog spooled", "jobs", len(backlog))
	} else {
		q.log.Info(ctx, "backlog discarded", "jobs", len(backlog))
	}

	q.mu.Lock()
	*counter += uint64(len(backlog))
	q.mu.Unlock()

	now := q.now().UTC()
	for _, e := range backlog {
		e.handle.resolve(Result{JobID: e.job.ID, UserID: e.job.UserID, Err: outcome, FinishedAt: now})
	}

	if spoolErr != nil {
		return fmt.Errorf("spool backlog: %w", spoolErr)
	}
	return nil
}

// Restore re-enqueues spooled jobs ahead of anything submitted later.
// Their results reach the result hook only. It returns how many jobs were
// restored.
func (q *Queue) Restore(ctx context.Context) (int, error) {
	if q.spool == nil {
		return 0, nil
	}
	jobs, err := q.spool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("take spooled jobs: %w", err)
	}

	n := 0
	for _, job := range jobs {
		if _, err := q.enqueue(job, true); err != nil {
			if errors.Is(err, ErrDraining) {
				// hand the rest back
				if perr := q.spool.Put(ctx, jobs[n:]); perr != nil {
					return n, errors.Join(err, perr)
				}
			}
			return n, err
		}
		n++
	}
	if n > 0 {
		q.log.Info(ctx, "spooled jobs restored", "jobs", n)
	}
	return n, nil
}
