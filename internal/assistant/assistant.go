// Package assistant is the job pipeline run by the queue worker: resolve
// the session, upload or reuse the file, ask the model, record the turn
// and clean the answer for a screen reader.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/audiodesc/internal/ai"
	"github.com/dmitrijs2005/audiodesc/internal/logging"
	"github.com/dmitrijs2005/audiodesc/internal/queue"
	"github.com/dmitrijs2005/audiodesc/internal/retry"
	"github.com/dmitrijs2005/audiodesc/internal/session"
	"github.com/dmitrijs2005/audiodesc/internal/textclean"
)

// ResetConfirmation is the answer to a reset job.
const ResetConfirmation = "Conversation cleared. Send a new file or question."

var errEmptyAnswer = errors.New("answer is empty after cleaning")

type Assistant struct {
	backend     ai.Backend
	sessions    *session.Manager
	policy      retry.Policy
	maxChunkLen int
	log         logging.Logger
}

func New(backend ai.Backend, sessions *session.Manager, policy retry.Policy, maxChunkLen int, log logging.Logger) *Assistant {
	if log == nil {
		log = logging.Nop()
	}
	if maxChunkLen <= 0 {
		maxChunkLen = textclean.DefaultMaxLen
	}
	return &Assistant{
		backend:     backend,
		sessions:    sessions,
		policy:      policy,
		maxChunkLen: maxChunkLen,
		log:         log,
	}
}

var _ queue.Processor = (*Assistant)(nil)

func (a *Assistant) Process(ctx context.Context, job queue.Job) queue.Result {
	res := queue.Result{JobID: job.ID, UserID: job.UserID}

	chunks, err := a.process(ctx, job)
	res.Chunks = chunks
	res.Err = err
	res.FinishedAt = time.Now().UTC()
	return res
}

func (a *Assistant) process(ctx context.Context, job queue.Job) ([]string, error) {
	log := a.log.With("job_id", job.ID, "kind", string(job.Kind))

	if job.Reset {
		if err := a.sessions.Reset(ctx, job.UserID); err != nil {
			return nil, err
		}
		return []string{ResetConfirmation}, nil
	}

	prefs, err := a.sessions.Preferences(ctx, job.UserID)
	if err != nil {
		return nil, err
	}
	question := BuildQuestion(job.Kind, job.Question, prefs)

	var (
		ref ai.Reference
		art session.Artifact
	)
	if job.Kind.IsMedia() {
		art = session.Artifact{Data: job.Data, Kind: job.Kind, Mime: job.Mime, Fresh: job.Fresh}
		ref, err = a.sessions.GetOrUploadReference(ctx, job.UserID, art, a.uploader(log))
		if err != nil {
			return nil, fmt.Errorf("upload: %w", err)
		}
	}

	sess, err := a.sessions.ResolveContext(ctx, job.UserID)
	if err != nil {
		return nil, err
	}
	if !job.Kind.IsMedia() {
		ref = sess.LastReference
	}

	answer, err := a.ask(ctx, log, ref, question, sess.Turns)
	if errors.Is(err, ai.ErrReferenceExpired) {
		log.Info(ctx, "remote file reference expired", "media", job.Kind.IsMedia())
		if !job.Kind.IsMedia() {
			// the bytes are gone with the reference; the user has to resend
			if cerr := a.sessions.ClearReference(ctx, job.UserID); cerr != nil {
				return nil, errors.Join(err, cerr)
			}
			return nil, err
		}

		ref, err = a.sessions.RefreshReference(ctx, job.UserID, art, a.uploader(log))
		if err != nil {
			return nil, fmt.Errorf("re-upload: %w", err)
		}
		answer, err = a.ask(ctx, log, ref, question, sess.Turns)
	}
	if err != nil {
		return nil, err
	}

	if err := a.sessions.RecordTurn(ctx, job.UserID, question, answer); err != nil {
		return nil, err
	}

	chunks := textclean.Clean(answer, a.maxChunkLen)
	if len(chunks) == 0 {
		return nil, ai.Permanent("clean", errEmptyAnswer)
	}
	return chunks, nil
}

func classify(err error) retry.Class {
	if ai.ClassOf(err) == ai.ClassTransient {
		return retry.Retryable
	}
	return retry.NonRetryable
}

func (a *Assistant) onRetry(ctx context.Context, log logging.Logger, op string) retry.OnRetry {
	return func(attempt int, delay time.Duration, err error) {
		log.Warn(ctx, "transient backend error, retrying",
			"op", op, "attempt", attempt, "delay", delay.String(), "error", err.Error())
	}
}

func (a *Assistant) uploader(log logging.Logger) session.Uploader {
	return func(ctx context.Context, data []byte, kind ai.Kind, mime string) (ai.Reference, error) {
		log.Debug(ctx, "uploading media", "bytes", len(data), "mime", mime)
		return retry.Execute(ctx, a.policy, func(ctx context.Context) (ai.Reference, error) {
			return a.backend.Upload(ctx, data, kind, mime)
		}, classify, a.onRetry(ctx, log, "upload"))
	}
}

func (a *Assistant) ask(ctx context.Context, log logging.Logger, ref ai.Reference, question string, history []ai.Turn) (string, error) {
	return retry.Execute(ctx, a.policy, func(ctx context.Context) (string, error) {
		return a.backend.Ask(ctx, ref, question, history)
	}, classify, a.onRetry(ctx, log, "ask"))
}
