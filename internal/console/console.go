// Package console is the line-oriented producer: it reads commands from a
// terminal, submits jobs to the shared queue and prints the answers.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/audiodesc/internal/ai"
	"github.com/dmitrijs2005/audiodesc/internal/assistant"
	"github.com/dmitrijs2005/audiodesc/internal/filex"
	"github.com/dmitrijs2005/audiodesc/internal/logging"
	"github.com/dmitrijs2005/audiodesc/internal/queue"
	"github.com/dmitrijs2005/audiodesc/internal/session"
)

const helpText = `Available commands:
  ask <question>         ask about the last file (or anything)
  send <path> [question] describe a file; the same file continues the conversation
  new <path> [question]  like send, but always starts a new exchange
  reset                  forget the current conversation
  accept                 accept the terms of use
  help                   show this text
  exit | quit            leave`

const termsText = "Descriptions are generated by an AI model and may be wrong. " +
	"Files you send are stored for a limited time to answer follow-up questions. " +
	"Type 'accept' to continue."

type JobQueue interface {
	Submit(job queue.Job) (*queue.Handle, error)
}

type Sessions interface {
	AcceptTerms(ctx context.Context, user string) (session.Consent, error)
	HasAcceptedTerms(ctx context.Context, user string) (bool, error)
}

// Console runs the REPL for a single local user.
type Console struct {
	queue    JobQueue
	sessions Sessions
	user     string
	maxFile  int64
	out      io.Writer
	log      logging.Logger

	readMedia func(path string, limit int64) ([]byte, string, error)
}

func New(q JobQueue, sessions Sessions, user string, maxFile int64, out io.Writer, l logging.Logger) *Console {
	if l == nil {
		l = logging.Nop()
	}
	if maxFile <= 0 {
		maxFile = 20 << 20
	}
	return &Console{
		queue:     q,
		sessions:  sessions,
		user:      user,
		maxFile:   maxFile,
		out:       out,
		log:       l.With("module", "console"),
		readMedia: filex.ReadMedia,
	}
}

func (c *Console) println(a ...any) {
	_, _ = fmt.Fprintln(c.out, a...)
}

// Run reads commands from in until EOF, "exit" or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)

	if ok, err := c.sessions.HasAcceptedTerms(ctx, c.user); err != nil {
		return fmt.Errorf("check consent: %w", err)
	} else if !ok {
		c.println(termsText)
	}

	for {
		_, _ = fmt.Fprint(c.out, "audiodesc> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		cmd, rest, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		rest = strings.TrimSpace(rest)

		switch cmd {
		case "":
			continue
		case "help":
			c.println(helpText)
		case "accept":
			if _, err := c.sessions.AcceptTerms(ctx, c.user); err != nil {
				c.printError(err)
				continue
			}
			c.println("Terms accepted.")
		case "ask":
			if rest == "" {
				c.println("Usage: ask <question>")
				continue
			}
			c.submit(ctx, queue.Job{Kind: ai.KindText, Question: rest}, true)
		case "send", "new":
			c.send(ctx, rest, cmd == "new")
		case "reset":
			c.submit(ctx, queue.Job{Reset: true}, false)
		case "exit", "quit":
			c.println("Bye!")
			return nil
		default:
			c.println("Unknown command:", cmd)
		}
	}
}

func (c *Console) send(ctx context.Context, args string, fresh bool) {
	path, question, _ := strings.Cut(args, " ")
	if path == "" {
		c.println("Usage: send <path> [question]")
		return
	}

	data, mime, err := c.readMedia(path, c.maxFile)
	if err != nil {
		if errors.Is(err, filex.ErrTooLarge) {
			c.println("File is too large.")
		} else {
			c.println("Cannot read file:", err)
		}
		return
	}

	c.submit(ctx, queue.Job{
		Kind:     ai.KindFromMime(mime),
		Data:     data,
		Mime:     mime,
		Question: strings.TrimSpace(question),
		Fresh:    fresh,
	}, true)
}

// submit enqueues job and blocks until its result is printed.
func (c *Console) submit(ctx context.Context, job queue.Job, needsConsent bool) {
	if needsConsent {
		ok, err := c.sessions.HasAcceptedTerms(ctx, c.user)
		if err != nil {
			c.printError(err)
			return
		}
		if !ok {
			c.println(termsText)
			return
		}
	}

	job.UserID = c.user
	h, err := c.queue.Submit(job)
	if err != nil {
		c.printError(err)
		return
	}
	c.log.Debug(ctx, "job submitted", "job_id", h.ID(), "kind", string(job.Kind))

	res, err := h.Wait(ctx)
	if err != nil {
		c.printError(err)
		return
	}
	if res.Err != nil {
		c.printError(res.Err)
		return
	}
	for i, chunk := range res.Chunks {
		if i > 0 {
			c.println()
		}
		c.println(chunk)
	}
}

func (c *Console) printError(err error) {
	c.println(assistant.FriendlyMessage(assistant.ErrorKind(err)))
}
