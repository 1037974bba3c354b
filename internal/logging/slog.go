package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Redacted replaces the value of any attribute whose key names user content.
const Redacted = "[redacted]"

var contentKeys = map[string]struct{}{
	"question": {},
	"answer":   {},
	"prompt":   {},
	"chunk":    {},
}

func isContentKey(key string) bool {
	_, ok := contentKeys[strings.ToLower(key)]
	return ok
}

// scrubArgs returns args with content values redacted, copying only when
// needed. Args follow the slog convention: key-value pairs or slog.Attr.
func scrubArgs(args []any) []any {
	var out []any
	set := func(i int, v any) {
		if out == nil {
			out = append([]any(nil), args...)
		}
		out[i] = v
	}
	for i := 0; i < len(args); {
		switch a := args[i].(type) {
		case slog.Attr:
			if isContentKey(a.Key) {
				set(i, slog.String(a.Key, Redacted))
			}
			i++
		case string:
			if i+1 < len(args) && isContentKey(a) {
				set(i+1, Redacted)
			}
			i += 2
		default:
			i++
		}
	}
	if out == nil {
		return args
	}
	return out
}

// SlogLogger adapts log/slog to Logger.
type SlogLogger struct {
	l *slog.Logger
}

// NewSlog builds a slog handler for format ("json" or "text") writing to w
// at the given level.
func NewSlog(format, level string, w io.Writer) (*SlogLogger, error) {
	lvl, err := parseSlogLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(format) {
	case FormatJSON, "":
		h = slog.NewJSONHandler(w, opts)
	case FormatText:
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown slog format %q", format)
	}
	return &SlogLogger{l: slog.New(h)}, nil
}

// NewSlogLogger wraps an existing *slog.Logger; nil falls back to slog.Default().
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{l: l}
}

func (s *SlogLogger) log(ctx context.Context, lvl slog.Level, msg string, args []any) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.l.Log(ctx, lvl, msg, scrubArgs(args)...)
}

func (s *SlogLogger) Debug(ctx context.Context, msg string, args ...any) {
	s.log(ctx, slog.LevelDebug, msg, args)
}

func (s *SlogLogger) Info(ctx context.Context, msg string, args ...any) {
	s.log(ctx, slog.LevelInfo, msg, args)
}

func (s *SlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.log(ctx, slog.LevelWarn, msg, args)
}

func (s *SlogLogger) Error(ctx context.Context, msg string, args ...any) {
	s.log(ctx, slog.LevelError, msg, args)
}

func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{l: s.l.With(scrubArgs(args)...)}
}
