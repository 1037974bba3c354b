package logging

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger adapts zerolog to Logger. Key–value args are attached as
// event fields with content values redacted.
type ZerologLogger struct {
	l zerolog.Logger
}

func NewZerologLogger(w io.Writer, level string) (*ZerologLogger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}
	zerolog.TimeFieldFormat = time.RFC3339
	return &ZerologLogger{l: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}, nil
}

func (z *ZerologLogger) Debug(_ context.Context, msg string, args ...any) {
	z.l.Debug().Fields(scrubArgs(args)).Msg(msg)
}

func (z *ZerologLogger) Info(_ context.Context, msg string, args ...any) {
	z.l.Info().Fields(scrubArgs(args)).Msg(msg)
}

func (z *ZerologLogger) Warn(_ context.Context, msg string, args ...any) {
	z.l.Warn().Fields(scrubArgs(args)).Msg(msg)
}

func (z *ZerologLogger) Error(_ context.Context, msg string, args ...any) {
	z.l.Error().Fields(scrubArgs(args)).Msg(msg)
}

func (z *ZerologLogger) With(args ...any) Logger {
	return &ZerologLogger{l: z.l.With().Fields(scrubArgs(args)).Logger()}
}
