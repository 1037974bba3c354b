package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/audiodesc/internal/flagx"
)

// newFlagSet binds the flags to config's current values, so anything not
// given on the command line keeps what defaults, JSON and env produced.
//
//	-a       HTTP bind address (":8080")
//	-s       JWT HMAC secret
//	-user    console user id
//	-d       storage driver (sqlite|postgres|bolt|memory)
//	-dsn     storage DSN or file path
//	-k       base64 AES-256 encryption key
//	-p       AI provider (openai|gemini|kimi|lmstudio|anthropic)
//	-m       AI model
//	-lang    answer language
//	-store   artifact store (memory|s3|azure)
//	-queue   queue capacity, 0 = unbounded
//	-drain   drain policy on shutdown (discard|persist)
//	-log     log format (json|text|zerolog)
//	-level   log level
func newFlagSet(config *Config) *flag.FlagSet {
	fs := flag.NewFlagSet("audiodesc", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddress, "a", config.HTTPAddress, "address and port to run server")
	fs.StringVar(&config.JWTSecret, "s", config.JWTSecret, "JWT secret key")
	fs.StringVar(&config.ConsoleUser, "user", config.ConsoleUser, "console user id")
	fs.DurationVar(&config.TokenTTL, "ttl", config.TokenTTL, "issued token validity")

	fs.StringVar(&config.StorageDriver, "d", config.StorageDriver, "storage driver")
	fs.StringVar(&config.StorageDSN, "dsn", config.StorageDSN, "storage DSN")
	fs.StringVar(&config.EncryptionKey, "k", config.EncryptionKey, "encryption key (base64)")

	fs.StringVar(&config.AIProvider, "p", config.AIProvider, "AI provider")
	fs.StringVar(&config.AIModel, "m", config.AIModel, "AI model")
	fs.StringVar(&config.AIBaseURL, "base-url", config.AIBaseURL, "AI base URL")
	fs.StringVar(&config.Language, "lang", config.Language, "answer language")

	fs.StringVar(&config.ArtifactStore, "store", config.ArtifactStore, "artifact store")

	fs.IntVar(&config.QueueCapacity, "queue", config.QueueCapacity, "queue capacity, 0 = unbounded")
	fs.StringVar(&config.DrainPolicy, "drain", config.DrainPolicy, "drain policy")
	fs.IntVar(&config.MaxChunkLen, "chunk", config.MaxChunkLen, "max chunk length")

	fs.StringVar(&config.LogFormat, "log", config.LogFormat, "log format")
	fs.StringVar(&config.LogLevel, "level", config.LogLevel, "log level")
	return fs
}

// parseFlags applies the flags in args, ignoring any that belong to other
// layers (for example -c).
func parseFlags(config *Config, args []string) error {
	fs := newFlagSet(config)
	if err := fs.Parse(flagx.FilterArgs(args, flagx.NamesOf(fs))); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	return nil
}
