// Package config handles configuration for the audiodesc binaries:
// defaults, a JSON overlay, environment variables and command-line flags,
// applied in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/audiodesc/internal/ai/providers"
	"github.com/dmitrijs2005/audiodesc/internal/cryptox"
	"github.com/dmitrijs2005/audiodesc/internal/logging"
	"github.com/dmitrijs2005/audiodesc/internal/queue"
	"github.com/dmitrijs2005/audiodesc/internal/storage"
)

// Artifact store backends.
const (
	ArtifactsMemory = "memory"
	ArtifactsS3     = "s3"
	ArtifactsAzure  = "azure"
)

// Config holds runtime settings shared by the server and the console.
//
// Secrets (EncryptionKey, JWTSecret, AIAPIKey, S3SecretKey, AzureKey) have
// no usable defaults outside development.
type Config struct {
	HTTPAddress    string
	JWTSecret      string
	TokenTTL       time.Duration
	MaxUploadBytes int64
	ConsoleUser    string

	StorageDriver string
	StorageDSN    string
	EncryptionKey string

	AIProvider  string
	AIModel     string
	AIAPIKey    string
	AIBaseURL   string
	AIMaxTokens int
	Language    string

	ArtifactStore   string
	ArtifactTTL     time.Duration
	ArtifactURLTTL  time.Duration
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	AzureAccount    string
	AzureKey        string
	AzureContainer  string
	AzureServiceURL string

	QueueCapacity int
	DrainPolicy   string

	MaxChunkLen  int
	HistoryLimit int

	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration

	LogFormat string
	LogLevel  string
}

// LoadDefaults populates Config with development defaults.
// NOTE: the secrets are empty; Validate rejects them until set.
func (c *Config) LoadDefaults() {
	c.HTTPAddress = ":8080"
	c.TokenTTL = 24 * time.Hour
	c.MaxUploadBytes = 20 << 20
	c.ConsoleUser = "local"

	c.StorageDriver = storage.DriverSQLite
	c.StorageDSN = "audiodesc.db"

	c.AIProvider = providers.ProviderGemini
	c.Language = "pt-BR"

	c.ArtifactStore = ArtifactsMemory
	c.ArtifactTTL = 48 * time.Hour
	c.ArtifactURLTTL = 15 * time.Minute
	c.S3Region = "us-east-1"

	c.QueueCapacity = 0
	c.DrainPolicy = string(queue.DrainDiscard)

	c.MaxChunkLen = 4000
	c.HistoryLimit = 10

	c.RetryMaxAttempts = 3
	c.RetryInitialDelay = 2 * time.Second
	c.RetryMaxDelay = 10 * time.Second

	c.LogFormat = logging.FormatJSON
	c.LogLevel = "info"
}

// Load builds a Config from defaults, then the JSON file named by -c/-config,
// then the environment, then the flags in args (os.Args[1:] in production).
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig is Load over the process arguments.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Validate reports every setting the binaries cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.EncryptionKey == "" {
		errs = append(errs, errors.New("encryption key is required"))
	} else if _, err := cryptox.ParseKey(c.EncryptionKey); err != nil {
		errs = append(errs, fmt.Errorf("encryption key: %w", err))
	}
	if !slices.Contains(storage.Drivers(), strings.ToLower(c.StorageDriver)) {
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.StorageDriver))
	}
	if c.AIProvider != "" && !slices.Contains(providers.Names(), strings.ToLower(c.AIProvider)) {
		errs = append(errs, fmt.Errorf("unknown ai provider %q", c.AIProvider))
	}
	switch strings.ToLower(c.ArtifactStore) {
	case ArtifactsMemory:
	case ArtifactsS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("s3 bucket is required"))
		}
	case ArtifactsAzure:
		if c.AzureAccount == "" || c.AzureKey == "" || c.AzureContainer == "" {
			errs = append(errs, errors.New("azure account, key and container are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown artifact store %q", c.ArtifactStore))
	}
	if _, err := queue.ParseDrainPolicy(c.DrainPolicy); err != nil {
		errs = append(errs, err)
	}
	if c.QueueCapacity < 0 {
		errs = append(errs, errors.New("queue capacity must not be negative"))
	}
	if c.MaxChunkLen <= 0 {
		errs = append(errs, errors.New("max chunk length must be positive"))
	}
	if c.RetryMaxAttempts < 1 {
		errs = append(errs, errors.New("retry attempts must be at least 1"))
	}
	if c.RetryInitialDelay <= 0 || c.RetryMaxDelay < c.RetryInitialDelay {
		errs = append(errs, errors.New("retry delays must be positive and max >= initial"))
	}

	return errors.Join(errs...)
}

// ValidateServer adds the checks only the HTTP server needs.
func (c *Config) ValidateServer() error {
	err := c.Validate()
	if c.JWTSecret == "" {
		err = errors.Join(err, errors.New("jwt secret is required"))
	}
	if c.HTTPAddress == "" {
		err = errors.Join(err, errors.New("http address is required"))
	}
	return err
}
