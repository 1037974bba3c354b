package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/audiodesc/internal/ai/providers"
	"github.com/dmitrijs2005/audiodesc/internal/common"
	"github.com/joho/godotenv"
)

var (
	loadDotEnv = func() error { return godotenv.Load() }
	lookupEnv  = os.LookupEnv
)

// providerKeyEnv lists the conventional key variables consulted when
// AUDIODESC_AI_API_KEY is not set.
var providerKeyEnv = map[string]string{
	providers.ProviderOpenAI:    "OPENAI_API_KEY",
	providers.ProviderGemini:    "GEMINI_API_KEY",
	providers.ProviderKimi:      "ARK_API_KEY",
	providers.ProviderAnthropic: "ANTHROPIC_API_KEY",
}

// parseEnv loads .env from the working directory if present, then
// overlays AUDIODESC_* variables. Variables already in the process
// environment win over .env.
func parseEnv(config *Config) error {
	if err := loadDotEnv(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	var errs []error
	str := func(name string, dst *string) {
		if v, ok := env(name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := env(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", common.EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := env(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", common.EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	str("HTTP_ADDRESS", &config.HTTPAddress)
	str("JWT_SECRET", &config.JWTSecret)
	dur("TOKEN_TTL", &config.TokenTTL)
	if v, ok := env("MAX_UPLOAD_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sMAX_UPLOAD_BYTES: %w", common.EnvPrefix, err))
		} else {
			config.MaxUploadBytes = n
		}
	}

	str("CONSOLE_USER", &config.ConsoleUser)

	str("STORAGE_DRIVER", &config.StorageDriver)
	str("STORAGE_DSN", &config.StorageDSN)
	str("ENCRYPTION_KEY", &config.EncryptionKey)

	str("AI_PROVIDER", &config.AIProvider)
	str("AI_MODEL", &config.AIModel)
	str("AI_API_KEY", &config.AIAPIKey)
	str("AI_BASE_URL", &config.AIBaseURL)
	num("AI_MAX_TOKENS", &config.AIMaxTokens)
	str("LANGUAGE", &config.Language)

	str("ARTIFACT_STORE", &config.ArtifactStore)
	dur("ARTIFACT_TTL", &config.ArtifactTTL)
	dur("ARTIFACT_URL_TTL", &config.ArtifactURLTTL)
	str("S3_BUCKET", &config.S3Bucket)
	str("S3_REGION", &config.S3Region)
	str("S3_ENDPOINT", &config.S3Endpoint)
	str("S3_ACCESS_KEY", &config.S3AccessKey)
	str("S3_SECRET_KEY", &config.S3SecretKey)
	str("AZURE_ACCOUNT", &config.AzureAccount)
	str("AZURE_KEY", &config.AzureKey)
	str("AZURE_CONTAINER", &config.AzureContainer)
	str("AZURE_SERVICE_URL", &config.AzureServiceURL)

	num("QUEUE_CAPACITY", &config.QueueCapacity)
	str("DRAIN_POLICY", &config.DrainPolicy)

	num("MAX_CHUNK_LEN", &config.MaxChunkLen)
	num("HISTORY_LIMIT", &config.HistoryLimit)

	num("RETRY_MAX_ATTEMPTS", &config.RetryMaxAttempts)
	dur("RETRY_INITIAL_DELAY", &config.RetryInitialDelay)
	dur("RETRY_MAX_DELAY", &config.RetryMaxDelay)

	str("LOG_FORMAT", &config.LogFormat)
	str("LOG_LEVEL", &config.LogLevel)

	if config.AIAPIKey == "" {
		if name, ok := providerKeyEnv[strings.ToLower(config.AIProvider)]; ok {
			if v, ok := lookupEnv(name); ok {
				config.AIAPIKey = strings.TrimSpace(v)
			}
		}
	}

	return errors.Join(errs...)
}

// env reads AUDIODESC_<name>, treating blank values as unset.
func env(name string) (string, bool) {
	v, ok := lookupEnv(common.EnvPrefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}
