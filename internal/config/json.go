package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/audiodesc/internal/flagx"
	"github.com/dmitrijs2005/audiodesc/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept
// "90s" strings or integer nanoseconds. Absent fields leave the current
// value untouched.
type JsonConfig struct {
	HTTPAddress    string         `json:"http_address"`
	JWTSecret      string         `json:"jwt_secret"`
	TokenTTL       timex.Duration `json:"token_ttl"`
	MaxUploadBytes int64          `json:"max_upload_bytes"`
	ConsoleUser    string         `json:"console_user"`

	StorageDriver string `json:"storage_driver"`
	StorageDSN    string `json:"storage_dsn"`
	EncryptionKey string `json:"encryption_key"`

	AIProvider  string `json:"ai_provider"`
	AIModel     string `json:"ai_model"`
	AIAPIKey    string `json:"ai_api_key"`
	AIBaseURL   string `json:"ai_base_url"`
	AIMaxTokens int    `json:"ai_max_tokens"`
	Language    string `json:"language"`

	ArtifactStore   string         `json:"artifact_store"`
	ArtifactTTL     timex.Duration `json:"artifact_ttl"`
	ArtifactURLTTL  timex.Duration `json:"artifact_url_ttl"`
	S3Bucket        string         `json:"s3_bucket"`
	S3Region        string         `json:"s3_region"`
	S3Endpoint      string         `json:"s3_endpoint"`
	S3AccessKey     string         `json:"s3_access_key"`
	S3SecretKey     string         `json:"s3_secret_key"`
	AzureAccount    string         `json:"azure_account"`
	AzureKey        string         `json:"azure_key"`
	AzureContainer  string         `json:"azure_container"`
	AzureServiceURL string         `json:"azure_service_url"`

	QueueCapacity *int   `json:"queue_capacity"`
	DrainPolicy   string `json:"drain_policy"`

	MaxChunkLen  int `json:"max_chunk_len"`
	HistoryLimit int `json:"history_limit"`

	RetryMaxAttempts  int            `json:"retry_max_attempts"`
	RetryInitialDelay timex.Duration `json:"retry_initial_delay"`
	RetryMaxDelay     timex.Duration `json:"retry_max_delay"`

	LogFormat string `json:"log_format"`
	LogLevel  string `json:"log_level"`
}

// parseJson overlays the file named by -c/-config onto config. No flag,
// no change.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&config.HTTPAddress, c.HTTPAddress)
	setString(&config.JWTSecret, c.JWTSecret)
	setDuration(&config.TokenTTL, c.TokenTTL)
	if c.MaxUploadBytes > 0 {
		config.MaxUploadBytes = c.MaxUploadBytes
	}

	setString(&config.ConsoleUser, c.ConsoleUser)

	setString(&config.StorageDriver, c.StorageDriver)
	setString(&config.StorageDSN, c.StorageDSN)
	setString(&config.EncryptionKey, c.EncryptionKey)

	setString(&config.AIProvider, c.AIProvider)
	setString(&config.AIModel, c.AIModel)
	setString(&config.AIAPIKey, c.AIAPIKey)
	setString(&config.AIBaseURL, c.AIBaseURL)
	setInt(&config.AIMaxTokens, c.AIMaxTokens)
	setString(&config.Language, c.Language)

	setString(&config.ArtifactStore, c.ArtifactStore)
	setDuration(&config.ArtifactTTL, c.ArtifactTTL)
	setDuration(&config.ArtifactURLTTL, c.ArtifactURLTTL)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3Endpoint, c.S3Endpoint)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.AzureAccount, c.AzureAccount)
	setString(&config.AzureKey, c.AzureKey)
	setString(&config.AzureContainer, c.AzureContainer)
	setString(&config.AzureServiceURL, c.AzureServiceURL)

	// zero is meaningful (unbounded), so presence is tracked with a pointer
	if c.QueueCapacity != nil {
		config.QueueCapacity = *c.QueueCapacity
	}
	setString(&config.DrainPolicy, c.DrainPolicy)

	setInt(&config.MaxChunkLen, c.MaxChunkLen)
	setInt(&config.HistoryLimit, c.HistoryLimit)

	setInt(&config.RetryMaxAttempts, c.RetryMaxAttempts)
	setDuration(&config.RetryInitialDelay, c.RetryInitialDelay)
	setDuration(&config.RetryMaxDelay, c.RetryMaxDelay)

	setString(&config.LogFormat, c.LogFormat)
	setString(&config.LogLevel, c.LogLevel)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
