// Package config provides the configuration structure for the voice studio.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// Environment variables that override secrets from the TOML file.
const (
	EnvAPIKey        = "VOICE_STUDIO_API_KEY"
	EnvSessionToken  = "VOICE_STUDIO_SESSION_TOKEN"
	EnvAccountNumber = "VOICE_STUDIO_PAYMENT_ACCOUNT"
	EnvBankID        = "VOICE_STUDIO_PAYMENT_BANK"
)

// Defaults applied to zero-valued fields.
const (
	defaultTimeoutSeconds      = 600
	defaultPollIntervalSeconds = 5
	defaultMaxPollAttempts     = 60
	defaultAudioFormat         = "wav"
	defaultVoiceCacheSeconds   = 300
	defaultUploadMode          = "presigned"
	defaultQRBaseURL           = "https://qr.sepay.vn/img"
	defaultPaymentPollSeconds  = 3
	defaultPaymentTimeout      = 600
	defaultBalanceSubject      = "profiles.balance"
	defaultChunkLength         = 200
	defaultMaxTokens           = 1024
	defaultTopP                = 0.8
	defaultTemperature         = 0.8
	defaultRepetitionPenalty   = 1.1
	defaultSpeed               = 1.0
)

// InferenceConfig holds the remote inference endpoint settings.
type InferenceConfig struct {
	BaseURL             string `toml:"base_url"`
	APIKey              string `toml:"api_key"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	MaxPollAttempts     int    `toml:"max_poll_attempts"`
	AudioFormat         string `toml:"audio_format"`
}

// Timeout returns the HTTP timeout as a duration.
func (c InferenceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollInterval returns the status poll interval as a duration.
func (c InferenceConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// GenerationConfig holds the default generation parameters shown to the user.
type GenerationConfig struct {
	ChunkLength       int     `toml:"chunk_length"`
	MaxTokens         int     `toml:"max_tokens"`
	TopP              float64 `toml:"top_p"`
	Temperature       float64 `toml:"temperature"`
	RepetitionPenalty float64 `toml:"repetition_penalty"`
	Seed              int     `toml:"seed"`
	PauseAmount       float64 `toml:"pause_amount"`
	Speed             float64 `toml:"speed"`
	DefaultVoice      string  `toml:"default_voice"`
}

// VoicePreset is a voice that is always offered, regardless of the remote list.
type VoicePreset struct {
	ID          string `toml:"id"`
	Name        string `toml:"name"`
	Description string `toml:"description"`
	PreviewURL  string `toml:"preview_url"`
}

// VoicesConfig holds the voice catalog settings.
type VoicesConfig struct {
	CacheTTLSeconds int           `toml:"cache_ttl_seconds"`
	Presets         []VoicePreset `toml:"presets"`
}

// CacheTTL returns the remote voice-list cache lifetime.
func (c VoicesConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// UploadConfig selects the reference-voice upload contract for this deployment.
type UploadConfig struct {
	Mode         string `toml:"mode"`
	MultipartURL string `toml:"multipart_url"`
}

// AuthConfig holds the session token issued by the external auth provider.
type AuthConfig struct {
	SessionToken string `toml:"session_token"`
}

// PaymentConfig holds the VietQR manual payment settings.
type PaymentConfig struct {
	BankID              string `toml:"bank_id"`
	AccountNumber       string `toml:"account_number"`
	Amount              int64  `toml:"amount"`
	QRBaseURL           string `toml:"qr_base_url"`
	DatabaseDSN         string `toml:"database_dsn"`
	BalanceSubject      string `toml:"balance_subject"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
}

// PollInterval returns the balance poll interval as a duration.
func (c PaymentConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Timeout returns how long a payment confirmation may wait.
func (c PaymentConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                      string `toml:"url"`
	TextProcessedSubject     string `toml:"text_processed_subject"`
	AudioChunkCreatedSubject string `toml:"audio_chunk_created_subject"`
	AudioObjectStoreBucket   string `toml:"audio_object_store_bucket"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	OutputDir   string `toml:"output_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Inference  InferenceConfig  `toml:"inference"`
	Generation GenerationConfig `toml:"generation"`
	Voices     VoicesConfig     `toml:"voices"`
	Upload     UploadConfig     `toml:"upload"`
	Auth       AuthConfig       `toml:"auth"`
	Payment    PaymentConfig    `toml:"payment"`
	NATS       NATSConfig       `toml:"nats"`
	Paths      PathsConfig      `toml:"paths"`
}

// Load loads the configuration through the central configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyEnv()
	cfg.ApplyDefaults()

	return &cfg, nil
}

// LoadFile reads a TOML configuration file from disk.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, parseErr := Parse(data)
	if parseErr != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, parseErr)
	}

	return cfg, nil
}

// Parse decodes TOML data and applies environment overrides and defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	err := toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal TOML: %w", err)
	}

	cfg.ApplyEnv()
	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyEnv overrides deployment secrets from the environment.
func (c *Config) ApplyEnv() {
	if apiKey := os.Getenv(EnvAPIKey); apiKey != "" {
		c.Inference.APIKey = apiKey
	}

	if token := os.Getenv(EnvSessionToken); token != "" {
		c.Auth.SessionToken = token
	}

	if account := os.Getenv(EnvAccountNumber); account != "" {
		c.Payment.AccountNumber = account
	}

	if bank := os.Getenv(EnvBankID); bank != "" {
		c.Payment.BankID = bank
	}
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	setInt(&c.Inference.TimeoutSeconds, defaultTimeoutSeconds)
	setInt(&c.Inference.PollIntervalSeconds, defaultPollIntervalSeconds)
	setInt(&c.Inference.MaxPollAttempts, defaultMaxPollAttempts)
	setString(&c.Inference.AudioFormat, defaultAudioFormat)

	setInt(&c.Generation.ChunkLength, defaultChunkLength)
	setInt(&c.Generation.MaxTokens, defaultMaxTokens)
	setFloat(&c.Generation.TopP, defaultTopP)
	setFloat(&c.Generation.Temperature, defaultTemperature)
	setFloat(&c.Generation.RepetitionPenalty, defaultRepetitionPenalty)
	setFloat(&c.Generation.Speed, defaultSpeed)

	setInt(&c.Voices.CacheTTLSeconds, defaultVoiceCacheSeconds)
	setString(&c.Upload.Mode, defaultUploadMode)

	setString(&c.Payment.QRBaseURL, defaultQRBaseURL)
	setString(&c.Payment.BalanceSubject, defaultBalanceSubject)
	setInt(&c.Payment.PollIntervalSeconds, defaultPaymentPollSeconds)
	setInt(&c.Payment.TimeoutSeconds, defaultPaymentTimeout)
}

func setInt(field *int, value int) {
	if *field == 0 {
		*field = value
	}
}

func setFloat(field *float64, value float64) {
	if *field == 0 {
		*field = value
	}
}

func setString(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
