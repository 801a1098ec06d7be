// Package core defines the core business interfaces shared by the voice studio packages.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// TTSConfig holds the per-request generation parameters for a single job.
type TTSConfig struct {
	Voice             string
	Emotion           string
	Seed              int
	ChunkLength       int
	MaxTokens         int
	TopP              float64
	RepetitionPenalty float64
	Temperature       float64
	PauseAmount       float64
	Speed             float64
}

// TTSProcessor defines the interface for a text-to-speech processing engine.
type TTSProcessor interface {
	Process(ctx context.Context, text []byte, cfg TTSConfig) ([]byte, error)
	GetConfig() TTSConfig
}

// VoiceUploader registers a reference voice (audio plus transcript) and
// returns the voice id to use in generation requests.
type VoiceUploader interface {
	Upload(ctx context.Context, name, transcript string, audio []byte) (string, error)
}

// TokenSource supplies a bearer credential for outgoing requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}
