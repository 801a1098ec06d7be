package tts

import (
	"context"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/core"
)

// RemoteProcessor implements core.TTSProcessor on top of the remote engine,
// so queue workers can generate speech without knowing about jobs or polling.
type RemoteProcessor struct {
	engine   *Engine
	defaults core.TTSConfig
	log      *logger.Logger
}

// NewRemoteProcessor creates a processor. defaults fills any zero-valued
// parameter of an incoming request.
func NewRemoteProcessor(engine *Engine, defaults core.TTSConfig, log *logger.Logger) *RemoteProcessor {
	return &RemoteProcessor{
		engine:   engine,
		defaults: defaults,
		log:      log,
	}
}

// GetConfig returns the default generation configuration.
func (p *RemoteProcessor) GetConfig() core.TTSConfig {
	return p.defaults
}

// Process generates speech for text and returns the raw audio bytes.
func (p *RemoteProcessor) Process(ctx context.Context, text []byte, cfg core.TTSConfig) ([]byte, error) {
	merged := p.merge(cfg)

	result, err := p.engine.Generate(ctx, GenerateInput{
		Text:     string(text),
		VoiceID:  merged.Voice,
		Emotion:  merged.Emotion,
		Settings: SettingsFromTTSConfig(merged),
	})
	if err != nil {
		if p.log != nil {
			p.log.Error("Remote generation failed for voice %q: %v", merged.Voice, err)
		}

		return nil, fmt.Errorf("remote generation failed: %w", err)
	}

	data, err := p.engine.AudioBytes(ctx, result)
	if err != nil {
		return nil, err
	}

	return data, nil
}

// SettingsFromTTSConfig converts queue-level parameters into Settings.
func SettingsFromTTSConfig(cfg core.TTSConfig) Settings {
	return Settings{
		ChunkLength:       cfg.ChunkLength,
		MaxTokens:         cfg.MaxTokens,
		TopP:              cfg.TopP,
		Temperature:       cfg.Temperature,
		RepetitionPenalty: cfg.RepetitionPenalty,
		Seed:              cfg.Seed,
		PauseAmount:       cfg.PauseAmount,
		Speed:             cfg.Speed,
	}
}

// TTSConfigFromSettings is the inverse of SettingsFromTTSConfig.
func TTSConfigFromSettings(voice string, settings Settings) core.TTSConfig {
	return core.TTSConfig{
		Voice:             voice,
		Seed:              settings.Seed,
		ChunkLength:       settings.ChunkLength,
		MaxTokens:         settings.MaxTokens,
		TopP:              settings.TopP,
		RepetitionPenalty: settings.RepetitionPenalty,
		Temperature:       settings.Temperature,
		PauseAmount:       settings.PauseAmount,
		Speed:             settings.Speed,
	}
}

func (p *RemoteProcessor) merge(cfg core.TTSConfig) core.TTSConfig {
	merged := cfg

	if merged.Voice == "" {
		merged.Voice = p.defaults.Voice
	}

	if merged.ChunkLength == 0 {
		merged.ChunkLength = p.defaults.ChunkLength
	}

	if merged.MaxTokens == 0 {
		merged.MaxTokens = p.defaults.MaxTokens
	}

	if merged.TopP == 0 {
		merged.TopP = p.defaults.TopP
	}

	if merged.Temperature == 0 {
		merged.Temperature = p.defaults.Temperature
	}

	if merged.RepetitionPenalty == 0 {
		merged.RepetitionPenalty = p.defaults.RepetitionPenalty
	}

	if merged.Speed == 0 {
		merged.Speed = p.defaults.Speed
	}

	if merged.Seed == 0 {
		merged.Seed = p.defaults.Seed
	}

	if merged.PauseAmount == 0 {
		merged.PauseAmount = p.defaults.PauseAmount
	}

	return merged
}
