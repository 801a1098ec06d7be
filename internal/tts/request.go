package tts

import (
	"strings"

	"github.com/book-expert/voice-studio/internal/config"
)

const taskTTS = "tts"

// Settings holds the user-editable generation parameters.
type Settings struct {
	ChunkLength       int     `json:"chunk_length"`
	MaxTokens         int     `json:"max_tokens"`
	TopP              float64 `json:"top_p"`
	Temperature       float64 `json:"temperature"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	// Seed 0 means unspecified; the service picks a random seed.
	Seed        int     `json:"seed"`
	PauseAmount float64 `json:"pause_amount"`
	Speed       float64 `json:"speed"`
}

// SettingsFromConfig returns the configured default settings.
func SettingsFromConfig(cfg config.GenerationConfig) Settings {
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

// Validate checks every parameter against its allowed range.
func (s Settings) Validate() error {
	switch {
	case s.ChunkLength <= 0:
		return newValidationError("chunk length must be positive, got %d", s.ChunkLength)
	case s.MaxTokens <= 0:
		return newValidationError("max tokens must be positive, got %d", s.MaxTokens)
	case s.TopP < 0 || s.TopP > 1:
		return newValidationError("top_p must be between 0.0 and 1.0, got %f", s.TopP)
	case s.Temperature <= 0:
		return newValidationError("temperature must be > 0.0, got %f", s.Temperature)
	case s.RepetitionPenalty < 1:
		return newValidationError("repetition penalty must be >= 1.0, got %f", s.RepetitionPenalty)
	case s.Seed < 0:
		return newValidationError("seed must be non-negative, got %d", s.Seed)
	case s.PauseAmount < 0:
		return newValidationError("pause amount must be >= 0.0, got %f", s.PauseAmount)
	case s.Speed <= 0:
		return newValidationError("speed must be > 0.0, got %f", s.Speed)
	}

	return nil
}

// GenerationRequest is one immutable submission to the inference service.
type GenerationRequest struct {
	Text       string
	VoiceID    string
	EmotionTag string
	Settings   Settings
}

// PromptText returns the text sent to the model, prefixed with the
// bracketed emotion tag when one is selected.
func (r GenerationRequest) PromptText() string {
	if r.EmotionTag == "" {
		return r.Text
	}

	return "[" + r.EmotionTag + "] " + r.Text
}

// BuildRequest assembles a GenerationRequest. Text is kept verbatim but must
// contain something other than whitespace.
func BuildRequest(settings Settings, voiceID, emotionTag, text string) (GenerationRequest, error) {
	if strings.TrimSpace(text) == "" {
		return GenerationRequest{}, newValidationError("no text entered")
	}

	validateErr := settings.Validate()
	if validateErr != nil {
		return GenerationRequest{}, validateErr
	}

	return GenerationRequest{
		Text:       text,
		VoiceID:    voiceID,
		EmotionTag: strings.TrimSpace(emotionTag),
		Settings:   settings,
	}, nil
}

// jobInput is the wire form of a generation request.
type jobInput struct {
	Task              string  `json:"task"`
	Text              string  `json:"text"`
	ReferenceID       string  `json:"reference_id,omitempty"`
	ChunkLength       int     `json:"chunk_length"`
	Format            string  `json:"format"`
	MaxNewTokens      int     `json:"max_new_tokens"`
	TopP              float64 `json:"top_p"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	Temperature       float64 `json:"temperature"`
	Seed              *int    `json:"seed"`
	PauseAmount       float64 `json:"pause_amount"`
	Speed             float64 `json:"speed"`
}

type jobEnvelope struct {
	Input any `json:"input"`
}

func (r GenerationRequest) payload(format string) jobEnvelope {
	input := jobInput{
		Task:              taskTTS,
		Text:              r.PromptText(),
		ReferenceID:       r.VoiceID,
		ChunkLength:       r.Settings.ChunkLength,
		Format:            format,
		MaxNewTokens:      r.Settings.MaxTokens,
		TopP:              r.Settings.TopP,
		RepetitionPenalty: r.Settings.RepetitionPenalty,
		Temperature:       r.Settings.Temperature,
		PauseAmount:       r.Settings.PauseAmount,
		Speed:             r.Settings.Speed,
	}

	if r.Settings.Seed != 0 {
		seed := r.Settings.Seed
		input.Seed = &seed
	}

	return jobEnvelope{Input: input}
}
