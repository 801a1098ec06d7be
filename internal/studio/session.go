// Package studio holds the state of one user's generation session: the
// selected voice, emotion and settings, whether a generation is running, and
// the audio of the last result.
package studio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/playback"
	"github.com/book-expert/voice-studio/internal/tts"
	"github.com/book-expert/voice-studio/internal/voices"
)

// Static errors.
var (
	ErrGenerationInProgress = errors.New("a generation is already in progress")
	ErrUnknownEmotion       = errors.New("unknown emotion")
	ErrNoVoice              = errors.New("no voice selected")
)

// Emotion is a style tag prepended to the text.
type Emotion struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Emotions returns the selectable emotion styles.
func Emotions() []Emotion {
	return []Emotion{
		{ID: "excited", Label: "Excited"},
		{ID: "whisper", Label: "Whisper"},
		{ID: "sad", Label: "Sad"},
		{ID: "laugh", Label: "Laugh"},
		{ID: "serious", Label: "Serious"},
	}
}

// State is a serializable snapshot of a session.
type State struct {
	VoiceID    string       `json:"voice_id"`
	Emotion    string       `json:"emotion,omitempty"`
	Settings   tts.Settings `json:"settings"`
	Generating bool         `json:"generating"`
	Job        *tts.Job     `json:"job,omitempty"`
	AudioURL   string       `json:"audio_url,omitempty"`
	MIMEType   string       `json:"mime_type,omitempty"`
	LastError  string       `json:"last_error,omitempty"`
}

// Generator runs one generation.
type Generator interface {
	Generate(ctx context.Context, in tts.GenerateInput) (*tts.Result, error)
}

// Session serializes generations and owns the playback URL of the current
// result. It is safe for concurrent use.
type Session struct {
	generator Generator
	registry  *playback.Registry
	catalog   *voices.Catalog
	log       *logger.Logger

	mu    sync.Mutex
	state State
}

// NewSession creates a session starting from the given voice and settings.
func NewSession(
	generator Generator,
	registry *playback.Registry,
	catalog *voices.Catalog,
	initial State,
	log *logger.Logger,
) *Session {
	initial.Generating = false

	return &Session{
		generator: generator,
		registry:  registry,
		catalog:   catalog,
		log:       log,
		state:     initial,
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.copyState()
}

// Voices returns the voices the user can choose from.
func (s *Session) Voices(ctx context.Context) []voices.Voice {
	if s.catalog == nil {
		return nil
	}

	return s.catalog.List(ctx)
}

// SelectVoice changes the voice used by the next generation. When a catalog
// is attached the id must be one of its voices.
func (s *Session) SelectVoice(ctx context.Context, voiceID string) error {
	if voiceID == "" {
		return ErrNoVoice
	}

	if s.catalog != nil {
		_, err := s.catalog.Find(ctx, voiceID)
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.state.VoiceID = voiceID
	s.mu.Unlock()

	return nil
}

// SetEmotion selects an emotion; the empty string clears it.
func (s *Session) SetEmotion(emotionID string) error {
	if emotionID != "" && !knownEmotion(emotionID) {
		return fmt.Errorf("%w: %q", ErrUnknownEmotion, emotionID)
	}

	s.mu.Lock()
	s.state.Emotion = emotionID
	s.mu.Unlock()

	return nil
}

// UpdateSettings replaces the generation settings after validating them.
func (s *Session) UpdateSettings(settings tts.Settings) error {
	err := settings.Validate()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.state.Settings = settings
	s.mu.Unlock()

	return nil
}

// Generate runs one generation with the current selections. Only one
// generation may run at a time; a new result replaces and revokes the
// previous audio URL.
func (s *Session) Generate(ctx context.Context, text string) (State, error) {
	s.mu.Lock()
	if s.state.Generating {
		s.mu.Unlock()

		return State{}, ErrGenerationInProgress
	}

	s.state.Generating = true
	s.state.LastError = ""
	in := tts.GenerateInput{
		Text:     text,
		VoiceID:  s.state.VoiceID,
		Emotion:  s.state.Emotion,
		Settings: s.state.Settings,
	}
	s.mu.Unlock()

	result, err := s.generator.Generate(ctx, in)

	var audioURL string
	if err == nil {
		audioURL, err = s.registry.Create(ctx, result.Audio)
	}

	s.mu.Lock()
	s.state.Generating = false

	if result != nil && result.Job != nil {
		job := *result.Job
		s.state.Job = &job
	}

	var previousURL string

	if err != nil {
		s.state.LastError = err.Error()
	} else {
		previousURL = s.state.AudioURL
		s.state.AudioURL = audioURL
		s.state.MIMEType = result.Audio.MIMEType
	}

	snapshot := s.copyState()
	s.mu.Unlock()

	if previousURL != "" {
		s.revoke(ctx, previousURL)
	}

	if err != nil {
		if s.log != nil {
			s.log.Error("Generation failed: %v", err)
		}

		return snapshot, err
	}

	return snapshot, nil
}

// Audio returns the bytes behind the current audio URL.
func (s *Session) Audio(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	audioURL := s.state.AudioURL
	s.mu.Unlock()

	return s.registry.Open(ctx, audioURL)
}

// Close revokes the current audio URL.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	audioURL := s.state.AudioURL
	s.state.AudioURL = ""
	s.state.MIMEType = ""
	s.mu.Unlock()

	if audioURL == "" {
		return nil
	}

	return s.registry.Revoke(ctx, audioURL)
}

func (s *Session) revoke(ctx context.Context, audioURL string) {
	err := s.registry.Revoke(ctx, audioURL)
	if err != nil && s.log != nil {
		s.log.Warn("Failed to revoke %s: %v", audioURL, err)
	}
}

func (s *Session) copyState() State {
	snapshot := s.state

	if s.state.Job != nil {
		job := *s.state.Job
		snapshot.Job = &job
	}

	return snapshot
}

func knownEmotion(emotionID string) bool {
	for _, emotion := range Emotions() {
		if emotion.ID == emotionID {
			return true
		}
	}

	return false
}
