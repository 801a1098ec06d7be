// Package worker provides a NATS worker that turns processed page text into
// speech with the remote inference service.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/tts/audio"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Remote generation polls for up to several minutes, so a message gets far
// longer than a local synthesis would.
const handleMessageTimeout = 10 * time.Minute

var (
	// ErrVoiceEmpty indicates that neither the event nor the defaults name a voice.
	ErrVoiceEmpty = errors.New("voice cannot be empty")
	// ErrUnsupportedVoice indicates that the voice is not in the allowed list.
	ErrUnsupportedVoice = errors.New("unsupported voice")
	// ErrTopPRange indicates that TopP is outside [0.0, 1.0].
	ErrTopPRange = errors.New("top_p must be between 0.0 and 1.0")
	// ErrRepetitionPenaltyRange indicates that RepetitionPenalty is below 1.0.
	ErrRepetitionPenaltyRange = errors.New("repetition penalty must be >= 1.0")
	// ErrTemperatureRange indicates that Temperature is not positive.
	ErrTemperatureRange = errors.New("temperature must be > 0.0")
	// ErrSeedNegative indicates a negative seed.
	ErrSeedNegative = errors.New("seed must be non-negative")
	// ErrEmptyText indicates that the downloaded text has no content.
	ErrEmptyText = errors.New("text object is empty")
)

// NatsWorker listens for TextProcessedEvents on a NATS subject and answers
// each with an AudioChunkCreatedEvent.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	store          core.ObjectStore
	processor      core.TTSProcessor
	allowedVoices  map[string]struct{}
	log            *logger.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

// NewNatsWorker creates a new instance of a NATS worker. allowedVoices
// restricts the voices events may request; an empty list allows any voice.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	store core.ObjectStore,
	processor core.TTSProcessor,
	allowedVoices []string,
	log *logger.Logger,
) (*NatsWorker, error) {
	allowed := make(map[string]struct{}, len(allowedVoices))
	for _, voice := range allowedVoices {
		allowed[voice] = struct{}{}
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		processor:      processor,
		allowedVoices:  allowed,
		log:            log,
		ready:          make(chan struct{}),
	}, nil
}

// Ready is closed once the worker's subscription is active.
func (w *NatsWorker) Ready() <-chan struct{} {
	return w.ready
}

// Run starts the worker and begins listening for messages.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	flushErr := w.natsConnection.Flush()
	if flushErr != nil {
		return fmt.Errorf("failed to flush subscription to %s: %w", w.subject, flushErr)
	}

	w.readyOnce.Do(func() { close(w.ready) })
	w.log.Info("Listening for text on %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	event, err := w.parseEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse event: %v", err)

		return
	}

	audioKey, processErr := w.processTTSJob(ctx, event)
	if processErr != nil {
		w.log.Error("Failed to process TTS job for event %s: %v", event.Header.WorkflowID, processErr)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = w.publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// processTTSJob downloads the text, generates speech and uploads the audio.
func (w *NatsWorker) processTTSJob(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	ttsCfg := w.configFor(event)

	validationErr := w.validateTTSConfig(ttsCfg)
	if validationErr != nil {
		w.log.Error("Invalid TTS configuration for workflow %s: %v", event.Header.WorkflowID, validationErr)

		return "", validationErr
	}

	textData, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	if len(textData) == 0 {
		return "", fmt.Errorf("%w: %s", ErrEmptyText, event.TextKey)
	}

	audioData, err := w.processor.Process(ctx, textData, ttsCfg)
	if err != nil {
		return "", fmt.Errorf("failed to process text to speech: %w", err)
	}

	audioKey := uuid.NewString() + audio.Resolve(audioData, audio.FormatWAV).Extension()

	err = w.store.Upload(ctx, audioKey, audioData)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	w.log.Info("Page %d/%d of workflow %s stored as %s",
		event.PageNumber, event.TotalPages, event.Header.WorkflowID, audioKey)

	return audioKey, nil
}

// configFor applies the event's parameters over the processor defaults.
func (w *NatsWorker) configFor(event *events.TextProcessedEvent) core.TTSConfig {
	ttsCfg := w.processor.GetConfig()

	if event.Voice != "" {
		ttsCfg.Voice = event.Voice
	}

	if event.Seed != 0 {
		ttsCfg.Seed = event.Seed
	}

	if event.TopP != 0 {
		ttsCfg.TopP = event.TopP
	}

	if event.RepetitionPenalty != 0 {
		ttsCfg.RepetitionPenalty = event.RepetitionPenalty
	}

	if event.Temperature != 0 {
		ttsCfg.Temperature = event.Temperature
	}

	return ttsCfg
}

// publishReplyEvent marshals and responds with the AudioChunkCreatedEvent.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func (w *NatsWorker) parseEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}

// validateTTSConfig rejects parameters the inference service would refuse.
func (w *NatsWorker) validateTTSConfig(cfg core.TTSConfig) error {
	if cfg.Voice == "" {
		return ErrVoiceEmpty
	}

	if len(w.allowedVoices) > 0 {
		if _, ok := w.allowedVoices[cfg.Voice]; !ok {
			return fmt.Errorf("%w: '%s'", ErrUnsupportedVoice, cfg.Voice)
		}
	}

	if cfg.TopP < 0.0 || cfg.TopP > 1.0 {
		return fmt.Errorf("%w: got %f", ErrTopPRange, cfg.TopP)
	}

	if cfg.RepetitionPenalty < 1.0 {
		return fmt.Errorf("%w: got %f", ErrRepetitionPenaltyRange, cfg.RepetitionPenalty)
	}

	if cfg.Temperature <= 0.0 {
		return fmt.Errorf("%w: got %f", ErrTemperatureRange, cfg.Temperature)
	}

	if cfg.Seed < 0 {
		return fmt.Errorf("%w: got %d", ErrSeedNegative, cfg.Seed)
	}

	return nil
}
