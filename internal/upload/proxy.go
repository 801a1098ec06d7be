package upload

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/tts"
)

const taskUploadVoice = "upload_voice"

// Proxy sends the reference audio through the inference service itself.
type Proxy struct {
	runner SyncRunner
	log    *logger.Logger
}

// NewProxy creates a Proxy uploader.
func NewProxy(runner SyncRunner, log *logger.Logger) *Proxy {
	return &Proxy{runner: runner, log: log}
}

type proxyInput struct {
	Task        string `json:"task"`
	Name        string `json:"name"`
	Text        string `json:"text"`
	Filename    string `json:"filename"`
	AudioBase64 string `json:"audio_base64"`
}

type proxyResponse struct {
	Status string `json:"status"`
	Output struct {
		VoiceID string `json:"voice_id"`
		ID      string `json:"id"`
		Error   string `json:"error"`
	} `json:"output"`
}

// Upload registers the voice and returns the id the service assigned.
func (p *Proxy) Upload(ctx context.Context, name, transcript string, data []byte) (string, error) {
	voiceName, err := validate(name, data)
	if err != nil {
		return "", err
	}

	input := proxyInput{
		Task:        taskUploadVoice,
		Name:        voiceName,
		Text:        transcript,
		Filename:    voiceName + ".wav",
		AudioBase64: base64.StdEncoding.EncodeToString(data),
	}

	var resp proxyResponse

	err = p.runner.RunSync(ctx, input, &resp)
	if err != nil {
		return "", fmt.Errorf("failed to upload voice %q: %w", voiceName, err)
	}

	voiceID := firstNonEmpty(resp.Output.VoiceID, resp.Output.ID)
	if voiceID == "" {
		reason := firstNonEmpty(resp.Output.Error, "response carries no voice id")

		return "", fmt.Errorf("%w: %s", tts.ErrProtocol, reason)
	}

	if p.log != nil {
		p.log.Info("Uploaded reference voice %q as %s", voiceName, voiceID)
	}

	return voiceID, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}

	return ""
}
