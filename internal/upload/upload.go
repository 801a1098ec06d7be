// Package upload registers reference voices with the inference backend.
//
// Deployments differ in how a voice reaches the backend, so three uploaders
// implement core.VoiceUploader and New picks one from configuration:
//
//   - presigned: ask the service for presigned URLs and PUT the files directly
//   - proxy: send the audio base64-encoded through a synchronous task
//   - multipart: POST a multipart form to a local upload endpoint
package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/config"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/tts"
	"github.com/book-expert/voice-studio/internal/tts/audio"
	"github.com/book-expert/voice-studio/internal/tts/ttsutils"
)

// Upload modes accepted in configuration.
const (
	ModePresigned = "presigned"
	ModeProxy     = "proxy"
	ModeMultipart = "multipart"
)

const (
	contentTypeOctetStream = "application/octet-stream"
	contentTypeText        = "text/plain; charset=utf-8"
	extTranscript          = ".lab"
	defaultUploadTimeout   = 2 * time.Minute
)

// Static errors.
var (
	ErrUnknownMode = errors.New("unknown upload mode")
	ErrNoEndpoint  = errors.New("multipart upload endpoint is not configured")
)

// SyncRunner executes a synchronous task on the inference service.
type SyncRunner interface {
	RunSync(ctx context.Context, input, out any) error
}

// New returns the uploader selected by cfg.Mode.
func New(
	cfg config.UploadConfig,
	runner SyncRunner,
	tokens core.TokenSource,
	log *logger.Logger,
) (core.VoiceUploader, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", ModePresigned:
		return NewPresigned(runner, log), nil
	case ModeProxy:
		return NewProxy(runner, log), nil
	case ModeMultipart:
		if cfg.MultipartURL == "" {
			return nil, ErrNoEndpoint
		}

		return NewMultipart(cfg.MultipartURL, tokens, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}
}

// validate checks the inputs shared by every uploader and returns the
// sanitized voice name.
func validate(name string, data []byte) (string, error) {
	voiceName := ttsutils.SanitizeFilename(name)
	if voiceName == "" {
		return "", fmt.Errorf("%w: voice name is required", tts.ErrValidation)
	}

	if len(data) == 0 {
		return "", fmt.Errorf("%w: audio file is required", tts.ErrValidation)
	}

	return voiceName, nil
}

// contentType sniffs the audio container.
func contentType(data []byte) string {
	if format, ok := audio.Detect(data); ok {
		return format.MIMEType()
	}

	return contentTypeOctetStream
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultUploadTimeout}
}

func statusOK(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}
