package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/tts"
)

const opMultipart = "upload voice form"

// Multipart posts the voice as a multipart form with the fields id, text and
// audio, authenticated with the user's session token.
type Multipart struct {
	endpoint   string
	tokens     core.TokenSource
	httpClient *http.Client
	log        *logger.Logger
}

// NewMultipart creates a Multipart uploader for endpoint. tokens may be nil.
func NewMultipart(endpoint string, tokens core.TokenSource, log *logger.Logger) *Multipart {
	return &Multipart{
		endpoint:   endpoint,
		tokens:     tokens,
		httpClient: newHTTPClient(),
		log:        log,
	}
}

type multipartResponse struct {
	VoiceID string `json:"voice_id"`
	ID      string `json:"id"`
}

// Upload sends the form. The voice id is taken from the response when the
// endpoint returns one and is the sanitized name otherwise.
func (m *Multipart) Upload(ctx context.Context, name, transcript string, data []byte) (string, error) {
	voiceName, err := validate(name, data)
	if err != nil {
		return "", err
	}

	body, formType, err := buildForm(voiceName, transcript, data)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}

	req.Header.Set("Content-Type", formType)

	if m.tokens != nil {
		token, tokenErr := m.tokens.Token(ctx)
		if tokenErr != nil {
			return "", fmt.Errorf("failed to obtain session token: %w", tokenErr)
		}

		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", &tts.NetworkError{Op: opMultipart, URL: m.endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	if !statusOK(resp.StatusCode) {
		return "", &tts.NetworkError{
			Op:         opMultipart,
			URL:        m.endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(bytes.TrimSpace(raw)),
		}
	}

	voiceID := voiceName

	var parsed multipartResponse
	if json.Unmarshal(raw, &parsed) == nil {
		voiceID = firstNonEmpty(parsed.VoiceID, parsed.ID, voiceName)
	}

	if m.log != nil {
		m.log.Info("Uploaded reference voice %q as %s", voiceName, voiceID)
	}

	return voiceID, nil
}

func buildForm(voiceName, transcript string, data []byte) (*bytes.Buffer, string, error) {
	var body bytes.Buffer

	writer := multipart.NewWriter(&body)

	fields := [][2]string{{"id", voiceName}, {"text", transcript}}
	for _, field := range fields {
		err := writer.WriteField(field[0], field[1])
		if err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", field[0], err)
		}
	}

	part, err := writer.CreateFormFile("audio", voiceName+".wav")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create audio part: %w", err)
	}

	_, err = part.Write(data)
	if err != nil {
		return nil, "", fmt.Errorf("failed to write audio part: %w", err)
	}

	err = writer.Close()
	if err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}

	return &body, writer.FormDataContentType(), nil
}
