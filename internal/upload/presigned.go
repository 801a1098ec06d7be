package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/tts"
)

const (
	taskPresignedURL = "generate_presigned_url"
	opPresignedPut   = "upload to presigned url"
	maxErrorBody     = 64 * 1024
)

// Presigned uploads reference files straight to object storage through
// presigned PUT URLs issued by the inference service.
type Presigned struct {
	runner     SyncRunner
	httpClient *http.Client
	log        *logger.Logger
}

// NewPresigned creates a Presigned uploader.
func NewPresigned(runner SyncRunner, log *logger.Logger) *Presigned {
	return &Presigned{
		runner:     runner,
		httpClient: newHTTPClient(),
		log:        log,
	}
}

type presignedInput struct {
	Task     string `json:"task"`
	Filename string `json:"filename"`
}

type presignedResponse struct {
	Status string `json:"status"`
	Output struct {
		UploadURL string `json:"upload_url"`
		FileKey   string `json:"file_key"`
		Error     string `json:"error"`
	} `json:"output"`
}

// Upload stores <name>.wav and, when a transcript is given, <name>.lab. The
// returned voice id is the sanitized name.
func (p *Presigned) Upload(ctx context.Context, name, transcript string, data []byte) (string, error) {
	voiceName, err := validate(name, data)
	if err != nil {
		return "", err
	}

	fileKey, err := p.put(ctx, voiceName+".wav", data, contentType(data))
	if err != nil {
		return "", err
	}

	if transcript != "" {
		_, err = p.put(ctx, voiceName+extTranscript, []byte(transcript), contentTypeText)
		if err != nil {
			return "", err
		}
	}

	if p.log != nil {
		p.log.Info("Uploaded reference voice %q to %s", voiceName, fileKey)
	}

	return voiceName, nil
}

func (p *Presigned) put(ctx context.Context, filename string, body []byte, mimeType string) (string, error) {
	var resp presignedResponse

	err := p.runner.RunSync(ctx, presignedInput{Task: taskPresignedURL, Filename: filename}, &resp)
	if err != nil {
		return "", fmt.Errorf("failed to get upload permission: %w", err)
	}

	if resp.Output.UploadURL == "" {
		reason := resp.Output.Error
		if reason == "" {
			reason = "server refused to generate upload URL"
		}

		return "", fmt.Errorf("%w: %s", tts.ErrProtocol, reason)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, resp.Output.UploadURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}

	req.Header.Set("Content-Type", mimeType)

	putResp, err := p.httpClient.Do(req)
	if err != nil {
		return "", &tts.NetworkError{Op: opPresignedPut, URL: resp.Output.UploadURL, Err: err}
	}
	defer putResp.Body.Close()

	if !statusOK(putResp.StatusCode) {
		raw, _ := io.ReadAll(io.LimitReader(putResp.Body, maxErrorBody))

		return "", &tts.NetworkError{
			Op:         opPresignedPut,
			URL:        resp.Output.UploadURL,
			StatusCode: putResp.StatusCode,
			Body:       string(bytes.TrimSpace(raw)),
		}
	}

	fileKey := resp.Output.FileKey
	if fileKey == "" {
		fileKey = filename
	}

	return fileKey, nil
}
