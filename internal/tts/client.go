// Package tts implements the job submission and polling client for the remote
// voice-cloning inference service.
//
// A generation is a short pipeline: BuildRequest validates the user's input,
// HTTPClient.Submit creates a job, Poller.Wait follows it to a terminal state
// and Decode turns the completed output into playable audio. Engine wires the
// four steps together.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/book-expert/voice-studio/internal/core"
)

// API endpoints and paths.
const (
	apiRun     = "/run"
	apiRunSync = "/runsync"
	apiStatus  = "/status/"
	apiHealth  = "/health"
)

// HTTP headers.
const (
	headerContentType   = "Content-Type"
	headerAccept        = "Accept"
	headerAuthorization = "Authorization"
	contentTypeJSON     = "application/json"
	bearerPrefix        = "Bearer "
)

// Operation names used in NetworkError.
const (
	opSubmit   = "submit job"
	opStatus   = "check job status"
	opRunSync  = "run sync task"
	opHealth   = "health check"
	opDownload = "download audio"
)

// maxErrorBody bounds how much of a failed response is kept for diagnostics.
const maxErrorBody = 64 * 1024

// HTTPClient talks to the serverless inference API: job creation, status
// polling, synchronous tasks and health checks. It is safe for concurrent use.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	tokens     core.TokenSource
}

// serviceErrorResponse is the structured error body some deployments return.
type serviceErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// NewHTTPClient creates a client for the inference API rooted at baseURL
// (e.g. "https://api.runpod.ai/v2/<endpoint>"). tokens may be nil when the
// endpoint needs no bearer credential.
func NewHTTPClient(baseURL string, timeout time.Duration, tokens core.TokenSource) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the API root this client was built with.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Submit posts a generation request to the job endpoint. A synchronous
// terminal result is returned as-is so the caller can skip polling; otherwise
// the returned job carries the id to poll.
func (c *HTTPClient) Submit(ctx context.Context, req GenerationRequest, format string) (*Job, error) {
	var resp jobResponse

	err := c.doJSON(ctx, opSubmit, http.MethodPost, c.baseURL+apiRun, req.payload(format), &resp)
	if err != nil {
		return nil, err
	}

	job := resp.job()

	if job.Status == StatusCompleted && len(job.Output) > 0 {
		return job, nil
	}

	if job.ID == "" {
		return nil, fmt.Errorf("%w: response has neither a job id nor a terminal output", ErrProtocol)
	}

	return job, nil
}

// Status fetches the current state of a job.
func (c *HTTPClient) Status(ctx context.Context, jobID string) (*Job, error) {
	var resp jobResponse

	endpoint := c.baseURL + apiStatus + url.PathEscape(jobID)

	err := c.doJSON(ctx, opStatus, http.MethodGet, endpoint, nil, &resp)
	if err != nil {
		return nil, err
	}

	job := resp.job()
	if job.ID == "" {
		job.ID = jobID
	}

	return job, nil
}

// RunSync executes a synchronous task (voice listing, presigned URLs, voice
// upload) and decodes the whole response into out.
func (c *HTTPClient) RunSync(ctx context.Context, input, out any) error {
	return c.doJSON(ctx, opRunSync, http.MethodPost, c.baseURL+apiRunSync, jobEnvelope{Input: input}, out)
}

// HealthCheck verifies that the inference endpoint is reachable.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	return c.doJSON(ctx, opHealth, http.MethodGet, c.baseURL+apiHealth, nil, nil)
}

// Download fetches audio the service returned as a direct URL.
func (c *HTTPClient) Download(ctx context.Context, audioURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: opDownload, URL: audioURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, c.parseErrorResponse(opDownload, audioURL, resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: opDownload, URL: audioURL, Err: err}
	}

	return data, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, op, method, endpoint string, body, dest any) error {
	bodyReader := io.Reader(http.NoBody)

	if body != nil {
		requestBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}

		bodyReader = bytes.NewReader(requestBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set(headerContentType, contentTypeJSON)
	}

	req.Header.Set(headerAccept, contentTypeJSON)

	authErr := c.authorize(ctx, req)
	if authErr != nil {
		return authErr
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: op, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return c.parseErrorResponse(op, endpoint, resp)
	}

	if dest == nil {
		return nil
	}

	decodeErr := json.NewDecoder(resp.Body).Decode(dest)
	if decodeErr != nil {
		return fmt.Errorf("%w: %s: failed to decode response: %w", ErrProtocol, op, decodeErr)
	}

	return nil
}

func (c *HTTPClient) authorize(ctx context.Context, req *http.Request) error {
	if c.tokens == nil {
		return nil
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain bearer token: %w", err)
	}

	if token != "" {
		req.Header.Set(headerAuthorization, bearerPrefix+token)
	}

	return nil
}

// parseErrorResponse keeps the server's message when it sent a structured
// error and the raw body otherwise.
func (c *HTTPClient) parseErrorResponse(op, endpoint string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	body := strings.TrimSpace(string(raw))

	var errorResp serviceErrorResponse
	if json.Unmarshal(raw, &errorResp) == nil {
		switch {
		case errorResp.Error != "":
			body = errorResp.Error
		case errorResp.Detail != "":
			body = errorResp.Detail
		}
	}

	return &NetworkError{
		Op:         op,
		URL:        endpoint,
		StatusCode: resp.StatusCode,
		Body:       body,
	}
}
